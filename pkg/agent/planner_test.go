package agent

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/go-go-golems/chorus/pkg/chat"
	"github.com/go-go-golems/chorus/pkg/llm"
	"github.com/go-go-golems/chorus/pkg/llm/mocks"
	"github.com/go-go-golems/chorus/pkg/profiles"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

// chanStream yields chunks as the test sends them and ends when the channel
// is closed.
type chanStream struct {
	ch  chan string
	cur string
}

func (s *chanStream) Next() bool {
	c, ok := <-s.ch
	s.cur = c
	return ok
}
func (s *chanStream) Current() string { return s.cur }
func (s *chanStream) Err() error      { return nil }
func (s *chanStream) Close() error    { return nil }

func receive(t *testing.T, sub *chat.Subscription) chat.Message {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	msg, err := sub.Receive(ctx)
	require.NoError(t, err)
	return msg
}

func receiveChat(t *testing.T, sub *chat.Subscription) *chat.ChatMessage {
	t.Helper()
	cm, ok := receive(t, sub).(*chat.ChatMessage)
	require.True(t, ok, "expected a chat message")
	return cm
}

func receiveError(t *testing.T, sub *chat.Subscription) *chat.ErrorMessage {
	t.Helper()
	em, ok := receive(t, sub).(*chat.ErrorMessage)
	require.True(t, ok, "expected an error message")
	return em
}

func nextSnapshot(t *testing.T, r *chat.ContentReader) chat.Snapshot {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	s, err := r.Next(ctx)
	require.NoError(t, err)
	return s
}

type fixture struct {
	room     *chat.Room
	backend  *mocks.MockBackend
	planner  *Planner
	observer *chat.Subscription
}

func newFixture(t *testing.T, roster []*profiles.Profile, capacity int) *fixture {
	t.Helper()
	ctrl := gomock.NewController(t)
	room := chat.NewRoom(roster, capacity)
	backend := mocks.NewMockBackend(ctrl)
	f := &fixture{
		room:     room,
		backend:  backend,
		observer: room.Subscribe(),
		planner:  NewPlanner(room, backend),
	}
	t.Cleanup(func() {
		f.planner.Close()
		select {
		case <-f.planner.Done():
		case <-time.After(2 * time.Second):
			t.Error("planner did not stop")
		}
	})
	return f
}

func annRoster() []*profiles.Profile {
	return []*profiles.Profile{{ID: "a", Name: "Ann", Background: "Engineer"}}
}

func TestPlanner_StreamsSelectedReply(t *testing.T) {
	f := newFixture(t, annRoster(), 10)

	stream := &chanStream{ch: make(chan string)}
	var replyReq llm.Request
	gomock.InOrder(
		f.backend.EXPECT().Complete(gomock.Any(), gomock.Any()).Return("@a", nil),
		f.backend.EXPECT().Complete(gomock.Any(), gomock.Any()).Return("no reply", nil).AnyTimes(),
	)
	f.backend.EXPECT().Stream(gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, req llm.Request) (llm.Stream, error) {
			replyReq = req
			return stream, nil
		})

	require.NoError(t, f.planner.Start(context.Background()))
	require.NoError(t, f.room.PublishChat(chat.NewUserMessage("u1", "You", "hi")))

	first := receiveChat(t, f.observer)
	require.Equal(t, "u1", first.FromUserID)
	require.Equal(t, "hi", first.Content.Current().Text())

	reply := receiveChat(t, f.observer)
	require.Equal(t, "a", reply.FromUserID)
	require.Equal(t, "Ann", reply.FromUsername)
	require.Equal(t, chat.RoleAssistant, reply.Role)

	r := reply.Content.Subscribe()
	s := r.Current()
	require.Empty(t, s.Chunks)
	require.False(t, s.Complete)

	stream.ch <- "Hello"
	s = nextSnapshot(t, r)
	require.Equal(t, []string{"Hello"}, s.Chunks)
	require.False(t, s.Complete)

	stream.ch <- " there"
	s = nextSnapshot(t, r)
	require.Equal(t, []string{"Hello", " there"}, s.Chunks)
	require.False(t, s.Complete)

	close(stream.ch)
	s = nextSnapshot(t, r)
	require.True(t, s.Complete)
	require.Equal(t, "Hello there", s.Text())

	require.Contains(t, replyReq.SystemPrompt, "name: Ann")
	require.Equal(t, []llm.Turn{{Role: llm.RoleUser, Content: "You(@u1): hi"}}, replyReq.Conversation)
	require.Empty(t, replyReq.Model)
}

func TestPlanner_DecisionPromptOnlyContainsSettledText(t *testing.T) {
	f := newFixture(t, annRoster(), 10)

	prompts := make(chan string, 4)
	f.backend.EXPECT().Complete(gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, req llm.Request) (string, error) {
			prompts <- req.SystemPrompt + req.Conversation[0].Content
			return "no reply", nil
		}).Times(2)

	require.NoError(t, f.planner.Start(context.Background()))

	pending := chat.NewContent()
	require.NoError(t, f.room.PublishChat(chat.NewChatMessage("b", "Bob", chat.RoleAssistant, pending)))
	require.NoError(t, pending.Append("Bob(@b): half a "))

	select {
	case <-prompts:
		t.Fatal("decision must wait for the message to settle")
	case <-time.After(50 * time.Millisecond):
	}

	require.NoError(t, pending.Append("sentence"))
	require.NoError(t, pending.Complete())
	prompt := <-prompts
	require.Contains(t, prompt, "Bob(@b): half a sentence")
	require.Contains(t, prompt, "ID: a\nName: Ann\nBackground: Engineer")

	require.NoError(t, f.room.PublishChat(chat.NewUserMessage("u1", "You", "and you?")))
	prompt = <-prompts
	require.Contains(t, prompt, "Bob(@b): half a sentence\nYou(@u1): and you?")
}

func TestPlanner_StripsEchoWhileStreaming(t *testing.T) {
	f := newFixture(t, annRoster(), 10)

	gomock.InOrder(
		f.backend.EXPECT().Complete(gomock.Any(), gomock.Any()).Return("@a", nil),
		f.backend.EXPECT().Complete(gomock.Any(), gomock.Any()).Return("no reply", nil).AnyTimes(),
	)
	f.backend.EXPECT().Stream(gomock.Any(), gomock.Any()).
		Return(llm.NewSliceStream([]string{"Ann(@a", "): ", "Hi ", "all"}, nil), nil)

	require.NoError(t, f.planner.Start(context.Background()))
	require.NoError(t, f.room.PublishChat(chat.NewUserMessage("u1", "You", "hi")))

	receiveChat(t, f.observer)
	reply := receiveChat(t, f.observer)
	s, err := reply.Content.WaitForCompletion(context.Background())
	require.NoError(t, err)
	require.Equal(t, "Hi all", s.Text())
}

func TestPlanner_SurfacesDecisionErrors(t *testing.T) {
	f := newFixture(t, annRoster(), 10)
	lastCall := make(chan struct{})

	gomock.InOrder(
		f.backend.EXPECT().Complete(gomock.Any(), gomock.Any()).Return("maybe later", nil),
		f.backend.EXPECT().Complete(gomock.Any(), gomock.Any()).Return("@bob", nil),
		f.backend.EXPECT().Complete(gomock.Any(), gomock.Any()).Return("", errors.New("connection refused")),
		f.backend.EXPECT().Complete(gomock.Any(), gomock.Any()).
			DoAndReturn(func(context.Context, llm.Request) (string, error) {
				close(lastCall)
				return "no reply", nil
			}),
	)

	require.NoError(t, f.planner.Start(context.Background()))

	for i := 0; i < 3; i++ {
		require.NoError(t, f.room.PublishChat(chat.NewUserMessage("u1", "You", "hi")))
		receiveChat(t, f.observer)
		em := receiveError(t, f.observer)
		require.Contains(t, em.Msg, "Failed to handle message: ")
		switch i {
		case 0:
			require.Contains(t, em.Msg, `unexpected decision "maybe later"`)
		case 1:
			require.Contains(t, em.Msg, "no profile found for id bob")
		case 2:
			require.Contains(t, em.Msg, "llm complete: connection refused")
		}
	}

	// the loop keeps serving after failed turns
	require.NoError(t, f.room.PublishChat(chat.NewUserMessage("u1", "You", "still there?")))
	receiveChat(t, f.observer)
	select {
	case <-lastCall:
	case <-time.After(2 * time.Second):
		t.Fatal("planner stopped serving")
	}
	require.Eventually(t, func() bool {
		return f.planner.State() == StateAwaitEvent
	}, 2*time.Second, 5*time.Millisecond)
	_, err := f.observer.TryReceive()
	require.ErrorIs(t, err, chat.ErrEmpty)
}

func TestPlanner_StreamFailureAbortsReply(t *testing.T) {
	f := newFixture(t, annRoster(), 10)

	gomock.InOrder(
		f.backend.EXPECT().Complete(gomock.Any(), gomock.Any()).Return("@a", nil),
		f.backend.EXPECT().Complete(gomock.Any(), gomock.Any()).Return("no reply", nil).AnyTimes(),
	)
	f.backend.EXPECT().Stream(gomock.Any(), gomock.Any()).
		Return(llm.NewSliceStream([]string{"Hel"}, errors.New("connection reset")), nil)

	require.NoError(t, f.planner.Start(context.Background()))
	require.NoError(t, f.room.PublishChat(chat.NewUserMessage("u1", "You", "hi")))

	receiveChat(t, f.observer)
	reply := receiveChat(t, f.observer)
	s, err := reply.Content.WaitForCompletion(context.Background())
	require.ErrorIs(t, err, chat.ErrContentClosed)
	require.Equal(t, "Hel", s.Text())

	em := receiveError(t, f.observer)
	require.Contains(t, em.Msg, "llm stream: connection reset")
}

func TestPlanner_RoutingHints(t *testing.T) {
	roster := []*profiles.Profile{
		{ID: "a", Name: "Ann", LLMProvider: "openai", LLMModel: "small-model"},
		{ID: "z", Name: "Zed", LLMProvider: "anthropic"},
	}
	f := newFixture(t, roster, 10)

	var model atomic.Value
	gomock.InOrder(
		f.backend.EXPECT().Complete(gomock.Any(), gomock.Any()).Return("@z", nil),
		f.backend.EXPECT().Complete(gomock.Any(), gomock.Any()).Return("@a", nil),
		f.backend.EXPECT().Complete(gomock.Any(), gomock.Any()).Return("no reply", nil).AnyTimes(),
	)
	f.backend.EXPECT().Stream(gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, req llm.Request) (llm.Stream, error) {
			model.Store(req.Model)
			return llm.NewSliceStream([]string{"ok"}, nil), nil
		})

	require.NoError(t, f.planner.Start(context.Background()))

	require.NoError(t, f.room.PublishChat(chat.NewUserMessage("u1", "You", "zed?")))
	receiveChat(t, f.observer)
	em := receiveError(t, f.observer)
	require.Contains(t, em.Msg, `unsupported llm provider "anthropic"`)

	require.NoError(t, f.room.PublishChat(chat.NewUserMessage("u1", "You", "ann?")))
	receiveChat(t, f.observer)
	reply := receiveChat(t, f.observer)
	require.Equal(t, "a", reply.FromUserID)
	_, err := reply.Content.WaitForCompletion(context.Background())
	require.NoError(t, err)
	require.Equal(t, "small-model", model.Load())
}

func TestPlanner_RoutesRepliesByProvider(t *testing.T) {
	ctrl := gomock.NewController(t)
	roster := []*profiles.Profile{{ID: "c", Name: "Cleo", LLMProvider: "Claude", LLMModel: "sonnet"}}
	room := chat.NewRoom(roster, 10)
	observer := room.Subscribe()

	def := mocks.NewMockBackend(ctrl)
	claude := mocks.NewMockBackend(ctrl)
	router := llm.NewRouter(def)
	router.Register("claude", claude)

	planner := NewPlanner(room, router)
	t.Cleanup(func() {
		planner.Close()
		<-planner.Done()
	})

	def.EXPECT().Complete(gomock.Any(), gomock.Any()).Return("@c", nil)
	def.EXPECT().Complete(gomock.Any(), gomock.Any()).Return("no reply", nil).AnyTimes()
	claude.EXPECT().Stream(gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, req llm.Request) (llm.Stream, error) {
			if req.Model != "sonnet" {
				return nil, errors.Errorf("unexpected model %q", req.Model)
			}
			return llm.NewSliceStream([]string{"from claude"}, nil), nil
		})

	require.NoError(t, planner.Start(context.Background()))
	require.NoError(t, room.PublishChat(chat.NewUserMessage("u1", "You", "cleo?")))
	receiveChat(t, observer)

	reply := receiveChat(t, observer)
	require.Equal(t, "c", reply.FromUserID)
	snap, err := reply.Content.WaitForCompletion(context.Background())
	require.NoError(t, err)
	require.Equal(t, "from claude", snap.Text())
}

func TestPlanner_SkipsLaggedMessages(t *testing.T) {
	f := newFixture(t, annRoster(), 2)

	prompts := make(chan string, 4)
	f.backend.EXPECT().Complete(gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, req llm.Request) (string, error) {
			prompts <- req.Conversation[0].Content
			return "no reply", nil
		}).Times(2)

	for _, text := range []string{"m0", "m1", "m2", "m3", "m4"} {
		require.NoError(t, f.room.PublishChat(chat.NewUserMessage("u1", "You", text)))
	}
	require.NoError(t, f.planner.Start(context.Background()))

	<-prompts
	last := <-prompts
	require.Contains(t, last, "You(@u1): m3\nYou(@u1): m4")
	require.NotContains(t, last, "m2")
}

func TestPlanner_StartIsIdempotent(t *testing.T) {
	f := newFixture(t, annRoster(), 10)

	called := make(chan struct{}, 1)
	f.backend.EXPECT().Complete(gomock.Any(), gomock.Any()).
		DoAndReturn(func(context.Context, llm.Request) (string, error) {
			called <- struct{}{}
			return "no reply", nil
		})

	require.NoError(t, f.planner.Start(context.Background()))
	cancelled, cancel := context.WithCancel(context.Background())
	cancel()
	// ignored: the planner is already running with the first context
	require.NoError(t, f.planner.Start(cancelled))

	require.NoError(t, f.room.PublishChat(chat.NewUserMessage("u1", "You", "hi")))
	select {
	case <-called:
	case <-time.After(2 * time.Second):
		t.Fatal("planner is not running")
	}
}

func TestPlanner_StopAndRoomClose(t *testing.T) {
	t.Run("stop", func(t *testing.T) {
		f := newFixture(t, annRoster(), 10)
		require.NoError(t, f.planner.Start(context.Background()))
		f.planner.Stop()
		require.ErrorIs(t, f.planner.Wait(), context.Canceled)
		require.Equal(t, StateStopped, f.planner.State())
	})

	t.Run("room closed", func(t *testing.T) {
		f := newFixture(t, annRoster(), 10)
		require.NoError(t, f.planner.Start(context.Background()))
		f.room.Close()
		require.ErrorIs(t, f.planner.Wait(), chat.ErrClosed)
	})
}
