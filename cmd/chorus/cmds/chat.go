package cmds

import (
	"context"
	"os"

	"github.com/go-go-golems/chorus/pkg/agent"
	"github.com/go-go-golems/chorus/pkg/chat"
	"github.com/go-go-golems/chorus/pkg/eventtap"
	"github.com/go-go-golems/chorus/pkg/llm"
	"github.com/go-go-golems/chorus/pkg/profiles"
	"github.com/go-go-golems/chorus/pkg/redisstream"
	"github.com/go-go-golems/chorus/pkg/ui"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/sync/errgroup"
)

func NewChatCommand(v *viper.Viper) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "chat <profile-id>...",
		Short: "Start a group chat with the given agent profiles",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := v.BindPFlags(cmd.Flags()); err != nil {
				return errors.Wrap(err, "could not bind flags")
			}
			return runChat(cmd.Context(), v, args)
		},
	}
	f := cmd.Flags()
	f.String("llm-config", "", "Path to the LLM config file (api_key, model, base_url, ...)")
	f.String("user-id", "user", "Your participant id in the room")
	f.String("username", "You", "Your display name in the room")
	f.Int("room-capacity", chat.DefaultCapacity, "Messages retained for slow subscribers")
	f.Bool("plain", false, "Line mode instead of the full-screen UI")
	redisstream.AddFlags(cmd)
	_ = cmd.MarkFlagRequired("llm-config")
	return cmd
}

func runChat(ctx context.Context, v *viper.Viper, ids []string) error {
	plain := v.GetBool("plain")

	settings, err := llm.LoadSettings(v.GetString("llm-config"))
	if err != nil {
		return err
	}

	store, err := openStore(v)
	if err != nil {
		return err
	}
	roster, err := profiles.LoadAll(ctx, store, ids)
	_ = store.Close()
	if err != nil {
		return err
	}

	backend, err := llm.NewRouterFromSettings(settings)
	if err != nil {
		return err
	}
	log.Debug().Strs("providers", backend.Providers()).Msg("llm providers")

	room := chat.NewRoom(roster, v.GetInt("room-capacity"))
	planner := agent.NewPlanner(room, backend)
	defer planner.Close()

	g, gctx := errgroup.WithContext(ctx)

	var tap *eventtap.Tap
	rs := redisstream.SettingsFromViper(v)
	if rs.Enabled {
		pub, err := redisstream.BuildPublisher(ctx, rs)
		if err != nil {
			return err
		}
		defer func() {
			_ = pub.Close()
		}()
		tap = eventtap.NewTap(room, pub, rs.Stream)
		defer tap.Close()
		if err := tap.Start(gctx); err != nil {
			return err
		}
		g.Go(func() error {
			if err := tap.Wait(); err != nil && !errors.Is(err, context.Canceled) {
				log.Warn().Err(err).Str("component", "chat").Msg("event mirror stopped")
			}
			return nil
		})
	}

	if err := planner.Start(gctx); err != nil {
		return err
	}
	g.Go(func() error {
		err := planner.Wait()
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return errors.Wrap(err, "planner stopped")
	})

	user := ui.User{ID: v.GetString("user-id"), Name: v.GetString("username")}
	log.Info().Strs("profiles", ids).Str("user", user.ID).Bool("plain", plain).Msg("starting chat")
	g.Go(func() error {
		var err error
		if plain {
			err = ui.RunPlain(gctx, room, user, os.Stdin, os.Stdout)
		} else {
			err = ui.Run(gctx, room, user)
		}
		planner.Stop()
		if tap != nil {
			tap.Stop()
		}
		return err
	})

	err = g.Wait()
	if errors.Is(err, context.Canceled) {
		// interrupted, or the user left the chat
		return nil
	}
	return err
}
