package agent

import (
	"testing"

	"github.com/go-go-golems/chorus/pkg/profiles"
	"github.com/stretchr/testify/require"
)

func TestParseDecision(t *testing.T) {
	roster := []*profiles.Profile{
		{ID: "alice", Name: "Alice"},
		{ID: "carol-2", Name: "Carol"},
	}

	tests := []struct {
		name      string
		raw       string
		wantID    string
		unknown   string
		malformed bool
	}{
		{name: "known persona", raw: "@alice", wantID: "alice"},
		{name: "surrounding whitespace", raw: "  @carol-2\n", wantID: "carol-2"},
		{name: "no reply", raw: "no reply"},
		{name: "no reply with newline", raw: "no reply\n"},
		{name: "unknown persona", raw: "@bob", unknown: "bob"},
		{name: "free text", raw: "maybe later", malformed: true},
		{name: "capitalised no reply", raw: "No reply", malformed: true},
		{name: "empty", raw: "", malformed: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := ParseDecision(tt.raw, roster)
			switch {
			case tt.malformed:
				var me *MalformedDecisionError
				require.ErrorAs(t, err, &me)
				require.Equal(t, tt.raw, me.Raw)
				require.Nil(t, p)
			case tt.unknown != "":
				var ue *UnknownPersonaError
				require.ErrorAs(t, err, &ue)
				require.Equal(t, tt.unknown, ue.ID)
				require.Nil(t, p)
			case tt.wantID == "":
				require.NoError(t, err)
				require.Nil(t, p)
			default:
				require.NoError(t, err)
				require.NotNil(t, p)
				require.Equal(t, tt.wantID, p.ID)
			}
		})
	}
}

func TestSummarizeProfiles(t *testing.T) {
	got := SummarizeProfiles([]*profiles.Profile{
		{ID: "a", Name: "Ann", Background: "Engineer"},
		{ID: "b", Name: "Bob", Background: "Designer"},
	})
	require.Equal(t, "ID: a\nName: Ann\nBackground: Engineer\n--------------\nID: b\nName: Bob\nBackground: Designer", got)
}
