package agent

import (
	"fmt"
	"strings"

	"github.com/go-go-golems/chorus/pkg/profiles"
	"github.com/samber/lo"
)

// NoReply is the literal answer of the decision model when nobody should
// speak next.
const NoReply = "no reply"

// UnknownPersonaError is returned when the decision names an id that is not
// part of the room's roster.
type UnknownPersonaError struct {
	ID string
}

func (e *UnknownPersonaError) Error() string {
	return fmt.Sprintf("no profile found for id %s", e.ID)
}

// MalformedDecisionError is returned when the decision is neither "@id" nor
// "no reply".
type MalformedDecisionError struct {
	Raw string
}

func (e *MalformedDecisionError) Error() string {
	return fmt.Sprintf("unexpected decision %q", e.Raw)
}

// ParseDecision interprets the raw output of the decision model. It returns
// the selected persona, or nil when no one should reply.
func ParseDecision(raw string, roster []*profiles.Profile) (*profiles.Profile, error) {
	s := strings.TrimSpace(raw)
	switch {
	case strings.HasPrefix(s, "@"):
		id := strings.TrimPrefix(s, "@")
		p, ok := lo.Find(roster, func(p *profiles.Profile) bool {
			return p.ID == id
		})
		if !ok {
			return nil, &UnknownPersonaError{ID: id}
		}
		return p, nil
	case s == NoReply:
		return nil, nil
	default:
		return nil, &MalformedDecisionError{Raw: raw}
	}
}
