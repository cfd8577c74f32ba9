package agent

import (
	"fmt"
	"strings"

	"github.com/go-go-golems/chorus/pkg/chat"
	"github.com/go-go-golems/chorus/pkg/llm"
	"github.com/go-go-golems/chorus/pkg/profiles"
	"github.com/samber/lo"
)

// settledMessage is a history entry whose content is final.
type settledMessage struct {
	msg     *chat.ChatMessage
	text    string
	settled bool
}

func (s settledMessage) line() string {
	return fmt.Sprintf("%s(@%s): %s", s.msg.FromUsername, s.msg.FromUserID, s.text)
}

// SummarizeProfiles renders one paragraph per persona.
func SummarizeProfiles(roster []*profiles.Profile) string {
	return strings.Join(lo.Map(roster, func(p *profiles.Profile, _ int) string {
		return fmt.Sprintf("ID: %s\nName: %s\nBackground: %s", p.ID, p.Name, p.Background)
	}), "\n--------------\n")
}

func decisionPrompt(summary string, history []settledMessage) string {
	transcript := strings.Join(lo.Map(history, func(s settledMessage, _ int) string {
		return s.line()
	}), "\n")

	var sb strings.Builder
	sb.WriteString("You are given a summary of profiles for all the LLM agents in the conversation. ")
	sb.WriteString("You are also given the recent conversation of the agents and the user. ")
	sb.WriteString("Based on that, output which LLM agent should reply in the conversation next. ")
	sb.WriteString("The output can be either of the two:\n\n")
	sb.WriteString("* Agent ID with a prefix of @. This indicates which agent should reply next.\n")
	sb.WriteString("* Simply respond `no reply` to indicate that no agent should reply to the conversation next.\n\n")
	sb.WriteString("Follow the output format strictly and output nothing else.\n")
	sb.WriteString("If the last message is sent by the user, there always should be an agent to reply. ")
	sb.WriteString("Otherwise it's optional for other agents to reply.\n\n")
	sb.WriteString("Here is the agent profile summary:\n")
	sb.WriteString(summary)
	sb.WriteString("\n\nHere is the recent conversation:\n")
	sb.WriteString(transcript)
	sb.WriteString("\n")
	return sb.String()
}

func replySystemPrompt(p *profiles.Profile) string {
	var sb strings.Builder
	sb.WriteString("You are simulating a profile in a group chat to reply to a new message. ")
	sb.WriteString("Here is the background of the profile:\n")
	fmt.Fprintf(&sb, "id: %s\nname: %s\nbackground:\n%s\n", p.ID, p.Name, p.Background)
	if len(p.ConversationExamples) > 0 {
		sb.WriteString("\nHere are example messages written by this profile. Match their tone and style:\n")
		for _, ex := range p.ConversationExamples {
			fmt.Fprintf(&sb, "- %s\n", ex)
		}
	}
	sb.WriteString("\nYou must reply to the conversation. ")
	fmt.Fprintf(&sb, "Output only the message text, without a leading %q.\n", EchoPrefix(p.Name, p.ID))
	return sb.String()
}

func replyRequest(p *profiles.Profile, history []settledMessage) llm.Request {
	turns := lo.Map(history, func(s settledMessage, _ int) llm.Turn {
		role := llm.RoleUser
		switch s.msg.Role {
		case chat.RoleAssistant:
			role = llm.RoleAssistant
		case chat.RoleSystem:
			role = llm.RoleSystem
		}
		return llm.Turn{Role: role, Content: s.line()}
	})
	return llm.Request{
		SystemPrompt: replySystemPrompt(p),
		Conversation: turns,
		Model:        p.LLMModel,
	}
}
