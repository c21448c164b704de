// Package agentcall is the invocation boundary between the coffeehouse and
// the model backends. A ChatClient turns a transcript into one reply; the
// provider subpackages implement it per backend API.
package agentcall

import (
	"context"
	"errors"
	"fmt"

	"github.com/contenox/coffeehouse/conversationstore"
)

var ErrEmptyResponse = errors.New("agentcall: empty response from model")

// Message is a single chat turn in provider-neutral form.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ChatClient produces one assistant reply for a transcript.
type ChatClient interface {
	Chat(ctx context.Context, messages []Message) (string, error)
}

// Transcript converts an agent's visible conversation into the message
// list handed to its backend. The persona becomes the system prompt, the
// agent's own messages become assistant turns and everything else becomes
// labeled user turns so the model can tell speakers apart. names maps
// sender IDs to display names for the labels.
func Transcript(agentID, persona string, msgs []conversationstore.Message, names map[string]string) []Message {
	out := make([]Message, 0, len(msgs)+1)
	if persona != "" {
		out = append(out, Message{Role: "system", Content: persona})
	}
	for _, m := range msgs {
		if m.Sender == agentID {
			out = append(out, Message{Role: "assistant", Content: m.Content})
			continue
		}
		label := m.Sender
		if m.Sender == conversationstore.SenderUser {
			label = "User"
		} else if name, ok := names[m.Sender]; ok && name != "" {
			label = name
		}
		out = append(out, Message{
			Role:    "user",
			Content: fmt.Sprintf("%s: %s", label, m.Content),
		})
	}
	return out
}
