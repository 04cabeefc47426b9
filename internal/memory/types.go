package memory

import (
	"context"
	"errors"
	"strings"
)

// ErrMissingID is returned when a conversation id is blank.
var ErrMissingID = errors.New("missing conversation id")

// Store persists the running transcript of each named conversation as flat text.
type Store interface {
	// Read returns the whole transcript, or "" for a conversation never written.
	Read(ctx context.Context, conversationID string) (string, error)
	// Append adds text to the end of the transcript.
	Append(ctx context.Context, conversationID, text string) error
	// Reset forgets the transcript.
	Reset(ctx context.Context, conversationID string) error
	Close() error
}

// FormatTurn renders one exchange the way transcripts have always been stored.
func FormatTurn(userInput, reply string) string {
	return "\n[user]:" + userInput + "\n[You]:" + reply
}

func checkID(id string) error {
	if strings.TrimSpace(id) == "" {
		return ErrMissingID
	}
	return nil
}
