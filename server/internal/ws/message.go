package ws

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"
)

var (
	// ErrMalformed means a published payload is not a JSON chat message.
	ErrMalformed = errors.New("ws: malformed message")
	// ErrValidation means a chat message has a blank required field.
	ErrValidation = errors.New("ws: message failed validation")
)

// Message is the JSON shape relayed between clients.
type Message struct {
	Username string `json:"username"`
	Message  string `json:"message"`
}

// Validate requires both fields to be non-blank after trimming.
func (m Message) Validate() error {
	if strings.TrimSpace(m.Username) == "" {
		return fmt.Errorf("%w: username is blank", ErrValidation)
	}
	if strings.TrimSpace(m.Message) == "" {
		return fmt.Errorf("%w: message is blank", ErrValidation)
	}
	return nil
}

// Decode parses and validates raw. Text that is not valid UTF-8 is malformed.
// The returned error wraps ErrMalformed or ErrValidation.
func Decode(raw string) (Message, error) {
	if !utf8.ValidString(raw) {
		return Message{}, fmt.Errorf("%w: invalid UTF-8", ErrMalformed)
	}
	var m Message
	if err := json.Unmarshal([]byte(raw), &m); err != nil {
		return Message{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if err := m.Validate(); err != nil {
		return m, err
	}
	return m, nil
}
