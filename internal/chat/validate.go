package chat

import (
	"fmt"
	"strings"
	"unicode/utf8"
)

// MaxTextLength bounds a composed message in bytes.
const MaxTextLength = 4096

// NormalizeText trims a composed message and rejects empty or oversized text.
func NormalizeText(text string) (string, error) {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return "", fmt.Errorf("%w: message text is empty", ErrValidation)
	}
	if len(trimmed) > MaxTextLength {
		return "", fmt.Errorf("%w: message exceeds %d bytes", ErrValidation, MaxTextLength)
	}
	if !utf8.ValidString(trimmed) {
		return "", fmt.Errorf("%w: message is not valid UTF-8", ErrValidation)
	}
	return trimmed, nil
}

// NormalizeParticipantID trims an id and rejects empty ones.
func NormalizeParticipantID(id string) (string, error) {
	trimmed := strings.TrimSpace(id)
	if trimmed == "" {
		return "", ErrInvalidParticipant
	}
	if strings.ContainsAny(trimmed, "/?#") {
		return "", fmt.Errorf("%w: %q", ErrInvalidParticipant, trimmed)
	}
	return trimmed, nil
}
