package content

import (
	"errors"
	"fmt"
	"strings"
)

const (
	// MaxAttachments is the most attachments one message may carry.
	MaxAttachments = 4
	// MaxInlineAttachmentBytes is the largest attachment that may be sent inline.
	MaxInlineAttachmentBytes = 200 * 1024
	// MaxPollOptions is the most options a poll may offer.
	MaxPollOptions = 6
	// MinPollOptions is the fewest options a poll may offer.
	MinPollOptions = 2
)

// ErrInvalidPayload is wrapped by every ValidationError.
var ErrInvalidPayload = errors.New("invalid payload")

// ValidationError explains why a payload was rejected before sending.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Reason)
}

func (e *ValidationError) Unwrap() error {
	return ErrInvalidPayload
}

func invalid(field, reason string) error {
	return &ValidationError{Field: field, Reason: reason}
}

// Validate checks a payload the user composed. It is applied before any
// network call; Decode never applies it to stored content.
func Validate(p Payload) error {
	switch v := deref(p).(type) {
	case PlainText:
		return validateText(v)
	case PollDefinition:
		return validatePoll(v)
	case PollVote:
		if v.PollID == "" {
			return invalid("vote", "poll id is required")
		}
		if v.OptionIndex < 0 {
			return invalid("vote", "option index must not be negative")
		}
		return nil
	default:
		return invalid("payload", "unsupported payload")
	}
}

func validateText(v PlainText) error {
	if strings.TrimSpace(v.Text) == "" && len(v.Attachments) == 0 {
		return invalid("text", "message is empty")
	}
	if len(v.Attachments) > MaxAttachments {
		return invalid("attachments", fmt.Sprintf("at most %d attachments per message", MaxAttachments))
	}
	for _, a := range v.Attachments {
		if a.SizeBytes > MaxInlineAttachmentBytes || len(a.InlineData) > MaxInlineAttachmentBytes {
			return invalid("attachments", fmt.Sprintf("%q is larger than %dKB", a.Name, MaxInlineAttachmentBytes/1024))
		}
	}
	if !v.Mood.Valid() {
		return invalid("mood", fmt.Sprintf("unknown mood %q", v.Mood))
	}
	return nil
}

func validatePoll(v PollDefinition) error {
	if strings.TrimSpace(v.Question) == "" {
		return invalid("poll", "add a poll question")
	}
	if len(cleanOptions(v.Options)) < MinPollOptions {
		return invalid("poll", "add at least two choices")
	}
	if !v.Mood.Valid() {
		return invalid("mood", fmt.Sprintf("unknown mood %q", v.Mood))
	}
	return nil
}

// NormalizePoll trims the question and options, drops blank options and
// keeps at most MaxPollOptions of them.
func NormalizePoll(p PollDefinition) PollDefinition {
	p.Question = strings.TrimSpace(p.Question)
	p.Options = cleanOptions(p.Options)
	if len(p.Options) > MaxPollOptions {
		p.Options = p.Options[:MaxPollOptions]
	}
	return p
}

func cleanOptions(options []string) []string {
	out := make([]string, 0, len(options))
	for _, opt := range options {
		if trimmed := strings.TrimSpace(opt); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
