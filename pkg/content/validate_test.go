package content

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		payload Payload
		field   string
	}{
		{name: "plain ok", payload: PlainText{Text: "hi"}},
		{name: "attachment only ok", payload: PlainText{Attachments: []Attachment{{Name: "a", SizeBytes: 10}}}},
		{name: "empty text", payload: PlainText{Text: "   "}, field: "text"},
		{name: "too many attachments", payload: PlainText{Text: "x", Attachments: make([]Attachment, 5)}, field: "attachments"},
		{name: "oversized attachment", payload: PlainText{Attachments: []Attachment{{Name: "big", SizeBytes: MaxInlineAttachmentBytes + 1}}}, field: "attachments"},
		{name: "unknown mood", payload: PlainText{Text: "x", Mood: "angry"}, field: "mood"},
		{name: "poll ok", payload: PollDefinition{Question: "Q?", Options: []string{"a", "b"}}},
		{name: "poll empty question", payload: PollDefinition{Question: " ", Options: []string{"a", "b"}}, field: "poll"},
		{name: "poll one option", payload: PollDefinition{Question: "Q?", Options: []string{"a", "  "}}, field: "poll"},
		{name: "vote ok", payload: PollVote{PollID: "p", OptionIndex: 0}},
		{name: "vote without poll", payload: PollVote{OptionIndex: 0}, field: "vote"},
		{name: "vote negative", payload: PollVote{PollID: "p", OptionIndex: -1}, field: "vote"},
		{name: "nil payload", payload: nil, field: "payload"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Validate(tt.payload)
			if tt.field == "" {
				require.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrInvalidPayload))
			var verr *ValidationError
			require.ErrorAs(t, err, &verr)
			assert.Equal(t, tt.field, verr.Field)
		})
	}
}

func TestNormalizePoll(t *testing.T) {
	got := NormalizePoll(PollDefinition{
		Question: "  Best lab day?  ",
		Options:  []string{" Mon", "", "Tue", "Wed", "Thu", "Fri", "Sat", "Sun"},
	})

	assert.Equal(t, "Best lab day?", got.Question)
	assert.Equal(t, []string{"Mon", "Tue", "Wed", "Thu", "Fri", "Sat"}, got.Options)
}
