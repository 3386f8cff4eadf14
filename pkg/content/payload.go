// Package content encodes and decodes the rich payloads carried in a
// message's content field.
package content

// Payload is the decoded form of a message's content. It is one of
// PlainText, PollDefinition or PollVote.
type Payload interface {
	isPayload()
}

// Mood tags a message with a tone marker.
type Mood string

const (
	MoodNone      Mood = ""
	MoodCelebrate Mood = "celebrate"
	MoodQuestion  Mood = "question"
	MoodHeadsUp   Mood = "heads-up"
	MoodInfo      Mood = "info"
)

// Valid reports whether m is a known mood or none.
func (m Mood) Valid() bool {
	switch m {
	case MoodNone, MoodCelebrate, MoodQuestion, MoodHeadsUp, MoodInfo:
		return true
	}
	return false
}

// Attachment is a file reference carried inline with a message.
type Attachment struct {
	ID          string
	Name        string
	MimeType    string
	SizeBytes   int64
	InlineData  []byte
	ExternalRef string
}

// PlainText is ordinary text with optional attachments and mood.
type PlainText struct {
	Text        string
	Attachments []Attachment
	Mood        Mood
}

// PollDefinition opens a poll. Options holds between 2 and 6 labels.
type PollDefinition struct {
	ID       string
	Question string
	Options  []string
	Mood     Mood
}

// PollVote records one voter's choice for a poll.
type PollVote struct {
	PollID      string
	OptionIndex int
}

func (PlainText) isPayload()      {}
func (PollDefinition) isPayload() {}
func (PollVote) isPayload()       {}

const (
	KindText = "text"
	KindPoll = "poll"
	KindVote = "vote"
)

// Kind returns a short label for the payload variant.
func Kind(p Payload) string {
	switch p.(type) {
	case PollDefinition, *PollDefinition:
		return KindPoll
	case PollVote, *PollVote:
		return KindVote
	default:
		return KindText
	}
}
