package content

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"math"
	"strings"
)

// RichPrefix marks content that carries an encoded payload.
const RichPrefix = "::rich::"

const (
	wireKindText = "rich-text"
	wireKindPoll = "poll"
	wireKindVote = "poll-vote"

	defaultPollQuestion   = "Untitled poll"
	defaultAttachmentName = "Attachment"
	defaultAttachmentType = "file/unknown"
)

var placeholderOptions = []string{"Yes", "No"}

type wireAttachment struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	Type    string `json:"type"`
	Size    any    `json:"size"`
	DataURL string `json:"dataUrl,omitempty"`
	Href    string `json:"href,omitempty"`
}

type wirePoll struct {
	ID       string   `json:"id"`
	Question string   `json:"question"`
	Options  []string `json:"options"`
}

type wireVote struct {
	PollID      string `json:"pollId"`
	OptionIndex any    `json:"optionIndex"`
}

type wirePayload struct {
	Kind        string            `json:"kind,omitempty"`
	Text        *string           `json:"text,omitempty"`
	Attachments []*wireAttachment `json:"attachments,omitempty"`
	Mood        *string           `json:"mood,omitempty"`
	Poll        *wirePoll         `json:"poll,omitempty"`
	Vote        *wireVote         `json:"vote,omitempty"`
}

// Encode renders p as message content. Plain text without attachments or
// mood is returned as-is; everything else goes behind RichPrefix.
func Encode(p Payload) string {
	var w wirePayload
	switch v := deref(p).(type) {
	case PlainText:
		// Text that already starts with the prefix is wrapped so it decodes
		// back as itself.
		if len(v.Attachments) == 0 && v.Mood == MoodNone && !strings.HasPrefix(v.Text, RichPrefix) {
			return v.Text
		}
		text := v.Text
		w = wirePayload{Kind: wireKindText, Text: &text, Mood: moodPtr(v.Mood)}
		for _, a := range v.Attachments {
			w.Attachments = append(w.Attachments, encodeAttachment(a))
		}
	case PollDefinition:
		w = wirePayload{
			Kind: wireKindPoll,
			Poll: &wirePoll{ID: v.ID, Question: v.Question, Options: v.Options},
			Mood: moodPtr(v.Mood),
		}
	case PollVote:
		w = wirePayload{
			Kind: wireKindVote,
			Vote: &wireVote{PollID: v.PollID, OptionIndex: v.OptionIndex},
		}
	default:
		return ""
	}

	body, err := json.Marshal(w)
	if err != nil {
		return ""
	}
	return RichPrefix + string(body)
}

// Decode resolves raw content into a payload. It never fails: content that
// cannot be parsed comes back as PlainText holding raw unchanged.
// fallbackID names a poll whose encoded definition carries no id.
func Decode(raw, fallbackID string) Payload {
	plain := PlainText{Text: raw}
	if !strings.HasPrefix(raw, RichPrefix) {
		return plain
	}

	var w *wirePayload
	if err := json.Unmarshal([]byte(raw[len(RichPrefix):]), &w); err != nil || w == nil {
		return plain
	}

	if w.Poll != nil {
		return decodePoll(w, fallbackID)
	}

	if w.Vote != nil {
		return PollVote{PollID: w.Vote.PollID, OptionIndex: optionIndex(w.Vote.OptionIndex)}
	}

	out := PlainText{Mood: decodeMood(w.Mood)}
	if w.Text != nil {
		out.Text = *w.Text
	}
	for i, a := range w.Attachments {
		if a == nil {
			continue
		}
		out.Attachments = append(out.Attachments, decodeAttachment(a, i))
	}
	return out
}

func decodePoll(w *wirePayload, fallbackID string) PollDefinition {
	poll := PollDefinition{
		ID:       w.Poll.ID,
		Question: w.Poll.Question,
		Mood:     decodeMood(w.Mood),
	}
	if poll.ID == "" {
		poll.ID = fallbackID
	}
	if poll.Question == "" {
		poll.Question = defaultPollQuestion
	}

	if w.Poll.Options == nil {
		poll.Options = append([]string(nil), placeholderOptions...)
		return poll
	}
	for _, opt := range w.Poll.Options {
		if strings.TrimSpace(opt) != "" {
			poll.Options = append(poll.Options, opt)
		}
	}
	if len(poll.Options) < 2 {
		poll.Options = append(poll.Options, placeholderOptions...)[:2]
	}
	return poll
}

// optionIndex converts a decoded JSON value into an option index. Anything
// that is not an integral number maps to -1, which no poll accepts.
func optionIndex(v any) int {
	f, ok := v.(float64)
	if !ok || f != math.Trunc(f) || f < math.MinInt32 || f > math.MaxInt32 {
		return -1
	}
	return int(f)
}

func decodeMood(m *string) Mood {
	if m == nil {
		return MoodNone
	}
	mood := Mood(*m)
	if !mood.Valid() {
		return MoodNone
	}
	return mood
}

func moodPtr(m Mood) *string {
	if m == MoodNone {
		return nil
	}
	s := string(m)
	return &s
}

func encodeAttachment(a Attachment) *wireAttachment {
	w := &wireAttachment{
		ID:   a.ID,
		Name: a.Name,
		Type: a.MimeType,
		Size: a.SizeBytes,
		Href: a.ExternalRef,
	}
	if len(a.InlineData) > 0 {
		w.DataURL = fmt.Sprintf("data:%s;base64,%s", a.MimeType, base64.StdEncoding.EncodeToString(a.InlineData))
	}
	return w
}

func decodeAttachment(w *wireAttachment, index int) Attachment {
	a := Attachment{
		ID:          w.ID,
		Name:        w.Name,
		MimeType:    w.Type,
		ExternalRef: w.Href,
	}
	if a.ID == "" {
		a.ID = fmt.Sprintf("attachment-%d", index)
	}
	if a.Name == "" {
		a.Name = defaultAttachmentName
	}
	if a.MimeType == "" {
		a.MimeType = defaultAttachmentType
	}
	if size, ok := w.Size.(float64); ok && size >= 0 {
		a.SizeBytes = int64(size)
	}
	a.InlineData = parseDataURL(w.DataURL)
	return a
}

// parseDataURL extracts the bytes of a base64 data URL, or nil.
func parseDataURL(s string) []byte {
	if !strings.HasPrefix(s, "data:") {
		return nil
	}
	meta, data, ok := strings.Cut(s[len("data:"):], ",")
	if !ok || !strings.HasSuffix(meta, ";base64") {
		return nil
	}
	decoded, err := base64.StdEncoding.DecodeString(data)
	if err != nil {
		return nil
	}
	return decoded
}

func deref(p Payload) Payload {
	switch v := p.(type) {
	case *PlainText:
		if v != nil {
			return *v
		}
	case *PollDefinition:
		if v != nil {
			return *v
		}
	case *PollVote:
		if v != nil {
			return *v
		}
	default:
		return p
	}
	return nil
}
