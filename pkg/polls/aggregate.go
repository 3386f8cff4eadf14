// Package polls derives poll tallies from a room's message list.
package polls

import (
	"math"

	"course-chat/pkg/content"
)

// Entry is one decoded message as seen by the aggregator.
type Entry struct {
	MessageID string
	SenderID  string
	Payload   content.Payload
}

// State is the tally of a single poll.
type State struct {
	Definition  content.PollDefinition
	Counts      []int
	Total       int
	VoterChoice map[string]int
}

// Percentages returns round(count/total*100) per option, all zero when no
// votes were cast.
func (s *State) Percentages() []int {
	out := make([]int, len(s.Counts))
	if s.Total == 0 {
		return out
	}
	for i, c := range s.Counts {
		out[i] = int(math.Round(float64(c) / float64(s.Total) * 100))
	}
	return out
}

// ChoiceOf returns the option the voter currently backs.
func (s *State) ChoiceOf(voterID string) (int, bool) {
	idx, ok := s.VoterChoice[voterID]
	return idx, ok
}

// Aggregate folds entries, given in chronological order, into poll states
// keyed by poll id. Definitions are registered before any vote is applied,
// so a vote is never lost to ordering within the list. A repeated poll id
// keeps the first definition. Each voter's latest valid vote wins; votes
// for unknown polls or out-of-range options are ignored.
func Aggregate(entries []Entry) map[string]*State {
	states := make(map[string]*State)

	for _, e := range entries {
		def, ok := asDefinition(e.Payload)
		if !ok {
			continue
		}
		if _, seen := states[def.ID]; seen {
			continue
		}
		states[def.ID] = &State{
			Definition:  def,
			Counts:      make([]int, len(def.Options)),
			VoterChoice: make(map[string]int),
		}
	}

	for _, e := range entries {
		vote, ok := asVote(e.Payload)
		if !ok {
			continue
		}
		st, ok := states[vote.PollID]
		if !ok || vote.OptionIndex < 0 || vote.OptionIndex >= len(st.Counts) {
			continue
		}
		if prev, voted := st.VoterChoice[e.SenderID]; voted {
			st.Counts[prev]--
			st.Total--
		}
		st.VoterChoice[e.SenderID] = vote.OptionIndex
		st.Counts[vote.OptionIndex]++
		st.Total++
	}

	return states
}

func asDefinition(p content.Payload) (content.PollDefinition, bool) {
	switch v := p.(type) {
	case content.PollDefinition:
		return v, true
	case *content.PollDefinition:
		if v != nil {
			return *v, true
		}
	}
	return content.PollDefinition{}, false
}

func asVote(p content.Payload) (content.PollVote, bool) {
	switch v := p.(type) {
	case content.PollVote:
		return v, true
	case *content.PollVote:
		if v != nil {
			return *v, true
		}
	}
	return content.PollVote{}, false
}
