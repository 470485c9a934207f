package domain

import "time"

// Phase is the position of an in-progress session within a single topic.
type Phase string

const (
	// PhaseAsking means the current topic's prompt has been sent and the
	// next message is its answer (or choice).
	PhaseAsking Phase = "asking"
	// PhaseElaborating means a choice answer has been stored and the next
	// message completes it as free-text elaboration.
	PhaseElaborating Phase = "elaborating"
	// PhaseRating means all topics are answered and the next message must
	// be the 0-2 rating.
	PhaseRating Phase = "rating"
	// PhaseConfirming means the rating was accepted and the entry awaits
	// an explicit save-or-discard decision.
	PhaseConfirming Phase = "confirming"
)

// AnswerSeparator joins a choice answer with its elaboration text.
const AnswerSeparator = ": "

// Session is one user's in-progress survey entry. The zero value is not
// meaningful; sessions are created by NewSession and mutated only through
// the With* value methods, which copy the answer map.
type Session struct {
	UserID    int64
	UserName  string
	Cursor    int
	Phase     Phase
	Answers   map[string]string
	Rating    int
	StartedAt time.Time
	UpdatedAt time.Time
}

// NewSession returns a fresh session at the given topic index.
func NewSession(userID int64, userName string, cursor int, now time.Time) Session {
	return Session{
		UserID:    userID,
		UserName:  userName,
		Cursor:    cursor,
		Phase:     PhaseAsking,
		Answers:   map[string]string{},
		StartedAt: now,
		UpdatedAt: now,
	}
}

// WithAnswer records text under topicID and returns the updated session.
// If the topic already holds a partial answer from a choice step, the text
// is appended with AnswerSeparator. The receiver is not modified.
func (s Session) WithAnswer(topicID, text string, now time.Time) Session {
	answers := make(map[string]string, len(s.Answers)+1)
	for k, v := range s.Answers {
		answers[k] = v
	}
	if prev, ok := answers[topicID]; ok && prev != "" {
		answers[topicID] = prev + AnswerSeparator + text
	} else {
		answers[topicID] = text
	}
	s.Answers = answers
	s.UpdatedAt = now
	return s
}

// WithPhase returns the session moved to the given phase.
func (s Session) WithPhase(p Phase, now time.Time) Session {
	s.Phase = p
	s.UpdatedAt = now
	return s
}

// Advanced returns the session with the cursor on the next topic, or in
// the rating phase when the last topic has been answered. topicCount is
// the catalog length.
func (s Session) Advanced(topicCount int, now time.Time) Session {
	s.Cursor++
	if s.Cursor >= topicCount {
		s.Phase = PhaseRating
	} else {
		s.Phase = PhaseAsking
	}
	s.UpdatedAt = now
	return s
}

// Answer returns the accumulated text for a topic, empty if unanswered.
func (s Session) Answer(topicID string) string {
	return s.Answers[topicID]
}
