// Package catalog defines the ordered question sequence the bot walks
// through. The sequence is pure data: topic order is the only legal
// transition order, and the engine never special-cases individual topics.
package catalog

import (
	"errors"
	"fmt"
	"strings"
)

// Choice is one fixed answer option for a topic.
type Choice struct {
	Label string
	// FollowUp is the canned elaboration question sent when this choice
	// is picked. Empty means fall back to the topic's DefaultFollowUp.
	FollowUp string
	// Skip marks the sentinel choice that takes the label verbatim as the
	// full answer and bypasses the elaboration step.
	Skip bool
}

// Topic is one question of the survey.
type Topic struct {
	// ID is the stable identifier and the store column name. IDs are
	// additive across catalog revisions and must never be renamed or
	// repurposed.
	ID string
	// Title is the human-readable column header in the report.
	Title  string
	Prompt string
	// Choices, when non-empty, are offered as a reply keyboard. Free text
	// is still accepted.
	Choices []Choice
	// DefaultFollowUp is the elaboration question used when the answer
	// matches no choice, or the matched choice has no FollowUp of its own.
	DefaultFollowUp string
	// Elaborate enables the choice-then-elaborate sub-state. Topics with
	// Elaborate=false take the first message as the full answer.
	Elaborate bool
}

// Catalog is an immutable ordered topic sequence.
type Catalog struct {
	topics []Topic
	index  map[string]int
}

// New builds and validates a catalog from an ordered topic list.
func New(topics []Topic) (*Catalog, error) {
	if len(topics) == 0 {
		return nil, errors.New("catalog: at least one topic is required")
	}
	index := make(map[string]int, len(topics))
	for i, t := range topics {
		if strings.TrimSpace(t.ID) == "" {
			return nil, fmt.Errorf("catalog: topic %d has an empty id", i)
		}
		if _, dup := index[t.ID]; dup {
			return nil, fmt.Errorf("catalog: duplicate topic id %q", t.ID)
		}
		if strings.TrimSpace(t.Prompt) == "" {
			return nil, fmt.Errorf("catalog: topic %q has an empty prompt", t.ID)
		}
		if t.Elaborate && t.DefaultFollowUp == "" {
			return nil, fmt.Errorf("catalog: elaborate topic %q needs a default follow-up", t.ID)
		}
		index[t.ID] = i
	}
	return &Catalog{topics: topics, index: index}, nil
}

// MustNew is New for static catalogs; it panics on an invalid definition.
func MustNew(topics []Topic) *Catalog {
	c, err := New(topics)
	if err != nil {
		panic(err)
	}
	return c
}

// Len returns the number of topics.
func (c *Catalog) Len() int {
	return len(c.topics)
}

// Topic returns the topic at position i.
func (c *Catalog) Topic(i int) (Topic, bool) {
	if i < 0 || i >= len(c.topics) {
		return Topic{}, false
	}
	return c.topics[i], true
}

// Topics returns the ordered topic sequence.
func (c *Catalog) Topics() []Topic {
	return c.topics
}

// Index returns the position of a topic id.
func (c *Catalog) Index(id string) (int, bool) {
	i, ok := c.index[id]
	return i, ok
}

// Match finds the choice whose label equals the message text.
func (t Topic) Match(text string) (Choice, bool) {
	for _, ch := range t.Choices {
		if ch.Label == text {
			return ch, true
		}
	}
	return Choice{}, false
}

// FollowUpFor resolves the elaboration question for a message: the
// matched choice's canned follow-up when present, the topic default
// otherwise.
func (t Topic) FollowUpFor(text string) string {
	if ch, ok := t.Match(text); ok && ch.FollowUp != "" {
		return ch.FollowUp
	}
	return t.DefaultFollowUp
}

// Labels returns the choice labels in definition order, one per keyboard
// row.
func (t Topic) Labels() []string {
	labels := make([]string, 0, len(t.Choices))
	for _, ch := range t.Choices {
		labels = append(labels, ch.Label)
	}
	return labels
}
