package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

var testNow = time.Date(2024, 5, 1, 9, 30, 0, 0, time.UTC)

func TestNewSession_StartsFreshAtCursor(t *testing.T) {
	s := NewSession(7, "alice", 3, testNow)
	require.Equal(t, int64(7), s.UserID)
	require.Equal(t, "alice", s.UserName)
	require.Equal(t, 3, s.Cursor)
	require.Equal(t, PhaseAsking, s.Phase)
	require.Empty(t, s.Answers)
	require.Equal(t, testNow, s.StartedAt)
}

func TestWithAnswer_SetsAndAppends(t *testing.T) {
	s := NewSession(7, "alice", 0, testNow)

	s1 := s.WithAnswer("mood", "Good", testNow)
	require.Equal(t, "Good", s1.Answer("mood"))

	s2 := s1.WithAnswer("mood", "slept well", testNow)
	require.Equal(t, "Good: slept well", s2.Answer("mood"))

	// The receiver's answer map is never shared with the result.
	require.Equal(t, "Good", s1.Answer("mood"))
	require.Empty(t, s.Answers)
}

func TestAdvanced_MovesCursorAndEntersRating(t *testing.T) {
	s := NewSession(7, "alice", 0, testNow)

	s = s.Advanced(2, testNow)
	require.Equal(t, 1, s.Cursor)
	require.Equal(t, PhaseAsking, s.Phase)

	s = s.Advanced(2, testNow)
	require.Equal(t, 2, s.Cursor)
	require.Equal(t, PhaseRating, s.Phase)
}

func TestWithPhase_UpdatesTimestamp(t *testing.T) {
	s := NewSession(7, "alice", 0, testNow)
	later := testNow.Add(time.Minute)
	s = s.WithPhase(PhaseElaborating, later)
	require.Equal(t, PhaseElaborating, s.Phase)
	require.Equal(t, later, s.UpdatedAt)
}
