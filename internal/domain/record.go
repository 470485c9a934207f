package domain

import "time"

// Record is one committed survey entry. Records are immutable once
// written: the engine creates them on successful completion of a session
// and nothing updates or deletes them afterwards.
type Record struct {
	ID        string
	UserID    int64
	UserName  string
	CreatedAt time.Time
	// Answers holds one entry per catalog topic id. Topics the user never
	// reached (the /comment shortcut) are present with an empty string.
	Answers map[string]string
	// Rating is the final self-assessment, always in [0,2].
	Rating int
}
