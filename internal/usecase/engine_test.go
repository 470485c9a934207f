package usecase

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"mindlog-bot/internal/catalog"
	"mindlog-bot/internal/domain"
)

const (
	testUserID   = int64(1001)
	testUserName = "alice"
)

type mockRecords struct {
	appended  []domain.Record
	appendErr error
	listOut   []domain.Record
	listErr   error
	listedFor int64
}

func (m *mockRecords) AppendRecord(_ context.Context, rec domain.Record) error {
	if m.appendErr != nil {
		return m.appendErr
	}
	m.appended = append(m.appended, rec)
	return nil
}

func (m *mockRecords) ListRecords(_ context.Context, userID int64) ([]domain.Record, error) {
	m.listedFor = userID
	return m.listOut, m.listErr
}

type mockReports struct {
	out      []byte
	err      error
	received []domain.Record
}

func (m *mockReports) Build(records []domain.Record) ([]byte, error) {
	m.received = records
	return m.out, m.err
}

// testCatalog is a compact sequence exercising every transition kind:
// choice+elaboration with a skip sentinel, a free-text topic, and the
// terminal comment topic.
func testCatalog(t *testing.T) *catalog.Catalog {
	t.Helper()
	return catalog.MustNew([]catalog.Topic{
		{
			ID:     "mood",
			Title:  "Mood",
			Prompt: "How is your mood?",
			Choices: []catalog.Choice{
				{Label: "Good", FollowUp: "What helps?"},
				{Label: "Fine", Skip: true},
				{Label: "Bad"},
			},
			DefaultFollowUp: "Why?",
			Elaborate:       true,
		},
		{
			ID:     "note",
			Title:  "Note",
			Prompt: "Anything notable?",
		},
		{
			ID:     "comment",
			Title:  "Comment",
			Prompt: "Final comment?",
		},
	})
}

type testEnv struct {
	svc      *ConversationService
	records  *mockRecords
	sessions *MemorySessionStore
	reports  *mockReports
}

func newTestEnv(t *testing.T, confirm bool) *testEnv {
	t.Helper()
	records := &mockRecords{}
	reports := &mockReports{out: []byte("xlsx-bytes")}
	sessions := NewMemorySessionStore(0)
	svc, err := NewConversationService(testCatalog(t), sessions, records, reports, confirm)
	require.NoError(t, err)
	return &testEnv{svc: svc, records: records, sessions: sessions, reports: reports}
}

func (e *testEnv) send(t *testing.T, text string) []domain.Reply {
	t.Helper()
	replies, err := e.svc.Handle(context.Background(), Input{UserID: testUserID, UserName: testUserName, Text: text})
	require.NoError(t, err)
	require.NotEmpty(t, replies)
	return replies
}

func (e *testEnv) session(t *testing.T) (domain.Session, bool) {
	t.Helper()
	sess, ok, err := e.sessions.Get(context.Background(), testUserID)
	require.NoError(t, err)
	return sess, ok
}

func requireText(t *testing.T, replies []domain.Reply, want string) {
	t.Helper()
	require.Len(t, replies, 1)
	require.Equal(t, want, replies[0].Text)
}

func TestNewConversationService_ValidatesDependencies(t *testing.T) {
	cat := testCatalog(t)
	sessions := NewMemorySessionStore(0)
	records := &mockRecords{}
	reports := &mockReports{}

	_, err := NewConversationService(nil, sessions, records, reports, false)
	require.Error(t, err)
	_, err = NewConversationService(cat, nil, records, reports, false)
	require.Error(t, err)
	_, err = NewConversationService(cat, sessions, nil, reports, false)
	require.Error(t, err)
	_, err = NewConversationService(cat, sessions, records, nil, false)
	require.Error(t, err)
}

func TestHandle_RejectsInvalidInput(t *testing.T) {
	e := newTestEnv(t, false)

	_, err := e.svc.Handle(context.Background(), Input{UserID: 0, Text: "hi"})
	var ucErr *Error
	require.ErrorAs(t, err, &ucErr)
	require.Equal(t, ErrorInvalidInput, ucErr.Code)

	_, err = e.svc.Handle(context.Background(), Input{UserID: testUserID, Text: "   "})
	require.ErrorAs(t, err, &ucErr)
	require.Equal(t, ErrorInvalidInput, ucErr.Code)
}

func TestHandle_FullFlow_CommitsRecord(t *testing.T) {
	e := newTestEnv(t, false)
	restore := newUUID
	newUUID = func() string { return "rec-1" }
	defer func() { newUUID = restore }()

	requireText(t, e.send(t, CmdStartSession), "How is your mood?")
	requireText(t, e.send(t, "Good"), "What helps?")
	requireText(t, e.send(t, "long walks"), "Anything notable?")
	requireText(t, e.send(t, "shipped the thing"), "Final comment?")
	requireText(t, e.send(t, "good day overall"), ratingPromptText)

	replies := e.send(t, "2")
	requireText(t, replies, thanksText)

	require.Len(t, e.records.appended, 1)
	rec := e.records.appended[0]
	require.Equal(t, "rec-1", rec.ID)
	require.Equal(t, testUserID, rec.UserID)
	require.Equal(t, testUserName, rec.UserName)
	require.Equal(t, 2, rec.Rating)
	require.Equal(t, "Good: long walks", rec.Answers["mood"])
	require.Equal(t, "shipped the thing", rec.Answers["note"])
	require.Equal(t, "good day overall", rec.Answers["comment"])
	require.False(t, rec.CreatedAt.IsZero())

	_, active := e.session(t)
	require.False(t, active, "session must be cleared after commit")
}

func TestHandle_FreeTextReachesRatingInExpectedTurns(t *testing.T) {
	// Three topics, one of which elaborates on free text: four advancing
	// messages land exactly on the rating gate.
	e := newTestEnv(t, false)

	e.send(t, CmdStartSession)
	requireText(t, e.send(t, "meh"), "Why?") // unmatched text still elaborates
	e.send(t, "because reasons")
	e.send(t, "nothing")
	replies := e.send(t, "all done")
	requireText(t, replies, ratingPromptText)
	require.Equal(t, ratingKeyboard(), replies[0].Keyboard)
}

func TestHandle_SkipSentinelBypassesElaboration(t *testing.T) {
	e := newTestEnv(t, false)

	e.send(t, CmdStartSession)
	requireText(t, e.send(t, "Fine"), "Anything notable?")

	sess, active := e.session(t)
	require.True(t, active)
	require.Equal(t, "Fine", sess.Answer("mood"))
	require.Equal(t, domain.PhaseAsking, sess.Phase)
	require.Equal(t, 1, sess.Cursor)
}

func TestHandle_RatingGate(t *testing.T) {
	e := newTestEnv(t, false)
	e.send(t, CmdStartSession)
	e.send(t, "Fine")
	e.send(t, "n/a")
	e.send(t, "n/a")

	for _, bad := range []string{"3", "-1", "abc", "1.5", "02", "²"} {
		requireText(t, e.send(t, bad), ratingNoticeText)
		sess, active := e.session(t)
		require.True(t, active, "input %q must not clear the session", bad)
		require.Equal(t, domain.PhaseRating, sess.Phase, "input %q must not advance", bad)
		require.Empty(t, e.records.appended, "input %q must not commit", bad)
	}

	requireText(t, e.send(t, "1"), thanksText)
	require.Len(t, e.records.appended, 1)
	require.Equal(t, 1, e.records.appended[0].Rating)
}

func TestHandle_CancelClearsWithoutLeakage(t *testing.T) {
	e := newTestEnv(t, false)
	e.send(t, CmdStartSession)
	e.send(t, "Good")
	e.send(t, "partial elaboration")

	requireText(t, e.send(t, CmdCancel), canceledText)
	_, active := e.session(t)
	require.False(t, active)
	require.Empty(t, e.records.appended)

	// A fresh session starts empty.
	requireText(t, e.send(t, CmdStartSession), "How is your mood?")
	sess, active := e.session(t)
	require.True(t, active)
	require.Empty(t, sess.Answers)
	require.Equal(t, 0, sess.Cursor)
}

func TestHandle_CancelWhileIdle(t *testing.T) {
	e := newTestEnv(t, false)
	replies := e.send(t, CmdCancel)
	requireText(t, replies, nothingToCancelText)
	require.Equal(t, entryKeyboard(), replies[0].Keyboard)
}

func TestHandle_CommentShortcut(t *testing.T) {
	e := newTestEnv(t, false)

	requireText(t, e.send(t, CmdComment), "Final comment?")
	requireText(t, e.send(t, "just a comment"), ratingPromptText)
	requireText(t, e.send(t, "0"), thanksText)

	require.Len(t, e.records.appended, 1)
	rec := e.records.appended[0]
	require.Equal(t, 0, rec.Rating)
	require.Equal(t, "just a comment", rec.Answers["comment"])
	require.Equal(t, "", rec.Answers["mood"])
	require.Equal(t, "", rec.Answers["note"])
}

func TestHandle_StoreFailureKeepsSessionForRetry(t *testing.T) {
	e := newTestEnv(t, false)
	e.send(t, CmdComment)
	e.send(t, "note to self")

	e.records.appendErr = errors.New("table unavailable")
	replies, err := e.svc.Handle(context.Background(), Input{UserID: testUserID, UserName: testUserName, Text: "2"})
	var ucErr *Error
	require.ErrorAs(t, err, &ucErr)
	require.Equal(t, ErrorStore, ucErr.Code)
	requireText(t, replies, storeFailText)

	sess, active := e.session(t)
	require.True(t, active, "session must survive a failed commit")
	require.Equal(t, domain.PhaseRating, sess.Phase)

	e.records.appendErr = nil
	requireText(t, e.send(t, "2"), thanksText)
	require.Len(t, e.records.appended, 1)
	require.Equal(t, 2, e.records.appended[0].Rating)
}

func TestHandle_ConfirmVariant_SaveAndDiscard(t *testing.T) {
	e := newTestEnv(t, true)
	e.send(t, CmdComment)
	e.send(t, "confirmed entry")
	replies := e.send(t, "1")
	requireText(t, replies, confirmPromptText)
	require.Equal(t, confirmKeyboard(), replies[0].Keyboard)

	// Anything but the two labels re-prompts.
	requireText(t, e.send(t, "maybe"), confirmPromptText)

	requireText(t, e.send(t, saveLabel), thanksText)
	require.Len(t, e.records.appended, 1)
	require.Equal(t, 1, e.records.appended[0].Rating)

	// Second entry, discarded.
	e.send(t, CmdComment)
	e.send(t, "throwaway")
	e.send(t, "0")
	requireText(t, e.send(t, discardLabel), discardedText)
	require.Len(t, e.records.appended, 1, "discard must not store a record")
	_, active := e.session(t)
	require.False(t, active)
}

func TestHandle_OutOfGrammarTextWhileIdle(t *testing.T) {
	e := newTestEnv(t, false)
	replies := e.send(t, "hello there")
	requireText(t, replies, idleHintText)
	require.Equal(t, entryKeyboard(), replies[0].Keyboard)
}

func TestHandle_MidSessionCommandsReprompt(t *testing.T) {
	e := newTestEnv(t, false)
	e.send(t, CmdStartSession)

	for _, cmd := range []string{CmdStart, CmdStartSession, CmdComment, CmdReport, CmdHelp} {
		requireText(t, e.send(t, cmd), "How is your mood?")
		sess, active := e.session(t)
		require.True(t, active, "command %q must not clear the session", cmd)
		require.Equal(t, 0, sess.Cursor, "command %q must not advance", cmd)
	}
}

func TestHandle_StartAndHelp(t *testing.T) {
	e := newTestEnv(t, false)

	replies := e.send(t, CmdStart)
	requireText(t, replies, welcomeText)
	require.Equal(t, entryKeyboard(), replies[0].Keyboard)

	replies = e.send(t, CmdHelp)
	requireText(t, replies, helpText)
}

func TestHandle_Report(t *testing.T) {
	e := newTestEnv(t, false)
	e.records.listOut = []domain.Record{
		{ID: "a", UserID: testUserID, Rating: 1},
		{ID: "b", UserID: testUserID, Rating: 2},
	}

	replies := e.send(t, CmdReport)
	require.Len(t, replies, 2)
	require.NotNil(t, replies[0].Document)
	require.Equal(t, reportFileName, replies[0].Document.Name)
	require.Equal(t, []byte("xlsx-bytes"), replies[0].Document.Data)
	require.Equal(t, reportCaption, replies[1].Text)
	require.Equal(t, testUserID, e.records.listedFor)
	require.Equal(t, e.records.listOut, e.reports.received)
}

func TestHandle_ReportStoreFailure(t *testing.T) {
	e := newTestEnv(t, false)
	e.records.listErr = errors.New("query failed")

	replies, err := e.svc.Handle(context.Background(), Input{UserID: testUserID, UserName: testUserName, Text: CmdReport})
	var ucErr *Error
	require.ErrorAs(t, err, &ucErr)
	require.Equal(t, ErrorStore, ucErr.Code)
	requireText(t, replies, loadFailText)
}

func TestHandle_ReportBuildFailure(t *testing.T) {
	e := newTestEnv(t, false)
	e.reports.err = errors.New("corrupt template")

	replies, err := e.svc.Handle(context.Background(), Input{UserID: testUserID, UserName: testUserName, Text: CmdReport})
	var ucErr *Error
	require.ErrorAs(t, err, &ucErr)
	require.Equal(t, ErrorReport, ucErr.Code)
	requireText(t, replies, loadFailText)
}

func TestHandle_ChoiceKeyboardIncludesCancel(t *testing.T) {
	e := newTestEnv(t, false)
	replies := e.send(t, CmdStartSession)
	require.Equal(t, [][]string{{"Good"}, {"Fine"}, {"Bad"}, {CmdCancel}}, replies[0].Keyboard)
}

func TestHandle_UsersAreIndependent(t *testing.T) {
	e := newTestEnv(t, false)
	e.send(t, CmdStartSession)
	e.send(t, "Fine")

	// A second user starting fresh must not see the first user's session.
	replies, err := e.svc.Handle(context.Background(), Input{UserID: 2002, UserName: "bob", Text: CmdStartSession})
	require.NoError(t, err)
	requireText(t, replies, "How is your mood?")

	sess, active := e.session(t)
	require.True(t, active)
	require.Equal(t, 1, sess.Cursor, "alice's cursor must be untouched by bob")
}

func TestMemorySessionStore_MaxIdleExpiry(t *testing.T) {
	restore := now
	defer func() { now = restore }()
	base := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	now = func() time.Time { return base }

	store := NewMemorySessionStore(30 * time.Minute)
	require.NoError(t, store.Put(context.Background(), domain.NewSession(testUserID, testUserName, 0, base)))

	_, ok, err := store.Get(context.Background(), testUserID)
	require.NoError(t, err)
	require.True(t, ok)

	now = func() time.Time { return base.Add(31 * time.Minute) }
	_, ok, err = store.Get(context.Background(), testUserID)
	require.NoError(t, err)
	require.False(t, ok, "idle session past MaxIdle must read as absent")

	// Zero MaxIdle keeps sessions forever.
	forever := NewMemorySessionStore(0)
	require.NoError(t, forever.Put(context.Background(), domain.NewSession(testUserID, testUserName, 0, base)))
	now = func() time.Time { return base.Add(1000 * time.Hour) }
	_, ok, err = forever.Get(context.Background(), testUserID)
	require.NoError(t, err)
	require.True(t, ok)
}
