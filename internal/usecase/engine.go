// Package usecase implements the conversation engine: a catalog-driven
// state machine that walks one user at a time through the survey,
// accumulates answers in a per-user session and commits completed
// entries to the record store.
package usecase

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"mindlog-bot/internal/catalog"
	"mindlog-bot/internal/domain"
)

// RecordStore persists committed entries. Append must be atomic per
// record; no cross-record ordering is required.
type RecordStore interface {
	AppendRecord(ctx context.Context, rec domain.Record) error
	ListRecords(ctx context.Context, userID int64) ([]domain.Record, error)
}

// ReportBuilder turns a user's record history into an exportable file.
type ReportBuilder interface {
	Build(records []domain.Record) ([]byte, error)
}

// Input is one incoming chat message.
type Input struct {
	UserID   int64
	UserName string
	Text     string
}

// ConversationService routes messages through the survey state machine.
type ConversationService struct {
	cat      *catalog.Catalog
	sessions SessionStore
	records  RecordStore
	reports  ReportBuilder
	// confirm enables the save-or-discard sub-state after the rating
	// gate; off, entries commit as soon as the rating is accepted.
	confirm bool

	locksMu sync.Mutex
	locks   map[int64]*sync.Mutex
}

func NewConversationService(cat *catalog.Catalog, sessions SessionStore, records RecordStore, reports ReportBuilder, confirm bool) (*ConversationService, error) {
	if cat == nil {
		return nil, errors.New("usecase: catalog must not be nil")
	}
	if sessions == nil {
		return nil, errors.New("usecase: session store must not be nil")
	}
	if records == nil {
		return nil, errors.New("usecase: record store must not be nil")
	}
	if reports == nil {
		return nil, errors.New("usecase: report builder must not be nil")
	}
	return &ConversationService{
		cat:      cat,
		sessions: sessions,
		records:  records,
		reports:  reports,
		confirm:  confirm,
		locks:    map[int64]*sync.Mutex{},
	}, nil
}

// Handle advances the user's session with one incoming message and
// returns the outbound replies. Messages from the same user are
// serialized; different users proceed in parallel. On error the replies
// still describe a recovered state and must be delivered — the error is
// for the operator log, not the user.
func (s *ConversationService) Handle(ctx context.Context, in Input) ([]domain.Reply, error) {
	if in.UserID == 0 {
		return nil, newError(ErrorInvalidInput, "missing_user_id", nil)
	}
	text := strings.TrimSpace(in.Text)
	if text == "" {
		return nil, newError(ErrorInvalidInput, "empty_text", nil)
	}

	lock := s.userLock(in.UserID)
	lock.Lock()
	defer lock.Unlock()

	sess, active, err := s.sessions.Get(ctx, in.UserID)
	if err != nil {
		return replies(domain.KeyboardReply(genericFailText, entryKeyboard())),
			newError(ErrorStore, "session_read_error", err)
	}

	if strings.HasPrefix(text, "/") {
		return s.handleCommand(ctx, in, text, sess, active)
	}
	if !active {
		// Plain text while idle: point back at the entry menu.
		return replies(domain.KeyboardReply(idleHintText, entryKeyboard())), nil
	}
	return s.handleText(ctx, sess, text)
}

func (s *ConversationService) handleCommand(ctx context.Context, in Input, cmd string, sess domain.Session, active bool) ([]domain.Reply, error) {
	if active && cmd != CmdCancel {
		// Only /cancel is legal mid-survey; everything else repeats the
		// pending question so no partial answers are lost.
		return replies(s.reprompt(sess)), nil
	}

	switch cmd {
	case CmdStart:
		return replies(domain.KeyboardReply(welcomeText, entryKeyboard())), nil
	case CmdHelp:
		return replies(domain.KeyboardReply(helpText, entryKeyboard())), nil
	case CmdStartSession:
		return s.beginSession(ctx, in, 0)
	case CmdComment:
		// Shortcut: jump straight to the terminal comment topic with all
		// prior fields left blank.
		return s.beginSession(ctx, in, s.cat.Len()-1)
	case CmdReport:
		return s.buildReport(ctx, in.UserID)
	case CmdCancel:
		if !active {
			return replies(domain.KeyboardReply(nothingToCancelText, entryKeyboard())), nil
		}
		if err := s.sessions.Delete(ctx, in.UserID); err != nil {
			return replies(domain.KeyboardReply(genericFailText, entryKeyboard())),
				newError(ErrorStore, "session_delete_error", err)
		}
		return replies(domain.KeyboardReply(canceledText, entryKeyboard())), nil
	default:
		return replies(domain.KeyboardReply(idleHintText, entryKeyboard())), nil
	}
}

func (s *ConversationService) beginSession(ctx context.Context, in Input, cursor int) ([]domain.Reply, error) {
	sess := domain.NewSession(in.UserID, in.UserName, cursor, now())
	if err := s.sessions.Put(ctx, sess); err != nil {
		return replies(domain.KeyboardReply(genericFailText, entryKeyboard())),
			newError(ErrorStore, "session_write_error", err)
	}
	topic, _ := s.cat.Topic(cursor)
	return replies(promptFor(topic)), nil
}

func (s *ConversationService) handleText(ctx context.Context, sess domain.Session, text string) ([]domain.Reply, error) {
	switch sess.Phase {
	case domain.PhaseAsking:
		return s.handleAnswer(ctx, sess, text)
	case domain.PhaseElaborating:
		return s.handleElaboration(ctx, sess, text)
	case domain.PhaseRating:
		return s.handleRating(ctx, sess, text)
	case domain.PhaseConfirming:
		return s.handleConfirmation(ctx, sess, text)
	default:
		// Unknown phase means a corrupt session; drop it rather than trap
		// the user.
		if err := s.sessions.Delete(ctx, sess.UserID); err != nil {
			return replies(domain.KeyboardReply(genericFailText, entryKeyboard())),
				newError(ErrorStore, "session_delete_error", err)
		}
		return replies(domain.KeyboardReply(idleHintText, entryKeyboard())),
			newError(ErrorInternal, "corrupt_session_phase", nil)
	}
}

// handleAnswer consumes the first message for the topic under the
// cursor. Elaborate topics enter the elaboration sub-state unless the
// skip sentinel was chosen; everything else advances immediately with
// the raw text as the full answer.
func (s *ConversationService) handleAnswer(ctx context.Context, sess domain.Session, text string) ([]domain.Reply, error) {
	topic, ok := s.cat.Topic(sess.Cursor)
	if !ok {
		if err := s.sessions.Delete(ctx, sess.UserID); err != nil {
			return replies(domain.KeyboardReply(genericFailText, entryKeyboard())),
				newError(ErrorStore, "session_delete_error", err)
		}
		return replies(domain.KeyboardReply(idleHintText, entryKeyboard())),
			newError(ErrorInternal, "cursor_out_of_range", nil)
	}

	choice, matched := topic.Match(text)
	if topic.Elaborate && !(matched && choice.Skip) {
		next := sess.WithAnswer(topic.ID, text, now()).WithPhase(domain.PhaseElaborating, now())
		if err := s.sessions.Put(ctx, next); err != nil {
			return replies(domain.KeyboardReply(genericFailText, entryKeyboard())),
				newError(ErrorStore, "session_write_error", err)
		}
		return replies(domain.TextReply(topic.FollowUpFor(text))), nil
	}

	return s.advance(ctx, sess.WithAnswer(topic.ID, text, now()))
}

func (s *ConversationService) handleElaboration(ctx context.Context, sess domain.Session, text string) ([]domain.Reply, error) {
	topic, ok := s.cat.Topic(sess.Cursor)
	if !ok {
		return replies(domain.KeyboardReply(idleHintText, entryKeyboard())),
			newError(ErrorInternal, "cursor_out_of_range", nil)
	}
	return s.advance(ctx, sess.WithAnswer(topic.ID, text, now()))
}

// advance moves the cursor to the next topic (or the rating gate) and
// emits its prompt.
func (s *ConversationService) advance(ctx context.Context, sess domain.Session) ([]domain.Reply, error) {
	next := sess.Advanced(s.cat.Len(), now())
	if err := s.sessions.Put(ctx, next); err != nil {
		return replies(domain.KeyboardReply(genericFailText, entryKeyboard())),
			newError(ErrorStore, "session_write_error", err)
	}
	if next.Phase == domain.PhaseRating {
		return replies(domain.KeyboardReply(ratingPromptText, ratingKeyboard())), nil
	}
	topic, _ := s.cat.Topic(next.Cursor)
	return replies(promptFor(topic)), nil
}

// handleRating is the only validation gate in the flow: anything but
// "0", "1" or "2" re-prompts without touching the session.
func (s *ConversationService) handleRating(ctx context.Context, sess domain.Session, text string) ([]domain.Reply, error) {
	var rating int
	switch text {
	case "0", "1", "2":
		rating = int(text[0] - '0')
	default:
		return replies(domain.KeyboardReply(ratingNoticeText, ratingKeyboard())), nil
	}

	sess.Rating = rating
	sess.UpdatedAt = now()
	if s.confirm {
		next := sess.WithPhase(domain.PhaseConfirming, now())
		if err := s.sessions.Put(ctx, next); err != nil {
			return replies(domain.KeyboardReply(genericFailText, entryKeyboard())),
				newError(ErrorStore, "session_write_error", err)
		}
		return replies(domain.KeyboardReply(confirmPromptText, confirmKeyboard())), nil
	}
	return s.commit(ctx, sess)
}

func (s *ConversationService) handleConfirmation(ctx context.Context, sess domain.Session, text string) ([]domain.Reply, error) {
	switch text {
	case saveLabel:
		return s.commit(ctx, sess)
	case discardLabel:
		if err := s.sessions.Delete(ctx, sess.UserID); err != nil {
			return replies(domain.KeyboardReply(genericFailText, entryKeyboard())),
				newError(ErrorStore, "session_delete_error", err)
		}
		return replies(domain.KeyboardReply(discardedText, entryKeyboard())), nil
	default:
		return replies(domain.KeyboardReply(confirmPromptText, confirmKeyboard())), nil
	}
}

// commit appends the completed record and clears the session. On append
// failure the session is left in its pre-commit state so the user can
// retry instead of silently losing the entry.
func (s *ConversationService) commit(ctx context.Context, sess domain.Session) ([]domain.Reply, error) {
	answers := make(map[string]string, s.cat.Len())
	for _, t := range s.cat.Topics() {
		answers[t.ID] = sess.Answer(t.ID)
	}
	rec := domain.Record{
		ID:        newUUID(),
		UserID:    sess.UserID,
		UserName:  sess.UserName,
		CreatedAt: now(),
		Answers:   answers,
		Rating:    sess.Rating,
	}

	if err := s.records.AppendRecord(ctx, rec); err != nil {
		return replies(domain.KeyboardReply(storeFailText, keyboardForPhase(sess.Phase))),
			newError(ErrorStore, "record_append_error", err)
	}
	if err := s.sessions.Delete(ctx, sess.UserID); err != nil {
		// The record is durable; a leftover session only costs the user a
		// /cancel.
		return replies(domain.KeyboardReply(thanksText, entryKeyboard())),
			newError(ErrorStore, "session_delete_error", err)
	}
	return replies(domain.KeyboardReply(thanksText, entryKeyboard())), nil
}

func (s *ConversationService) buildReport(ctx context.Context, userID int64) ([]domain.Reply, error) {
	recs, err := s.records.ListRecords(ctx, userID)
	if err != nil {
		return replies(domain.KeyboardReply(loadFailText, entryKeyboard())),
			newError(ErrorStore, "record_list_error", err)
	}
	data, err := s.reports.Build(recs)
	if err != nil {
		return replies(domain.KeyboardReply(loadFailText, entryKeyboard())),
			newError(ErrorReport, "report_build_error", err)
	}
	return replies(
		domain.Reply{Document: &domain.Document{Name: reportFileName, Data: data}},
		domain.KeyboardReply(reportCaption, entryKeyboard()),
	), nil
}

// reprompt re-emits the prompt for the session's current state without
// mutating anything.
func (s *ConversationService) reprompt(sess domain.Session) domain.Reply {
	switch sess.Phase {
	case domain.PhaseElaborating:
		if topic, ok := s.cat.Topic(sess.Cursor); ok {
			return domain.TextReply(topic.DefaultFollowUp)
		}
	case domain.PhaseRating:
		return domain.KeyboardReply(ratingPromptText, ratingKeyboard())
	case domain.PhaseConfirming:
		return domain.KeyboardReply(confirmPromptText, confirmKeyboard())
	}
	if topic, ok := s.cat.Topic(sess.Cursor); ok {
		return promptFor(topic)
	}
	return domain.KeyboardReply(idleHintText, entryKeyboard())
}

func (s *ConversationService) userLock(userID int64) *sync.Mutex {
	s.locksMu.Lock()
	defer s.locksMu.Unlock()
	lock, ok := s.locks[userID]
	if !ok {
		lock = &sync.Mutex{}
		s.locks[userID] = lock
	}
	return lock
}

func promptFor(t catalog.Topic) domain.Reply {
	if kb := topicKeyboard(t); kb != nil {
		return domain.KeyboardReply(t.Prompt, kb)
	}
	return domain.TextReply(t.Prompt)
}

func keyboardForPhase(p domain.Phase) [][]string {
	if p == domain.PhaseConfirming {
		return confirmKeyboard()
	}
	return ratingKeyboard()
}

func replies(rs ...domain.Reply) []domain.Reply {
	return rs
}

var now = time.Now

var newUUID = func() string {
	return uuid.NewString()
}
