package usecase

import "mindlog-bot/internal/catalog"

// Command surface exposed to the transport.
const (
	CmdStart        = "/start"
	CmdStartSession = "/start_session"
	CmdComment      = "/comment"
	CmdReport       = "/report"
	CmdHelp         = "/help"
	CmdCancel       = "/cancel"
)

const (
	welcomeText = "This bot tracks productive states of mind. " +
		"Send /start_session to log today's entry."
	helpText = "Commands:\n" +
		"/start_session — begin today's entry\n" +
		"/comment — leave only a comment and a rating\n" +
		"/report — download your full history as a spreadsheet\n" +
		"/cancel — abandon the entry in progress"
	idleHintText        = "No survey in progress. Send /start_session to begin."
	thanksText          = "Thanks! Download the table with all your entries any time with /report."
	canceledText        = "Survey canceled."
	nothingToCancelText = "Nothing to cancel."
	discardedText       = "Entry discarded."
	ratingPromptText    = "Rate your overall state today from 0 to 2."
	ratingNoticeText    = "Please enter 0, 1 or 2."
	confirmPromptText   = "Save this entry?"
	saveLabel           = "Save"
	discardLabel        = "Discard"
	reportCaption       = "Here is your report."
	reportFileName      = "report.xlsx"
	storeFailText       = "Could not save your entry. Please try again."
	genericFailText     = "Something went wrong. Please send that again."
	loadFailText        = "Could not load your records. Please try again."
)

func entryKeyboard() [][]string {
	return [][]string{{CmdStartSession}, {CmdReport, CmdHelp}}
}

func ratingKeyboard() [][]string {
	return [][]string{{"0", "1", "2"}, {CmdCancel}}
}

func confirmKeyboard() [][]string {
	return [][]string{{saveLabel, discardLabel}}
}

// topicKeyboard lays out one choice per row plus a cancel row, or no
// keyboard at all for free-text topics.
func topicKeyboard(t catalog.Topic) [][]string {
	labels := t.Labels()
	if len(labels) == 0 {
		return nil
	}
	rows := make([][]string, 0, len(labels)+1)
	for _, label := range labels {
		rows = append(rows, []string{label})
	}
	return append(rows, []string{CmdCancel})
}
