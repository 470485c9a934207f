package domain

// Document is a file attachment for an outbound reply.
type Document struct {
	Name string
	Data []byte
}

// Reply is one outbound chat message produced by the engine. The
// transport decides how to deliver it: Document wins over Text when both
// are set, and Keyboard becomes a one-time reply keyboard.
type Reply struct {
	Text     string
	Keyboard [][]string
	Document *Document
}

// TextReply builds a plain text reply.
func TextReply(text string) Reply {
	return Reply{Text: text}
}

// KeyboardReply builds a text reply with a choice keyboard.
func KeyboardReply(text string, keyboard [][]string) Reply {
	return Reply{Text: text, Keyboard: keyboard}
}
