package conversation

import "github.com/teslashibe/go-voice-agent/pkg/inference"

// History is the provider-facing message window. It holds the system
// prompt followed by at most 2N trailing messages; trimming happens inside
// Append so the bound always holds.
type History struct {
	window int
	msgs   []Message
}

// NewHistory creates a history with window size n (exchange pairs).
func NewHistory(n int) *History {
	if n <= 0 {
		n = DefaultContextWindow
	}
	return &History{window: n, msgs: make([]Message, 0, 2*n+2)}
}

// Window returns N.
func (h *History) Window() int { return h.window }

// Len returns the number of messages.
func (h *History) Len() int { return len(h.msgs) }

// Append adds m and trims to [system] + last 2N when the length exceeds
// 2N+1. A leading system message is never dropped, and after a trim the
// window always resumes on a user message so no reply is kept without
// its question.
func (h *History) Append(m Message) {
	h.msgs = append(h.msgs, m)

	limit := 2*h.window + 1
	if len(h.msgs) <= limit {
		return
	}

	var head []Message
	body := h.msgs
	if body[0].Role == RoleSystem {
		head, body = body[:1], body[1:]
		limit--
	}
	body = body[len(body)-limit:]
	for len(body) > 1 && body[0].Role != RoleUser {
		body = body[1:]
	}

	trimmed := make([]Message, 0, 2*h.window+2)
	trimmed = append(trimmed, head...)
	h.msgs = append(trimmed, body...)
}

// Messages returns a copy of the window.
func (h *History) Messages() []Message {
	return append([]Message(nil), h.msgs...)
}

// DropLast removes the final message if its ID is id.
func (h *History) DropLast(id string) bool {
	n := len(h.msgs)
	if n == 0 || h.msgs[n-1].ID != id {
		return false
	}
	h.msgs = h.msgs[:n-1]
	return true
}

// Reset removes every message.
func (h *History) Reset() {
	h.msgs = h.msgs[:0]
}

// Provider converts the window into provider messages.
func (h *History) Provider() []inference.Message {
	out := make([]inference.Message, len(h.msgs))
	for i, m := range h.msgs {
		out[i] = inference.Message{Role: m.Role, Content: m.Content}
	}
	return out
}
