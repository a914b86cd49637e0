package registry

import (
	"strings"
	"time"

	"github.com/7c/centralmon/internal/wire"
)

// Message is a transient operator-injected broadcast (§3), garbage
// collected once its end time has passed.
type Message struct {
	Type      string
	App       string
	StartUnix int64
	EndUnix   int64
	Body      string
}

// sanitizeBody removes embedded ';' and replaces each '\n' with a space in
// a message body before it is stored, so a broadcast cannot desynchronise
// the "messages" stream it is later replayed into (see SPEC_FULL.md
// "SUPPLEMENTED FEATURES", message body escaping).
func sanitizeBody(body string) string {
	body = strings.ReplaceAll(body, ";", "")
	body = strings.ReplaceAll(body, "\n", " ")
	return body
}

// AddMessage registers a broadcast message from a "message" command.
func (r *Registry) AddMessage(m wire.Message) {
	r.messages = append(r.messages, &Message{
		Type:      m.Type,
		App:       m.App,
		StartUnix: m.StartUnix,
		EndUnix:   m.EndUnix,
		Body:      sanitizeBody(m.Body),
	})
}

// LiveMessages returns every message whose end time is after now,
// reaping (dropping) expired ones as a side effect — matching S6's
// "after current time passes end, messages yields zero lines".
func (r *Registry) LiveMessages(now time.Time) []*Message {
	nowUnix := now.Unix()
	live := r.messages[:0]
	var out []*Message
	for _, m := range r.messages {
		if m.EndUnix > nowUnix {
			live = append(live, m)
			out = append(out, m)
		}
	}
	r.messages = live
	return out
}
