package alarm

import (
	"encoding/json"
	"log/slog"
	"strconv"

	"github.com/7c/centralmon/internal/registry"
	"github.com/7c/centralmon/internal/wire"
)

// ChatSink, EmailSink and PageSink are the three fire-and-forget
// notification services named in §6. Each is attempted once; failures
// are logged and never retried in the hot path (§4.6, §7).
type ChatSink interface {
	Chat(room, message string) (bool, error)
}

type EmailSink interface {
	Email(from string, to, cc, bcc []string, subject, text, html string, attachments []string) (bool, error)
}

type PageSink interface {
	Page(userid, message string) (bool, error)
}

// Contact is one resolved contact for a host or daemon, as returned by
// the catalog's contact-resolution queries (§6 items 3-5).
type Contact struct {
	UserID  string
	Email   string
	OnCall  bool
}

// Notifier fans alarm edges out to chat, email, and pager sinks.
type Notifier struct {
	Chat   ChatSink
	Email  EmailSink
	Pager  PageSink
	Logger *slog.Logger

	// OperatorEmail receives failure reports from the notifier itself,
	// per §7's "notification sink failure logged via operator-email".
	OperatorEmail string
	ChatRoom      string
}

// NotifyServerContact fires on a host-level alarm edge (§4.6): chat plus
// email to the host's contacts, or to the operator email when there are
// none.
func (n *Notifier) NotifyServerContact(host, alarmText string, contacts []Contact) {
	message := host + ": " + alarmText
	n.fireChat(message)
	n.fireEmail(host, message, contacts)
}

// NotifyApplicationContact fires on a process-level alarm edge when no
// remediation script is configured for the daemon: chat, email to
// catalog-derived admins, and pager to those marked on-call (§4.6).
func (n *Notifier) NotifyApplicationContact(host, daemon, alarmText string, contacts []Contact) {
	message := host + "/" + daemon + ": " + alarmText
	n.fireChat(message)
	n.fireEmail(daemon, message, contacts)
	if n.Pager == nil {
		return
	}
	for _, c := range contacts {
		if !c.OnCall {
			continue
		}
		if ok, err := n.Pager.Page(c.UserID, message); err != nil || !ok {
			n.logFailure("page", err)
		}
	}
}

// DenyAdmission fires when a second agent connection arrives for an
// already-bound host (§4.7, S2).
func (n *Notifier) DenyAdmission(host string) {
	message := host + " secondary client request arrived for " + host + ". Request has been denied."
	n.fireChat(message)
	n.fireEmail(host, message, nil)
}

func (n *Notifier) fireChat(message string) {
	if n.Chat == nil {
		return
	}
	if ok, err := n.Chat.Chat(n.ChatRoom, message); err != nil || !ok {
		n.logFailure("chat", err)
	}
}

func (n *Notifier) fireEmail(subject, message string, contacts []Contact) {
	if n.Email == nil {
		return
	}
	to := make([]string, 0, len(contacts))
	for _, c := range contacts {
		to = append(to, c.Email)
	}
	if len(to) == 0 && n.OperatorEmail != "" {
		to = []string{n.OperatorEmail}
	}
	if ok, err := n.Email.Email(n.OperatorEmail, to, nil, nil, subject, message, "", nil); err != nil || !ok {
		n.logFailure("email", err)
	}
}

func (n *Notifier) logFailure(sink string, err error) {
	if n.Logger == nil {
		return
	}
	n.Logger.Error("alarm: notification sink failed", slog.String("sink", sink), slog.Any("error", err))
}

// scriptPayload is the JSON payload carried by the aggregator-to-agent
// "script" wire command (§4.6), sent in place of notify-application-contact
// when a daemon's catalog row configures a remediation script.
type scriptPayload struct {
	Type        string            `json:"type"`
	Daemon      string            `json:"daemon"`
	Start       string            `json:"start"`
	Owner       map[string]string `json:"owner"`
	Processes   int               `json:"processes"`
	MinProcesses int              `json:"min_processes"`
	MaxProcesses int              `json:"max_processes"`
	Image       uint64            `json:"image"`
	MinImage    uint64            `json:"min_image"`
	MaxImage    uint64            `json:"max_image"`
	Resident    uint64            `json:"resident"`
	MinResident uint64            `json:"min_resident"`
	MaxResident uint64            `json:"max_resident"`
	Contacts    []string          `json:"contacts"`
}

// BuildScriptPayload constructs the JSON body for a script dispatch. Owner
// counts are rendered as the string form the original carries; image/
// resident min/max use the *observed* values across instances (not the
// configured thresholds); contacts are emails plus pager handles prefixed
// with '!' for on-call users, deduplicated.
func BuildScriptPayload(daemon string, s wire.ProcessSample, th registry.ProcessThresholds, contacts []Contact) ([]byte, error) {
	owner := make(map[string]string, len(s.Owners))
	for name, count := range s.Owners {
		owner[name] = strconv.Itoa(count)
	}

	seen := make(map[string]bool)
	var contactList []string
	for _, c := range contacts {
		entry := c.Email
		if c.OnCall {
			entry = "!" + c.UserID
		}
		if entry == "" || seen[entry] {
			continue
		}
		seen[entry] = true
		contactList = append(contactList, entry)
	}

	payload := scriptPayload{
		Type:         "process",
		Daemon:       daemon,
		Start:        s.Start,
		Owner:        owner,
		Processes:    s.Procs,
		MinProcesses: th.MinProcesses,
		MaxProcesses: th.MaxProcesses,
		Image:        s.Image,
		MinImage:     s.MinImage,
		MaxImage:     s.MaxImage,
		Resident:     s.Resident,
		MinResident:  s.MinResident,
		MaxResident:  s.MaxResident,
		Contacts:     contactList,
	}
	return json.Marshal(payload)
}
