package session

import "github.com/google/uuid"

// Event is published after every state-changing command. View is the session
// state right after the change.
type Event struct {
	Type string `json:"type"`
	View View   `json:"view"`
}

// Notifier fans session events out to whoever watches a terminal.
type Notifier interface {
	Notify(terminalID uuid.UUID, e Event)
}

// NopNotifier drops every event.
type NopNotifier struct{}

func (NopNotifier) Notify(uuid.UUID, Event) {}
