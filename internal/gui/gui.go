// Package gui defines the one-way capability interface from the call
// controller to the GUI (spec §9 design notes): the controller never calls
// back into a GUI object it also receives calls from — it only posts to
// this narrow set of methods.
package gui

import (
	"image"
	"sync"
)

// Capability is everything the call-control core needs from a user
// interface. The real GUI is out of scope (spec §1); Headless below is a
// no-op implementation suitable for tests, bots, and headless operation.
type Capability interface {
	// ShowFrame displays a freshly decoded remote (or locally captured
	// preview) frame.
	ShowFrame(img image.Image)

	// AskIncoming blocks until the user accepts or rejects an incoming
	// call from nick. Called off the listener's accept goroutine.
	AskIncoming(nick string) (accept bool)

	// Notify surfaces a one-off informational or error message to the user
	// (e.g. "peer busy", "call ended", a ConfigError detail).
	Notify(message string)

	// SetStatus reports the current call status string (e.g. "Calling…",
	// "In call with X", "On hold").
	SetStatus(status string)
}

// Headless is a Capability that accepts every incoming call and discards
// frames/notifications — used by tests and non-interactive deployments.
type Headless struct {
	// AutoAccept controls the AskIncoming response; NewHeadless sets it to true.
	AutoAccept bool

	mu            sync.Mutex
	notifications []string
	statuses      []string
}

func (h *Headless) ShowFrame(image.Image) {}

func (h *Headless) AskIncoming(string) bool { return h.AutoAccept }

func (h *Headless) Notify(message string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.notifications = append(h.notifications, message)
}

func (h *Headless) SetStatus(status string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.statuses = append(h.statuses, status)
}

// Notifications returns a snapshot of every message passed to Notify.
func (h *Headless) Notifications() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]string(nil), h.notifications...)
}

// Statuses returns a snapshot of every status passed to SetStatus.
func (h *Headless) Statuses() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]string(nil), h.statuses...)
}

// NewHeadless returns a Headless GUI that auto-accepts incoming calls.
func NewHeadless() *Headless { return &Headless{AutoAccept: true} }
