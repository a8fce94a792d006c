// Package selection tracks which retrieved passage is under hover versus
// pinned inspection. Pinning always takes precedence over hovering, hover is
// cleared when the pointer leaves the evidence region, and appending a new
// answer resets everything.
package selection

import (
	"sync"

	"rag-console/evidence"
)

type Kind int

const (
	Idle Kind = iota
	Hovering
	Pinned
	PinnedAndHovering
)

// Ref names one passage of one answer.
type Ref struct {
	MessageID string       `json:"messageId"`
	Passage   evidence.Key `json:"passage"`
}

// Machine holds the process-local hover/pin state. It is never persisted.
type Machine struct {
	mu      sync.Mutex
	hovered *Ref
	pinned  *Ref
}

func NewMachine() *Machine {
	return &Machine{}
}

// Enter records the passage under the pointer. An active pin is retained; the
// hover value updates for display only and does not override the pin.
func (m *Machine) Enter(ref Ref) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r := ref
	m.hovered = &r
}

// Leave clears the hover. A pin, if any, persists.
func (m *Machine) Leave() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.hovered = nil
}

// Click toggles the pin: clicking the currently pinned passage unpins it,
// returning to whatever hover state is active; clicking any other passage
// pins it.
func (m *Machine) Click(ref Ref) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.pinned != nil && *m.pinned == ref {
		m.pinned = nil
		return
	}
	r := ref
	m.pinned = &r
}

// Reset clears both hover and pin. Called whenever a new answer is appended.
func (m *Machine) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.hovered = nil
	m.pinned = nil
}

// Effective returns the passage to render as selected: the pin when set,
// otherwise the hover.
func (m *Machine) Effective() (Ref, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.pinned != nil {
		return *m.pinned, true
	}
	if m.hovered != nil {
		return *m.hovered, true
	}
	return Ref{}, false
}

// EffectiveFor scopes Effective to a single answer.
func (m *Machine) EffectiveFor(messageID string) (evidence.Key, bool) {
	ref, ok := m.Effective()
	if !ok || ref.MessageID != messageID {
		return evidence.Key{}, false
	}
	return ref.Passage, true
}

func (m *Machine) State() Kind {
	m.mu.Lock()
	defer m.mu.Unlock()
	switch {
	case m.pinned != nil && m.hovered != nil:
		return PinnedAndHovering
	case m.pinned != nil:
		return Pinned
	case m.hovered != nil:
		return Hovering
	default:
		return Idle
	}
}
