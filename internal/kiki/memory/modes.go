package memory

import (
	"errors"
	"fmt"
	"strings"

	"github.com/elliotchance/pie/v2"
)

// Mode identifies a conversation mode. Each mode has its own Store.
type Mode string

const (
	ModeChat Mode = "chat"
	ModeRAG  Mode = "rag"
)

// ErrUnknownMode is returned for a mode other than chat or rag.
var ErrUnknownMode = errors.New("memory: unknown mode")

// AllModes lists the supported modes.
var AllModes = []Mode{ModeChat, ModeRAG}

// ParseMode maps user input onto a Mode. The empty string is rejected; use
// Modes.Reset with "" to address every mode.
func ParseMode(s string) (Mode, error) {
	m := Mode(strings.ToLower(strings.TrimSpace(s)))
	if !pie.Contains(AllModes, m) {
		return "", fmt.Errorf("%w: %q", ErrUnknownMode, s)
	}
	return m, nil
}

// Modes owns one Store per mode. The stores share nothing but their
// configuration, estimator and summarizer.
type Modes struct {
	stores map[Mode]*Store
}

// NewModes creates an empty Store for every mode.
func NewModes(cfg Config, est Estimator, sum Summarizer, opts ...Option) *Modes {
	m := &Modes{stores: make(map[Mode]*Store, len(AllModes))}
	for _, mode := range AllModes {
		m.stores[mode] = NewStore(mode, cfg, est, sum, opts...)
	}
	return m
}

// Get returns the store for mode.
func (m *Modes) Get(mode Mode) (*Store, error) {
	s, ok := m.stores[mode]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownMode, mode)
	}
	return s, nil
}

// Reset clears the store for mode, or every store when mode is "".
func (m *Modes) Reset(mode Mode) error {
	if mode == "" {
		for _, s := range m.stores {
			s.Reset()
		}
		return nil
	}
	s, err := m.Get(mode)
	if err != nil {
		return err
	}
	s.Reset()
	return nil
}

// Stats returns stats for every mode, ordered by mode name.
func (m *Modes) Stats() []Stats {
	modes := pie.Sort(pie.Keys(m.stores))
	return pie.Map(modes, func(mode Mode) Stats { return m.stores[mode].Stats() })
}
