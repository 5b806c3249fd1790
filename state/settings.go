package state

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"math/big"
	"slices"
	"sync"
	"time"

	"github.com/goccy/go-yaml"
)

// SettingsHandle is the shared configuration of a running node.
// Readers copy out what they need and must not hold on to internal pointers.
type SettingsHandle struct {
	mu sync.RWMutex
	s  *Settings
}

func NewSettingsHandle(s *Settings) *SettingsHandle {
	return &SettingsHandle{s: s.Clone()}
}

// Get returns a deep copy of the settings
func (h *SettingsHandle) Get() *Settings {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.s.Clone()
}

func (h *SettingsHandle) Network() NetworkSettings {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.s.Network
}

func (h *SettingsHandle) Payment() PaymentSettings {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.s.Payment.Clone()
}

func (h *SettingsHandle) Identity() Identity {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.s.Identity()
}

func (h *SettingsHandle) Neighbours() []NeighbourCfg {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return slices.Clone(h.s.Neighbours)
}

func (h *SettingsHandle) Exits() []ExitCandidate {
	h.mu.RLock()
	defer h.mu.RUnlock()
	exits := make([]ExitCandidate, len(h.s.Exits))
	for i, e := range h.s.Exits {
		exits[i] = e.Clone()
	}
	return exits
}

func (h *SettingsHandle) CurrentExit() (ExitCandidate, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if h.s.CurrentExit == nil {
		return ExitCandidate{}, false
	}
	return h.s.CurrentExit.Clone(), true
}

// SetCurrentExit installs exit as the active gateway, only if no gateway is active.
// It returns false if another writer got there first.
func (h *SettingsHandle) SetCurrentExit(exit ExitCandidate) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.s.CurrentExit != nil {
		return false
	}
	e := exit.Clone()
	h.s.CurrentExit = &e
	return true
}

func (h *SettingsHandle) ClearCurrentExit() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.s.CurrentExit = nil
}

// Merge applies a partial yaml document on top of the current settings. Mappings are merged
// recursively, every other value replaces the existing one. The result must validate.
func (h *SettingsHandle) Merge(patch []byte) error {
	var changes map[string]any
	if err := yaml.Unmarshal(patch, &changes); err != nil {
		return fmt.Errorf("invalid settings patch: %w", err)
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	cur, err := yaml.Marshal(h.s)
	if err != nil {
		return err
	}
	var tree map[string]any
	if err := yaml.Unmarshal(cur, &tree); err != nil {
		return err
	}
	merged := mergeTree(tree, changes)
	data, err := yaml.Marshal(merged)
	if err != nil {
		return err
	}
	next, err := ParseSettings(data)
	if err != nil {
		return &ConfigurationError{Msg: err.Error()}
	}
	if err := SettingsValidator(next); err != nil {
		return &ConfigurationError{Msg: err.Error()}
	}
	h.s = next
	return nil
}

func mergeTree(dst map[string]any, src map[string]any) map[string]any {
	if dst == nil {
		dst = make(map[string]any)
	}
	for k, v := range src {
		sub, ok := asTree(v)
		if !ok {
			dst[k] = v
			continue
		}
		cur, _ := asTree(dst[k])
		dst[k] = mergeTree(cur, sub)
	}
	return dst
}

func asTree(v any) (map[string]any, bool) {
	switch m := v.(type) {
	case map[string]any:
		return m, true
	case map[any]any:
		out := make(map[string]any, len(m))
		for k, val := range m {
			out[fmt.Sprint(k)] = val
		}
		return out, true
	}
	return nil, false
}

// Persister writes the settings back to a file when they change
type Persister struct {
	h    *SettingsHandle
	file string
	log  *slog.Logger
	last []byte
}

// NewPersister records the current settings as what is already on disk. Call it before anything
// can change the settings, otherwise the change is taken as already written.
func (h *SettingsHandle) NewPersister(file string, log *slog.Logger) (*Persister, error) {
	last, err := h.marshal()
	if err != nil {
		return nil, fmt.Errorf("failed to serialize settings: %w", err)
	}
	return &Persister{h: h, file: file, log: log, last: last}, nil
}

// Flush writes the settings if they differ from the last written version. It reports whether
// the file was written.
func (p *Persister) Flush() (bool, error) {
	cur, err := p.h.marshal()
	if err != nil {
		return false, fmt.Errorf("failed to serialize settings: %w", err)
	}
	if bytes.Equal(cur, p.last) {
		return false, nil
	}
	p.log.Info("writing updated settings", "path", p.file)
	if err := p.h.Get().Write(p.file); err != nil {
		return false, err
	}
	p.last = cur
	return true, nil
}

// Run flushes every interval until ctx is done, and once more on the way out
func (p *Persister) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			if _, err := p.Flush(); err != nil {
				p.log.Warn("writing updated settings failed", "error", err)
			}
			return
		case <-ticker.C:
		}
		if _, err := p.Flush(); err != nil {
			p.log.Warn("writing updated settings failed", "error", err)
		}
	}
}

func (h *SettingsHandle) marshal() ([]byte, error) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return yaml.Marshal(h.s)
}

func (a *Amount) Clone() *Amount {
	if a == nil {
		return nil
	}
	return (*Amount)(new(big.Int).Set(a.Big()))
}

func (p PaymentSettings) Clone() PaymentSettings {
	p.PayThreshold = p.PayThreshold.Clone()
	p.CloseThreshold = p.CloseThreshold.Clone()
	return p
}

func (c ExitCandidate) Clone() ExitCandidate {
	if c.Details != nil {
		d := *c.Details
		d.ExitPrice = d.ExitPrice.Clone()
		c.Details = &d
	}
	return c
}

func (s *Settings) Clone() *Settings {
	c := *s
	c.Payment = s.Payment.Clone()
	c.Neighbours = slices.Clone(s.Neighbours)
	if s.Exits != nil {
		c.Exits = make([]ExitCandidate, len(s.Exits))
		for i, e := range s.Exits {
			c.Exits[i] = e.Clone()
		}
	}
	if s.CurrentExit != nil {
		e := s.CurrentExit.Clone()
		c.CurrentExit = &e
	}
	return &c
}
