package common

import (
	"errors"
	"strings"
	"sync"
)

var ErrModulePaused = errors.New("module paused")

type PauseView interface {
	IsPaused(module string) bool
}

func Guard(p PauseView, module string) error {
	if p == nil || module == "" {
		return nil
	}
	if p.IsPaused(module) {
		return ErrModulePaused
	}
	return nil
}

// PauseSet is a mutable PauseView keyed by module name.
type PauseSet struct {
	mu     sync.RWMutex
	paused map[string]bool
}

// NewPauseSet returns a PauseSet with the supplied modules paused.
func NewPauseSet(modules ...string) *PauseSet {
	p := &PauseSet{paused: make(map[string]bool)}
	for _, module := range modules {
		p.Set(module, true)
	}
	return p
}

// IsPaused implements PauseView.
func (p *PauseSet) IsPaused(module string) bool {
	if p == nil {
		return false
	}
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.paused[normalizeModule(module)]
}

// Set pauses or resumes a module.
func (p *PauseSet) Set(module string, paused bool) {
	key := normalizeModule(module)
	if key == "" {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if paused {
		p.paused[key] = true
		return
	}
	delete(p.paused, key)
}

func normalizeModule(module string) string {
	return strings.ToLower(strings.TrimSpace(module))
}
