// Package recovery restores server state that a crash or restart can leave
// half-finished, such as staff notices stuck mid-send.
package recovery

import (
	"context"
	"fmt"
	"log/slog"
)

// Recoverable is a component with state to repair at startup.
type Recoverable interface {
	// RecoverState is called once before the server starts accepting requests.
	RecoverState(ctx context.Context) error
}

// RecoverFunc adapts a function to Recoverable.
type RecoverFunc func(ctx context.Context) error

func (f RecoverFunc) RecoverState(ctx context.Context) error { return f(ctx) }

type entry struct {
	name string
	r    Recoverable
}

// Manager runs every registered component's recovery in registration order.
type Manager struct {
	entries []entry
}

// NewManager creates an empty recovery manager.
func NewManager() *Manager {
	return &Manager{}
}

// Register adds a component under name.
func (m *Manager) Register(name string, r Recoverable) {
	m.entries = append(m.entries, entry{name: name, r: r})
}

// Components returns the registered names.
func (m *Manager) Components() []string {
	names := make([]string, 0, len(m.entries))
	for _, e := range m.entries {
		names = append(names, e.name)
	}
	return names
}

// RecoverAll runs every component even when one fails. The returned error
// counts the failures.
func (m *Manager) RecoverAll(ctx context.Context) error {
	slog.Info("Manager.RecoverAll: starting recovery", "components", len(m.entries))

	failed := 0
	for _, e := range m.entries {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := e.r.RecoverState(ctx); err != nil {
			slog.Error("Manager.RecoverAll: component recovery failed", "component", e.name, "error", err)
			failed++
			continue
		}
		slog.Debug("Manager.RecoverAll: component recovered", "component", e.name)
	}

	slog.Info("Manager.RecoverAll: recovery completed", "recovered", len(m.entries)-failed, "errors", failed)
	if failed > 0 {
		return fmt.Errorf("recovery completed with %d errors out of %d components", failed, len(m.entries))
	}
	return nil
}
