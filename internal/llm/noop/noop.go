package noop

import (
	"context"

	"mt5-ensemble-bot/internal/interfaces"
)

// Adapter always abstains. Used when no model backend is configured.
type Adapter struct{ id string }

var _ interfaces.Generator = (*Adapter)(nil)

func New(id string) *Adapter {
	if id == "" {
		id = "noop"
	}
	return &Adapter{id: id}
}

func (a *Adapter) ID() string { return a.id }

func (a *Adapter) Generate(ctx context.Context, prompt string) (string, error) {
	return `{"decision":"HOLD","confidence":0.0}`, nil
}
