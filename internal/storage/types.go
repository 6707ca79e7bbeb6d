// Package storage persists what the in-memory tracker cannot afford to
// lose across restarts: stock transition history, last-notified timestamps
// (the cooldown gate) and an audit trail of control-surface commands.
package storage

import (
	"context"
	"errors"
	"time"
)

// ErrDisabled is returned by write operations when no store is configured.
var ErrDisabled = errors.New("storage disabled")

type Transition struct {
	ProductID string
	At        time.Time
	InStock   bool
	Price     string
}

type AuditEntry struct {
	At      time.Time
	ActorID int64
	Action  string
	Target  string
	OK      bool
	Error   string
}

type Store interface {
	Close() error

	RecordTransition(ctx context.Context, t Transition) error
	RecentTransitions(ctx context.Context, productID string, limit int) ([]Transition, error)

	LastNotified(ctx context.Context, productID string) (time.Time, bool, error)
	SetLastNotified(ctx context.Context, productID string, at time.Time) error

	AppendAudit(ctx context.Context, e AuditEntry) error
}
