// Package notify dispatches ledger events to users through the background worker.
package notify

import (
	"context"
	"time"
)

// Kind names a user-facing ledger event.
type Kind string

const (
	KindTransactionCreated Kind = "transaction.created"
	KindTransactionUpdated Kind = "transaction.updated"
	KindPeriodEnding       Kind = "period.ending"
)

// Event is a notification addressed to one user.
type Event struct {
	ID      string         `json:"id"`
	Kind    Kind           `json:"kind"`
	UserID  int64          `json:"user_id"`
	Payload map[string]any `json:"payload"`
	Message string         `json:"message,omitempty"`
	At      time.Time      `json:"at"`
}

// Notifier delivers events fire-and-forget; errors only report that dispatch failed.
type Notifier interface {
	Notify(ctx context.Context, userID int64, kind Kind, payload map[string]any) error
}

// Nop drops every event.
type Nop struct{}

// Notify implements Notifier.
func (Nop) Notify(context.Context, int64, Kind, map[string]any) error { return nil }
