// Package audit persists the governor's decision trail.
package audit

import (
	"context"

	"github.com/pario-ai/leasegate/pkg/models"
)

// Writer accepts one audit event per governor decision.
type Writer interface {
	Write(ctx context.Context, ev models.AuditEvent) error
}

// Nop discards every event.
type Nop struct{}

// Write implements Writer.
func (Nop) Write(context.Context, models.AuditEvent) error { return nil }

// Multi fans an event out to several writers. Every writer is tried; the
// first error is returned.
type Multi []Writer

// Write implements Writer.
func (m Multi) Write(ctx context.Context, ev models.AuditEvent) error {
	var first error
	for _, w := range m {
		if err := w.Write(ctx, ev); err != nil && first == nil {
			first = err
		}
	}
	return first
}
