package emitter

import (
	"context"
	"errors"

	"github.com/vietddude/walletwatch/internal/core/domain"
)

// Emitter delivers transfer events to downstream consumers. Delivery is
// at-least-once: a failed pass is rescanned, so consumers deduplicate on
// the event ID plus direction.
type Emitter interface {
	// Emit sends a single event
	Emit(ctx context.Context, event domain.TransferEvent) error

	// Close closes the emitter connection
	Close() error
}

// Multi fans each event out to every emitter, failing if any of them fails.
type Multi []Emitter

func (m Multi) Emit(ctx context.Context, event domain.TransferEvent) error {
	var errs []error
	for _, e := range m {
		if err := e.Emit(ctx, event); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (m Multi) Close() error {
	var errs []error
	for _, e := range m {
		errs = append(errs, e.Close())
	}
	return errors.Join(errs...)
}
