package emitter

import (
	"context"
	"log/slog"

	"github.com/vietddude/walletwatch/internal/core/domain"
)

// LogEmitter writes every event to the structured log.
type LogEmitter struct {
	log *slog.Logger
}

func NewLogEmitter() *LogEmitter {
	return &LogEmitter{log: slog.Default().With("component", "emitter")}
}

func (e *LogEmitter) Emit(ctx context.Context, ev domain.TransferEvent) error {
	e.log.InfoContext(ctx, "Transfer detected",
		"chain", ev.Chain,
		"currency", ev.Currency,
		"direction", ev.Direction,
		"address", ev.TrackedAddress,
		"counterparty", ev.Counterparty,
		"value", ev.Value.String(),
		"block", ev.BlockNumber,
		"id", ev.ID(),
	)
	return nil
}

func (e *LogEmitter) Close() error { return nil }
