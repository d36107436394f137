package scanner

import (
	"context"
	"errors"
	"iter"
	"log/slog"
	"math/big"

	"github.com/vietddude/walletwatch/internal/core/domain"
)

var errBlockMissing = errors.New("node returned no block")

// BlockScanner discovers native transfers by walking every block. Transactions
// carrying zero value are reported too.
type BlockScanner struct {
	source BlockSource
	log    *slog.Logger
}

func NewBlockScanner(source BlockSource) *BlockScanner {
	return &BlockScanner{
		source: source,
		log:    slog.Default().With("component", "block_scanner"),
	}
}

// Scan yields native transfers touching tracked addresses in [from, to].
// A block that cannot be fetched ends the sequence with a *domain.BlockFetchError.
func (s *BlockScanner) Scan(ctx context.Context, cfg domain.MonitorConfig, tracked domain.AddressSet, from, to uint64) iter.Seq2[domain.TransferEvent, error] {
	return func(yield func(domain.TransferEvent, error) bool) {
		if from > to || tracked.Len() == 0 {
			return
		}
		for n := from; ; n++ {
			if err := ctx.Err(); err != nil {
				yield(domain.TransferEvent{}, err)
				return
			}

			block, err := s.source.GetBlock(ctx, n)
			if err == nil && block == nil {
				err = errBlockMissing
			}
			if err != nil {
				if ctxErr := ctx.Err(); ctxErr != nil {
					yield(domain.TransferEvent{}, ctxErr)
					return
				}
				yield(domain.TransferEvent{}, &domain.BlockFetchError{Chain: cfg.Chain, Block: n, Err: err})
				return
			}

			for _, tx := range block.Transactions {
				recipient := ""
				if tx.To != nil {
					recipient = *tx.To
				}
				amount := new(big.Int)
				if tx.Value != nil {
					amount = tx.Value.ToInt()
				}
				base := domain.TransferEvent{
					Chain:       cfg.Chain,
					Currency:    cfg.Currency,
					Kind:        domain.KindNative,
					TxHash:      tx.Hash,
					LogIndex:    domain.NativeLogIndex,
					BlockNumber: n,
					BlockHash:   block.Hash,
					Timestamp:   unixTime(uint64(block.Timestamp)),
					Amount:      amount,
					Value:       domain.ScaleAmount(amount, cfg.Decimals),
				}
				if !directional(base, tx.From, recipient, tracked, yield) {
					return
				}
			}
			s.log.Debug("Scanned block", "chain", cfg.Chain, "block", n, "txs", len(block.Transactions))

			if n == to {
				return
			}
		}
	}
}
