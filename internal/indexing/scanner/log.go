package scanner

import (
	"context"
	"iter"
	"log/slog"
	"sort"

	"github.com/vietddude/walletwatch/internal/core/domain"
	"github.com/vietddude/walletwatch/internal/indexing/metrics"
	"github.com/vietddude/walletwatch/internal/infra/chain/evm"
)

// LogScanner discovers ERC20 transfers from Transfer logs of one contract.
type LogScanner struct {
	source LogSource
	log    *slog.Logger
}

func NewLogScanner(source LogSource) *LogScanner {
	return &LogScanner{
		source: source,
		log:    slog.Default().With("component", "log_scanner"),
	}
}

// Scan queries [from, to] in windows of at most cfg.MaxLogRange blocks.
// Malformed and removed entries are skipped. A failed window query ends the
// sequence with a *domain.LogQueryError.
func (s *LogScanner) Scan(ctx context.Context, cfg domain.MonitorConfig, tracked domain.AddressSet, from, to uint64) iter.Seq2[domain.TransferEvent, error] {
	return func(yield func(domain.TransferEvent, error) bool) {
		if from > to || tracked.Len() == 0 {
			return
		}
		window := cfg.MaxLogRange
		if window == 0 {
			window = domain.DefaultMaxLogRange
		}
		contract := domain.NormalizeAddress(cfg.ContractAddress)

		for start := from; ; {
			end := to
			if to-start >= window {
				end = start + window - 1
			}

			if err := ctx.Err(); err != nil {
				yield(domain.TransferEvent{}, err)
				return
			}
			raws, err := s.source.GetLogs(ctx, evm.LogFilter{
				FromBlock: start,
				ToBlock:   end,
				Address:   contract,
				Topic0:    evm.TransferTopic.Hex(),
			})
			if err != nil {
				if ctxErr := ctx.Err(); ctxErr != nil {
					yield(domain.TransferEvent{}, ctxErr)
					return
				}
				yield(domain.TransferEvent{}, &domain.LogQueryError{Chain: cfg.Chain, Contract: contract, From: start, To: end, Err: err})
				return
			}

			logs := make([]evm.TransferLog, 0, len(raws))
			for _, raw := range raws {
				l, err := evm.DecodeTransferLog(raw)
				if err != nil {
					metrics.LogDecodeErrors.WithLabelValues(string(cfg.Chain), cfg.Currency).Inc()
					s.log.Warn("Skipping malformed log", "chain", cfg.Chain, "currency", cfg.Currency, "error", err)
					continue
				}
				if l.Removed {
					continue
				}
				if l.Contract != "" && l.Contract != contract {
					continue
				}
				if l.BlockNumber < start || l.BlockNumber > end {
					s.log.Warn("Skipping log outside queried range", "chain", cfg.Chain, "block", l.BlockNumber, "tx", l.TxHash)
					continue
				}
				logs = append(logs, l)
			}
			sort.SliceStable(logs, func(i, j int) bool {
				if logs[i].BlockNumber != logs[j].BlockNumber {
					return logs[i].BlockNumber < logs[j].BlockNumber
				}
				return logs[i].LogIndex < logs[j].LogIndex
			})

			for _, l := range logs {
				base := domain.TransferEvent{
					Chain:       cfg.Chain,
					Currency:    cfg.Currency,
					Kind:        domain.KindToken,
					TxHash:      l.TxHash,
					LogIndex:    int64(l.LogIndex),
					BlockNumber: l.BlockNumber,
					BlockHash:   l.BlockHash,
					Timestamp:   unixTime(l.Timestamp),
					Amount:      l.Amount,
					Value:       domain.ScaleAmount(l.Amount, cfg.Decimals),
					Contract:    contract,
				}
				if !directional(base, l.From, l.To, tracked, yield) {
					return
				}
			}

			if end == to {
				return
			}
			start = end + 1
		}
	}
}
