package emitter

import (
	"context"
	"encoding/json"
	"errors"
	"math/big"
	"testing"
	"time"

	"github.com/IBM/sarama"
	"github.com/IBM/sarama/mocks"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vietddude/walletwatch/internal/core/domain"
)

func sampleEvent() domain.TransferEvent {
	return domain.TransferEvent{
		Chain:          domain.ChainETX,
		Currency:       "USDT",
		Kind:           domain.KindToken,
		TxHash:         "0xtx",
		LogIndex:       4,
		BlockNumber:    100,
		BlockHash:      "0xbh",
		Timestamp:      time.Unix(1700000000, 0),
		TrackedAddress: "0xaa",
		Counterparty:   "0xbb",
		Direction:      domain.DirectionIn,
		Amount:         big.NewInt(2_500_000),
		Value:          decimal.RequireFromString("2.5"),
		Contract:       "0xcc",
	}
}

func TestKafkaEmitter_Emit(t *testing.T) {
	producer := mocks.NewSyncProducer(t, nil)
	producer.ExpectSendMessageWithCheckerFunctionAndSucceed(func(val []byte) error {
		var msg map[string]any
		if err := json.Unmarshal(val, &msg); err != nil {
			return err
		}
		if msg["id"] != "0xtx:4" || msg["amount"] != "2500000" || msg["value"] != "2.5" || msg["direction"] != "in" {
			return errors.New("unexpected payload")
		}
		return nil
	})

	e := NewKafkaEmitterWithProducer(producer, "walletwatch.transfers")
	require.NoError(t, e.Emit(context.Background(), sampleEvent()))
	require.NoError(t, e.Close())
}

func TestKafkaEmitter_Failure(t *testing.T) {
	producer := mocks.NewSyncProducer(t, nil)
	producer.ExpectSendMessageAndFail(sarama.ErrOutOfBrokers)

	e := NewKafkaEmitterWithProducer(producer, "walletwatch.transfers")
	err := e.Emit(context.Background(), sampleEvent())
	assert.ErrorIs(t, err, sarama.ErrOutOfBrokers)
	require.NoError(t, e.Close())
}

type recordingEmitter struct {
	events []domain.TransferEvent
	err    error
}

func (r *recordingEmitter) Emit(ctx context.Context, ev domain.TransferEvent) error {
	r.events = append(r.events, ev)
	return r.err
}

func (r *recordingEmitter) Close() error { return nil }

func TestMulti(t *testing.T) {
	a, b := &recordingEmitter{}, &recordingEmitter{err: errors.New("down")}
	m := Multi{a, b, NewLogEmitter()}

	err := m.Emit(context.Background(), sampleEvent())
	assert.Error(t, err)
	assert.Len(t, a.events, 1)
	assert.Len(t, b.events, 1)
	assert.NoError(t, m.Close())
}
