package emitter

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/IBM/sarama"

	"github.com/vietddude/walletwatch/internal/core/domain"
)

// KafkaConfig holds producer settings.
type KafkaConfig struct {
	Brokers  []string `yaml:"brokers"`
	Topic    string   `yaml:"topic"`
	ClientID string   `yaml:"client_id"`
}

// transferMessage is the wire format published to Kafka.
type transferMessage struct {
	ID             string `json:"id"`
	Chain          string `json:"chain"`
	Currency       string `json:"currency"`
	Kind           string `json:"kind"`
	TxHash         string `json:"tx_hash"`
	LogIndex       int64  `json:"log_index"`
	BlockNumber    uint64 `json:"block_number"`
	BlockHash      string `json:"block_hash"`
	Timestamp      int64  `json:"timestamp,omitempty"`
	TrackedAddress string `json:"tracked_address"`
	Counterparty   string `json:"counterparty"`
	Direction      string `json:"direction"`
	Amount         string `json:"amount"`
	Value          string `json:"value"`
	Contract       string `json:"contract,omitempty"`
}

func newTransferMessage(ev domain.TransferEvent) transferMessage {
	msg := transferMessage{
		ID:             ev.ID(),
		Chain:          string(ev.Chain),
		Currency:       ev.Currency,
		Kind:           string(ev.Kind),
		TxHash:         ev.TxHash,
		LogIndex:       ev.LogIndex,
		BlockNumber:    ev.BlockNumber,
		BlockHash:      ev.BlockHash,
		TrackedAddress: ev.TrackedAddress,
		Counterparty:   ev.Counterparty,
		Direction:      string(ev.Direction),
		Value:          ev.Value.String(),
		Contract:       ev.Contract,
	}
	if ev.Amount != nil {
		msg.Amount = ev.Amount.String()
	}
	if !ev.Timestamp.IsZero() {
		msg.Timestamp = ev.Timestamp.Unix()
	}
	return msg
}

// KafkaEmitter publishes events keyed by tracked address so per-address
// ordering is kept within a partition.
type KafkaEmitter struct {
	producer sarama.SyncProducer
	topic    string
}

// NewKafkaEmitter connects a synchronous producer.
func NewKafkaEmitter(cfg KafkaConfig) (*KafkaEmitter, error) {
	config := sarama.NewConfig()
	config.ClientID = cfg.ClientID
	if config.ClientID == "" {
		config.ClientID = "walletwatch"
	}
	config.Producer.Return.Successes = true
	config.Producer.Return.Errors = true
	config.Producer.RequiredAcks = sarama.WaitForAll
	config.Producer.Retry.Max = 3
	config.Producer.Retry.Backoff = 100 * time.Millisecond

	producer, err := sarama.NewSyncProducer(cfg.Brokers, config)
	if err != nil {
		return nil, fmt.Errorf("failed to create kafka producer: %w", err)
	}
	return NewKafkaEmitterWithProducer(producer, cfg.Topic), nil
}

// NewKafkaEmitterWithProducer wraps an existing producer.
func NewKafkaEmitterWithProducer(producer sarama.SyncProducer, topic string) *KafkaEmitter {
	return &KafkaEmitter{producer: producer, topic: topic}
}

func (e *KafkaEmitter) Emit(ctx context.Context, ev domain.TransferEvent) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	payload, err := json.Marshal(newTransferMessage(ev))
	if err != nil {
		return fmt.Errorf("marshal transfer %s: %w", ev.ID(), err)
	}
	_, _, err = e.producer.SendMessage(&sarama.ProducerMessage{
		Topic: e.topic,
		Key:   sarama.StringEncoder(ev.TrackedAddress),
		Value: sarama.ByteEncoder(payload),
		Headers: []sarama.RecordHeader{
			{Key: []byte("event_id"), Value: []byte(ev.Key())},
		},
	})
	if err != nil {
		return fmt.Errorf("publish transfer %s: %w", ev.ID(), err)
	}
	return nil
}

func (e *KafkaEmitter) Close() error {
	return e.producer.Close()
}
