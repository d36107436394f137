package evm

import (
	"encoding/json"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/vietddude/walletwatch/internal/core/domain"
)

// TransferTopic is keccak256("Transfer(address,address,uint256)").
var TransferTopic = crypto.Keccak256Hash([]byte("Transfer(address,address,uint256)"))

// TransferLog is a decoded ERC20 Transfer log.
type TransferLog struct {
	Contract    string
	From        string
	To          string
	Amount      *big.Int
	BlockNumber uint64
	BlockHash   string
	TxHash      string
	LogIndex    uint64
	// Timestamp is zero when the node does not report blockTimestamp.
	Timestamp uint64
	Removed   bool
}

// IsAddress reports whether s is a 20-byte hex address.
func IsAddress(s string) bool {
	return common.IsHexAddress(s)
}

// DecodeTransferLog decodes one eth_getLogs entry. Any structural problem
// yields a *domain.DecodeError so the caller can skip just this entry.
func DecodeTransferLog(raw json.RawMessage) (TransferLog, error) {
	var l rawLog
	if err := json.Unmarshal(raw, &l); err != nil {
		return TransferLog{}, &domain.DecodeError{Reason: err.Error()}
	}
	fail := func(reason string) (TransferLog, error) {
		return TransferLog{}, &domain.DecodeError{TxHash: l.TxHash, Reason: reason}
	}

	if l.TxHash == "" {
		return fail("missing transactionHash")
	}
	if len(l.Topics) != 3 {
		return fail("expected 3 topics")
	}
	if !strings.EqualFold(l.Topics[0], TransferTopic.Hex()) {
		return fail("not a Transfer event")
	}
	from, err := topicAddress(l.Topics[1])
	if err != nil {
		return fail("from topic: " + err.Error())
	}
	to, err := topicAddress(l.Topics[2])
	if err != nil {
		return fail("to topic: " + err.Error())
	}
	data, err := hexutil.Decode(l.Data)
	if err != nil || len(data) != 32 {
		return fail("data is not a uint256")
	}
	number, err := hexutil.DecodeUint64(l.BlockNumber)
	if err != nil {
		return fail("blockNumber: " + err.Error())
	}
	index, err := hexutil.DecodeUint64(l.LogIndex)
	if err != nil {
		return fail("logIndex: " + err.Error())
	}
	var ts uint64
	if l.BlockTimestamp != "" {
		if ts, err = hexutil.DecodeUint64(l.BlockTimestamp); err != nil {
			return fail("blockTimestamp: " + err.Error())
		}
	}

	return TransferLog{
		Contract:    domain.NormalizeAddress(l.Address),
		From:        from,
		To:          to,
		Amount:      new(big.Int).SetBytes(data),
		BlockNumber: number,
		BlockHash:   l.BlockHash,
		TxHash:      l.TxHash,
		LogIndex:    index,
		Timestamp:   ts,
		Removed:     l.Removed,
	}, nil
}

// topicAddress takes the low 20 bytes of an indexed address topic. The high
// bytes are not checked.
func topicAddress(topic string) (string, error) {
	b, err := hexutil.Decode(topic)
	if err != nil {
		return "", err
	}
	if len(b) != 32 {
		return "", errTopicLength
	}
	return domain.NormalizeAddress(common.BytesToAddress(b[12:]).Hex()), nil
}
