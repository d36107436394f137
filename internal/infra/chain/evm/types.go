package evm

import (
	"github.com/ethereum/go-ethereum/common/hexutil"
)

// Block is the subset of eth_getBlockByNumber (full transactions) the scanners use.
type Block struct {
	Number       hexutil.Uint64 `json:"number"`
	Hash         string         `json:"hash"`
	ParentHash   string         `json:"parentHash"`
	Timestamp    hexutil.Uint64 `json:"timestamp"`
	Transactions []Transaction  `json:"transactions"`
}

// Transaction is a full transaction object inside a block.
type Transaction struct {
	Hash             string         `json:"hash"`
	From             string         `json:"from"`
	To               *string        `json:"to"`
	Value            *hexutil.Big   `json:"value"`
	TransactionIndex hexutil.Uint64 `json:"transactionIndex"`
}

// LogFilter is the eth_getLogs query for one contract and topic.
type LogFilter struct {
	FromBlock uint64
	ToBlock   uint64
	Address   string
	Topic0    string
}

func (f LogFilter) params() []any {
	return []any{map[string]any{
		"fromBlock": hexutil.EncodeUint64(f.FromBlock),
		"toBlock":   hexutil.EncodeUint64(f.ToBlock),
		"address":   f.Address,
		"topics":    []any{f.Topic0},
	}}
}

// rawLog mirrors a log entry with every field left as text so a single
// malformed entry can be rejected without failing the whole response.
type rawLog struct {
	Address        string   `json:"address"`
	Topics         []string `json:"topics"`
	Data           string   `json:"data"`
	BlockNumber    string   `json:"blockNumber"`
	BlockHash      string   `json:"blockHash"`
	BlockTimestamp string   `json:"blockTimestamp"`
	TxHash         string   `json:"transactionHash"`
	LogIndex       string   `json:"logIndex"`
	Removed        bool     `json:"removed"`
}
