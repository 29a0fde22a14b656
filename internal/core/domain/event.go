package domain

// Event is a normalized EVM log record.
type Event struct {
	Address          string   `json:"address"` // checksummed
	BlockNumber      uint64   `json:"blockNumber"`
	BlockHash        string   `json:"blockHash"`
	TransactionHash  string   `json:"transactionHash"`
	TransactionIndex uint64   `json:"transactionIndex"`
	LogIndex         uint64   `json:"logIndex"`
	Topics           []string `json:"topics"` // hex without 0x prefix
	Data             string   `json:"data"`
	Removed          bool     `json:"removed"`
}

// Topic0 returns the event signature topic, or "" for anonymous events.
func (e Event) Topic0() string {
	if len(e.Topics) == 0 {
		return ""
	}
	return e.Topics[0]
}
