package model

import "fmt"

// RawEvent is a chain log normalized for classification.
type RawEvent struct {
	EventName   string   `json:"event_name"`
	Address     string   `json:"address"`
	BlockNumber uint64   `json:"block_number"`
	TxHash      string   `json:"tx_hash"`
	LogIndex    uint64   `json:"log_index"`
	Topics      []string `json:"topics"`
	Data        string   `json:"data"`
}

// IdentityKey is unique per chain and immutable once mined.
func (e RawEvent) IdentityKey() string {
	return fmt.Sprintf("%s:%d", e.TxHash, e.LogIndex)
}
