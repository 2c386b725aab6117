package model

import "math/big"

// AlertKind identifies the typed alert derived from a raw event.
type AlertKind string

const (
	KindReactivation    AlertKind = "reactivation"
	KindContractAdded   AlertKind = "contract_added"
	KindContractRemoved AlertKind = "contract_removed"
	KindConfigChanged   AlertKind = "config_changed"
	KindDecodeFailed    AlertKind = "decode_failed"
)

// AlertEvent is a classified event ready for rendering. Exactly one of the
// variant pointers is set for the matching Kind. Every AlertEvent keeps the
// originating identity key for dedup and audit.
type AlertEvent struct {
	Kind        AlertKind     `json:"kind"`
	BlockNumber uint64        `json:"block_number"`
	TxHash      string        `json:"tx_hash"`
	LogIndex    uint64        `json:"log_index"`
	Reactivated *Reactivation `json:"reactivated,omitempty"`
	Added       *ContractRef  `json:"added,omitempty"`
	Removed     *ContractRef  `json:"removed,omitempty"`
	Config      *ConfigChange `json:"config,omitempty"`
	Raw         *RawEvent     `json:"raw,omitempty"`
}

// IdentityKey mirrors RawEvent.IdentityKey.
func (a AlertEvent) IdentityKey() string {
	return RawEvent{TxHash: a.TxHash, LogIndex: a.LogIndex}.IdentityKey()
}

// Reactivation is a dormant-to-active transition reported by the registry.
type Reactivation struct {
	Contract        string   `json:"contract"`
	PreviousBalance *big.Int `json:"previous_balance"`
	CurrentBalance  *big.Int `json:"current_balance"`
	DormantSince    uint64   `json:"dormant_since"`
	At              uint64   `json:"at"`
}

// ContractRef names a contract added to or removed from monitoring.
type ContractRef struct {
	Contract string `json:"contract"`
}

// ConfigChange records an operator updating the registry configuration.
type ConfigChange struct {
	Operator  string `json:"operator"`
	ChannelID uint64 `json:"channel_id"`
}
