package model

import "math/big"

// MonitoredContract mirrors the registry's view of one watched contract.
// Mutated only on-chain; this is a read-only snapshot. The balance fields
// are filled by the observer at lookup time, with the observation moment
// kept alongside so staleness stays explicit.
type MonitoredContract struct {
	Address           string   `json:"address"`
	Active            bool     `json:"active"`
	Dormant           bool     `json:"dormant"`
	LastActivityTime  uint64   `json:"last_activity_time"`
	AddedTime         uint64   `json:"added_time"`
	LastKnownBalance  *big.Int `json:"last_known_balance,omitempty"`
	BalanceObservedAt uint64   `json:"balance_observed_at,omitempty"`
}
