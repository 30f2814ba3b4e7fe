package protocol

import "time"

// NodeStatus represents the current status of a settlement node
type NodeStatus struct {
	// Core identification
	House     string    `json:"house"`
	Vault     string    `json:"vault"`
	Version   string    `json:"version"`
	StartTime time.Time `json:"start_time"`

	// Execution counters
	Transactions uint64 `json:"transactions"`
	Failed       uint64 `json:"failed"`
	BetsResolved uint64 `json:"bets_resolved"`

	// Ledger state
	VaultBalance uint64 `json:"vault_balance"`
	Backend      string `json:"backend"`
}
