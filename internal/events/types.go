package events

import (
	"dicesettle/internal/address"
)

// BetPlaced is emitted when a player opens a bet against a vault
type BetPlaced struct {
	Bet    address.Pubkey `json:"bet"`
	Player address.Pubkey `json:"player"`
	Vault  address.Pubkey `json:"vault"`
	Seed   string         `json:"seed"`
	Roll   uint8          `json:"roll"`
	Amount uint64         `json:"amount"`
}

// BetResolved is emitted when a bet is settled and closed
type BetResolved struct {
	Bet    address.Pubkey `json:"bet"`
	Player address.Pubkey `json:"player"`
	Roll   uint8          `json:"roll"`
	Won    bool           `json:"won"`
	Payout uint64         `json:"payout"`
}

// VaultFunded is emitted when the house deposits into its vault
type VaultFunded struct {
	House  address.Pubkey `json:"house"`
	Vault  address.Pubkey `json:"vault"`
	Amount uint64         `json:"amount"`
}
