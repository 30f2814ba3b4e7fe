package node

import (
	"dicesettle/internal/address"
	"dicesettle/internal/dice"
)

// ErrorResponse is the body of every failed request
type ErrorResponse struct {
	Error string   `json:"error"`
	Code  uint32   `json:"code,omitempty"`
	Name  string   `json:"name,omitempty"`
	Logs  []string `json:"logs,omitempty"`
}

// BetResponse describes an open bet
type BetResponse struct {
	Address  address.Pubkey `json:"address"`
	Lamports uint64         `json:"lamports"`
	Bet      dice.Bet       `json:"bet"`
}

// AirdropRequest asks the faucet to credit an account
type AirdropRequest struct {
	Address address.Pubkey `json:"address"`
}

// AirdropResponse reports the faucet credit
type AirdropResponse struct {
	Address  address.Pubkey `json:"address"`
	Lamports uint64         `json:"lamports"`
}
