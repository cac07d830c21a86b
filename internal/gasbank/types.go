package gasbank

import (
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

const (
	// Record types
	TxTypeDeposit  = "deposit"
	TxTypeWithdraw = "withdraw"
	TxTypeCharge   = "charge" // Operation cost taken from a reservation

	// Reservation status
	ReservationPending  = "pending"
	ReservationConsumed = "consumed"
	ReservationReleased = "released"
)

// Record is one committed movement on a deposit.
type Record struct {
	ID           string         `json:"id"`
	Account      common.Address `json:"account"`
	TxType       string         `json:"tx_type"`
	Amount       *big.Int       `json:"amount"`
	BalanceAfter *big.Int       `json:"balance_after"`
	ReferenceID  string         `json:"reference_id"`
	Counterparty common.Address `json:"counterparty,omitempty"`
	CreatedAt    time.Time      `json:"created_at"`
}

// Reservation is part of a deposit held for an operation in flight.
type Reservation struct {
	ID          string         `json:"id"`
	Account     common.Address `json:"account"`
	ReferenceID string         `json:"reference_id"`
	Amount      *big.Int       `json:"amount"`
	Status      string         `json:"status"`
	CreatedAt   time.Time      `json:"created_at"`
	ConsumedAt  time.Time      `json:"consumed_at,omitempty"`
}
