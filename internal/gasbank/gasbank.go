// Package gasbank keeps the orchestrator's per-account deposits.
//
// Deposits pay for operations. The flow for one operation is:
//  1. The account (or anyone on its behalf) deposits native value
//  2. Before validation the orchestrator reserves the required prefund
//  3. After execution the actual cost is consumed from the reservation
//  4. The unused part of the reservation becomes available again
//
// Every mutation registers an undo with the caller's Journal, so a failed
// call frame leaves the book exactly as it found it.
package gasbank

import (
	"errors"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
)

var (
	ErrInvalidAmount            = errors.New("amount must be positive")
	ErrInsufficientDeposit      = errors.New("insufficient deposit")
	ErrReservationNotFound      = errors.New("reservation not found")
	ErrReservationClosed        = errors.New("reservation already closed")
	ErrUnauthorized             = errors.New("reservation belongs to another account")
	ErrChargeExceedsReservation = errors.New("charge exceeds reservation")
)

// Journal receives undo callbacks for state changes. *chain.Env satisfies it.
type Journal interface {
	OnRevert(undo func())
}

// Manager handles all deposit operations for the orchestrator.
type Manager struct {
	mu           sync.RWMutex
	deposits     map[common.Address]*big.Int
	reserved     map[common.Address]*big.Int
	records      []Record
	reservations map[string]*Reservation
}

// NewManager creates an empty deposit book.
func NewManager() *Manager {
	return &Manager{
		deposits:     make(map[common.Address]*big.Int),
		reserved:     make(map[common.Address]*big.Int),
		reservations: make(map[string]*Reservation),
	}
}

// =============================================================================
// Core Deposit Operations
// =============================================================================

// GetBalance returns the account's deposit information.
func (m *Manager) GetBalance(account common.Address) (balance, reserved, available *big.Int) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	balance = get(m.deposits, account)
	reserved = get(m.reserved, account)
	return balance, reserved, new(big.Int).Sub(balance, reserved)
}

// Available returns the part of the deposit not held by reservations.
func (m *Manager) Available(account common.Address) *big.Int {
	_, _, available := m.GetBalance(account)
	return available
}

// Deposit credits amount to account. from is the payer.
func (m *Manager) Deposit(j Journal, account, from common.Address, amount *big.Int, referenceID string) error {
	if amount == nil || amount.Sign() <= 0 {
		return ErrInvalidAmount
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	newBalance := new(big.Int).Add(get(m.deposits, account), amount)
	m.set(j, m.deposits, account, newBalance)
	m.record(j, Record{
		Account:      account,
		TxType:       TxTypeDeposit,
		Amount:       new(big.Int).Set(amount),
		BalanceAfter: newBalance,
		ReferenceID:  referenceID,
		Counterparty: from,
	})
	return nil
}

// Withdraw debits amount from account's available deposit. The caller moves
// the native value to to.
func (m *Manager) Withdraw(j Journal, account, to common.Address, amount *big.Int, referenceID string) error {
	if amount == nil || amount.Sign() <= 0 {
		return ErrInvalidAmount
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	balance := get(m.deposits, account)
	available := new(big.Int).Sub(balance, get(m.reserved, account))
	if amount.Cmp(available) > 0 {
		return fmt.Errorf("%w: available %s, requested %s", ErrInsufficientDeposit, available, amount)
	}

	newBalance := new(big.Int).Sub(balance, amount)
	m.set(j, m.deposits, account, newBalance)
	m.record(j, Record{
		Account:      account,
		TxType:       TxTypeWithdraw,
		Amount:       new(big.Int).Neg(amount),
		BalanceAfter: newBalance,
		ReferenceID:  referenceID,
		Counterparty: to,
	})
	return nil
}

// GetTransactions returns account's most recent records, newest first. A
// non-positive limit returns all of them.
func (m *Manager) GetTransactions(account common.Address, limit int) []Record {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []Record
	for i := len(m.records) - 1; i >= 0; i-- {
		if m.records[i].Account != account {
			continue
		}
		out = append(out, m.records[i])
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out
}

// =============================================================================
// Journaled Helpers (callers hold mu)
// =============================================================================

func get(book map[common.Address]*big.Int, account common.Address) *big.Int {
	if v, ok := book[account]; ok {
		return new(big.Int).Set(v)
	}
	return new(big.Int)
}

func (m *Manager) set(j Journal, book map[common.Address]*big.Int, account common.Address, v *big.Int) {
	prev, had := book[account]
	book[account] = v
	j.OnRevert(func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		if had {
			book[account] = prev
		} else {
			delete(book, account)
		}
	})
}

func (m *Manager) record(j Journal, r Record) {
	r.ID = uuid.New().String()
	r.CreatedAt = time.Now()
	m.records = append(m.records, r)
	n := len(m.records)
	j.OnRevert(func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		m.records = m.records[:n-1]
	})
}
