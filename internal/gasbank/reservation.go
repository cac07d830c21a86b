package gasbank

import (
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
)

// =============================================================================
// Reservation Operations
// =============================================================================

// Reserve holds amount of account's deposit for a pending operation.
func (m *Manager) Reserve(j Journal, account common.Address, referenceID string, amount *big.Int) (string, error) {
	if amount == nil || amount.Sign() < 0 {
		return "", ErrInvalidAmount
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	reserved := get(m.reserved, account)
	available := new(big.Int).Sub(get(m.deposits, account), reserved)
	if amount.Cmp(available) > 0 {
		return "", fmt.Errorf("%w: available %s, required %s", ErrInsufficientDeposit, available, amount)
	}

	reservation := &Reservation{
		ID:          uuid.New().String(),
		Account:     account,
		ReferenceID: referenceID,
		Amount:      new(big.Int).Set(amount),
		Status:      ReservationPending,
		CreatedAt:   time.Now(),
	}

	m.set(j, m.reserved, account, reserved.Add(reserved, amount))
	m.putReservation(j, reservation)
	return reservation.ID, nil
}

// Release returns a reservation to the account untouched.
func (m *Manager) Release(j Journal, account common.Address, reservationID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	reservation, ok := m.reservations[reservationID]
	if !ok {
		return nil // Idempotent: treat as already released
	}
	if reservation.Account != account {
		return ErrUnauthorized
	}
	if reservation.Status != ReservationPending {
		return fmt.Errorf("%w: %s", ErrReservationClosed, reservation.Status)
	}

	m.set(j, m.reserved, account, m.unreserve(account, reservation.Amount))
	m.closeReservation(j, reservation, ReservationReleased)
	return nil
}

// Consume charges cost against a reservation and frees the rest of it.
func (m *Manager) Consume(j Journal, account common.Address, reservationID string, cost *big.Int) error {
	if cost == nil || cost.Sign() < 0 {
		return ErrInvalidAmount
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	reservation, ok := m.reservations[reservationID]
	if !ok {
		return fmt.Errorf("%w: %s", ErrReservationNotFound, reservationID)
	}
	if reservation.Account != account {
		return ErrUnauthorized
	}
	if reservation.Status != ReservationPending {
		return fmt.Errorf("%w: %s", ErrReservationClosed, reservation.Status)
	}
	if cost.Cmp(reservation.Amount) > 0 {
		return fmt.Errorf("%w: reserved %s, charged %s", ErrChargeExceedsReservation, reservation.Amount, cost)
	}

	newBalance := new(big.Int).Sub(get(m.deposits, account), cost)
	m.set(j, m.deposits, account, newBalance)
	m.set(j, m.reserved, account, m.unreserve(account, reservation.Amount))
	m.record(j, Record{
		Account:      account,
		TxType:       TxTypeCharge,
		Amount:       new(big.Int).Neg(cost),
		BalanceAfter: newBalance,
		ReferenceID:  reservation.ReferenceID,
	})
	m.closeReservation(j, reservation, ReservationConsumed)
	return nil
}

// Reservation returns a copy of a pending reservation.
func (m *Manager) Reservation(reservationID string) (Reservation, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	r, ok := m.reservations[reservationID]
	if !ok {
		return Reservation{}, false
	}
	out := *r
	out.Amount = new(big.Int).Set(r.Amount)
	return out, true
}

func (m *Manager) unreserve(account common.Address, amount *big.Int) *big.Int {
	newReserved := new(big.Int).Sub(get(m.reserved, account), amount)
	if newReserved.Sign() < 0 {
		newReserved.SetInt64(0)
	}
	return newReserved
}

func (m *Manager) putReservation(j Journal, r *Reservation) {
	m.reservations[r.ID] = r
	j.OnRevert(func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		delete(m.reservations, r.ID)
	})
}

// closeReservation drops a settled reservation from the pending set.
func (m *Manager) closeReservation(j Journal, r *Reservation, status string) {
	delete(m.reservations, r.ID)
	r.Status = status
	if status == ReservationConsumed {
		r.ConsumedAt = time.Now()
	}
	j.OnRevert(func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		r.Status = ReservationPending
		r.ConsumedAt = time.Time{}
		m.reservations[r.ID] = r
	})
}
