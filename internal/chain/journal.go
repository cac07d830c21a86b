package chain

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// journalEntry is one reversible state change.
type journalEntry interface {
	revert(l *Ledger)
}

// journal records changes made since the outermost frame opened.
type journal struct {
	entries []journalEntry
}

func (j *journal) append(e journalEntry) {
	j.entries = append(j.entries, e)
}

func (j *journal) snapshot() int {
	return len(j.entries)
}

func (j *journal) revertTo(l *Ledger, snap int) {
	for i := len(j.entries) - 1; i >= snap; i-- {
		j.entries[i].revert(l)
	}
	j.entries = j.entries[:snap]
}

func (j *journal) reset() {
	j.entries = j.entries[:0]
}

type balanceChange struct {
	addr common.Address
	prev *big.Int
}

func (c balanceChange) revert(l *Ledger) {
	l.balances[c.addr] = c.prev
}

type transferChange struct{}

func (transferChange) revert(l *Ledger) {
	if n := len(l.transfers); n > 0 {
		l.transfers = l.transfers[:n-1]
	}
}

// undoChange reverts contract-owned state registered through Env.OnRevert.
type undoChange struct {
	undo func()
}

func (c undoChange) revert(*Ledger) {
	c.undo()
}
