package advancement

import (
	apperrors "github.com/louisbranch/charsheet/internal/platform/errors"
)

// Field is the committed state of one advancement counter.
type Field struct {
	ID    string
	Kind  Kind
	Steps int
}

// Direction classifies a transaction.
type Direction int

const (
	DirectionNone Direction = iota
	DirectionAdvance
	DirectionRefund
)

// String returns the direction label.
func (d Direction) String() string {
	switch d {
	case DirectionAdvance:
		return "advance"
	case DirectionRefund:
		return "refund"
	default:
		return "none"
	}
}

// Transaction is the priced change of one field's step count.
type Transaction struct {
	FieldID       string
	Kind          Kind
	OriginalSteps int
	NewSteps      int
	Direction     Direction
	// XPDelta is the cost when advancing and the negated refund when going
	// back down.
	XPDelta int
	// Before is the ledger the transaction was priced against.
	Before Ledger
	// After is the ledger once the transaction is applied. It equals Before
	// for rejected transactions.
	After Ledger
}

// Cost returns the XP spent by an advancement, or 0.
func (t Transaction) Cost() int {
	if t.XPDelta > 0 {
		return t.XPDelta
	}
	return 0
}

// Refund returns the XP returned by a reversal, or 0.
func (t Transaction) Refund() int {
	if t.XPDelta < 0 {
		return -t.XPDelta
	}
	return 0
}

// ComputeTransaction prices moving field to newStepsRaw against ledger.
//
// Negative targets clamp to 0. Advancing costs the price of each newly
// completed step and is rejected with an INSUFFICIENT_XP error when current XP
// cannot cover it. Going down refunds the price of each relinquished step and
// is always accepted; spent XP never drops below 0. A rejected transaction is
// still returned, priced, so the caller can display the amounts.
func ComputeTransaction(table *CostTable, field Field, newStepsRaw int, ledger *Ledger) (Transaction, error) {
	newSteps := ClampSteps(newStepsRaw)
	tx := Transaction{
		FieldID:       field.ID,
		Kind:          field.Kind,
		OriginalSteps: field.Steps,
		NewSteps:      newSteps,
	}
	if table == nil {
		return tx, apperrors.New(apperrors.CodeCostTableInvalid, "cost table is not loaded")
	}
	if ledger == nil {
		return tx, ErrLedgerUnavailable
	}
	tx.Before = *ledger
	tx.After = *ledger

	switch {
	case newSteps > field.Steps:
		cost := table.AdvancementCost(field.Steps, newSteps, field.Kind)
		tx.Direction = DirectionAdvance
		tx.XPDelta = cost
		if cost > ledger.CurrentXP {
			return tx, InsufficientXP(cost, ledger.CurrentXP)
		}
		tx.After = Ledger{
			CurrentXP: ledger.CurrentXP - cost,
			SpentXP:   saturatingAdd(ledger.SpentXP, cost),
		}
	case newSteps < field.Steps:
		refund := table.AdvancementRefund(field.Steps, newSteps, field.Kind)
		tx.Direction = DirectionRefund
		tx.XPDelta = -refund
		tx.After = Ledger{
			CurrentXP: saturatingAdd(ledger.CurrentXP, refund),
			SpentXP:   ClampSteps(ledger.SpentXP - refund),
		}
	}
	return tx, nil
}
