package advancement

import (
	"fmt"
	"strconv"
	"strings"

	apperrors "github.com/louisbranch/charsheet/internal/platform/errors"
)

// Storage keys of the ledger fields.
const (
	FieldCurrentXP = "current-xp"
	FieldSpentXP   = "spent-xp"
	FieldTotalXP   = "total-xp"
)

// Ledger is the XP balance of a sheet.
type Ledger struct {
	CurrentXP int
	SpentXP   int
}

// Total is always derived, never stored.
func (l Ledger) Total() int {
	return saturatingAdd(l.CurrentXP, l.SpentXP)
}

var (
	// ErrInvalidExpression indicates text matching none of the input grammars.
	ErrInvalidExpression = apperrors.New(apperrors.CodeInvalidExpression, "invalid expression")
	// ErrLedgerUnavailable indicates the sheet has no XP ledger bound.
	ErrLedgerUnavailable = apperrors.New(apperrors.CodeLedgerUnavailable, "ledger fields are not available")
)

// InsufficientXP builds the rejection for an unaffordable spend.
func InsufficientXP(needed, available int) error {
	return apperrors.WithMetadata(
		apperrors.CodeInsufficientXp,
		fmt.Sprintf("insufficient xp: need %d, have %d", needed, available),
		map[string]string{
			"Needed":    strconv.Itoa(needed),
			"Available": strconv.Itoa(available),
		},
	)
}

// InsufficientXPAmounts extracts the needed and available amounts from an
// InsufficientXP error.
func InsufficientXPAmounts(err error) (needed, available int, ok bool) {
	if apperrors.GetCode(err) != apperrors.CodeInsufficientXp {
		return 0, 0, false
	}
	metadata := apperrors.GetMetadata(err)
	needed, errNeeded := strconv.Atoi(metadata["Needed"])
	available, errAvailable := strconv.Atoi(metadata["Available"])
	if errNeeded != nil || errAvailable != nil {
		return 0, 0, false
	}
	return needed, available, true
}

// EditCurrentXP sets current XP from text typed into the current XP field.
// Shortform input is relative to the committed current XP. Blank text leaves
// the ledger as is.
func EditCurrentXP(ledger *Ledger, text string) (Ledger, error) {
	if ledger == nil {
		return Ledger{}, ErrLedgerUnavailable
	}
	if strings.TrimSpace(text) == "" {
		return *ledger, nil
	}
	expr, ok := ParseExpression(text, strconv.Itoa(ledger.CurrentXP))
	if !ok {
		return *ledger, ErrInvalidExpression
	}
	return Ledger{CurrentXP: expr.Value, SpentXP: ledger.SpentXP}, nil
}

// EditSpentXP sets spent XP from text typed into the spent XP field. The
// difference from the committed spent XP moves out of (or back into) current
// XP; spending more than current XP is rejected.
func EditSpentXP(ledger *Ledger, text string) (Ledger, error) {
	if ledger == nil {
		return Ledger{}, ErrLedgerUnavailable
	}
	if strings.TrimSpace(text) == "" {
		return *ledger, nil
	}
	expr, ok := ParseExpression(text, strconv.Itoa(ledger.SpentXP))
	if !ok {
		return *ledger, ErrInvalidExpression
	}
	diff := expr.Value - ledger.SpentXP
	if diff > ledger.CurrentXP {
		return *ledger, InsufficientXP(diff, ledger.CurrentXP)
	}
	return Ledger{
		CurrentXP: saturatingAdd(ledger.CurrentXP, -diff),
		SpentXP:   expr.Value,
	}, nil
}
