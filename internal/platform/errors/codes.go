// Package errors provides structured error handling with i18n support.
package errors

// Code is a machine-readable error code.
type Code string

const (
	// CodeUnknown represents an unknown error.
	CodeUnknown Code = "UNKNOWN"

	// Expression errors
	CodeInvalidExpression Code = "INVALID_EXPRESSION"

	// Transaction errors
	CodeInsufficientXp    Code = "INSUFFICIENT_XP"
	CodeLedgerUnavailable Code = "LEDGER_UNAVAILABLE"

	// Cost table errors
	CodeCostTableInvalid Code = "COST_TABLE_INVALID"

	// Session errors
	CodeFieldNotFound      Code = "FIELD_NOT_FOUND"
	CodeNoPendingEdit      Code = "NO_PENDING_EDIT"
	CodeEditNotConfirmable Code = "EDIT_NOT_CONFIRMABLE"
	CodeSheetInUse         Code = "SHEET_IN_USE"

	// Storage errors
	CodeNotFound Code = "NOT_FOUND"
)

// Recoverable reports whether the code leaves committed state untouched and
// lets the user retype or cancel.
func (c Code) Recoverable() bool {
	switch c {
	case CodeInvalidExpression,
		CodeInsufficientXp,
		CodeLedgerUnavailable,
		CodeFieldNotFound,
		CodeNoPendingEdit,
		CodeEditNotConfirmable:
		return true
	default:
		return false
	}
}
