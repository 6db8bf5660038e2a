package i18n

// Error codes must match the codes defined in internal/platform/errors/codes.go.
// These are duplicated as strings to avoid an import cycle.
const (
	CodeInvalidExpression  = "INVALID_EXPRESSION"
	CodeInsufficientXp     = "INSUFFICIENT_XP"
	CodeLedgerUnavailable  = "LEDGER_UNAVAILABLE"
	CodeCostTableInvalid   = "COST_TABLE_INVALID"
	CodeFieldNotFound      = "FIELD_NOT_FOUND"
	CodeNoPendingEdit      = "NO_PENDING_EDIT"
	CodeEditNotConfirmable = "EDIT_NOT_CONFIRMABLE"
	CodeSheetInUse         = "SHEET_IN_USE"
	CodeNotFound           = "NOT_FOUND"
)
