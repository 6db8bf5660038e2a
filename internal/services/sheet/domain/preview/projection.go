package preview

import (
	"github.com/louisbranch/charsheet/internal/services/sheet/domain/advancement"
	"github.com/louisbranch/charsheet/internal/services/sheet/domain/sheet"
)

// Projection is what a preview displays: the price of the edit and the values
// the sheet would show once it is confirmed.
type Projection struct {
	FieldID     string
	Direction   advancement.Direction
	Cost        int
	Refund      int
	NewSteps    int
	CurrentXP   int
	SpentXP     int
	TotalXP     int
	Final       int
	Confirmable bool
	Err         error
}

// Project computes the display values of pending over field.
func Project(field sheet.Field, pending PendingEdit) Projection {
	tx := pending.Transaction
	return Projection{
		FieldID:     pending.FieldID,
		Direction:   tx.Direction,
		Cost:        tx.Cost(),
		Refund:      tx.Refund(),
		NewSteps:    tx.NewSteps,
		CurrentXP:   tx.After.CurrentXP,
		SpentXP:     tx.After.SpentXP,
		TotalXP:     tx.After.Total(),
		Final:       advancement.ProjectedValue(field.Kind, field.Aux, pending.OriginalSteps, tx.NewSteps),
		Confirmable: pending.Confirmable(),
		Err:         pending.Err,
	}
}
