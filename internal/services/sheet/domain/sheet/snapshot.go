package sheet

// FieldSnapshot is the wire view of a committed field.
type FieldSnapshot struct {
	ID        string `json:"id"`
	Kind      string `json:"kind"`
	Steps     int    `json:"steps"`
	RawText   string `json:"raw"`
	DisplayID string `json:"displayId,omitempty"`
	Final     int    `json:"final"`
}

// LedgerSnapshot is the wire view of the ledger and its derived total.
type LedgerSnapshot struct {
	CurrentXP int `json:"currentXp"`
	SpentXP   int `json:"spentXp"`
	TotalXP   int `json:"totalXp"`
}

// Snapshot is the full committed state of a sheet.
type Snapshot struct {
	ID     string          `json:"id"`
	Fields []FieldSnapshot `json:"fields"`
	Ledger *LedgerSnapshot `json:"ledger,omitempty"`
}

// Snapshot captures the committed state.
func (s *Sheet) Snapshot() Snapshot {
	snap := Snapshot{ID: s.id, Fields: make([]FieldSnapshot, 0, len(s.order))}
	for _, field := range s.Fields() {
		snap.Fields = append(snap.Fields, FieldSnapshot{
			ID:        field.ID,
			Kind:      field.Kind.String(),
			Steps:     field.Steps,
			RawText:   field.RawText,
			DisplayID: field.DisplayID,
			Final:     field.Final(),
		})
	}
	if ledger, ok := s.Ledger(); ok {
		snap.Ledger = &LedgerSnapshot{
			CurrentXP: ledger.CurrentXP,
			SpentXP:   ledger.SpentXP,
			TotalXP:   ledger.Total(),
		}
	}
	return snap
}
