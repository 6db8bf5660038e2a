// Package sheet holds the committed state of one character sheet: its
// advancement fields and the XP ledger.
package sheet

import (
	"fmt"
	"strconv"

	"github.com/louisbranch/charsheet/internal/services/sheet/domain/advancement"
)

// Field is the committed state of one advancement counter.
type Field struct {
	ID   string
	Kind advancement.Kind
	// Steps is the parsed value of RawText.
	Steps   int
	RawText string
	// AuxID names the externally owned auxiliary value: the base of a
	// characteristic or the current rating of a skill.
	AuxID string
	Aux   int
	// DisplayID names the derived final value, empty when nothing displays it.
	DisplayID string
}

// Final returns the derived displayed value for the committed steps.
func (f Field) Final() int {
	return advancement.ProjectedValue(f.Kind, f.Aux, f.Steps, f.Steps)
}

// Advancement returns the calculator view of the field.
func (f Field) Advancement() advancement.Field {
	return advancement.Field{ID: f.ID, Kind: f.Kind, Steps: f.Steps}
}

// ParseSteps reads stored field text as a step count. Text is parsed against a
// zero baseline; anything unparsable reads as 0.
func ParseSteps(raw string) int {
	expr, ok := advancement.ParseExpression(raw, "0")
	if !ok {
		return 0
	}
	return expr.Value
}

// Sheet is a set of registered fields plus an optional ledger.
type Sheet struct {
	id     string
	fields map[string]*Field
	order  []string
	ledger *advancement.Ledger
}

// New creates an empty sheet.
func New(id string) *Sheet {
	return &Sheet{id: id, fields: make(map[string]*Field)}
}

// ID returns the sheet identifier.
func (s *Sheet) ID() string {
	return s.id
}

// Register adds a field. Steps are derived from RawText.
func (s *Sheet) Register(field Field) error {
	if field.ID == "" {
		return fmt.Errorf("field id is required")
	}
	if field.Kind == advancement.KindUnspecified {
		return fmt.Errorf("field %s: kind is required", field.ID)
	}
	if _, exists := s.fields[field.ID]; exists {
		return fmt.Errorf("field %s already registered", field.ID)
	}
	if field.ID == advancement.FieldCurrentXP || field.ID == advancement.FieldSpentXP || field.ID == advancement.FieldTotalXP {
		return fmt.Errorf("field %s collides with a ledger field", field.ID)
	}
	field.Steps = ParseSteps(field.RawText)
	s.fields[field.ID] = &field
	s.order = append(s.order, field.ID)
	return nil
}

// Field returns a copy of a registered field.
func (s *Sheet) Field(id string) (Field, bool) {
	field, ok := s.fields[id]
	if !ok {
		return Field{}, false
	}
	return *field, true
}

// Fields returns copies of all fields in registration order.
func (s *Sheet) Fields() []Field {
	fields := make([]Field, 0, len(s.order))
	for _, id := range s.order {
		fields = append(fields, *s.fields[id])
	}
	return fields
}

// BindLedger attaches the XP ledger. Negative values clamp to 0.
func (s *Sheet) BindLedger(ledger advancement.Ledger) {
	ledger.CurrentXP = advancement.ClampSteps(ledger.CurrentXP)
	ledger.SpentXP = advancement.ClampSteps(ledger.SpentXP)
	s.ledger = &ledger
}

// Ledger returns a copy of the ledger, if one is bound.
func (s *Sheet) Ledger() (advancement.Ledger, bool) {
	if s.ledger == nil {
		return advancement.Ledger{}, false
	}
	return *s.ledger, true
}

// LiveLedger returns a copy of the ledger for pricing, nil when none is bound.
func (s *Sheet) LiveLedger() *advancement.Ledger {
	if s.ledger == nil {
		return nil
	}
	ledger := *s.ledger
	return &ledger
}

// Apply commits an accepted transaction to its field and the ledger.
//
// The field text is rewritten to the new step count. A skill's current rating
// already includes its committed steps, so it moves with them.
func (s *Sheet) Apply(tx advancement.Transaction) (Field, error) {
	field, ok := s.fields[tx.FieldID]
	if !ok {
		return Field{}, fmt.Errorf("field %s is not registered", tx.FieldID)
	}
	if s.ledger == nil {
		return Field{}, advancement.ErrLedgerUnavailable
	}
	if field.Kind == advancement.KindSkill {
		field.Aux = advancement.ProjectedValue(field.Kind, field.Aux, field.Steps, tx.NewSteps)
	}
	field.Steps = tx.NewSteps
	field.RawText = strconv.Itoa(tx.NewSteps)
	ledger := tx.After
	s.ledger = &ledger
	return *field, nil
}

// ApplyLedger replaces the ledger after a direct ledger edit.
func (s *Sheet) ApplyLedger(ledger advancement.Ledger) error {
	if s.ledger == nil {
		return advancement.ErrLedgerUnavailable
	}
	s.ledger = &ledger
	return nil
}
