// Package layout describes which advancement fields a sheet has and where
// their auxiliary and derived values live.
package layout

import (
	_ "embed"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/louisbranch/charsheet/internal/services/sheet/domain/advancement"
	"github.com/louisbranch/charsheet/internal/services/sheet/domain/sheet"
)

//go:embed default.yaml
var defaultLayout []byte

const customSkillPrefix = "custom-skill-aug-"

// Layout is the field set of a sheet.
type Layout struct {
	// Ledger reports whether the sheet has current and spent XP fields.
	Ledger bool        `yaml:"ledger"`
	Fields []FieldSpec `yaml:"fields"`
}

// FieldSpec is one advancement field. Kind, Aux and Display are derived from
// the id when omitted.
type FieldSpec struct {
	ID      string `yaml:"id"`
	Kind    string `yaml:"kind,omitempty"`
	Aux     string `yaml:"aux,omitempty"`
	Display string `yaml:"display,omitempty"`
}

// Default returns the built-in layout.
func Default() (Layout, error) {
	return Parse(defaultLayout)
}

// Load reads a layout file; an empty path selects the built-in layout.
func Load(path string) (Layout, error) {
	if strings.TrimSpace(path) == "" {
		return Default()
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return Layout{}, err
	}
	l, err := Parse(b)
	if err != nil {
		return Layout{}, fmt.Errorf("%s: %w", path, err)
	}
	return l, nil
}

// Parse decodes, normalizes and validates a layout document.
func Parse(b []byte) (Layout, error) {
	var l Layout
	if err := yaml.Unmarshal(b, &l); err != nil {
		return Layout{}, fmt.Errorf("decode layout: %w", err)
	}
	if err := l.Normalize(); err != nil {
		return Layout{}, err
	}
	if err := l.Validate(); err != nil {
		return Layout{}, err
	}
	return l, nil
}

// Normalize trims ids and fills derived kinds and ids.
func (l *Layout) Normalize() error {
	for i := range l.Fields {
		f := &l.Fields[i]
		f.ID = strings.TrimSpace(f.ID)
		f.Kind = strings.TrimSpace(f.Kind)
		f.Aux = strings.TrimSpace(f.Aux)
		f.Display = strings.TrimSpace(f.Display)

		derived, ok := KindFromFieldID(f.ID)
		switch {
		case f.Kind != "":
			kind, err := advancement.KindFromLabel(f.Kind)
			if err != nil {
				return fmt.Errorf("field %q: %w", f.ID, err)
			}
			f.Kind = kind.String()
		case ok:
			f.Kind = derived.Kind.String()
		default:
			return fmt.Errorf("field %q: kind is required", f.ID)
		}
		if ok && derived.Kind.String() == f.Kind {
			if f.Aux == "" {
				f.Aux = derived.AuxID
			}
			if f.Display == "" {
				f.Display = derived.DisplayID
			}
		}
	}
	return nil
}

// Validate checks ids are present and unique.
func (l Layout) Validate() error {
	seen := make(map[string]bool, len(l.Fields))
	for _, f := range l.Fields {
		if f.ID == "" {
			return fmt.Errorf("field id is required")
		}
		switch f.ID {
		case advancement.FieldCurrentXP, advancement.FieldSpentXP, advancement.FieldTotalXP:
			return fmt.Errorf("field %q is reserved for the ledger", f.ID)
		}
		if seen[f.ID] {
			return fmt.Errorf("duplicate field %q", f.ID)
		}
		seen[f.ID] = true
		if _, err := advancement.KindFromLabel(f.Kind); err != nil {
			return fmt.Errorf("field %q: %w", f.ID, err)
		}
	}
	return nil
}

// Derived is what a field id implies under the sheet naming convention.
type Derived struct {
	Kind      advancement.Kind
	AuxID     string
	DisplayID string
}

// KindFromFieldID applies the sheet naming convention:
//
//	<base>-a              characteristic, base in <base>-i, shown in current-<base>
//	<base>-aug            skill, rating in <base>-current, shown in <base>-final
//	custom-skill-aug-<n>  skill, rating in custom-skill-current-<n>, shown in custom-skill-final-<n>
func KindFromFieldID(id string) (Derived, bool) {
	switch {
	case strings.HasPrefix(id, customSkillPrefix) && len(id) > len(customSkillPrefix):
		n := strings.TrimPrefix(id, customSkillPrefix)
		return Derived{
			Kind:      advancement.KindSkill,
			AuxID:     "custom-skill-current-" + n,
			DisplayID: "custom-skill-final-" + n,
		}, true
	case strings.HasSuffix(id, "-aug") && len(id) > len("-aug"):
		base := strings.TrimSuffix(id, "-aug")
		return Derived{Kind: advancement.KindSkill, AuxID: base + "-current", DisplayID: base + "-final"}, true
	case strings.HasSuffix(id, "-a") && len(id) > len("-a"):
		base := strings.TrimSuffix(id, "-a")
		return Derived{Kind: advancement.KindCharacteristic, AuxID: base + "-i", DisplayID: "current-" + base}, true
	default:
		return Derived{}, false
	}
}

// Build creates a sheet from stored values. Missing values read as 0.
func (l Layout) Build(sheetID string, values map[string]string) (*sheet.Sheet, error) {
	sh := sheet.New(sheetID)
	for _, f := range l.Fields {
		kind, err := advancement.KindFromLabel(f.Kind)
		if err != nil {
			return nil, fmt.Errorf("field %q: %w", f.ID, err)
		}
		field := sheet.Field{
			ID:        f.ID,
			Kind:      kind,
			RawText:   values[f.ID],
			AuxID:     f.Aux,
			DisplayID: f.Display,
		}
		if f.Aux != "" {
			field.Aux = sheet.ParseSteps(values[f.Aux])
		}
		if err := sh.Register(field); err != nil {
			return nil, err
		}
	}
	if l.Ledger {
		sh.BindLedger(advancement.Ledger{
			CurrentXP: sheet.ParseSteps(values[advancement.FieldCurrentXP]),
			SpentXP:   sheet.ParseSteps(values[advancement.FieldSpentXP]),
		})
	}
	return sh, nil
}
