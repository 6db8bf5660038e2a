package advancement

import (
	"fmt"
	"strings"
)

// Kind selects which cost column of the table prices a field.
type Kind int

const (
	KindUnspecified Kind = iota
	KindCharacteristic
	KindSkill
)

// String returns the canonical lowercase label.
func (k Kind) String() string {
	switch k {
	case KindCharacteristic:
		return "characteristic"
	case KindSkill:
		return "skill"
	default:
		return "unspecified"
	}
}

// KindFromLabel parses a kind label, case-insensitively.
func KindFromLabel(label string) (Kind, error) {
	switch strings.ToLower(strings.TrimSpace(label)) {
	case "characteristic", "char":
		return KindCharacteristic, nil
	case "skill":
		return KindSkill, nil
	default:
		return KindUnspecified, fmt.Errorf("unknown field kind %q", label)
	}
}

// ProjectedValue derives the externally displayed final value of a field.
//
// Characteristics display base + steps. A skill's aux value is its current
// rating, which already includes the committed steps, so the committed steps
// are swapped for the new ones.
func ProjectedValue(kind Kind, aux, committedSteps, newSteps int) int {
	if kind == KindSkill {
		return aux - committedSteps + newSteps
	}
	return aux + newSteps
}
