package advancement

import (
	"fmt"
	"math"

	apperrors "github.com/louisbranch/charsheet/internal/platform/errors"
)

// CostBracket prices every step in StepsFrom..StepsTo inclusive.
type CostBracket struct {
	StepsFrom          int `json:"stepsFrom"`
	StepsTo            int `json:"stepsTo"`
	CharacteristicCost int `json:"characteristicCost"`
	SkillCost          int `json:"skillCost"`
}

// CostFor returns the per-step price for kind.
func (b CostBracket) CostFor(kind Kind) int {
	if kind == KindCharacteristic {
		return b.CharacteristicCost
	}
	return b.SkillCost
}

// CostTable is an immutable, validated sequence of brackets covering [0, ∞).
// The last bracket is unbounded regardless of its StepsTo.
type CostTable struct {
	brackets []CostBracket
}

var defaultBrackets = []CostBracket{
	{StepsFrom: 0, StepsTo: 5, CharacteristicCost: 25, SkillCost: 10},
	{StepsFrom: 6, StepsTo: 10, CharacteristicCost: 30, SkillCost: 15},
	{StepsFrom: 11, StepsTo: 15, CharacteristicCost: 40, SkillCost: 20},
	{StepsFrom: 16, StepsTo: 20, CharacteristicCost: 50, SkillCost: 30},
	{StepsFrom: 21, StepsTo: 25, CharacteristicCost: 70, SkillCost: 40},
	{StepsFrom: 26, StepsTo: 30, CharacteristicCost: 90, SkillCost: 60},
	{StepsFrom: 31, StepsTo: 35, CharacteristicCost: 120, SkillCost: 80},
	{StepsFrom: 36, StepsTo: 40, CharacteristicCost: 150, SkillCost: 110},
	{StepsFrom: 41, StepsTo: 45, CharacteristicCost: 190, SkillCost: 140},
	{StepsFrom: 46, StepsTo: 50, CharacteristicCost: 230, SkillCost: 180},
	{StepsFrom: 51, StepsTo: 55, CharacteristicCost: 280, SkillCost: 220},
	{StepsFrom: 56, StepsTo: 60, CharacteristicCost: 330, SkillCost: 270},
	{StepsFrom: 61, StepsTo: 65, CharacteristicCost: 390, SkillCost: 320},
	{StepsFrom: 66, StepsTo: 70, CharacteristicCost: 450, SkillCost: 380},
	{StepsFrom: 71, StepsTo: 999, CharacteristicCost: 520, SkillCost: 440},
}

var defaultTable = mustCostTable(defaultBrackets)

// DefaultCostTable returns the built-in table used when no configured table
// can be loaded.
func DefaultCostTable() *CostTable {
	return defaultTable
}

// DefaultBrackets returns a copy of the built-in brackets.
func DefaultBrackets() []CostBracket {
	return append([]CostBracket(nil), defaultBrackets...)
}

// NewCostTable validates brackets and builds a table.
//
// Brackets must start at step 0, be ordered, contiguous and non-overlapping,
// and carry positive costs.
func NewCostTable(brackets []CostBracket) (*CostTable, error) {
	if len(brackets) == 0 {
		return nil, invalidTable("cost table has no brackets")
	}
	if brackets[0].StepsFrom != 0 {
		return nil, invalidTable(fmt.Sprintf("first bracket starts at %d, want 0", brackets[0].StepsFrom))
	}
	for i, b := range brackets {
		if b.StepsTo < b.StepsFrom {
			return nil, invalidTable(fmt.Sprintf("bracket %d ends at %d before it starts at %d", i, b.StepsTo, b.StepsFrom))
		}
		if b.CharacteristicCost <= 0 || b.SkillCost <= 0 {
			return nil, invalidTable(fmt.Sprintf("bracket %d has a non-positive cost", i))
		}
		if i > 0 && b.StepsFrom != brackets[i-1].StepsTo+1 {
			return nil, invalidTable(fmt.Sprintf("bracket %d starts at %d, want %d", i, b.StepsFrom, brackets[i-1].StepsTo+1))
		}
	}
	return &CostTable{brackets: append([]CostBracket(nil), brackets...)}, nil
}

func mustCostTable(brackets []CostBracket) *CostTable {
	table, err := NewCostTable(brackets)
	if err != nil {
		panic(err)
	}
	return table
}

func invalidTable(message string) error {
	return apperrors.New(apperrors.CodeCostTableInvalid, message)
}

// Brackets returns a copy of the table's brackets.
func (t *CostTable) Brackets() []CostBracket {
	return append([]CostBracket(nil), t.brackets...)
}

// CostForStep returns the price of completing step, i.e. moving from step-1
// to step. Steps outside every bracket use the last bracket's price.
func (t *CostTable) CostForStep(step int, kind Kind) int {
	for _, b := range t.brackets {
		if step >= b.StepsFrom && step <= b.StepsTo {
			return b.CostFor(kind)
		}
	}
	return t.brackets[len(t.brackets)-1].CostFor(kind)
}

// AdvancementCost is the XP needed to go from step from to step to, summing
// the price of every step from+1 through to. It is 0 when to <= from.
func (t *CostTable) AdvancementCost(from, to int, kind Kind) int {
	if to <= from {
		return 0
	}
	return t.sumSteps(ClampSteps(from)+1, to, kind)
}

// AdvancementRefund is the XP returned by going down from step from to step
// to, summing the price of every relinquished step to+1 through from. It is 0
// when to >= from.
func (t *CostTable) AdvancementRefund(from, to int, kind Kind) int {
	if to >= from {
		return 0
	}
	return t.sumSteps(ClampSteps(to)+1, from, kind)
}

// sumSteps prices steps lo..hi inclusive bracket by bracket, saturating at
// math.MaxInt.
func (t *CostTable) sumSteps(lo, hi int, kind Kind) int {
	total := 0
	last := len(t.brackets) - 1
	for i, b := range t.brackets {
		upper := b.StepsTo
		if i == last {
			upper = math.MaxInt
		}
		start := max(lo, b.StepsFrom)
		end := min(hi, upper)
		if start > end {
			continue
		}
		total = saturatingAdd(total, saturatingMul(end-start+1, b.CostFor(kind)))
	}
	return total
}
