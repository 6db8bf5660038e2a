package advancement

import (
	"math"
	"regexp"
	"strconv"
	"strings"
)

// Form identifies which grammar matched an expression.
type Form int

const (
	FormAbsolute Form = iota + 1
	FormShortform
	FormFullform
)

// String returns the grammar name.
func (f Form) String() string {
	switch f {
	case FormAbsolute:
		return "absolute"
	case FormShortform:
		return "shortform"
	case FormFullform:
		return "fullform"
	default:
		return "invalid"
	}
}

// Expression is a successfully parsed field input.
type Expression struct {
	Form  Form
	Value int
}

var (
	absolutePattern  = regexp.MustCompile(`^\d+$`)
	shortformPattern = regexp.MustCompile(`^([+-])(\d+)$`)
	fullformPattern  = regexp.MustCompile(`^(\d+)\s*([+-])\s*(\d+)$`)
)

// ParseExpression parses text typed into a numeric field.
//
// Grammars are tried in order: absolute ("42"), shortform ("+5", "-3",
// relative to baseline) and fullform ("10 - 4"). Shortform and fullform
// results are clamped to zero. A baseline that is not an integer reads as 0.
// Any other input, including empty text and numbers too large for int,
// reports false.
func ParseExpression(text, baseline string) (Expression, bool) {
	cleaned := strings.TrimSpace(text)
	if cleaned == "" {
		return Expression{}, false
	}

	if absolutePattern.MatchString(cleaned) {
		value, ok := atoi(cleaned)
		if !ok {
			return Expression{}, false
		}
		return Expression{Form: FormAbsolute, Value: value}, true
	}

	if m := shortformPattern.FindStringSubmatch(cleaned); m != nil {
		operand, ok := atoi(m[2])
		if !ok {
			return Expression{}, false
		}
		current, ok := atoi(strings.TrimSpace(baseline))
		if !ok {
			current = 0
		}
		return Expression{Form: FormShortform, Value: apply(current, m[1], operand)}, true
	}

	if m := fullformPattern.FindStringSubmatch(cleaned); m != nil {
		left, ok := atoi(m[1])
		if !ok {
			return Expression{}, false
		}
		right, ok := atoi(m[3])
		if !ok {
			return Expression{}, false
		}
		return Expression{Form: FormFullform, Value: apply(left, m[2], right)}, true
	}

	return Expression{}, false
}

func atoi(s string) (int, bool) {
	v, err := strconv.Atoi(s)
	if err != nil {
		return 0, false
	}
	return v, true
}

// apply evaluates left op right, saturating at math.MaxInt and clamping at 0.
func apply(left int, op string, right int) int {
	if op == "-" {
		return ClampSteps(saturatingAdd(left, -right))
	}
	return ClampSteps(saturatingAdd(left, right))
}

// ClampSteps clamps a step count to be non-negative.
func ClampSteps(steps int) int {
	if steps < 0 {
		return 0
	}
	return steps
}

func saturatingAdd(a, b int) int {
	if b > 0 && a > math.MaxInt-b {
		return math.MaxInt
	}
	if b < 0 && a < math.MinInt-b {
		return math.MinInt
	}
	return a + b
}

func saturatingMul(a, b int) int {
	if a == 0 || b == 0 {
		return 0
	}
	if a > math.MaxInt/b {
		return math.MaxInt
	}
	return a * b
}
