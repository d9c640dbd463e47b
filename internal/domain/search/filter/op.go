package filter

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

const lookupSeparator = "__"

// Op is a lookup operator.
type Op string

// Supported lookup operators.
const (
	Exact       Op = "exact"
	IExact      Op = "iexact"
	Contains    Op = "contains"
	IContains   Op = "icontains"
	StartsWith  Op = "startswith"
	IStartsWith Op = "istartswith"
	EndsWith    Op = "endswith"
	IEndsWith   Op = "iendswith"
	In          Op = "in"
	GT          Op = "gt"
	GTE         Op = "gte"
	LT          Op = "lt"
	LTE         Op = "lte"
	IsNull      Op = "isnull"
)

// IsValid reports whether op is a known operator.
func (op Op) IsValid() bool {
	switch op {
	case Exact, IExact, Contains, IContains, StartsWith, IStartsWith,
		EndsWith, IEndsWith, In, GT, GTE, LT, LTE, IsNull:
		return true
	}
	return false
}

// CaseInsensitive reports whether the operator folds case.
func (op Op) CaseInsensitive() bool {
	switch op {
	case IExact, IContains, IStartsWith, IEndsWith:
		return true
	}
	return false
}

// Evaluate applies the condition to one record.
func (c Condition) Evaluate(record map[string]any) bool {
	raw, present := record[c.field]
	if c.op == IsNull {
		return (!present || raw == nil) == c.Null()
	}
	if !present || raw == nil {
		return false
	}
	got := Stringify(raw)
	switch c.op {
	case Exact:
		return got == c.value
	case IExact:
		return strings.EqualFold(got, c.value)
	case Contains:
		return strings.Contains(got, c.value)
	case IContains:
		return strings.Contains(strings.ToLower(got), strings.ToLower(c.value))
	case StartsWith:
		return strings.HasPrefix(got, c.value)
	case IStartsWith:
		return strings.HasPrefix(strings.ToLower(got), strings.ToLower(c.value))
	case EndsWith:
		return strings.HasSuffix(got, c.value)
	case IEndsWith:
		return strings.HasSuffix(strings.ToLower(got), strings.ToLower(c.value))
	case In:
		for _, v := range c.Values() {
			if got == v {
				return true
			}
		}
		return false
	case GT:
		return Compare(raw, c.value) > 0
	case GTE:
		return Compare(raw, c.value) >= 0
	case LT:
		return Compare(raw, c.value) < 0
	case LTE:
		return Compare(raw, c.value) <= 0
	}
	return false
}

// Compare orders a record value against a raw operand. Numbers compare
// numerically when both sides parse, everything else lexically.
func Compare(raw any, operand string) int {
	if a, ok := toFloat(raw); ok {
		if b, err := strconv.ParseFloat(operand, 64); err == nil {
			switch {
			case a < b:
				return -1
			case a > b:
				return 1
			default:
				return 0
			}
		}
	}
	return strings.Compare(Stringify(raw), operand)
}

// Stringify renders a record value the way it travels on the wire.
func Stringify(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case []byte:
		return string(t)
	case bool:
		return strconv.FormatBool(t)
	case int:
		return strconv.Itoa(t)
	case int64:
		return strconv.FormatInt(t, 10)
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case time.Time:
		return t.UTC().Format(time.RFC3339)
	case fmt.Stringer:
		return t.String()
	default:
		return fmt.Sprint(v)
	}
}

func toFloat(v any) (float64, bool) {
	switch t := v.(type) {
	case int:
		return float64(t), true
	case int32:
		return float64(t), true
	case int64:
		return float64(t), true
	case float32:
		return float64(t), true
	case float64:
		return t, true
	case string:
		f, err := strconv.ParseFloat(t, 64)
		return f, err == nil
	case []byte:
		f, err := strconv.ParseFloat(string(t), 64)
		return f, err == nil
	}
	return 0, false
}

func parseBool(s string) (bool, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "1", "t", "true", "yes":
		return true, nil
	case "0", "f", "false", "no":
		return false, nil
	}
	return false, fmt.Errorf("invalid boolean %q", s)
}
