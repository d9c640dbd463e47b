package filter

import (
	"fmt"
	"strings"
)

// MaxConditionsPerGroup is the maximum number of conditions per filter group.
const MaxConditionsPerGroup = 32

// Expression is a structured filter with must/should/must_not boolean semantics.
// Must conditions are ANDed, should conditions are ORed (an empty group matches),
// and a record matching any must_not condition is excluded.
type Expression struct {
	must    []Condition
	should  []Condition
	mustNot []Condition
}

// NewExpression validates and creates a filter Expression.
func NewExpression(must, should, mustNot []Condition) (Expression, error) {
	if len(must) > MaxConditionsPerGroup {
		return Expression{}, fmt.Errorf("too many must conditions (max %d)", MaxConditionsPerGroup)
	}
	if len(should) > MaxConditionsPerGroup {
		return Expression{}, fmt.Errorf("too many should conditions (max %d)", MaxConditionsPerGroup)
	}
	if len(mustNot) > MaxConditionsPerGroup {
		return Expression{}, fmt.Errorf("too many must_not conditions (max %d)", MaxConditionsPerGroup)
	}
	return Expression{must: must, should: should, mustNot: mustNot}, nil
}

// Must returns the must conditions.
func (e Expression) Must() []Condition { return e.must }

// Should returns the should conditions.
func (e Expression) Should() []Condition { return e.should }

// MustNot returns the must-not conditions.
func (e Expression) MustNot() []Condition { return e.mustNot }

// IsEmpty reports whether the expression has no conditions.
func (e Expression) IsEmpty() bool {
	return len(e.must) == 0 && len(e.should) == 0 && len(e.mustNot) == 0
}

// WithMust returns a copy of e with c appended to the must group.
func (e Expression) WithMust(c ...Condition) (Expression, error) {
	return NewExpression(appendCopy(e.must, c), e.should, e.mustNot)
}

// WithShould returns a copy of e with c appended to the should group.
func (e Expression) WithShould(c ...Condition) (Expression, error) {
	return NewExpression(e.must, appendCopy(e.should, c), e.mustNot)
}

// WithMustNot returns a copy of e with c appended to the must_not group.
func (e Expression) WithMustNot(c ...Condition) (Expression, error) {
	return NewExpression(e.must, e.should, appendCopy(e.mustNot, c))
}

// Fields returns every field the expression references.
func (e Expression) Fields() []string {
	seen := make(map[string]struct{})
	var out []string
	for _, group := range [][]Condition{e.must, e.should, e.mustNot} {
		for _, c := range group {
			if _, ok := seen[c.field]; ok {
				continue
			}
			seen[c.field] = struct{}{}
			out = append(out, c.field)
		}
	}
	return out
}

// Evaluate reports whether record satisfies the expression.
func (e Expression) Evaluate(record map[string]any) bool {
	for _, c := range e.must {
		if !c.Evaluate(record) {
			return false
		}
	}
	for _, c := range e.mustNot {
		if c.Evaluate(record) {
			return false
		}
	}
	if len(e.should) == 0 {
		return true
	}
	for _, c := range e.should {
		if c.Evaluate(record) {
			return true
		}
	}
	return false
}

func appendCopy(base, extra []Condition) []Condition {
	out := make([]Condition, 0, len(base)+len(extra))
	out = append(out, base...)
	return append(out, extra...)
}

// Condition is a single lookup clause: field, operator and raw value.
type Condition struct {
	field string
	op    Op
	value string
}

// NewCondition creates a condition from its parts.
func NewCondition(field string, op Op, value string) (Condition, error) {
	if field == "" {
		return Condition{}, fmt.Errorf("filter field is required")
	}
	if strings.Contains(field, lookupSeparator) {
		return Condition{}, fmt.Errorf("field %q: related lookups are not supported", field)
	}
	if !op.IsValid() {
		return Condition{}, fmt.Errorf("unknown lookup operator %q", op)
	}
	if op == IsNull {
		if _, err := parseBool(value); err != nil {
			return Condition{}, fmt.Errorf("isnull on %q: %w", field, err)
		}
	}
	return Condition{field: field, op: op, value: value}, nil
}

// Parse turns a lookup such as "name__icontains" plus a value into a Condition.
// A lookup without a known operator suffix is an exact match on the whole name.
func Parse(lookup, value string) (Condition, error) {
	lookup = strings.TrimSpace(lookup)
	if i := strings.LastIndex(lookup, lookupSeparator); i > 0 {
		if op := Op(lookup[i+len(lookupSeparator):]); op.IsValid() {
			return NewCondition(lookup[:i], op, value)
		}
	}
	return NewCondition(lookup, Exact, value)
}

// Field returns the field name.
func (c Condition) Field() string { return c.field }

// Op returns the lookup operator.
func (c Condition) Op() Op { return c.op }

// Value returns the raw comparison value.
func (c Condition) Value() string { return c.value }

// Values splits the value of an "in" condition.
func (c Condition) Values() []string {
	if c.value == "" {
		return nil
	}
	parts := strings.Split(c.value, ",")
	for i := range parts {
		parts[i] = strings.TrimSpace(parts[i])
	}
	return parts
}

// Null returns the boolean operand of an isnull condition.
func (c Condition) Null() bool {
	b, _ := parseBool(c.value)
	return b
}

// String renders the condition in lookup form.
func (c Condition) String() string {
	return c.field + lookupSeparator + string(c.op) + "=" + c.value
}
