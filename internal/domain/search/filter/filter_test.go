package filter

import (
	"strings"
	"testing"
)

func mustParse(t *testing.T, lookup, value string) Condition {
	t.Helper()
	c, err := Parse(lookup, value)
	if err != nil {
		t.Fatalf("Parse(%q, %q): %v", lookup, value, err)
	}
	return c
}

// --- Condition tests ---

func TestParse(t *testing.T) {
	tests := []struct {
		lookup    string
		wantField string
		wantOp    Op
	}{
		{"category_id", "category_id", Exact},
		{"name__icontains", "name", IContains},
		{"price__gte", "price", GTE},
		{"status__in", "status", In},
		{"deleted_at__isnull", "deleted_at", IsNull},
		{"name__exact", "name", Exact},
	}
	for _, tt := range tests {
		t.Run(tt.lookup, func(t *testing.T) {
			value := "x"
			if tt.wantOp == IsNull {
				value = "true"
			}
			c := mustParse(t, tt.lookup, value)
			if c.Field() != tt.wantField {
				t.Errorf("Field() = %q", c.Field())
			}
			if c.Op() != tt.wantOp {
				t.Errorf("Op() = %q", c.Op())
			}
		})
	}
}

func TestParse_Errors(t *testing.T) {
	tests := []struct {
		name, lookup, value, want string
	}{
		{"empty", "", "x", "field is required"},
		{"relation", "category__parent", "x", "related lookups"},
		{"bad isnull", "deleted_at__isnull", "maybe", "invalid boolean"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse(tt.lookup, tt.value)
			if err == nil {
				t.Fatal("expected error")
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("error = %q", err)
			}
		})
	}
}

func TestNewCondition_UnknownOp(t *testing.T) {
	_, err := NewCondition("name", Op("regex"), "x")
	if err == nil || !strings.Contains(err.Error(), "unknown lookup operator") {
		t.Fatalf("error = %v", err)
	}
}

func TestCondition_Evaluate(t *testing.T) {
	record := map[string]any{
		"name":       "Laptop Pro",
		"price":      1299.5,
		"stock":      int64(3),
		"status":     "published",
		"deleted_at": nil,
		"active":     true,
	}
	tests := []struct {
		lookup, value string
		want          bool
	}{
		{"name", "Laptop Pro", true},
		{"name", "laptop pro", false},
		{"name__iexact", "laptop pro", true},
		{"name__contains", "Pro", true},
		{"name__contains", "pro", false},
		{"name__icontains", "pro", true},
		{"name__startswith", "Lap", true},
		{"name__istartswith", "lap", true},
		{"name__endswith", "Pro", true},
		{"name__iendswith", "PRO", true},
		{"status__in", "draft, published", true},
		{"status__in", "draft,archived", false},
		{"price__gt", "1000", true},
		{"price__lt", "1000", false},
		{"stock__gte", "3", true},
		{"stock__lte", "2", false},
		{"stock", "3", true},
		{"active", "true", true},
		{"deleted_at__isnull", "true", true},
		{"missing__isnull", "true", true},
		{"name__isnull", "false", true},
		{"missing", "x", false},
	}
	for _, tt := range tests {
		t.Run(tt.lookup+"="+tt.value, func(t *testing.T) {
			if got := mustParse(t, tt.lookup, tt.value).Evaluate(record); got != tt.want {
				t.Errorf("Evaluate() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestCompare_NumericVersusLexical(t *testing.T) {
	if Compare(10, "9") <= 0 {
		t.Error("numeric compare: 10 should be greater than 9")
	}
	if Compare("10", "9") <= 0 {
		t.Error("numeric strings compare numerically")
	}
	if Compare("apple", "banana") >= 0 {
		t.Error("lexical compare: apple < banana")
	}
}

// --- Expression tests ---

func TestNewExpression_Valid(t *testing.T) {
	m := mustParse(t, "lang", "go")
	expr, err := NewExpression([]Condition{m}, nil, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(expr.Must()) != 1 {
		t.Errorf("Must() len = %d", len(expr.Must()))
	}
	if len(expr.Should()) != 0 {
		t.Errorf("Should() len = %d", len(expr.Should()))
	}
	if len(expr.MustNot()) != 0 {
		t.Errorf("MustNot() len = %d", len(expr.MustNot()))
	}
	if expr.IsEmpty() {
		t.Error("IsEmpty() = true for non-empty expression")
	}
}

func TestNewExpression_Empty(t *testing.T) {
	expr, err := NewExpression(nil, nil, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !expr.IsEmpty() {
		t.Error("IsEmpty() = false for empty expression")
	}
	if !expr.Evaluate(map[string]any{"a": 1}) {
		t.Error("empty expression must match everything")
	}
}

func TestNewExpression_TooMany(t *testing.T) {
	conds := make([]Condition, MaxConditionsPerGroup+1)
	for i := range conds {
		conds[i] = Condition{field: "k", op: Exact, value: "v"}
	}
	for name, build := range map[string]func() error{
		"too many must":     func() error { _, err := NewExpression(conds, nil, nil); return err },
		"too many should":   func() error { _, err := NewExpression(nil, conds, nil); return err },
		"too many must_not": func() error { _, err := NewExpression(nil, nil, conds); return err },
	} {
		err := build()
		if err == nil || !strings.Contains(err.Error(), name) {
			t.Errorf("%s: error = %v", name, err)
		}
	}
}

func TestNewExpression_AtMaxConditions(t *testing.T) {
	conds := make([]Condition, MaxConditionsPerGroup)
	for i := range conds {
		conds[i] = Condition{field: "k", op: Exact, value: "v"}
	}
	if _, err := NewExpression(conds, conds, conds); err != nil {
		t.Fatalf("unexpected error for exactly max conditions: %v", err)
	}
}

func TestExpression_With_DoesNotAlias(t *testing.T) {
	base, _ := NewExpression(make([]Condition, 0, 4), nil, nil)
	a, _ := base.WithMust(mustParse(t, "a", "1"))
	b, _ := base.WithMust(mustParse(t, "b", "2"))
	if a.Must()[0].Field() != "a" || b.Must()[0].Field() != "b" {
		t.Fatalf("derived expressions share storage: %v %v", a.Must(), b.Must())
	}
	if !base.IsEmpty() {
		t.Error("base expression was mutated")
	}
}

func TestExpression_Evaluate(t *testing.T) {
	expr, _ := NewExpression(
		[]Condition{mustParse(t, "status", "published")},
		[]Condition{mustParse(t, "name__icontains", "lap"), mustParse(t, "sku__istartswith", "lap")},
		[]Condition{mustParse(t, "owner", "9"), mustParse(t, "category", "3")},
	)
	tests := []struct {
		name   string
		record map[string]any
		want   bool
	}{
		{"all match", map[string]any{"status": "published", "name": "Laptop", "owner": 1, "category": 1}, true},
		{"should via second", map[string]any{"status": "published", "name": "Desk", "sku": "LAP-1"}, true},
		{"no should", map[string]any{"status": "published", "name": "Desk", "sku": "D-1"}, false},
		{"must fails", map[string]any{"status": "draft", "name": "Laptop"}, false},
		{"first exclude", map[string]any{"status": "published", "name": "Laptop", "owner": 9}, false},
		{"second exclude", map[string]any{"status": "published", "name": "Laptop", "category": "3"}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := expr.Evaluate(tt.record); got != tt.want {
				t.Errorf("Evaluate() = %v, want %v", got, tt.want)
			}
		})
	}
	if got := expr.Fields(); strings.Join(got, ",") != "status,name,sku,owner,category" {
		t.Errorf("Fields() = %v", got)
	}
}
