package sqlcoll

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"testing"

	"github.com/kailas-cloud/selectd/internal/collection"
	"github.com/kailas-cloud/selectd/internal/domain"
	"github.com/kailas-cloud/selectd/internal/domain/view"
)

func newTestStore(t *testing.T, n int) *Store {
	t.Helper()
	db, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = db.Close() })

	ctx := context.Background()
	if _, err := db.ExecContext(ctx, `CREATE TABLE products (
		id INTEGER PRIMARY KEY,
		name TEXT NOT NULL,
		category_id INTEGER,
		status TEXT NOT NULL,
		price REAL
	)`); err != nil {
		t.Fatalf("create: %v", err)
	}
	for i := 1; i <= n; i++ {
		status := "published"
		if i%4 == 0 {
			status = "draft"
		}
		var category any = i%3 + 1
		if i%5 == 0 {
			category = nil
		}
		if _, err := db.ExecContext(ctx,
			`INSERT INTO products (id, name, category_id, status, price) VALUES (?, ?, ?, ?, ?)`,
			i, fmt.Sprintf("Item %02d", i), category, status, float64(i)*1.5,
		); err != nil {
			t.Fatalf("insert: %v", err)
		}
	}

	s, err := New(db, SQLite, "products", []string{"id", "name", "category_id", "status", "price"})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return s
}

func idList(records []collection.Record) string {
	out := ""
	for i, r := range records {
		if i > 0 {
			out += ","
		}
		out += fmt.Sprint(r["id"])
	}
	return out
}

func TestStore_Count(t *testing.T) {
	s := newTestStore(t, 12)
	c, _ := collection.New(s).Filter("status", "published")
	n, err := c.Count(context.Background())
	if err != nil {
		t.Fatalf("Count: %v", err)
	}
	if n != 9 {
		t.Errorf("Count() = %d, want 9", n)
	}
}

func TestStore_FetchOrderedWindow(t *testing.T) {
	s := newTestStore(t, 12)
	c := collection.New(s).OrderBy(view.OrderKey{Field: "id", Desc: true})
	got, err := c.Fetch(context.Background(), 2, 3)
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if idList(got) != "10,9,8" {
		t.Errorf("ids = %s", idList(got))
	}
	if _, ok := got[0]["name"].(string); !ok {
		t.Errorf("name scanned as %T", got[0]["name"])
	}
}

func TestStore_Lookups(t *testing.T) {
	s := newTestStore(t, 12)
	tests := []struct {
		name   string
		refine func(collection.Collection) (collection.Collection, error)
		want   string
	}{
		{"exact int", func(c collection.Collection) (collection.Collection, error) { return c.Filter("category_id", "2") }, "1,4,7"},
		{"in", func(c collection.Collection) (collection.Collection, error) { return c.Filter("id__in", "2,3,99") }, "2,3"},
		{"gte", func(c collection.Collection) (collection.Collection, error) { return c.Filter("price__gte", "15") }, "10,11,12"},
		{"lt", func(c collection.Collection) (collection.Collection, error) { return c.Filter("id__lt", "3") }, "1,2"},
		{"isnull", func(c collection.Collection) (collection.Collection, error) {
			return c.Filter("category_id__isnull", "true")
		}, "5,10"},
		{"icontains", func(c collection.Collection) (collection.Collection, error) {
			return c.Filter("name__icontains", "item 1")
		}, "10,11,12"},
		{"startswith", func(c collection.Collection) (collection.Collection, error) {
			return c.Filter("name__startswith", "Item 0")
		}, "1,2,3,4,5,6,7,8,9"},
		{"like wildcard escaped", func(c collection.Collection) (collection.Collection, error) { return c.Filter("name__contains", "%") }, ""},
		{"exclude skips null", func(c collection.Collection) (collection.Collection, error) {
			return c.Exclude("category_id", "2")
		}, "2,3,5,6,8,9,10,11,12"},
		{"exclude isnull", func(c collection.Collection) (collection.Collection, error) {
			return c.Exclude("category_id__isnull", "true")
		}, "1,2,3,4,6,7,8,9,11,12"},
		{"search or", func(c collection.Collection) (collection.Collection, error) {
			return c.Search([]string{"name__iendswith", "status__iexact"}, "draft")
		}, "4,8,12"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, err := tt.refine(collection.New(s))
			if err != nil {
				t.Fatalf("refine: %v", err)
			}
			got, err := c.OrderBy(view.OrderKey{Field: "id"}).Fetch(context.Background(), 0, 50)
			if err != nil {
				t.Fatalf("Fetch: %v", err)
			}
			if idList(got) != tt.want {
				t.Errorf("ids = %s, want %s", idList(got), tt.want)
			}
		})
	}
}

func TestStore_UnknownColumn(t *testing.T) {
	s := newTestStore(t, 1)
	c, _ := collection.New(s).Filter("secret", "x")
	_, err := c.Count(context.Background())
	if !errors.Is(err, domain.ErrInvalidFilter) {
		t.Fatalf("expected ErrInvalidFilter, got %v", err)
	}
	_, err = collection.New(s).OrderBy(view.OrderKey{Field: "secret"}).Fetch(context.Background(), 0, 1)
	if !errors.Is(err, domain.ErrInvalidFilter) {
		t.Fatalf("expected ErrInvalidFilter for ordering, got %v", err)
	}
}

func TestNew_Invalid(t *testing.T) {
	db, _ := sql.Open("sqlite", ":memory:")
	defer func() { _ = db.Close() }()

	tests := []struct {
		name    string
		dialect string
		table   string
		columns []string
	}{
		{"driver", "oracle", "t", []string{"id"}},
		{"table", SQLite, "t; drop", []string{"id"}},
		{"no columns", SQLite, "t", nil},
		{"bad column", SQLite, "t", []string{"id", "a b"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(db, tt.dialect, tt.table, tt.columns)
			if !errors.Is(err, domain.ErrConfiguration) {
				t.Fatalf("expected ErrConfiguration, got %v", err)
			}
		})
	}
}

func TestStore_PingAndClose(t *testing.T) {
	s := newTestStore(t, 0)
	if err := s.Ping(context.Background()); err != nil {
		t.Fatalf("Ping: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("Close on borrowed handle: %v", err)
	}
	if err := s.Ping(context.Background()); err != nil {
		t.Error("Close must not close a borrowed handle")
	}
}

func TestOpen_SQLite(t *testing.T) {
	s, err := Open(context.Background(), Config{
		Driver:       SQLite,
		DSN:          ":memory:",
		Table:        "products",
		Columns:      []string{"id"},
		MaxOpenConns: 1,
	})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
}
