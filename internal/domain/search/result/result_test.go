package result

import "testing"

func TestTotalPages(t *testing.T) {
	tests := []struct {
		count, size, want int
	}{
		{0, 20, 0},
		{1, 20, 1},
		{20, 20, 1},
		{21, 20, 2},
		{45, 20, 3},
		{10, 0, 0},
	}
	for _, tt := range tests {
		if got := TotalPages(tt.count, tt.size); got != tt.want {
			t.Errorf("TotalPages(%d, %d) = %d, want %d", tt.count, tt.size, got, tt.want)
		}
	}
}

func TestPage_Metadata(t *testing.T) {
	first := New(make([]Record, 20), 1, 3)
	if !first.HasMore() {
		t.Error("HasMore() = false on page 1 of 3")
	}
	if n := first.NextPage(); n == nil || *n != 2 {
		t.Errorf("NextPage() = %v", n)
	}

	last := New(make([]Record, 5), 3, 3)
	if last.HasMore() {
		t.Error("HasMore() = true on last page")
	}
	if last.NextPage() != nil {
		t.Error("NextPage() should be nil on last page")
	}
	if len(last.Items()) != 5 {
		t.Errorf("Items() len = %d", len(last.Items()))
	}
}

func TestPage_Empty(t *testing.T) {
	p := New(nil, 0, 0)
	if p.Page() != 1 {
		t.Errorf("Page() = %d, want 1", p.Page())
	}
	if p.HasMore() || p.NextPage() != nil {
		t.Error("empty collection has no further pages")
	}
}

func TestFailed(t *testing.T) {
	p := Failed(2, "query execution failed")
	if !p.Failed() || p.Err() != "query execution failed" {
		t.Errorf("Err() = %q", p.Err())
	}
	if p.Items() != nil || p.HasMore() || p.TotalPages() != 0 {
		t.Error("failed page must be empty")
	}
	if p.Page() != 2 {
		t.Errorf("Page() = %d", p.Page())
	}
}
