package result

// Record is one shaped result row.
type Record = map[string]any

// Page is one page of search results with its pagination metadata.
type Page struct {
	items      []Record
	page       int
	totalPages int
	err        string
}

// New creates a result page. page is clamped to 1.
func New(items []Record, page, totalPages int) Page {
	if page < 1 {
		page = 1
	}
	if totalPages < 0 {
		totalPages = 0
	}
	return Page{items: items, page: page, totalPages: totalPages}
}

// Failed creates the well-formed empty page returned when the pipeline fails.
func Failed(page int, message string) Page {
	p := New(nil, page, 0)
	p.err = message
	return p
}

// TotalPages returns ceil(count/size), or 0 for an empty collection.
func TotalPages(count, size int) int {
	if count <= 0 || size <= 0 {
		return 0
	}
	return (count + size - 1) / size
}

// Items returns the shaped records.
func (p *Page) Items() []Record { return p.items }

// Page returns the 1-based page number.
func (p *Page) Page() int { return p.page }

// TotalPages returns the number of pages for the query.
func (p *Page) TotalPages() int { return p.totalPages }

// HasMore reports whether a later page exists.
func (p *Page) HasMore() bool { return p.page < p.totalPages }

// NextPage returns the next page number, or nil on the last page.
func (p *Page) NextPage() *int {
	if !p.HasMore() {
		return nil
	}
	n := p.page + 1
	return &n
}

// Err returns the pipeline error message, empty on success.
func (p *Page) Err() string { return p.err }

// Failed reports whether the pipeline failed for this page.
func (p *Page) Failed() bool { return p.err != "" }
