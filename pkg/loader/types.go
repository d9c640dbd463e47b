package loader

import (
	"encoding/json"
	"fmt"
	"strconv"
)

// Item is one record of a result page.
type Item map[string]any

// Page is the wire format of GET /search/{view}.
type Page struct {
	Results    []Item `json:"results"`
	Page       int    `json:"page"`
	HasMore    bool   `json:"has_more"`
	NextPage   *int   `json:"next_page"`
	TotalPages int    `json:"total_pages"`
	Error      string `json:"error,omitempty"`
}

// Result is one logical page delivered to the caller. It may span several
// fetches when already-selected records were skipped.
type Result struct {
	Items []Item `json:"items"`
	// Page is the last page fetched.
	Page       int  `json:"page"`
	TotalPages int  `json:"total_pages"`
	HasMore    bool `json:"has_more"`
	Fetches    int  `json:"fetches"`
	// Err carries the server-side pipeline error of a soft failure.
	Err string `json:"error,omitempty"`
	// Skipped is set when the query did not qualify for a load.
	Skipped bool `json:"skipped,omitempty"`
}

// State is the loader lifecycle state.
type State int

// Loader states.
const (
	Idle State = iota
	Loading
	Loaded
	Exhausted
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Loading:
		return "loading"
	case Loaded:
		return "loaded"
	case Exhausted:
		return "exhausted"
	default:
		return "unknown"
	}
}

// Snapshot is a point-in-time copy of loader state.
type Snapshot struct {
	State        State
	Query        string
	Cursors      map[string]string
	Options      int
	ResetPending bool
}

func idOf(it Item, field string) (string, bool) {
	v, ok := it[field]
	if !ok || v == nil {
		return "", false
	}
	switch id := v.(type) {
	case string:
		return id, true
	case json.Number:
		return id.String(), true
	case float64:
		return strconv.FormatFloat(id, 'f', -1, 64), true
	default:
		return fmt.Sprint(id), true
	}
}
