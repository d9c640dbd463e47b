package domain

import "context"

// Action names checked by the authorization gate.
const (
	ActionView = "view"
)

// Decider answers whether a principal may perform action on a view.
type Decider interface {
	Decide(ctx context.Context, p Principal, view, action string) (bool, error)
}
