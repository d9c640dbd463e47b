package health

import "context"

// Pinger checks availability of a cache store or collection source.
type Pinger interface {
	Ping(ctx context.Context) error
}
