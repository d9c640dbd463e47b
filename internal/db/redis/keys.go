package redis

import (
	"context"
	"fmt"

	"github.com/kailas-cloud/selectd/internal/db"
)

const scanBatch = 100

// Incr atomically increments a counter.
func (s *Store) Incr(ctx context.Context, key string) (int64, error) {
	cmd := s.b().Incr().Key(key).Build()
	n, err := s.do(ctx, cmd).AsInt64()
	if err != nil {
		return 0, &db.Error{Op: db.OpIncr, Err: err}
	}
	return n, nil
}

// Scan iterates keys matching a pattern on every node of the deployment.
// Keys reported by more than one node (replicas) are returned once.
func (s *Store) Scan(ctx context.Context, pattern string) ([]string, error) {
	var keys []string
	seen := make(map[string]struct{})
	for addr, node := range s.client.Nodes() {
		var cursor uint64
		for {
			cmd := node.B().Scan().Cursor(cursor).Match(pattern).Count(scanBatch).Build()
			res, err := node.Do(ctx, cmd).AsScanEntry()
			if err != nil {
				return nil, &db.Error{Op: db.OpScan, Err: fmt.Errorf("node %s: %w", addr, err)}
			}
			for _, k := range res.Elements {
				if _, ok := seen[k]; !ok {
					seen[k] = struct{}{}
					keys = append(keys, k)
				}
			}
			cursor = res.Cursor
			if cursor == 0 {
				break
			}
		}
	}
	return keys, nil
}
