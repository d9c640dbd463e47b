// Package permcache memoizes authorization decisions in a shared key-value
// store.
package permcache

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/kailas-cloud/selectd/internal/db"
	"github.com/kailas-cloud/selectd/internal/domain"
)

// Strategy selects how bulk invalidation is carried out.
type Strategy string

// Invalidation strategies. Auto picks the strongest one the store supports.
const (
	StrategyAuto       Strategy = "auto"
	StrategyGeneration Strategy = "generation"
	StrategyPattern    Strategy = "pattern"
	StrategyTTL        Strategy = "ttl"
)

// ParseStrategy validates a configured strategy name. Empty means auto.
func ParseStrategy(s string) (Strategy, error) {
	switch st := Strategy(s); st {
	case "":
		return StrategyAuto, nil
	case StrategyAuto, StrategyGeneration, StrategyPattern, StrategyTTL:
		return st, nil
	default:
		return "", fmt.Errorf("unknown invalidation strategy %q", s)
	}
}

// store is the consumer interface for the permission cache (ISP).
type store interface {
	Get(ctx context.Context, key string) ([]byte, error)
	SetWithTTL(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Del(ctx context.Context, keys ...string) error
}

type counter interface {
	Incr(ctx context.Context, key string) (int64, error)
}

type scanner interface {
	Scan(ctx context.Context, pattern string) ([]string, error)
}

// Config controls caching. A zero TTL disables the cache.
type Config struct {
	TTL       time.Duration
	Namespace string
	KeyPrefix string
	Strategy  Strategy
}

// Metrics are the counters the cache reports to; nil vectors are skipped.
type Metrics struct {
	// Lookups has label "result": hit / miss / bypass / error.
	Lookups *prometheus.CounterVec
	// Invalidations has labels "scope" (user / all) and "mode".
	Invalidations *prometheus.CounterVec
}

// Query is one authorization question.
type Query struct {
	Principal domain.Principal
	View      string
	Action    string
	// Bypass skips the cache for views that skip authorization or allow
	// anonymous access.
	Bypass bool
}

// CachedDecider caches decisions of an inner domain.Decider.
type CachedDecider struct {
	inner   domain.Decider
	store   store
	keys    keyspace
	ttl     time.Duration
	mode    Strategy
	group   singleflight.Group
	metrics Metrics
	logger  *zap.Logger
}

// New creates a caching decorator. s may be nil when cfg.TTL is zero.
func New(inner domain.Decider, s store, cfg Config, m Metrics, logger *zap.Logger) (*CachedDecider, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	c := &CachedDecider{
		inner:   inner,
		store:   s,
		keys:    newKeyspace(cfg.Namespace, cfg.KeyPrefix),
		ttl:     cfg.TTL,
		metrics: m,
		logger:  logger,
	}
	if cfg.TTL <= 0 {
		return c, nil
	}
	if s == nil {
		return nil, domain.NewConfigurationError("permission cache", errors.New("store is required when ttl is set"))
	}

	mode, err := resolveMode(s, cfg.Strategy)
	if err != nil {
		return nil, domain.NewConfigurationError("permission cache", err)
	}
	c.mode = mode
	return c, nil
}

func resolveMode(s store, want Strategy) (Strategy, error) {
	_, canCount := s.(counter)
	_, canScan := s.(scanner)

	switch want {
	case StrategyAuto, "":
		switch {
		case canCount:
			return StrategyGeneration, nil
		case canScan:
			return StrategyPattern, nil
		default:
			return StrategyTTL, nil
		}
	case StrategyGeneration:
		if !canCount {
			return "", errors.New("store does not support atomic increment")
		}
	case StrategyPattern:
		if !canScan {
			return "", errors.New("store does not support key scans")
		}
	case StrategyTTL:
	default:
		return "", fmt.Errorf("unknown invalidation strategy %q", want)
	}
	return want, nil
}

// Enabled reports whether decisions are cached at all.
func (c *CachedDecider) Enabled() bool { return c.ttl > 0 }

// Mode returns the resolved invalidation strategy, empty when disabled.
func (c *CachedDecider) Mode() Strategy { return c.mode }

// Decide implements domain.Decider with caching.
func (c *CachedDecider) Decide(ctx context.Context, p domain.Principal, view, action string) (bool, error) {
	return c.Check(ctx, Query{Principal: p, View: view, Action: action})
}

// Check returns the cached decision for q or computes and stores it.
// Store failures degrade to an uncached decision.
func (c *CachedDecider) Check(ctx context.Context, q Query) (bool, error) {
	if !c.Enabled() || q.Bypass || q.Principal.Anonymous {
		c.inc("bypass")
		return c.decide(ctx, q)
	}

	key, err := c.entryKey(ctx, q)
	if err != nil {
		c.inc("error")
		c.logger.Warn("Failed to read permission cache generation", zap.String("view", q.View), zap.Error(err))
		return c.decide(ctx, q)
	}

	if allowed, ok := c.getFromCache(ctx, key); ok {
		c.inc("hit")
		return allowed, nil
	}
	c.inc("miss")

	v, err, _ := c.group.Do(key, func() (any, error) {
		allowed, err := c.decide(ctx, q)
		if err != nil {
			return false, err
		}
		c.putToCache(ctx, key, allowed)
		return allowed, nil
	})
	if err != nil {
		return false, err
	}
	return v.(bool), nil
}

func (c *CachedDecider) decide(ctx context.Context, q Query) (bool, error) {
	allowed, err := c.inner.Decide(ctx, q.Principal, q.View, q.Action)
	if err != nil {
		return false, fmt.Errorf("decide %s on %s: %w", q.Action, q.View, err)
	}
	return allowed, nil
}

func (c *CachedDecider) entryKey(ctx context.Context, q Query) (string, error) {
	if c.mode != StrategyGeneration {
		return c.keys.entry(q.Principal.ID, q.View, q.Action), nil
	}
	global, err := c.generation(ctx, c.keys.globalGeneration())
	if err != nil {
		return "", err
	}
	user, err := c.generation(ctx, c.keys.userGeneration(q.Principal.ID))
	if err != nil {
		return "", err
	}
	return c.keys.versionedEntry(global, user, q.Principal.ID, q.View, q.Action), nil
}

func (c *CachedDecider) generation(ctx context.Context, key string) (int64, error) {
	data, err := c.store.Get(ctx, key)
	if errors.Is(err, db.ErrKeyNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	n, err := strconv.ParseInt(string(data), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("generation %s: %w", key, err)
	}
	return n, nil
}

func (c *CachedDecider) getFromCache(ctx context.Context, key string) (allowed, ok bool) {
	data, err := c.store.Get(ctx, key)
	if err != nil {
		if !errors.Is(err, db.ErrKeyNotFound) {
			c.logger.Warn("Failed to get cached permission", zap.String("key", key), zap.Error(err))
		}
		return false, false
	}
	switch string(data) {
	case "1":
		return true, true
	case "0":
		return false, true
	default:
		c.logger.Warn("Unexpected cached permission value", zap.String("key", key), zap.ByteString("value", data))
		return false, false
	}
}

func (c *CachedDecider) putToCache(ctx context.Context, key string, allowed bool) {
	value := []byte("0")
	if allowed {
		value = []byte("1")
	}
	if err := c.store.SetWithTTL(ctx, key, value, c.ttl); err != nil {
		c.logger.Warn("Failed to cache permission", zap.String("key", key), zap.Error(err))
	}
}

// InvalidateUser drops every cached decision of user and returns the
// strategy used. With StrategyTTL nothing is removed and entries live out
// their TTL.
func (c *CachedDecider) InvalidateUser(ctx context.Context, user string) (Strategy, error) {
	if !c.Enabled() {
		return "", nil
	}
	var err error
	switch c.mode {
	case StrategyGeneration:
		_, err = c.store.(counter).Incr(ctx, c.keys.userGeneration(user))
	case StrategyPattern:
		err = c.deletePattern(ctx, c.keys.userPattern(user))
	default:
		c.logger.Info("Bulk invalidation unavailable, relying on ttl", zap.Duration("ttl", c.ttl))
	}
	return c.finishInvalidation("user", err)
}

// InvalidateAll drops every cached decision in the namespace.
func (c *CachedDecider) InvalidateAll(ctx context.Context) (Strategy, error) {
	if !c.Enabled() {
		return "", nil
	}
	var err error
	switch c.mode {
	case StrategyGeneration:
		_, err = c.store.(counter).Incr(ctx, c.keys.globalGeneration())
	case StrategyPattern:
		err = c.deletePattern(ctx, c.keys.allPattern())
	default:
		c.logger.Info("Bulk invalidation unavailable, relying on ttl", zap.Duration("ttl", c.ttl))
	}
	return c.finishInvalidation("all", err)
}

func (c *CachedDecider) finishInvalidation(scope string, err error) (Strategy, error) {
	if err != nil {
		return c.mode, fmt.Errorf("invalidate %s permissions (%s): %w", scope, c.mode, err)
	}
	if c.metrics.Invalidations != nil {
		c.metrics.Invalidations.WithLabelValues(scope, string(c.mode)).Inc()
	}
	c.logger.Info("Permission cache invalidated",
		zap.String("scope", scope), zap.String("mode", string(c.mode)))
	return c.mode, nil
}

func (c *CachedDecider) deletePattern(ctx context.Context, pattern string) error {
	keys, err := c.store.(scanner).Scan(ctx, pattern)
	if err != nil {
		return err
	}
	return c.store.Del(ctx, keys...)
}

func (c *CachedDecider) inc(result string) {
	if c.metrics.Lookups != nil {
		c.metrics.Lookups.WithLabelValues(result).Inc()
	}
}
