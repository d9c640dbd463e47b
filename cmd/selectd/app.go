package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/kailas-cloud/selectd/internal/collection"
	"github.com/kailas-cloud/selectd/internal/config"
	"github.com/kailas-cloud/selectd/internal/db"
	"github.com/kailas-cloud/selectd/internal/db/memory"
	dbRedis "github.com/kailas-cloud/selectd/internal/db/redis"
	"github.com/kailas-cloud/selectd/internal/domain/view"
	"github.com/kailas-cloud/selectd/internal/metrics"
	"github.com/kailas-cloud/selectd/internal/repository/memcoll"
	"github.com/kailas-cloud/selectd/internal/repository/permcache"
	"github.com/kailas-cloud/selectd/internal/repository/sqlcoll"
	chiTransport "github.com/kailas-cloud/selectd/internal/transport/chi"
	"github.com/kailas-cloud/selectd/internal/usecase/authz"
	healthuc "github.com/kailas-cloud/selectd/internal/usecase/health"
	searchuc "github.com/kailas-cloud/selectd/internal/usecase/search"
)

const jwtLeeway = 30 * time.Second

// app is the wired server: composition root shared by serve and the tests.
type app struct {
	handler http.Handler
	cache   db.Store
	sources *collection.Sources
	perms   *permcache.CachedDecider
}

func (a *app) Close() error {
	if a.cache != nil {
		a.cache.Close()
	}
	return a.sources.Close()
}

// buildApp wires config into an HTTP handler. It fails on any configuration
// error so a bad deployment never starts serving.
func buildApp(ctx context.Context, env string, cfg config.Config, logger *zap.Logger) (_ *app, err error) {
	metrics.RegisterSearchMetrics()

	a := &app{sources: collection.NewSources()}
	defer func() {
		if err != nil {
			_ = a.Close()
		}
	}()

	defs, err := cfg.ViewDefinitions()
	if err != nil {
		return nil, err
	}
	views := make([]view.View, 0, len(defs))
	for _, d := range defs {
		v, err := view.New(d)
		if err != nil {
			return nil, err
		}
		views = append(views, v)
	}
	catalog, err := view.NewCatalog(views...)
	if err != nil {
		return nil, err
	}

	if err := openSources(ctx, a.sources, cfg.Sources, logger); err != nil {
		return nil, err
	}

	policy, err := authz.NewPolicy(cfg.Authorization.Superusers, policyRules(cfg.Authorization.Rules))
	if err != nil {
		return nil, err
	}

	ttl := cfg.CacheTTL(env)
	if ttl > 0 {
		if a.cache, err = openCacheStore(ctx, cfg.Cache); err != nil {
			return nil, err
		}
	}

	strategy, err := permcache.ParseStrategy(cfg.Cache.Strategy)
	if err != nil {
		return nil, err
	}
	a.perms, err = permcache.New(policy, a.cache, permcache.Config{
		TTL:       ttl,
		Namespace: cfg.Cache.Namespace,
		KeyPrefix: cfg.Cache.KeyPrefix,
		Strategy:  strategy,
	}, permcache.Metrics{
		Lookups:       metrics.PermissionCacheTotal,
		Invalidations: metrics.PermissionInvalidationsTotal,
	}, logger)
	if err != nil {
		return nil, err
	}
	logger.Info("Permission cache configured",
		zap.Bool("enabled", a.perms.Enabled()),
		zap.Duration("ttl", ttl),
		zap.String("mode", string(a.perms.Mode())),
	)

	searchSvc := searchuc.New(catalog, a.sources, searchuc.Hooks{}, logger)
	gate := authz.NewGate(searchSvc, a.perms, logger)

	sourcePingers := make(map[string]healthuc.Pinger)
	for name, p := range a.sources.Pingers() {
		sourcePingers[name] = p
	}
	healthSvc := healthuc.New(a.cache, sourcePingers)

	server := chiTransport.NewServer(gate, healthSvc, chiTransport.Options{
		Invalidator: a.perms,
		Admins:      policy,
		LoginURL:    cfg.Auth.LoginURL,
	}, logger)

	a.handler = chiTransport.NewRouter(server, chiTransport.RouterConfig{
		Auth: authConfig(cfg.Auth),
		CORS: chiTransport.CORSOptions{AllowedOrigins: cfg.HTTP.CORSOrigins},
	}, logger)
	return a, nil
}

func openCacheStore(ctx context.Context, cc config.CacheConfig) (db.Store, error) {
	var (
		store db.Store
		err   error
	)
	switch cc.Driver {
	case "memory":
		store = memory.New(time.Minute)
	case "redis", "valkey":
		// Both speak the same GET/SET/INCR/SCAN subset.
		store, err = dbRedis.NewStore(dbRedis.Config{
			Addrs:    cc.Addrs,
			Username: cc.Username,
			Password: cc.Password,
			DB:       cc.DB,
		})
	default:
		err = fmt.Errorf("unknown cache driver %q", cc.Driver)
	}
	if err != nil {
		return nil, fmt.Errorf("create cache store: %w", err)
	}

	if err := store.WaitForReady(ctx, time.Duration(cc.ReadinessTimeout)*time.Second); err != nil {
		store.Close()
		return nil, fmt.Errorf("cache store not ready: %w", err)
	}
	return store, nil
}

func openSources(ctx context.Context, sources *collection.Sources, cfgs []config.SourceConfig, logger *zap.Logger) error {
	for _, sc := range cfgs {
		var b collection.Backend
		switch sc.Driver {
		case "memory":
			b = memcoll.New(sc.Records)
		default:
			st, err := sqlcoll.Open(ctx, sqlcoll.Config{
				Driver:         sc.Driver,
				DSN:            sc.DSN,
				Table:          sc.Table,
				Columns:        sc.Columns,
				MaxOpenConns:   sc.MaxOpenConns,
				ConnectTimeout: time.Duration(sc.ConnectTimeout) * time.Second,
				Logger:         logger.With(zap.String("source", sc.Name)),
			})
			if err != nil {
				return fmt.Errorf("source %s: %w", sc.Name, err)
			}
			b = st
		}
		if err := sources.Add(sc.Name, b); err != nil {
			if c, ok := b.(interface{ Close() error }); ok {
				err = errors.Join(err, c.Close())
			}
			return err
		}
		logger.Info("Source ready", zap.String("source", sc.Name), zap.String("driver", sc.Driver))
	}
	return nil
}

func policyRules(rcs []config.RuleConfig) []authz.Rule {
	rules := make([]authz.Rule, len(rcs))
	for i, rc := range rcs {
		rules[i] = authz.Rule{
			View:          rc.View,
			Actions:       rc.Actions,
			Users:         rc.Users,
			Groups:        rc.Groups,
			Authenticated: rc.Authenticated,
		}
	}
	return rules
}

func authConfig(ac config.AuthConfig) chiTransport.AuthConfig {
	keys := make([]chiTransport.APIKey, len(ac.APIKeys))
	for i, k := range ac.APIKeys {
		keys[i] = chiTransport.APIKey{Key: k.Key, User: k.User, Groups: k.Groups, Superuser: k.Superuser}
	}
	return chiTransport.AuthConfig{
		APIKeys:   keys,
		JWTSecret: ac.JWTSecret,
		JWTIssuer: ac.JWTIssuer,
		Leeway:    jwtLeeway,
	}
}
