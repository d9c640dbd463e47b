package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/kailas-cloud/selectd/internal/config"
	logpkg "github.com/kailas-cloud/selectd/internal/logger"
	"github.com/kailas-cloud/selectd/internal/repository/permcache"
	"github.com/kailas-cloud/selectd/internal/usecase/authz"
)

func newInvalidateCommand(flags *rootFlags) *cobra.Command {
	var (
		user string
		all  bool
	)
	cmd := &cobra.Command{
		Use:   "invalidate",
		Short: "Drop cached permission decisions in the shared cache store",
		Long: `Drop cached permission decisions for one user (--user) or the whole
namespace (--all). Works against the redis/valkey store named in the config;
a memory cache lives inside the server process, use
POST /admin/permissions/invalidate for it instead.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if all == (user != "") {
				return errors.New("exactly one of --user or --all is required")
			}
			cfg, err := flags.load()
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}
			mode, err := runInvalidate(cmd.Context(), flags.env, cfg, user)
			if err != nil {
				return err
			}
			scope := "user " + user
			if all {
				scope = "all users"
			}
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "invalidated %s (%s)\n", scope, mode)
			return nil
		},
	}
	cmd.Flags().StringVar(&user, "user", "", "principal id whose decisions to drop")
	cmd.Flags().BoolVar(&all, "all", false, "drop every decision in the namespace")
	return cmd
}

// runInvalidate invalidates user, or everything when user is empty.
func runInvalidate(ctx context.Context, env string, cfg config.Config, user string) (permcache.Strategy, error) {
	if cfg.Cache.Driver == "memory" {
		return "", errors.New("the memory cache cannot be reached from outside the server")
	}
	ttl := cfg.CacheTTL(env)
	if ttl == 0 {
		return "", fmt.Errorf("permission cache is disabled in env %q", env)
	}

	logger, err := logpkg.NewLogger(env, cfg.Logging.Level)
	if err != nil {
		return "", fmt.Errorf("failed to create logger: %w", err)
	}
	defer func() { _ = logger.Sync() }()

	store, err := openCacheStore(ctx, cfg.Cache)
	if err != nil {
		return "", err
	}
	defer store.Close()

	strategy, err := permcache.ParseStrategy(cfg.Cache.Strategy)
	if err != nil {
		return "", err
	}
	policy, err := authz.NewPolicy(cfg.Authorization.Superusers, policyRules(cfg.Authorization.Rules))
	if err != nil {
		return "", err
	}
	perms, err := permcache.New(policy, store, permcache.Config{
		TTL:       ttl,
		Namespace: cfg.Cache.Namespace,
		KeyPrefix: cfg.Cache.KeyPrefix,
		Strategy:  strategy,
	}, permcache.Metrics{}, logger)
	if err != nil {
		return "", err
	}

	if user == "" {
		return perms.InvalidateAll(ctx)
	}
	return perms.InvalidateUser(ctx, user)
}
