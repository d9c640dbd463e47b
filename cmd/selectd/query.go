package main

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/kailas-cloud/selectd/pkg/filterspec"
	"github.com/kailas-cloud/selectd/pkg/loader"
)

type queryFlags struct {
	token      string
	filters    []string
	consts     []string
	excludes   []string
	values     []string
	selected   []string
	minDisplay int
	more       int
	retries    int
	verbose    bool
}

func newQueryCommand() *cobra.Command {
	f := &queryFlags{}
	cmd := &cobra.Command{
		Use:   "query <search-url> [text]",
		Short: "Load a view through the client loader and print the delivered pages",
		Example: `  selectd query http://localhost:8080/search/people ada \
    --token local-viewer-key --filter team=team --value team=core --select 1`,
		Args: cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			text := ""
			if len(args) == 2 {
				text = args[1]
			}
			return runQuery(cmd, args[0], text, f)
		},
	}
	cmd.Flags().StringVar(&f.token, "token", "", "bearer token (API key or JWT)")
	cmd.Flags().StringArrayVar(&f.filters, "filter", nil, "field-derived filter source=lookup (repeatable)")
	cmd.Flags().StringArrayVar(&f.consts, "const", nil, "constant filter lookup=value (repeatable)")
	cmd.Flags().StringArrayVar(&f.excludes, "exclude", nil, "field-derived exclude source=lookup (repeatable)")
	cmd.Flags().StringArrayVar(&f.values, "value", nil, "form input value name=value (repeatable)")
	cmd.Flags().StringSliceVar(&f.selected, "select", nil, "already selected ids to skip")
	cmd.Flags().IntVar(&f.minDisplay, "min-display", 1, "fresh records to collect before stopping")
	cmd.Flags().IntVar(&f.more, "more", 0, "additional pages to load after the first")
	cmd.Flags().IntVar(&f.retries, "retries", 2, "retries on server errors")
	cmd.Flags().BoolVarP(&f.verbose, "verbose", "v", false, "log loader operations to stderr")
	return cmd
}

func runQuery(cmd *cobra.Command, searchURL, text string, f *queryFlags) error {
	filters, err := parseSpecs(f.filters, false)
	if err != nil {
		return err
	}
	consts, err := parseSpecs(f.consts, true)
	if err != nil {
		return err
	}
	excludes, err := parseSpecs(f.excludes, false)
	if err != nil {
		return err
	}
	form, err := parseValues(f.values)
	if err != nil {
		return err
	}

	var logger *slog.Logger
	if f.verbose {
		logger = slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: slog.LevelDebug}))
	}

	l, err := loader.New(loader.Config{
		Name:       "query",
		URL:        searchURL,
		Filters:    append(filters, consts...),
		Excludes:   excludes,
		Preload:    true,
		MinDisplay: f.minDisplay,
	},
		loader.WithValues(form),
		loader.WithLogger(logger),
		loader.WithFetcher(loader.NewHTTPFetcher(f.token,
			loader.WithRetries(f.retries, 200*time.Millisecond),
			loader.WithFetchLogger(logger),
		)),
	)
	if err != nil {
		return err
	}
	l.SetSelected(f.selected)

	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")

	res, err := l.Load(cmd.Context(), text)
	if err != nil {
		return err
	}
	if err := enc.Encode(res); err != nil {
		return err
	}
	for i := 0; i < f.more && res.HasMore; i++ {
		if res, err = l.LoadMore(cmd.Context()); err != nil {
			return err
		}
		if err := enc.Encode(res); err != nil {
			return err
		}
	}
	return nil
}

// parseSpecs reads source=lookup pairs, or lookup=value pairs for constants.
func parseSpecs(raw []string, constant bool) ([]filterspec.Spec, error) {
	specs := make([]filterspec.Spec, 0, len(raw))
	for _, r := range raw {
		left, right, ok := strings.Cut(r, "=")
		if !ok || left == "" {
			return nil, fmt.Errorf("malformed spec %q, want a=b", r)
		}
		if constant {
			specs = append(specs, filterspec.Const(right, left))
			continue
		}
		if right == "" {
			return nil, fmt.Errorf("malformed spec %q: empty lookup", r)
		}
		specs = append(specs, filterspec.Field(left, right))
	}
	return specs, nil
}

func parseValues(raw []string) (filterspec.MapValues, error) {
	form := make(filterspec.MapValues, len(raw))
	for _, r := range raw {
		name, value, ok := strings.Cut(r, "=")
		if !ok || name == "" {
			return nil, fmt.Errorf("malformed value %q, want name=value", r)
		}
		form[name] = value
	}
	return form, nil
}
