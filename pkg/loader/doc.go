// Package loader is the client side of selectd search endpoints: an
// incremental loader that pages through a view, skips records the user has
// already selected, and resets when the inputs it filters on change.
//
//	reg := loader.NewRegistry()
//	l, _ := loader.New(loader.Config{
//	    Name:     "items-0-product",
//	    URL:      "https://api.example.com/search/products",
//	    Filters:  filterspec.MustNormalize([]any{[]any{"category", "category_id"}}),
//	    Preload:  true,
//	}, loader.WithValues(form), loader.WithFetcher(loader.NewHTTPFetcher(token)))
//	reg.Set(l.Name(), l)
//
//	ctl := loader.NewController(reg, form)
//	_, _ = ctl.Bind("items-0-product")
//
//	res, _ := l.Load(ctx, "wid")     // first page, already-selected ids skipped
//	more, _ := l.LoadMore(ctx)       // continues from the stored cursor
//	ctl.Changed("items-0-category")  // resets the product loader of row 0 only
package loader
