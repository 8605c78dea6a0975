package cmd

import (
	"context"
	"fmt"
	"io"
	"strconv"

	"github.com/habedi/rebaton/client"
	"github.com/habedi/rebaton/db"
	"github.com/habedi/rebaton/pkg/clierr"
	"github.com/habedi/rebaton/pkg/pool"
	"github.com/habedi/rebaton/pkg/validation"
	"github.com/rs/zerolog/log"
	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"
)

func dealsCmd(c *cli) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "deals",
		Short: "Browse deals and manage the local deal cache",
	}

	cmd.AddCommand(
		publicDealsCmd(c),
		listDealsCmd(c),
		showDealCmd(c),
		searchDealsCmd(c),
		syncDealsCmd(c),
	)

	return cmd
}

type dealFlags struct {
	query string
	store string
	page  int
	limit int
}

func (f *dealFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVarP(&f.query, "query", "q", "", "Only show deals matching the query")
	cmd.Flags().StringVarP(&f.store, "store", "s", "", "Only show deals from this store")
	cmd.Flags().IntVarP(&f.page, "page", "p", 1, "Page to fetch")
	cmd.Flags().IntVarP(&f.limit, "limit", "l", 20, "Number of deals per page")
}

func (f *dealFlags) toQuery() (client.DealQuery, error) {
	if err := validation.ValidatePageSize(f.limit); err != nil {
		return client.DealQuery{}, validationError(err)
	}
	if f.page < 1 {
		return client.DealQuery{}, clierr.New(clierr.Validation, fmt.Sprintf("page must be at least 1, got %d", f.page), nil)
	}
	return client.DealQuery{Query: f.query, Store: f.store, Page: f.page, Limit: f.limit}, nil
}

// publicDealsCmd lists deals without a session.
func publicDealsCmd(c *cli) *cobra.Command {
	var flags dealFlags
	cmd := &cobra.Command{
		Use:   "public",
		Short: "Show public deals (no sign-in required)",
		RunE: func(cmd *cobra.Command, args []string) error {
			q, err := flags.toQuery()
			if err != nil {
				return err
			}
			page, err := c.client.PublicDeals(cmd.Context(), q)
			if err != nil {
				return userError("Failed to fetch public deals", err)
			}
			printDealPage(cmd, page)
			return nil
		},
	}
	flags.register(cmd)
	return cmd
}

func listDealsCmd(c *cli) *cobra.Command {
	var flags dealFlags
	var offline bool
	cmd := &cobra.Command{
		Use:   "list",
		Short: "Show your deals",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			if offline {
				deals, err := c.deals.List(ctx)
				if err != nil {
					return clierr.New(clierr.Internal, "Failed to read the deal cache.", err)
				}
				printCachedDeals(cmd, deals)
				return nil
			}

			q, err := flags.toQuery()
			if err != nil {
				return err
			}
			if err := c.requireSession(ctx); err != nil {
				return err
			}
			page, err := c.client.Deals(ctx, q)
			if err != nil {
				return userError("Failed to fetch deals", err)
			}
			printDealPage(cmd, page)
			return nil
		},
	}
	flags.register(cmd)
	cmd.Flags().BoolVarP(&offline, "offline", "o", false, "Show the locally cached deals instead")
	return cmd
}

func showDealCmd(c *cli) *cobra.Command {
	var offline bool
	cmd := &cobra.Command{
		Use:   "show <deal-id>",
		Short: "Show the details of a deal",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			id := args[0]
			if err := validation.ValidateID("deal", id); err != nil {
				return validationError(err)
			}

			if offline {
				cached, err := c.deals.GetByID(ctx, id)
				if err != nil {
					return clierr.New(clierr.Internal, "Failed to read the deal cache.", err)
				}
				if cached == nil {
					return clierr.New(clierr.NotFound, fmt.Sprintf("Deal %s is not in the local cache.", id), nil)
				}
				printDealDetails(cmd.OutOrStdout(), dealFromRecord(*cached))
				return nil
			}

			if err := c.requireSession(ctx); err != nil {
				return err
			}
			deal, err := c.client.Deal(ctx, id)
			if err != nil {
				return userError(fmt.Sprintf("Failed to fetch deal %s", id), err)
			}
			if err := c.deals.Put(ctx, deal.Record()); err != nil {
				log.Warn().Err(err).Str("id", id).Msg("Failed to cache deal")
			}
			printDealDetails(cmd.OutOrStdout(), *deal)
			return nil
		},
	}
	cmd.Flags().BoolVarP(&offline, "offline", "o", false, "Read the deal from the local cache")
	return cmd
}

// searchDealsCmd searches deals by title, either on the backend or in the cache.
func searchDealsCmd(c *cli) *cobra.Command {
	var offline bool
	var limit int
	cmd := &cobra.Command{
		Use:   "search <term>",
		Short: "Search deals by title",
		Long:  "Search deals by title. With --offline the search is case-insensitive partial matching over the local cache.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			term := args[0]
			if err := validation.ValidateNonEmptyString("search term", term); err != nil {
				return validationError(err)
			}

			if offline {
				deals, err := c.deals.SearchByTitle(ctx, term)
				if err != nil {
					return clierr.New(clierr.Internal, "Failed to search the deal cache.", err)
				}
				printCachedDeals(cmd, deals)
				return nil
			}

			if err := validation.ValidatePageSize(limit); err != nil {
				return validationError(err)
			}
			if err := c.requireSession(ctx); err != nil {
				return err
			}
			page, err := c.client.Deals(ctx, client.DealQuery{Query: term, Page: 1, Limit: limit})
			if err != nil {
				return userError("Failed to search deals", err)
			}
			printDealPage(cmd, page)
			return nil
		},
	}
	cmd.Flags().BoolVarP(&offline, "offline", "o", false, "Search the local cache instead of the backend")
	cmd.Flags().IntVarP(&limit, "limit", "l", 20, "Maximum number of results")
	return cmd
}

// syncDealsCmd downloads the first pages of the user's deals concurrently and
// replaces the local cache with them.
func syncDealsCmd(c *cli) *cobra.Command {
	var pages int
	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Download your deals into the local cache",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			if pages == 0 {
				pages = c.cfg.Sync.Pages
			}
			if pages < 1 {
				return clierr.New(clierr.Validation, fmt.Sprintf("pages must be at least 1, got %d", pages), nil)
			}
			if err := c.requireSession(ctx); err != nil {
				return err
			}

			deals, err := c.syncDeals(ctx, cmd.ErrOrStderr(), pages)
			if err != nil {
				return err
			}
			cmd.Printf("Sync completed. There are %d deals in the local cache.\n", deals)
			return nil
		},
	}
	cmd.Flags().IntVarP(&pages, "pages", "n", 0, "Number of pages to download (default from sync.pages)")
	return cmd
}

func (c *cli) syncDeals(ctx context.Context, progress io.Writer, pages int) (int, error) {
	numbers := make([]int, pages)
	for i := range numbers {
		numbers[i] = i + 1
	}

	bar := progressbar.NewOptions(pages,
		progressbar.OptionSetWriter(progress),
		progressbar.OptionSetDescription("Syncing deals..."),
		progressbar.OptionSetWidth(20),
		progressbar.OptionShowCount(),
		progressbar.OptionShowIts(),
		progressbar.OptionClearOnFinish(),
	)

	limit := c.cfg.Sync.PageSize
	results, errs := pool.Map(ctx, numbers, c.cfg.Sync.Threads, func(ctx context.Context, page int) (*client.DealPage, error) {
		defer func() { _ = bar.Add(1) }()
		p, err := c.client.Deals(ctx, client.DealQuery{Page: page, Limit: limit})
		if err != nil {
			log.Warn().Err(err).Int("page", page).Msg("Failed to fetch deal page")
			return nil, fmt.Errorf("page %d: %w", page, err)
		}
		return p, nil
	})
	_ = bar.Finish()

	// Pages never handed to a worker come back empty without an error.
	if err := ctx.Err(); err != nil {
		return 0, clierr.New(clierr.Internal, "Deal sync was interrupted; the local cache was left unchanged.", err)
	}

	if len(errs) == len(numbers) {
		return 0, userError("Failed to sync deals", errs[0])
	}
	for _, err := range errs {
		log.Warn().Err(err).Msg("Deal page skipped")
	}

	seen := make(map[string]bool)
	var records []db.Deal
	for _, p := range results {
		if p == nil {
			continue
		}
		for _, d := range p.Deals {
			if seen[d.ID] {
				continue
			}
			seen[d.ID] = true
			records = append(records, d.Record())
		}
	}

	if err := c.deals.Replace(ctx, records); err != nil {
		return 0, clierr.New(clierr.Internal, "Failed to update the deal cache.", err)
	}
	log.Info().Int("deals", len(records)).Int("failed_pages", len(errs)).Msg("Deal cache refreshed")
	return len(records), nil
}

func printDealPage(cmd *cobra.Command, page *client.DealPage) {
	if len(page.Deals) == 0 {
		cmd.Println("No deals found.")
		return
	}
	printDeals(cmd.OutOrStdout(), page.Deals)
	more := ""
	if page.HasMore {
		more = fmt.Sprintf(" Use --page %d for more.", page.Page+1)
	}
	cmd.Printf("Page %d, showing %d of %d deals.%s\n", page.Page, len(page.Deals), page.Total, more)
}

func printCachedDeals(cmd *cobra.Command, records []db.Deal) {
	if len(records) == 0 {
		cmd.Println("No deals found in the local cache. Use `rebaton deals sync` to update it.")
		return
	}
	deals := make([]client.Deal, len(records))
	for i, r := range records {
		deals[i] = dealFromRecord(r)
	}
	printDeals(cmd.OutOrStdout(), deals)
}

func printDeals(w io.Writer, deals []client.Deal) {
	table := newTable(w, "Row", "Deal ID", "Title", "Store", "Price", "Discount")
	table.SetColMinWidth(2, 40) // Set minimum width for the Title column
	for i, d := range deals {
		table.Append([]string{
			strconv.Itoa(i + 1),
			d.ID,
			singleLine(d.Title),
			d.Store,
			formatMoney(d.Price),
			formatPercent(d.DiscountPercent),
		})
	}
	table.Render()
}

func printDealDetails(w io.Writer, d client.Deal) {
	fmt.Fprintln(w, "Deal Information:")
	fmt.Fprintf(w, "ID: %s\n", d.ID)
	fmt.Fprintf(w, "Title: %s\n", d.Title)
	fmt.Fprintf(w, "Store: %s\n", d.Store)
	fmt.Fprintf(w, "Price: %s\n", formatMoney(d.Price))
	if d.OriginalPrice > 0 {
		fmt.Fprintf(w, "Original price: %s\n", formatMoney(d.OriginalPrice))
	}
	fmt.Fprintf(w, "Discount: %s\n", formatPercent(d.DiscountPercent))
	if d.URL != "" {
		fmt.Fprintf(w, "URL: %s\n", d.URL)
	}
}

func dealFromRecord(r db.Deal) client.Deal {
	return client.Deal{
		ID:              r.ID,
		Title:           r.Title,
		Store:           r.Store,
		Price:           r.Price,
		OriginalPrice:   r.OriginalPrice,
		DiscountPercent: r.DiscountPercent,
		URL:             r.URL,
	}
}
