package main

import (
	"context"
	"fmt"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/oakcellar/pricewatch-cli/internal/fetcher"
	"github.com/oakcellar/pricewatch-cli/internal/model"
	"github.com/oakcellar/pricewatch-cli/internal/scrape"
	"github.com/oakcellar/pricewatch-cli/pkg/priceapi"
)

var (
	scrapeDryRun      bool
	scrapeConcurrency int
	scrapeDedup       string
)

var scrapeCmd = &cobra.Command{
	Use:   "scrape [store...]",
	Short: "Scrape retailer listings and submit prices",
	Long: fmt.Sprintf(`Scrape retailer listings for bottle prices and submit them to the price API.

With no arguments, all known stores are scraped: %s.
Without an access token the run is forced into dry-run mode and nothing
is submitted.`, strings.Join(scrape.SiteKeys(), ", ")),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		keys := args
		if len(keys) == 0 {
			keys = scrape.SiteKeys()
		}
		sites := make([]scrape.Site, 0, len(keys))
		for _, key := range keys {
			site, ok := scrape.SiteByKey(key)
			if !ok {
				return eris.Errorf("scrape: unknown store %q (known: %s)",
					key, strings.Join(scrape.SiteKeys(), ", "))
			}
			sites = append(sites, site)
		}

		dryRun := scrapeDryRun
		if cfg.API.AccessToken == "" && !dryRun {
			zap.L().Warn("no access token configured, running in dry-run mode")
			dryRun = true
		}

		dedup := scrape.DedupPolicy(scrapeDedup)
		if scrapeDedup == "" {
			dedup = scrape.DedupPolicy(cfg.Scrape.Dedup)
		}

		f := fetcher.NewHTTPFetcher(fetcher.HTTPOptions{
			UserAgent:   cfg.Scrape.UserAgent,
			Timeout:     time.Duration(cfg.Scrape.TimeoutSecs) * time.Second,
			MaxRetries:  cfg.Scrape.MaxRetries,
			RatePerHost: rate.Limit(cfg.Scrape.RatePerHost),
		})

		var client priceapi.Client
		if !dryRun {
			client = priceapi.NewClient(cfg.API.AccessToken,
				priceapi.WithBaseURL(cfg.API.BaseURL))
		}

		concurrency := scrapeConcurrency
		if concurrency <= 0 {
			concurrency = cfg.Scrape.Concurrency
		}
		if concurrency <= 0 {
			concurrency = 1
		}

		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(concurrency)

		for _, site := range sites {
			g.Go(func() error {
				return scrapeSite(gctx, f, client, site, dedup, dryRun)
			})
		}

		return g.Wait()
	},
}

func scrapeSite(ctx context.Context, f scrape.Fetcher, client priceapi.Client, site scrape.Site, dedup scrape.DedupPolicy, dryRun bool) error {
	log := zap.L().With(
		zap.String("store", site.Key),
		zap.String("run_id", uuid.NewString()),
	)

	start := time.Now()
	log.Info("scrape started")

	products, err := scrape.NewDriver(f, dedup).Run(ctx, site)
	if err != nil {
		return eris.Wrapf(err, "scrape: %s", site.Key)
	}

	log.Info("scrape finished",
		zap.Int("products", len(products)),
		zap.Duration("elapsed", time.Since(start)),
	)

	if dryRun {
		log.Info("dry run, skipping submission", zap.Int("products", len(products)))
		return nil
	}

	records := make([]model.PriceSubmission, 0, len(products))
	for _, p := range products {
		records = append(records, model.PriceSubmission{
			Name:  p.Normalized,
			Price: p.Price,
			URL:   p.URL,
		})
	}

	result, err := client.SubmitStorePrices(ctx, site.Key, records)
	if err != nil {
		return eris.Wrapf(err, "scrape: submit %s", site.Key)
	}

	log.Info("prices submitted",
		zap.Int("accepted", result.Accepted),
		zap.Int("failed", result.Failed),
	)
	return nil
}

func init() {
	scrapeCmd.Flags().BoolVar(&scrapeDryRun, "dry-run", false, "scrape without submitting prices")
	scrapeCmd.Flags().IntVar(&scrapeConcurrency, "concurrency", 0, "stores scraped in parallel (default from config)")
	scrapeCmd.Flags().StringVar(&scrapeDedup, "dedup", "", "dedup policy: first-wins or off (default from config)")
	rootCmd.AddCommand(scrapeCmd)
}
