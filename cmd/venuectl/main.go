// venuectl is the operator CLI: bulk imports, offline discovery runs, and
// the auto-approve sweep, all against the same store the server uses.
package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"venueatlas/database"
	"venueatlas/geocode"
	"venueatlas/importer"
	"venueatlas/internal/config"
	"venueatlas/server/services"
)

var version = "0.1.0"

func main() {
	rootCmd := &cobra.Command{
		Use:     "venuectl",
		Short:   "Venue catalog administration",
		Long:    "venuectl manages the venue catalog: import curated venue lists, run discovery over scraped schedule names, and sweep the review queue.",
		Version: version,
	}

	rootCmd.AddCommand(importCmd())
	rootCmd.AddCommand(discoverCmd())
	rootCmd.AddCommand(autoApproveCmd())
	rootCmd.AddCommand(statsCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func setup() (*config.Config, *database.VenueStore, *logrus.Logger, error) {
	log := logrus.New()
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, nil, err
	}
	if level, err := logrus.ParseLevel(cfg.LogLevel); err == nil {
		log.SetLevel(level)
	}
	store, err := database.Open(cfg.DatabasePath)
	if err != nil {
		return nil, nil, nil, err
	}
	if err := store.Migrate(context.Background()); err != nil {
		store.Close()
		return nil, nil, nil, err
	}
	return cfg, store, log, nil
}

func importCmd() *cobra.Command {
	var source string
	cmd := &cobra.Command{
		Use:   "import <file>",
		Short: "Import a curated venue list (.json or .xlsx)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			_, store, log, err := setup()
			if err != nil {
				return err
			}
			defer store.Close()

			path := args[0]
			var records []importer.VenueRecord
			if filepath.Ext(path) == ".xlsx" {
				records, err = importer.ParseXLSXFile(path)
			} else {
				f, openErr := os.Open(path)
				if openErr != nil {
					return openErr
				}
				defer f.Close()
				records, err = importer.ParseJSON(f)
			}
			if err != nil {
				return err
			}

			summary, err := services.NewImportService(store, log).
				Import(cmd.Context(), records, source)
			if err != nil {
				return err
			}
			fmt.Printf("venues created: %d, updated: %d\n", summary.VenuesCreated, summary.VenuesUpdated)
			fmt.Printf("aliases created: %d, skipped: %d\n", summary.AliasesCreated, summary.AliasesSkipped)
			for _, e := range summary.Errors {
				fmt.Fprintf(os.Stderr, "warning: %s\n", e)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&source, "source", "import", "source tag recorded on created aliases")
	return cmd
}

func discoverCmd() *cobra.Command {
	var source string
	cmd := &cobra.Command{
		Use:   "discover <names-file>",
		Short: "Run discovery over a file of raw venue names, one per line",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, store, log, err := setup()
			if err != nil {
				return err
			}
			defer store.Close()

			if cfg.GeocodeAPIKey == "" {
				return fmt.Errorf("discovery needs VENUEATLAS_GEOCODE_API_KEY")
			}

			f, err := os.Open(args[0])
			if err != nil {
				return err
			}
			defer f.Close()

			var names []string
			scanner := bufio.NewScanner(f)
			for scanner.Scan() {
				if line := scanner.Text(); line != "" {
					names = append(names, line)
				}
			}
			if err := scanner.Err(); err != nil {
				return err
			}

			resolver := services.NewResolverService(store, services.ResolverConfig{
				AutoThreshold:   cfg.AutoThreshold,
				ReviewThreshold: cfg.ReviewThreshold,
				TieEpsilon:      cfg.TieEpsilon,
			}, log)
			geocoder := geocode.NewClient(geocode.Config{
				BaseURL:           cfg.GeocodeBaseURL,
				APIKey:            cfg.GeocodeAPIKey,
				Timeout:           cfg.GeocodeTimeout,
				RequestsPerMinute: cfg.GeocodeRPM,
				CacheTTL:          cfg.GeocodeCacheTTL,
			}, log)
			discovery := services.NewDiscoveryService(store, resolver, geocoder,
				services.NewMemoryDedup(cfg.DedupTTL), services.DiscoveryConfig{
					Bias: geocode.Region{
						Latitude:     cfg.BiasLatitude,
						Longitude:    cfg.BiasLongitude,
						RadiusMeters: cfg.BiasRadiusMeters,
					},
					BatchSize:  cfg.BatchSize,
					BatchDelay: cfg.BatchDelay,
					AutoCreate: cfg.GeocodeAutoCreate,
				}, log)

			summary, err := discovery.Discover(cmd.Context(), names, source)
			if err != nil {
				return err
			}
			fmt.Printf("auto-resolved: %d, auto-created: %d, queued: %d, skipped: %d\n",
				summary.AutoResolved, summary.AutoCreated, summary.Queued, summary.Skipped)
			return nil
		},
	}
	cmd.Flags().StringVar(&source, "source", "cli", "source tag recorded on queue entries")
	return cmd
}

func autoApproveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "auto-approve",
		Short: "Approve pending entries whose top stored candidate clears the ceiling",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, store, log, err := setup()
			if err != nil {
				return err
			}
			defer store.Close()

			approved, err := services.NewReviewService(store, cfg.AutoApproveCeiling, log).
				AutoApprove(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Printf("approved %d entries\n", approved)
			return nil
		},
	}
}

func statsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show catalog and queue sizes",
		RunE: func(cmd *cobra.Command, args []string) error {
			_, store, _, err := setup()
			if err != nil {
				return err
			}
			defer store.Close()

			ctx := cmd.Context()
			venues, err := store.CountVenues(ctx)
			if err != nil {
				return err
			}
			aliases, err := store.CountAliases(ctx)
			if err != nil {
				return err
			}
			pending, err := store.ListReviewEntries(ctx, database.ReviewFilter{
				Status: database.ReviewPending,
			})
			if err != nil {
				return err
			}
			fmt.Printf("venues: %d\naliases: %d\npending review: %d\n",
				venues, aliases, len(pending))
			return nil
		},
	}
}
