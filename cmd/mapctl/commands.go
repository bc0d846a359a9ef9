package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

func newMatchCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "match",
		Short: "Matching operations",
	}

	var threshold float64
	run := &cobra.Command{
		Use:   "run",
		Short: "Run the matching pipeline and replace automatic matches",
		RunE: func(cmd *cobra.Command, args []string) error {
			if !cmd.Flags().Changed("threshold") {
				threshold = svc.Matching.DefaultThreshold()
			}
			summary, err := svc.Matching.Run(cmd.Context(), threshold)
			if err != nil {
				return fmt.Errorf("matching run: %w", err)
			}
			return printJSON(cmd, summary)
		},
	}
	run.Flags().Float64Var(&threshold, "threshold", 0, "confidence threshold (0.1-1.0); defaults to MATCH_CONFIDENCE_THRESHOLD")

	cmd.AddCommand(run)
	return cmd
}

func newEmbeddingsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "embeddings",
		Short: "Embedding operations",
	}

	var (
		dryRun bool
		source string
		limit  int
	)
	update := &cobra.Command{
		Use:   "update",
		Short: "Embed products that have no title embedding yet",
		RunE: func(cmd *cobra.Command, args []string) error {
			res, err := svc.Embeddings.Update(cmd.Context(), source, limit, dryRun)
			if err != nil {
				return fmt.Errorf("embedding update: %w", err)
			}
			return printJSON(cmd, res)
		},
	}
	update.Flags().BoolVar(&dryRun, "dry-run", false, "only count candidates")
	update.Flags().StringVar(&source, "source", "", "restrict to one source")
	update.Flags().IntVar(&limit, "limit", 0, "maximum products to embed (0 = all)")

	cmd.AddCommand(update)
	return cmd
}

func newVendorsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "vendors",
		Short: "Vendor maintenance",
	}

	var dryRun bool
	fix := &cobra.Command{
		Use:   "fix",
		Short: "Re-resolve competitor vendors from product titles",
		RunE: func(cmd *cobra.Command, args []string) error {
			fixes, err := svc.Catalog.FixVendors(cmd.Context(), dryRun)
			if err != nil {
				return fmt.Errorf("vendor fix: %w", err)
			}
			return printJSON(cmd, map[string]any{"dryRun": dryRun, "count": len(fixes), "fixes": fixes})
		},
	}
	fix.Flags().BoolVar(&dryRun, "dry-run", false, "report changes without applying them")

	cmd.AddCommand(fix)
	return cmd
}

func newCatalogCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "catalog",
		Short: "Catalog operations",
	}

	var timeout time.Duration
	sync := &cobra.Command{
		Use:   "sync [source]",
		Short: "Sync one source, or every configured feed, from its product feed",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
			defer cancel()

			if len(args) == 1 {
				res, err := svc.Catalog.SyncFeed(ctx, args[0])
				if err != nil {
					return fmt.Errorf("sync %s: %w", args[0], err)
				}
				return printJSON(cmd, res)
			}
			return printJSON(cmd, svc.Catalog.SyncFeeds(ctx))
		},
	}
	sync.Flags().DurationVar(&timeout, "timeout", 15*time.Minute, "overall sync timeout")

	cmd.AddCommand(sync)
	return cmd
}
