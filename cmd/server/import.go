package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/raffchen/inventory/internal/domain"
	"github.com/raffchen/inventory/internal/ingestion"
	"github.com/raffchen/inventory/internal/lifecycle"
)

var (
	importResource string
	importSource   string
)

var importCmd = &cobra.Command{
	Use:   "import [file.csv|file.xlsx]",
	Short: "Create records from a CSV or XLSX file",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runImport(cmd.Context(), args[0])
	},
}

func init() {
	importCmd.Flags().StringVar(&importResource, "resource", "lenses", "target resource (products or lenses)")
	importCmd.Flags().StringVar(&importSource, "source", "", "update_source recorded on the history entries")
	rootCmd.AddCommand(importCmd)
}

func runImport(parent context.Context, path string) error {
	if parent == nil {
		parent = context.Background()
	}
	ctx, cancel := context.WithCancel(parent)
	defer cancel()

	kind, ok := domain.DefaultRegistry()[importResource]
	if !ok {
		return fmt.Errorf("unknown resource %q", importResource)
	}

	file, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open %s: %w", path, err)
	}
	defer file.Close()

	store, _, err := openStore(ctx, cfg)
	if err != nil {
		return fmt.Errorf("failed to open %s store: %w", cfg.Store.Backend, err)
	}
	defer func() {
		if err := store.Close(); err != nil {
			log.Error().Err(err).Msg("failed to close store")
		}
	}()

	coord := lifecycle.NewCoordinator(store, lifecycle.WithLogger(log.Logger))
	summary, err := ingestion.NewService(coord, log.Logger).Import(ctx, ingestion.Request{
		Kind:     kind,
		FileName: path,
		Data:     file,
		Source:   importSource,
	})
	if err != nil {
		return err
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(summary)
}
