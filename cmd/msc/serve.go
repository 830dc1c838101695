package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/mscwg/mscat/internal/api"
	"github.com/mscwg/mscat/internal/thesaurus"
)

var serveCmd = &cobra.Command{
	Use:     "serve",
	GroupID: "server",
	Short:   "Serve the catalog's JSON API",
	Long: `Serve the catalog as a read-only JSON API with a live update feed.

Endpoints:
  /api2/{series}           Paginated record listing
  /api2/{series}{number}   One record with related entities embedded
  /api2/rel                Paginated relation records
  /api2/rel/{mscid}        One subject's relation record
  /ws                      WebSocket feed of committed changes
  /health                  Health check

While the server runs, the thesaurus source file is watched and the
vocabulary reloaded when it changes.

Example usage:
  msc serve                # Port from configuration (default 8080)
  msc serve --port 9000`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		port, _ := cmd.Flags().GetInt("port")
		if port == 0 {
			port = cfg.Port
		}

		catalog, th, closer, err := openCatalog(ctx)
		if err != nil {
			return err
		}
		defer closer()

		server := api.NewServer(&api.Config{
			Port:    port,
			Catalog: catalog,
			Logger:  logger,
		})
		if err := server.Start(); err != nil {
			return err
		}

		var watcher *thesaurus.Watcher
		if th != nil {
			watcher, err = thesaurus.NewWatcher(cfg.ThesaurusFile, func() error {
				return th.Reload(context.Background())
			}, logger)
			if err != nil {
				logger.Printf("Thesaurus watcher disabled: %v", err)
			} else if err := watcher.Start(); err != nil {
				logger.Printf("Thesaurus watcher disabled: %v", err)
				watcher = nil
			}
		}

		fmt.Printf("Catalog API started on http://localhost:%d\n", port)
		fmt.Printf("WebSocket feed: ws://localhost:%d/ws\n", port)
		fmt.Println("\nPress Ctrl+C to stop...")

		waitCtx, cancel := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
		defer cancel()
		<-waitCtx.Done()

		fmt.Println("\nShutting down...")
		if watcher != nil {
			if err := watcher.Stop(); err != nil {
				logger.Printf("Failed to stop thesaurus watcher: %v", err)
			}
		}
		return server.Stop()
	},
}

func init() {
	serveCmd.Flags().Int("port", 0, "port to listen on (overrides configuration)")
	rootCmd.AddCommand(serveCmd)
}
