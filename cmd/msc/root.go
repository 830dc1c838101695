package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/mscwg/mscat/internal/config"
	"github.com/mscwg/mscat/internal/docstore"
	"github.com/mscwg/mscat/internal/identifier"
	"github.com/mscwg/mscat/internal/record"
	"github.com/mscwg/mscat/internal/thesaurus"
	"github.com/mscwg/mscat/internal/ui"
)

var (
	cfgFile string
	noColor bool

	cfg    *config.Config
	logger *log.Logger
	styles ui.Styles
)

var rootCmd = &cobra.Command{
	Use:   "msc",
	Short: "Manage the Metadata Standards Catalog",
	Long: `msc maintains a catalog of metadata standards and the organizations,
tools, mappings and endorsements around them.

Records live in five series, each identified by an MSC ID:
  m  metadata schemes         (msc:m13)
  g  organizations            (msc:g5)
  t  tools                    (msc:t22)
  c  mappings between schemes (msc:c7)
  e  endorsements             (msc:e2)

Relationships between records are kept in a separate relation store and
edited either through the record edit form or directly with the relate
commands. The serve command exposes the catalog as a JSON API.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		cfg, err = config.Load(cfgFile)
		if err != nil {
			return err
		}
		logger = newLogger()
		styles = ui.NewStyles(!ui.Colors(noColor))
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: config.yaml in the data directory)")
	rootCmd.PersistentFlags().BoolVar(&noColor, "no-color", false, "disable colored output")

	rootCmd.AddGroup(
		&cobra.Group{ID: "records", Title: "Record commands:"},
		&cobra.Group{ID: "relations", Title: "Relation commands:"},
		&cobra.Group{ID: "vocab", Title: "Vocabulary commands:"},
		&cobra.Group{ID: "server", Title: "Server commands:"},
	)
}

func newLogger() *log.Logger {
	if cfg.LogFile == "" {
		return log.New(os.Stderr, "[msc] ", log.LstdFlags)
	}
	return log.New(&lumberjack.Logger{
		Filename:   cfg.LogFile,
		MaxSize:    10, // megabytes
		MaxBackups: 3,
		MaxAge:     28, // days
	}, "[msc] ", log.LstdFlags)
}

// openCatalog opens the catalog's stores and wires the thesaurus in as
// the keyword translator. The thesaurus may be nil when no vocabulary
// has been ingested yet and no source file exists. The returned closer
// must be called when the command is done.
func openCatalog(ctx context.Context) (*record.Catalog, *thesaurus.Thesaurus, func(), error) {
	data, err := docstore.Open(cfg.DataDB)
	if err != nil {
		return nil, nil, nil, err
	}
	vocab, err := docstore.Open(cfg.VocabDB)
	if err != nil {
		data.Close()
		return nil, nil, nil, err
	}
	closer := func() {
		if err := vocab.Close(); err != nil {
			logger.Printf("Failed to close vocabulary store: %v", err)
		}
		if err := data.Close(); err != nil {
			logger.Printf("Failed to close data store: %v", err)
		}
	}

	catalog := record.NewCatalog(data, vocab)

	th, err := thesaurus.Open(ctx, vocab, cfg.ThesaurusFile)
	if err != nil && !errors.Is(err, thesaurus.ErrNoSource) {
		closer()
		return nil, nil, nil, err
	}
	if th != nil {
		catalog.Keywords = th
	}

	return catalog, th, closer, nil
}

// normalizeID accepts MSC IDs with or without their msc: prefix and
// returns the canonical form.
func normalizeID(arg string) (string, error) {
	id := arg
	if !strings.HasPrefix(id, identifier.Prefix) {
		id = identifier.Prefix + id
	}
	if !identifier.IsValid(id) {
		return "", fmt.Errorf("invalid MSC ID %q", arg)
	}
	return id, nil
}
