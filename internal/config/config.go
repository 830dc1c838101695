// Package config loads catalog configuration via viper: defaults,
// overridden by an optional YAML config file, overridden by MSC_*
// environment variables.
package config

import (
	"errors"
	"fmt"
	"path/filepath"

	"github.com/spf13/viper"
)

// Config holds every setting the msc tool reads.
type Config struct {
	// DataDir is where the catalog keeps its databases.
	DataDir string
	// DataDB is the main database file (entities and relations).
	DataDB string
	// VocabDB is the vocabulary database file (thesaurus, datatypes).
	VocabDB string
	// ThesaurusFile is the YAML vocabulary source ingested on first
	// use and re-ingested on change while serving.
	ThesaurusFile string
	// LogFile, when set, sends logs to a rotating file instead of
	// stderr.
	LogFile string
	// Port is the API server listen port.
	Port int
}

// Load reads configuration. With an explicit path the file must exist;
// otherwise config.yaml is looked for in the data directory and the
// working directory, and silently skipped when absent.
func Load(path string) (*Config, error) {
	v := viper.New()

	v.SetDefault("data_dir", ".mscat")
	v.SetDefault("data_db", "")
	v.SetDefault("vocab_db", "")
	v.SetDefault("thesaurus_file", filepath.Join("data", "thesaurus.yaml"))
	v.SetDefault("log_file", "")
	v.SetDefault("port", 8080)

	v.SetEnvPrefix("MSC")
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config %s: %w", path, err)
		}
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(v.GetString("data_dir"))
		v.AddConfigPath(".")
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return nil, fmt.Errorf("failed to read config: %w", err)
			}
		}
	}

	cfg := &Config{
		DataDir:       v.GetString("data_dir"),
		DataDB:        v.GetString("data_db"),
		VocabDB:       v.GetString("vocab_db"),
		ThesaurusFile: v.GetString("thesaurus_file"),
		LogFile:       v.GetString("log_file"),
		Port:          v.GetInt("port"),
	}

	if cfg.DataDB == "" {
		cfg.DataDB = filepath.Join(cfg.DataDir, "catalog.db")
	}
	if cfg.VocabDB == "" {
		cfg.VocabDB = filepath.Join(cfg.DataDir, "vocab.db")
	}

	return cfg, nil
}
