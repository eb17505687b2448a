// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package main is the entry point for the explainer-engine CLI. It answers
// a free-text query with an animated explainer video and manages the
// knowledge graph and video store behind it.
package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.yaml.in/yaml/v3"

	"github.com/pdiddy/explainer-engine/internal/logging"
	"github.com/pdiddy/explainer-engine/internal/secrets"
	"github.com/pdiddy/explainer-engine/pkg/types"
)

// version is set at build time via ldflags.
var version = "dev"

// secretsDir holds API key files, one per key.
const secretsDir = ".secrets/"

var (
	// logger is built in PersistentPreRunE from --debug.
	logger = zap.NewNop()

	// loadedSecrets holds API keys loaded from .secrets/ at startup.
	loadedSecrets = secrets.Secrets{}
)

// envKeyReplacer maps nested keys such as graph.graph_dir to
// EXPLAINER_ENGINE_GRAPH_GRAPH_DIR.
var envKeyReplacer = strings.NewReplacer(".", "_")

// rootCmd is the base command for the explainer-engine CLI.
var rootCmd = &cobra.Command{
	Use:   "explainer-engine",
	Short: "Turn a question into an animated explainer video",
	Long: `explainer-engine answers a query with a short narrated slide video.

The query is matched against a local knowledge graph, the best concept and
its neighbours are handed to Claude to write slides and narration, the
result is normalized, rendered with Manim in a container, and stored under
the query that asked for it.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		l, err := logging.New(viper.GetBool("debug"))
		if err != nil {
			return fmt.Errorf("building logger: %w", err)
		}
		logger = l
		zap.ReplaceGlobals(l)

		if f := viper.ConfigFileUsed(); f != "" {
			logger.Info("using config file", zap.String("path", f))
		}

		s, err := secrets.Load(secretsDir, logger)
		if err != nil {
			return err
		}
		loadedSecrets = s
		if names := s.Names(); len(names) > 0 {
			logger.Debug("loaded secrets", zap.Strings("names", names))
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		_ = logger.Sync()
	},
}

func init() {
	cobra.OnInitialize(initConfig)

	pf := rootCmd.PersistentFlags()
	pf.String("config", "", "config file (default: ./explainer-engine.yaml or ~/.config/explainer-engine/explainer-engine.yaml)")
	pf.Bool("debug", false, "human-readable debug logging")
	pf.String("graph-dir", "", "knowledge graph directory (contains concepts/, index/)")
	pf.String("storage-dir", "", "directory for stored videos and the catalog")

	bindFlags(rootCmd, map[string]string{
		"debug":               "debug",
		"graph.graph_dir":     "graph-dir",
		"storage.storage_dir": "storage-dir",
	}, true)
}

func initConfig() {
	cfgFile, _ := rootCmd.PersistentFlags().GetString("config")
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.SetConfigName("explainer-engine")
		viper.SetConfigType("yaml")
		viper.AddConfigPath(".")

		home, err := os.UserHomeDir()
		if err == nil {
			viper.AddConfigPath(filepath.Join(home, ".config", "explainer-engine"))
		}
	}

	setDefaults()
	viper.SetEnvPrefix("EXPLAINER_ENGINE")
	viper.SetEnvKeyReplacer(envKeyReplacer)
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			fmt.Fprintf(os.Stderr, "warning: reading config: %v\n", err)
		}
	}
}

// setDefaults registers every PipelineConfig field with viper so config
// files and EXPLAINER_ENGINE_* variables can override any of them.
func setDefaults() {
	data, err := yaml.Marshal(types.DefaultPipelineConfig())
	if err != nil {
		return
	}
	var m map[string]any
	if err := yaml.Unmarshal(data, &m); err != nil {
		return
	}
	for k, v := range m {
		viper.SetDefault(k, v)
	}
}

// loadConfig resolves the pipeline configuration from defaults, the config
// file, environment and flags, fills the API key from secrets, and
// validates the result.
func loadConfig() (types.PipelineConfig, error) {
	cfg := types.DefaultPipelineConfig()
	if err := viper.Unmarshal(&cfg); err != nil {
		return types.PipelineConfig{}, fmt.Errorf("decoding config: %w", err)
	}
	if cfg.Generation.APIKey == "" {
		cfg.Generation.APIKey = loadedSecrets.Get(secrets.AnthropicAPIKey)
	}
	if err := validator.New().Struct(cfg); err != nil {
		return types.PipelineConfig{}, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// bindFlags binds viper keys to the named flags of cmd. Persistent selects
// the persistent flag set. Flags that are set override config and env.
func bindFlags(cmd *cobra.Command, keys map[string]string, persistent bool) {
	flags := cmd.Flags()
	if persistent {
		flags = cmd.PersistentFlags()
	}
	for key, name := range keys {
		if err := viper.BindPFlag(key, flags.Lookup(name)); err != nil {
			panic(fmt.Sprintf("binding flag %s: %v", name, err))
		}
	}
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
