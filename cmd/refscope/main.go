package main

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/xonecas/refscope/internal/config"
)

// version is stamped at build time with -ldflags "-X main.version=...".
var version = "dev"

var (
	flagConfig string
	flagFormat string
)

// cfg is loaded once per invocation by the root command.
var cfg *config.Config

// logCloser releases the log file when the panel owned the terminal.
var logCloser io.Closer

func main() {
	err := rootCmd.Execute()
	if logCloser != nil {
		_ = logCloser.Close()
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:           "refscope",
	Short:         "Classified find-references for the terminal",
	Long:          "Refscope asks a language server for the references of a symbol and groups them by declaration, enclosing function, type or import, directory and file.",
	SilenceErrors: true,
	SilenceUsage:  true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		cfg, err = config.Load(flagConfig)
		if err != nil {
			return err
		}
		return setupLogging(cfg.Logging, flagFormat == formatTUI)
	},
	// No Run, prints help by default.
}

func init() {
	rootCmd.PersistentFlags().StringVar(&flagConfig, "config", "", "config file (default: ~/.config/refscope/config.toml)")

	rootCmd.AddCommand(refsCmd)
	rootCmd.AddCommand(declsCmd)
	rootCmd.AddCommand(versionCmd)
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the refscope version",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "refscope %s\n", version)
	},
}

// setupLogging points the global zerolog logger at stderr, or at a file
// when the panel owns the terminal.
func setupLogging(lc config.LoggingConfig, toFile bool) error {
	level := zerolog.InfoLevel
	if lc.Level != "" {
		parsed, err := zerolog.ParseLevel(lc.Level)
		if err != nil {
			return fmt.Errorf("logging.level: %w", err)
		}
		level = parsed
	}
	zerolog.SetGlobalLevel(level)

	if !toFile {
		log.Logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen}).
			With().Timestamp().Logger()
		return nil
	}

	path := lc.File
	if path == "" {
		dir, err := config.EnsureDataDir()
		if err != nil {
			return fmt.Errorf("failed to create data directory: %w", err)
		}
		path = filepath.Join(dir, "refscope.log")
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0600)
	if err != nil {
		return fmt.Errorf("failed to open log file: %w", err)
	}
	logCloser = f
	log.Logger = zerolog.New(f).With().Timestamp().Logger()
	return nil
}
