// Package cmd wires the CLI surface: flag parsing, logger setup, and the
// commands that drive downloads and capture verification.
package cmd

import (
	"log/slog"
	"os"

	"github.com/spf13/cobra"
)

var verbose bool

var rootCmd = &cobra.Command{
	Use:   "plusload",
	Short: "A resumable MangaPlus chapter downloader",
	Long:  "Download manga titles and chapters as raw images, CBZ, PDF, or EPUB, with resumable per-title manifests",
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable debug logging")
	rootCmd.AddCommand(downloadCmd)
	rootCmd.AddCommand(verifyCmd)
}

func newLogger() *slog.Logger {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
