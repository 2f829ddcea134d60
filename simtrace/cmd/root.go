// Package cmd provides the command-line interface for simtrace.
package cmd

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
	"github.com/tebeka/atexit"
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "simtrace",
	Short: "simtrace runs a simulated design and records its waveform.",
	Long: `simtrace instantiates a simulated hardware design, evaluates it for ` +
		`a fixed number of steps and dumps the state of its signals into a ` +
		`value change dump after every step.`,
	Version:       Version,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
		_, err := colorMode(cmd)
		return err
	},
}

func init() {
	rootCmd.PersistentFlags().String("color", "auto",
		"colorize output (auto|on|off)")
	rootCmd.PersistentFlags().BoolP("verbose", "v", false,
		"log every lifecycle step")
}

// Execute adds all child commands to the root command and sets flags
// appropriately. Registered exit handlers always run.
func Execute() {
	err := rootCmd.Execute()
	if err != nil {
		p := newPrinter(rootCmd, os.Stderr)
		p.fail("Error: %v", err)

		atexit.Exit(1)
	}

	atexit.Exit(0)
}

func newLogger(cmd *cobra.Command) *slog.Logger {
	level := slog.LevelWarn

	verbose, err := cmd.Root().PersistentFlags().GetBool("verbose")
	if err == nil && verbose {
		level = slog.LevelInfo
	}

	return slog.New(slog.NewTextHandler(os.Stderr,
		&slog.HandlerOptions{Level: level}))
}

func colorMode(cmd *cobra.Command) (string, error) {
	mode, err := cmd.Root().PersistentFlags().GetString("color")
	if err != nil {
		return "", err
	}

	switch mode {
	case "auto", "on", "off":
		return mode, nil
	default:
		return "", fmt.Errorf("invalid color mode %q, want auto, on or off",
			mode)
	}
}
