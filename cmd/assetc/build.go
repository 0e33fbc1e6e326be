package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/Faultbox/midgard-assets/internal/driver"
)

var buildCmd = &cobra.Command{
	Use:   "build manifest...",
	Short: "Compile every asset listed in the manifests",
	Long: `Build reads each manifest (one source path per line), routes every entry
to a compiler by the configured rules and writes the compiled artifacts.
A failed entry does not stop the build; the command exits non-zero if any
entry failed.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runBuild,
}

var (
	okColor   = color.New(color.FgGreen, color.Bold)
	failColor = color.New(color.FgRed, color.Bold)
	skipColor = color.New(color.FgYellow)
)

func runBuild(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	d, err := driver.New(cfg, driver.DefaultRegistry(cfg))
	if err != nil {
		return err
	}

	results, err := d.Run(ctx, args)
	printResults(cmd.OutOrStdout(), results)
	if err != nil {
		return err
	}
	if driver.Failed(results) {
		return fmt.Errorf("build failed")
	}
	return nil
}

// printResults writes one line per entry and a summary.
func printResults(w io.Writer, results []driver.Result) {
	for _, r := range results {
		switch r.Status {
		case driver.StatusOK:
			fmt.Fprintf(w, "%s %s\n", okColor.Sprintf("%-4s", r.Status), r.Entry)
		case driver.StatusFailed:
			fmt.Fprintf(w, "%s %s: %v\n", failColor.Sprintf("%-4s", r.Status), r.Entry, r.Err)
		case driver.StatusSkipped:
			fmt.Fprintf(w, "%s %s (no matching rule)\n", skipColor.Sprintf("%-4s", r.Status), r.Entry)
		}
	}

	ok, failed, skipped := driver.Counts(results)
	fmt.Fprintf(w, "\n%d compiled, %d failed, %d skipped\n", ok, failed, skipped)
}
