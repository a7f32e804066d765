package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/yairfalse/lasku/orchestrator"
)

var syncCmd = &cobra.Command{
	Use:   "sync [provider-id]",
	Short: "Run one sync cycle",
	Long: `Sync every enabled provider once, or a single provider when its
id is given. Each provider gets its own snapshot; a billing failure on one
provider never affects the others.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runSync,
}

func init() {
	rootCmd.AddCommand(syncCmd)
}

func runSync(cmd *cobra.Command, args []string) error {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	a, err := buildApp(configPath)
	if err != nil {
		return err
	}
	defer a.close()

	specs := a.specs
	if len(args) == 1 {
		specs = nil
		for _, spec := range a.specs {
			if spec.ProviderID == args[0] {
				specs = []orchestrator.ProviderSpec{spec}
			}
		}
		if specs == nil {
			return fmt.Errorf("provider %s not found in config", args[0])
		}
	}

	reports := a.orch.SyncAll(ctx, specs, "manual")
	printReports(reports)

	for _, r := range reports {
		if r.Err != nil {
			return fmt.Errorf("provider %s: %w", r.ProviderID, r.Err)
		}
	}
	return nil
}

func printReports(reports []orchestrator.SyncReport) {
	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "PROVIDER\tSTATUS\tRESOURCES\tCREATED\tUPDATED\tDELETED\tDAILY COST\tDURATION")
	for _, r := range reports {
		fmt.Fprintf(w, "%s\t%s\t%d\t%d\t%d\t%d\t%.2f\t%s\n",
			r.ProviderID, r.Status, r.ResourcesSynced,
			r.Created, r.Updated, r.Deleted, r.TotalCost, r.Duration.Round(time.Millisecond))
	}
	_ = w.Flush()

	for _, r := range reports {
		for _, warning := range r.Warnings {
			fmt.Printf("warning (%s): %s\n", r.ProviderID, warning)
		}
	}
}
