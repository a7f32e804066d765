package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sort"
	"syscall"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/yairfalse/lasku/orchestrator"
	"github.com/yairfalse/lasku/plugin"
)

var checkConnection bool

var providersCmd = &cobra.Command{
	Use:   "providers",
	Short: "List configured providers and plugin capabilities",
	RunE:  runProviders,
}

var mappingsCmd = &cobra.Command{
	Use:   "mappings <provider-id>",
	Short: "Show a provider's raw-type to canonical-type table",
	Args:  cobra.ExactArgs(1),
	RunE:  runMappings,
}

func init() {
	providersCmd.Flags().BoolVar(&checkConnection, "check", false, "Test connectivity against the live APIs")
	rootCmd.AddCommand(providersCmd)
	rootCmd.AddCommand(mappingsCmd)
}

func runProviders(cmd *cobra.Command, args []string) error {
	a, err := buildApp(configPath)
	if err != nil {
		return err
	}
	defer a.close()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	if checkConnection {
		fmt.Fprintln(w, "PROVIDER\tTYPE\tBILLING\tINVENTORY\tSTATS\tACCOUNT RATE\tCONNECTION")
	} else {
		fmt.Fprintln(w, "PROVIDER\tTYPE\tBILLING\tINVENTORY\tSTATS\tACCOUNT RATE")
	}
	for _, spec := range a.specs {
		caps := spec.Plugin.Capabilities()
		row := fmt.Sprintf("%s\t%s\t%s\t%s\t%s\t%s",
			spec.ProviderID, spec.Plugin.ProviderType(),
			yn(caps.HasBillingAPI), yn(caps.HasInventoryAPI),
			yn(caps.HasServerStats), yn(caps.HasAccountRate))
		if checkConnection {
			row += "\t" + connectionStatus(ctx, spec)
		}
		fmt.Fprintln(w, row)
	}
	if err := w.Flush(); err != nil {
		return err
	}

	fmt.Printf("\nregistered plugin types: %v\n", plugin.List())
	return nil
}

func connectionStatus(ctx context.Context, spec orchestrator.ProviderSpec) string {
	res, err := spec.Plugin.TestConnection(ctx)
	if err != nil {
		return "error: " + err.Error()
	}
	if !res.Success {
		return "unreachable: " + res.Message
	}
	return "ok"
}

func yn(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}

func runMappings(cmd *cobra.Command, args []string) error {
	a, err := buildApp(configPath)
	if err != nil {
		return err
	}
	defer a.close()

	for _, spec := range a.specs {
		if spec.ProviderID != args[0] {
			continue
		}
		mappings := spec.Plugin.ResourceMappings()
		raw := make([]string, 0, len(mappings))
		for k := range mappings {
			raw = append(raw, k)
		}
		sort.Strings(raw)

		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "RAW TYPE\tCANONICAL TYPE")
		for _, k := range raw {
			fmt.Fprintf(w, "%s\t%s\n", k, mappings[k])
		}
		return w.Flush()
	}
	return fmt.Errorf("provider %s not found in config", args[0])
}
