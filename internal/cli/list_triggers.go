package cli

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/pveith/trix/internal/config"
	"github.com/pveith/trix/internal/logger"
	"github.com/pveith/trix/internal/store"
	"github.com/pveith/trix/pkg/models"
)

var listTriggersCmd = &cobra.Command{
	Use:   "list-triggers <registry>",
	Short: "List enabled triggers for a registry",
	Long: `Displays the enabled triggers stored for the given registry
(identity, reputation or validation), including each trigger's chain scope
and circuit breaker phase.`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		registry := args[0]

		cfg, err := config.LoadConfig(getConfigPath())
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error loading configuration: %v\n", err)
			os.Exit(1)
		}
		if err := logger.Init(cfg.Application, os.Stderr); err != nil {
			fmt.Fprintf(os.Stderr, "Error initializing logger: %v\n", err)
			os.Exit(1)
		}

		st, err := store.Open(cfg.Application.DatabasePath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error opening store: %v\n", err)
			os.Exit(1)
		}
		defer st.Close()

		printTriggers(st, registry, chainFlag)
	},
}

var chainFlag int64

func init() {
	listTriggersCmd.Flags().Int64Var(&chainFlag, "chain", 0, "Chain ID to match (wildcard triggers always listed)")
	rootCmd.AddCommand(listTriggersCmd)
}

func printTriggers(st *store.Store, registry string, chainID int64) {
	triggers, err := st.ListTriggers(context.Background(), chainID, registry)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error listing triggers: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("--- Enabled triggers (%s) ---\n", registry)
	if len(triggers) == 0 {
		fmt.Println("No triggers found.")
		return
	}
	for i, t := range triggers {
		chain := "any"
		if t.ChainID != nil {
			chain = fmt.Sprintf("%d", *t.ChainID)
		}
		fmt.Printf("[%d] %s\n", i, t.ID)
		if t.Name != "" {
			fmt.Printf("    Name: %s\n", t.Name)
		}
		fmt.Printf("    Chain: %s\n", chain)
		fmt.Printf("    Stateful: %v\n", t.Stateful)
		phase := t.BreakerState.Phase
		if phase == "" {
			phase = models.BreakerClosed
		}
		fmt.Printf("    Breaker: %s", phase)
		if t.BreakerState.ConsecutiveFailures > 0 {
			fmt.Printf(" (%d consecutive failures)", t.BreakerState.ConsecutiveFailures)
		}
		fmt.Println()
		fmt.Println("---")
	}
}
