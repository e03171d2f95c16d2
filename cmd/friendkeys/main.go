// cmd/friendkeys/main.go
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/rovshanmuradov/friendkeys/cmd/friendkeys/keygen"
	"github.com/rovshanmuradov/friendkeys/cmd/friendkeys/quote"
	"github.com/rovshanmuradov/friendkeys/cmd/friendkeys/simulate"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	root := &cobra.Command{
		Use:           "friendkeys",
		Short:         "Bonding-curve key marketplace",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().String(simulate.ConfigKey, "", "Configuration file (yaml, json or toml)")
	root.AddCommand(
		simulate.Command(),
		quote.Command(),
		keygen.Command(),
	)

	if err := root.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}
