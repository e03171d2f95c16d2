package keygen

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/rovshanmuradov/friendkeys/internal/wallet"
)

const (
	OutKey     = "out"
	TradersKey = "traders"
)

func Command() *cobra.Command {
	c := &cobra.Command{
		Use:   "keygen",
		Short: "Generates owner, backend and trader wallets into a CSV file",
		RunE:  keygenFunc,
	}
	flags := c.Flags()
	flags.String(OutKey, "wallets.csv", "Destination CSV file")
	flags.Int(TradersKey, 4, "Number of trader wallets")
	return c
}

func keygenFunc(c *cobra.Command, _ []string) error {
	flags := c.Flags()
	out, err := flags.GetString(OutKey)
	if err != nil {
		return err
	}
	traders, err := flags.GetInt(TradersKey)
	if err != nil {
		return err
	}
	if traders < 1 {
		return errors.New("at least one trader is required")
	}

	names := []string{"owner", "backend"}
	for i := 0; i < traders; i++ {
		names = append(names, fmt.Sprintf("trader-%d", i+1))
	}
	wallets := make(map[string]*wallet.Wallet, len(names))
	for _, name := range names {
		w, err := wallet.Generate(name)
		if err != nil {
			return err
		}
		wallets[name] = w
	}
	if err := wallet.SaveWallets(out, wallets); err != nil {
		return err
	}

	for _, name := range names {
		fmt.Fprintf(c.OutOrStdout(), "%-10s %s\n", name, wallets[name].PublicKey)
	}
	fmt.Fprintf(c.OutOrStdout(), "wrote %d wallets to %s\n", len(names), out)
	return nil
}
