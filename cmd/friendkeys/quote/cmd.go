package quote

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/rovshanmuradov/friendkeys/internal/config"
	"github.com/rovshanmuradov/friendkeys/internal/groups"
	"github.com/rovshanmuradov/friendkeys/internal/types"
)

const (
	PowerKey    = "power"
	ConstantKey = "constant"
	SupplyKey   = "supply"
	AmountKey   = "amount"
	SellKey     = "sell"
)

func Command() *cobra.Command {
	c := &cobra.Command{
		Use:   "quote",
		Short: "Prices a buy or sell on a bonding curve under the configured fees",
		RunE:  quoteFunc,
	}
	flags := c.Flags()
	flags.Uint64(PowerKey, 2, "Curve power")
	flags.Uint64(ConstantKey, 1_000_000, "Curve constant in nanoTON")
	flags.Uint64(SupplyKey, 0, "Current market supply")
	flags.Uint64(AmountKey, 1, "Keys to trade")
	flags.Bool(SellKey, false, "Price the top keys of the supply instead of the next ones")
	return c
}

func quoteFunc(c *cobra.Command, _ []string) error {
	flags := c.Flags()
	path, err := flags.GetString("config")
	if err != nil {
		return err
	}
	cfg, err := config.LoadConfig(path)
	if err != nil {
		return err
	}
	power, err := flags.GetUint64(PowerKey)
	if err != nil {
		return err
	}
	constant, err := flags.GetUint64(ConstantKey)
	if err != nil {
		return err
	}
	supply, err := flags.GetUint64(SupplyKey)
	if err != nil {
		return err
	}
	amount, err := flags.GetUint64(AmountKey)
	if err != nil {
		return err
	}
	sell, err := flags.GetBool(SellKey)
	if err != nil {
		return err
	}

	start := supply
	if sell {
		if amount > supply {
			return fmt.Errorf("cannot sell %d of %d keys", amount, supply)
		}
		start = supply - amount
	}
	price, err := groups.QuotePrice(power, constant, start, amount)
	if err != nil {
		return err
	}
	pf := types.Percent(price, cfg.Core.PlatformFee)
	gf := types.Percent(price, cfg.Core.GroupFee)

	w := tabwriter.NewWriter(c.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintf(w, "price\t%s TON\n", types.FormatTON(price))
	fmt.Fprintf(w, "platform fee\t%s TON\n", types.FormatTON(pf))
	fmt.Fprintf(w, "group fee\t%s TON\n", types.FormatTON(gf))
	if sell {
		fmt.Fprintf(w, "proceeds\t%s TON\n", types.FormatTON(price-min(price, pf+gf)))
		fmt.Fprintf(w, "attach\t%s TON\n", types.FormatTON(cfg.Core.LogicGasConsumption+cfg.Core.RefGasConsumption))
	} else {
		keysValue := price + pf + gf
		fmt.Fprintf(w, "keys value\t%s TON\n", types.FormatTON(keysValue))
		fmt.Fprintf(w, "attach\t%s TON\n", types.FormatTON(keysValue+cfg.Core.LogicGasConsumption+cfg.Core.RefGasConsumption))
	}
	return w.Flush()
}
