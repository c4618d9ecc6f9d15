package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/spf13/cobra"

	"github.com/yolodolo42/walletkit/internal/chain"
	"github.com/yolodolo42/walletkit/internal/ui"
)

var balanceCmd = &cobra.Command{
	Use:   "balance",
	Short: "Show native balances of the active account",
	Long:  `Display native token balances of the active account (or --address) on one or more chains.`,
	RunE:  runBalance,
}

func init() {
	rootCmd.AddCommand(balanceCmd)

	balanceCmd.Flags().String("address", "", "Address to check (uses the active account if not specified)")
	balanceCmd.Flags().StringSlice("chains", nil, "Chains to query (default is the account's chain)")
	balanceCmd.Flags().Bool("all", false, "Query every configured mainnet")
	balanceCmd.Flags().Bool("testnet", false, "With --all, include testnets")
}

func runBalance(cmd *cobra.Command, args []string) error {
	addressFlag, _ := cmd.Flags().GetString("address")
	chainNames, _ := cmd.Flags().GetStringSlice("chains")
	all, _ := cmd.Flags().GetBool("all")
	includeTestnet, _ := cmd.Flags().GetBool("testnet")

	return withApp(cmd, func(ctx context.Context, a *app) error {
		var (
			address common.Address
			chainID uint64
		)
		if addressFlag != "" {
			if !common.IsHexAddress(addressFlag) {
				return fmt.Errorf("invalid address: %s", addressFlag)
			}
			address = common.HexToAddress(addressFlag)
			id, err := a.chainID(cmd)
			if err != nil {
				return err
			}
			chainID = id
		} else {
			acct, err := a.restore(ctx)
			if err != nil {
				return err
			}
			address, chainID = acct.Address(), acct.ChainID()
		}

		registry := a.cfg.Registry()
		var targets []*chain.ChainConfig
		switch {
		case all:
			for _, name := range registry.Names() {
				c, _ := registry.Resolve(name)
				if c.IsTestnet && !includeTestnet {
					continue
				}
				targets = append(targets, c)
			}
		case len(chainNames) > 0:
			for _, name := range chainNames {
				c, err := registry.Resolve(name)
				if err != nil {
					return err
				}
				targets = append(targets, c)
			}
		default:
			c, ok := registry.ByID(chainID)
			if !ok {
				return fmt.Errorf("chain %d is not configured", chainID)
			}
			targets = append(targets, c)
		}

		ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
		defer cancel()

		fmt.Fprintf(a.out, "Balances for %s\n", ui.AddressStyle.Render(address.Hex()))
		fmt.Fprintln(a.out, "─────────────────────────────────────────────────────────")
		for _, c := range targets {
			balance, err := a.chain.GetNativeBalance(ctx, c.ID(), address)
			if err != nil {
				fmt.Fprintf(a.out, "%-14s  %s\n", c.Key, ui.ErrorStyle.Render("⚠ "+err.Error()))
				continue
			}

			indicator := "○"
			if balance.Balance.Sign() > 0 {
				indicator = ui.SymbolBullet
			}
			fmt.Fprintf(a.out, "%s %-14s  %s %s\n", indicator, c.Key, chain.FormatBalance(balance.Balance, balance.Decimals), balance.Symbol)
		}
		fmt.Fprintln(a.out, "─────────────────────────────────────────────────────────")
		return nil
	})
}
