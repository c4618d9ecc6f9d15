package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/spf13/cobra"

	"github.com/yolodolo42/walletkit/internal/aa"
	"github.com/yolodolo42/walletkit/internal/chain"
	"github.com/yolodolo42/walletkit/internal/connect"
	"github.com/yolodolo42/walletkit/internal/tx"
	"github.com/yolodolo42/walletkit/internal/ui"
)

var sendCmd = &cobra.Command{
	Use:   "send",
	Short: "Send a transaction from the active account",
	Long: `Send native currency or call a contract from the active account.

Local wallets sign and broadcast here; remote wallets ask for approval on
their side; smart wallets submit a user operation through the bundler.`,
	RunE: runSend,
}

func init() {
	rootCmd.AddCommand(sendCmd)

	sendCmd.Flags().String("to", "", "Recipient address")
	sendCmd.Flags().String("value", "0", "Amount in ether")
	sendCmd.Flags().String("data", "", "Calldata as 0x-prefixed hex")
	sendCmd.Flags().Uint64("gas", 0, "Gas limit (estimated when 0)")
	sendCmd.Flags().Bool("yes", false, "Skip the confirmation prompt")
	sendCmd.Flags().Bool("wait", false, "Wait for the transaction to be mined")
	_ = sendCmd.MarkFlagRequired("to")
}

func runSend(cmd *cobra.Command, args []string) error {
	req, err := sendRequest(cmd)
	if err != nil {
		return err
	}
	yes, _ := cmd.Flags().GetBool("yes")
	wait, _ := cmd.Flags().GetBool("wait")

	return withApp(cmd, func(ctx context.Context, a *app) error {
		acct, err := a.restore(ctx)
		if err != nil {
			return err
		}

		symbol := "ETH"
		if c, ok := a.cfg.Registry().ByID(acct.ChainID()); ok {
			symbol = c.NativeCurrency
		}
		fmt.Fprintf(a.out, "Send %s %s to %s from %s\n",
			chain.FormatBalance(req.ValueOrZero(), 18), symbol, req.To.Hex(), acct.Address().Hex())

		if !yes {
			if !interactive() {
				return fmt.Errorf("refusing to send without confirmation; pass --yes")
			}
			choice, err := ui.Select(ctx, a.in, a.out, "Confirm transaction", []ui.SelectorItem{
				{ID: "no", Label: "Cancel"},
				{ID: "yes", Label: "Send"},
			})
			if err != nil || choice != "yes" {
				fmt.Fprintln(a.out, "Cancelled.")
				return nil
			}
		}

		hash, err := acct.SendTransaction(ctx, req)
		if err != nil {
			return err
		}

		label := "Transaction"
		if acct.Backend() == connect.BackendSmart {
			label = "User operation"
		}
		fmt.Fprintf(a.out, "%s %s sent: %s\n", ui.SuccessStyle.Render(ui.SymbolCheck), label, hash.Hex())
		if c, ok := a.cfg.Registry().ByID(acct.ChainID()); ok && acct.Backend() != connect.BackendSmart {
			if link := c.TxURL(hash.Hex()); link != "" {
				fmt.Fprintf(a.out, "  %s\n", ui.HelpStyle.Render(link))
			}
		}

		if wait {
			return a.waitFor(ctx, acct, hash)
		}
		return nil
	})
}

func sendRequest(cmd *cobra.Command) (tx.Request, error) {
	flags := cmd.Flags()
	toFlag, _ := flags.GetString("to")
	valueFlag, _ := flags.GetString("value")
	dataFlag, _ := flags.GetString("data")
	gas, _ := flags.GetUint64("gas")

	if !common.IsHexAddress(toFlag) {
		return tx.Request{}, fmt.Errorf("invalid recipient address: %s", toFlag)
	}
	to := common.HexToAddress(toFlag)

	value, ok := chain.ParseEther(valueFlag)
	if !ok {
		return tx.Request{}, fmt.Errorf("invalid amount: %s", valueFlag)
	}

	req := tx.Request{To: &to, Value: value}
	if dataFlag != "" {
		data, err := hexutil.Decode(dataFlag)
		if err != nil {
			return tx.Request{}, fmt.Errorf("invalid calldata: %w", err)
		}
		req.Data = data
	}
	if gas > 0 {
		req.Gas = &gas
	}
	return req, req.Validate()
}

// waitFor polls for the receipt of a transaction or user operation
func (a *app) waitFor(ctx context.Context, acct *connect.Account, hash common.Hash) error {
	waitCtx, cancel := context.WithTimeout(ctx, 2*time.Minute)
	defer cancel()

	fmt.Fprintln(a.out, ui.HelpStyle.Render(ui.SymbolWait+" Waiting for inclusion..."))

	if acct.Backend() == connect.BackendSmart {
		b, err := a.dialBundler(waitCtx, acct.ChainID())
		if err != nil {
			return err
		}
		receipt, err := pollUserOp(waitCtx, b, hash)
		if err != nil {
			return err
		}
		fmt.Fprintf(a.out, "Included in %s (success: %t)\n", receipt.Receipt.TransactionHash.Hex(), receipt.Success)
		return nil
	}

	receipt, err := a.chain.WaitMined(waitCtx, acct.ChainID(), hash)
	if err != nil {
		return fmt.Errorf("failed waiting for receipt: %w", err)
	}
	fmt.Fprintf(a.out, "Mined in block %s (status: %d, gas used: %d)\n", receipt.BlockNumber, receipt.Status, receipt.GasUsed)
	return nil
}

func pollUserOp(ctx context.Context, b *aa.Bundler, hash common.Hash) (*aa.UserOpReceipt, error) {
	ticker := time.NewTicker(2 * time.Second)
	defer ticker.Stop()
	for {
		receipt, err := b.GetUserOperationReceipt(ctx, hash)
		if err != nil {
			return nil, err
		}
		if receipt != nil {
			return receipt, nil
		}
		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("user operation %s not included: %w", hash.Hex(), ctx.Err())
		case <-ticker.C:
		}
	}
}
