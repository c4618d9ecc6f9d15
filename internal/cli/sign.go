package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/signer/core/apitypes"
	"github.com/spf13/cobra"
)

var signCmd = &cobra.Command{
	Use:   "sign [message]",
	Short: "Sign a message or EIP-712 typed data with the active account",
	Long: `Sign a personal message (EIP-191) or, with --typed-data, an EIP-712
document read from a JSON file. Smart wallets return signatures that
verify through ERC-1271, wrapped per ERC-6492 until deployed.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runSign,
}

func init() {
	rootCmd.AddCommand(signCmd)

	signCmd.Flags().String("typed-data", "", "Path to an EIP-712 JSON document")
	signCmd.Flags().Bool("hex", false, "Treat the message as 0x-prefixed hex bytes")
}

func runSign(cmd *cobra.Command, args []string) error {
	typedPath, _ := cmd.Flags().GetString("typed-data")
	asHex, _ := cmd.Flags().GetBool("hex")

	if typedPath == "" && len(args) == 0 {
		return fmt.Errorf("a message or --typed-data is required")
	}

	var (
		typed   *apitypes.TypedData
		message []byte
	)
	if typedPath != "" {
		raw, err := os.ReadFile(typedPath)
		if err != nil {
			return fmt.Errorf("failed to read typed data: %w", err)
		}
		typed = new(apitypes.TypedData)
		if err := json.Unmarshal(raw, typed); err != nil {
			return fmt.Errorf("invalid typed data: %w", err)
		}
	} else if asHex {
		b, err := hexutil.Decode(args[0])
		if err != nil {
			return fmt.Errorf("invalid hex message: %w", err)
		}
		message = b
	} else {
		message = []byte(args[0])
	}

	return withApp(cmd, func(ctx context.Context, a *app) error {
		acct, err := a.restore(ctx)
		if err != nil {
			return err
		}

		var sig []byte
		if typed != nil {
			sig, err = acct.SignTypedData(ctx, *typed)
		} else {
			sig, err = acct.SignMessage(ctx, message)
		}
		if err != nil {
			return err
		}
		fmt.Fprintln(a.out, hexutil.Encode(sig))
		return nil
	})
}
