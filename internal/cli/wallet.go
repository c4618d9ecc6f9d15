package cli

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/yolodolo42/walletkit/internal/connect"
	"github.com/yolodolo42/walletkit/internal/ui"
	"github.com/yolodolo42/walletkit/internal/wallet"
)

var walletCmd = &cobra.Command{
	Use:   "wallet",
	Short: "Manage local wallets",
	Long:  `Create, import, and manage the local HD wallet and keystore accounts.`,
}

var walletCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Create a new keystore account",
	RunE:  runWalletCreate,
}

var walletImportCmd = &cobra.Command{
	Use:   "import",
	Short: "Import a private key or mnemonic into the keystore",
	RunE:  runWalletImport,
}

var walletListCmd = &cobra.Command{
	Use:   "list",
	Short: "List keystore accounts",
	RunE:  runWalletList,
}

var walletMnemonicCmd = &cobra.Command{
	Use:   "mnemonic",
	Short: "Generate or export the local HD wallet mnemonic",
}

var walletMnemonicNewCmd = &cobra.Command{
	Use:   "new",
	Short: "Print a fresh mnemonic",
	RunE: func(cmd *cobra.Command, args []string) error {
		words, _ := cmd.Flags().GetInt("words")
		bits, ok := map[int]int{12: 128, 15: 160, 18: 192, 21: 224, 24: 256}[words]
		if !ok {
			return fmt.Errorf("--words must be 12, 15, 18, 21 or 24")
		}
		mnemonic, err := wallet.NewMnemonic(bits)
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), mnemonic)
		return nil
	},
}

var walletMnemonicExportCmd = &cobra.Command{
	Use:   "export",
	Short: "Print the sealed local mnemonic",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, func(ctx context.Context, a *app) error {
			pw, err := a.password("Wallet password: ")
			if err != nil {
				return err
			}
			mnemonic, err := a.kit.ExportMnemonic(ctx, pw)
			if err != nil {
				return fmt.Errorf("failed to open mnemonic: %w", err)
			}
			fmt.Fprintln(a.out, ui.WarningStyle.Render("Anyone with these words controls the wallet."))
			fmt.Fprintln(a.out, mnemonic)
			return nil
		})
	},
}

func init() {
	rootCmd.AddCommand(walletCmd)
	walletCmd.AddCommand(walletCreateCmd, walletImportCmd, walletListCmd, walletMnemonicCmd)
	walletMnemonicCmd.AddCommand(walletMnemonicNewCmd, walletMnemonicExportCmd)

	walletImportCmd.Flags().String("key", "", "Private key to import (hex, with or without 0x prefix)")
	walletImportCmd.Flags().String("mnemonic", "", "Mnemonic to derive the imported key from")
	walletImportCmd.Flags().String("path", wallet.DefaultDerivationPath, "Derivation path for --mnemonic")
	walletMnemonicNewCmd.Flags().Int("words", 12, "Number of words")
}

// newPassword asks twice and enforces the minimum length
func newPassword(a *app) (string, error) {
	password, err := a.password("Enter password for the wallet: ")
	if err != nil {
		return "", fmt.Errorf("failed to read password: %w", err)
	}
	if len(password) < 8 {
		return "", fmt.Errorf("password must be at least 8 characters")
	}
	if !interactive() {
		return password, nil
	}

	confirm, err := readPassword("Confirm password: ")
	if err != nil {
		return "", fmt.Errorf("failed to read password confirmation: %w", err)
	}
	if password != confirm {
		return "", fmt.Errorf("passwords do not match")
	}
	return password, nil
}

func runWalletCreate(cmd *cobra.Command, args []string) error {
	return withApp(cmd, func(ctx context.Context, a *app) error {
		password, err := newPassword(a)
		if err != nil {
			return err
		}

		account, err := a.keystore.CreateAccount(password)
		if err != nil {
			return fmt.Errorf("failed to create account: %w", err)
		}

		fmt.Fprintln(a.out, "\nWallet created successfully!")
		fmt.Fprintf(a.out, "Address: %s\n", account.Address.Hex())
		fmt.Fprintf(a.out, "Keystore: %s\n", account.URL.Path)
		fmt.Fprintln(a.out, "\nIMPORTANT: Back up your keystore file and remember your password!")
		fmt.Fprintf(a.out, "Connect it with: walletkit connect --provider %s --keystore-account %s\n", connect.ProviderLocal, account.Address.Hex())
		return nil
	})
}

func runWalletImport(cmd *cobra.Command, args []string) error {
	privateKey, _ := cmd.Flags().GetString("key")
	mnemonic, _ := cmd.Flags().GetString("mnemonic")
	path, _ := cmd.Flags().GetString("path")

	return withApp(cmd, func(ctx context.Context, a *app) error {
		if privateKey == "" && mnemonic == "" {
			if !interactive() {
				return fmt.Errorf("--key or --mnemonic is required")
			}
			input, err := ui.Ask(ctx, a.in, a.out, "Private key (hex)", true)
			if err != nil {
				return err
			}
			privateKey = strings.TrimSpace(input)
		}

		var signer *wallet.KeySigner
		var err error
		if mnemonic != "" {
			signer, err = wallet.DeriveSigner(mnemonic, "", path)
		} else {
			signer, err = wallet.ParsePrivateKey(privateKey)
		}
		if err != nil {
			return fmt.Errorf("failed to import key: %w", err)
		}
		defer signer.Lock()

		password, err := newPassword(a)
		if err != nil {
			return err
		}

		account, err := a.keystore.ImportSigner(signer, password)
		if err != nil {
			return fmt.Errorf("failed to import key: %w", err)
		}

		fmt.Fprintln(a.out, "\nWallet imported successfully!")
		fmt.Fprintf(a.out, "Address: %s\n", account.Address.Hex())
		fmt.Fprintf(a.out, "Keystore: %s\n", account.URL.Path)
		return nil
	})
}

func runWalletList(cmd *cobra.Command, args []string) error {
	return withApp(cmd, func(ctx context.Context, a *app) error {
		accounts := a.keystore.ListAccounts()

		if len(accounts) == 0 {
			fmt.Fprintln(a.out, "No wallets found.")
			fmt.Fprintln(a.out, "Use 'walletkit wallet create' to create a new wallet.")
			return nil
		}

		fmt.Fprintf(a.out, "Found %d wallet(s):\n\n", len(accounts))
		for i, acc := range accounts {
			fmt.Fprintf(a.out, "%d. %s\n", i+1, acc.Address.Hex())
		}
		return nil
	})
}
