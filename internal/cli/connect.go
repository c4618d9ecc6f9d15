package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/ethereum/go-ethereum/common"
	"github.com/spf13/cobra"

	"github.com/yolodolo42/walletkit/internal/connect"
	"github.com/yolodolo42/walletkit/internal/store"
	"github.com/yolodolo42/walletkit/internal/ui"
)

var connectCmd = &cobra.Command{
	Use:   "connect",
	Short: "Connect a wallet and make it the active account",
	Long: `Connect a wallet and make it the active account.

Providers:
  local          HD wallet kept on this machine (sealed mnemonic, keystore or key)
  metamask       MetaMask via its pairing bridge
  walletconnect  Any WalletConnect wallet via its pairing bridge
  magic          Magic email login (one-time code)
  hyperplay      HyperPlay launcher wallet
  injected       Browser extension wallet via the local bridge
  smartwallet    Smart account owned by another provider (--owner)

Without --provider an interactive picker is shown.`,
	RunE: runConnect,
}

var accountCmd = &cobra.Command{
	Use:   "account",
	Short: "Show the active account",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, func(ctx context.Context, a *app) error {
			acct, err := a.restore(ctx)
			if err != nil {
				return err
			}
			return printAccount(a.out, a, acct, jsonOutput(cmd))
		})
	},
}

var disconnectCmd = &cobra.Command{
	Use:   "disconnect",
	Short: "Disconnect the active account and forget its session",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, runDisconnect)
	},
}

func init() {
	rootCmd.AddCommand(connectCmd, accountCmd, disconnectCmd)

	f := connectCmd.Flags()
	f.String("provider", "", "Wallet provider")
	f.String("owner", string(connect.ProviderLocal), "Owner provider of a smart wallet")
	f.String("factory", "", "Smart wallet factory address (default from config)")
	f.String("mnemonic", "", "BIP-39 mnemonic for a local wallet")
	f.String("path", "", "Derivation path (default m/44'/60'/0'/0/0)")
	f.String("private-key", "", "Hex private key for a local wallet")
	f.String("keystore-account", "", "Keystore address for a local wallet")
	f.Bool("seal", false, "Seal --mnemonic with a password so later commands can reopen it")
	f.String("email", "", "Email for Magic login")
	f.String("endpoint", "", "Bridge endpoint, overriding config")
	f.String("sign-message", "", "Ask the wallet to sign this message to prove ownership")

	for _, c := range []*cobra.Command{connectCmd, accountCmd} {
		c.Flags().Bool("json", false, "Print the account as JSON")
	}
}

func jsonOutput(cmd *cobra.Command) bool {
	v, _ := cmd.Flags().GetBool("json")
	return v
}

func runConnect(cmd *cobra.Command, args []string) error {
	return withApp(cmd, func(ctx context.Context, a *app) error {
		providerFlag, _ := cmd.Flags().GetString("provider")
		if providerFlag == "" {
			if !interactive() {
				return fmt.Errorf("--provider is required when not running interactively")
			}
			picked, err := pickProvider(ctx, a)
			if err != nil {
				return err
			}
			providerFlag = picked
		}
		provider, err := connect.ParseProviderID(providerFlag)
		if err != nil {
			return err
		}
		chainID, err := a.chainID(cmd)
		if err != nil {
			return err
		}

		signMessage, _ := cmd.Flags().GetString("sign-message")
		conn, err := buildConnection(cmd, a, provider, chainID, signMessage)
		if err != nil {
			return err
		}

		acct, err := a.kit.Connect(ctx, conn)
		if err != nil {
			return err
		}

		if restorable(conn) {
			if err := a.remember(ctx, conn); err != nil {
				return fmt.Errorf("failed to save selection: %w", err)
			}
		} else {
			fmt.Fprintln(a.out, ui.WarningStyle.Render("This wallet is not remembered. Use --seal, a keystore account or a password-only local wallet to keep it active."))
		}
		return printAccount(a.out, a, acct, jsonOutput(cmd))
	})
}

// buildConnection turns flags into a Connection. Smart wallets build their
// owner from the same flags with --owner as its provider.
func buildConnection(cmd *cobra.Command, a *app, provider connect.ProviderID, chainID uint64, signMessage string) (*connect.Connection, error) {
	flags := cmd.Flags()

	if provider == connect.ProviderSmartWallet {
		ownerFlag, _ := flags.GetString("owner")
		owner, err := connect.ParseProviderID(ownerFlag)
		if err != nil {
			return nil, err
		}
		// the ownership proof is signed once, by the smart account
		personal, err := buildConnection(cmd, a, owner, chainID, "")
		if err != nil {
			return nil, err
		}
		factory := a.cfg.FactoryAddress()
		if s, _ := flags.GetString("factory"); s != "" {
			if !common.IsHexAddress(s) {
				return nil, fmt.Errorf("invalid factory address: %s", s)
			}
			factory = common.HexToAddress(s)
		}
		opts := []connect.Option{connect.WithPersonalWallet(personal), connect.WithFactory(factory)}
		if signMessage != "" {
			opts = append(opts, connect.WithPersonalSignMessage(signMessage))
		}
		return connect.NewConnection(provider, chainID, opts...)
	}

	var opts []connect.Option
	if signMessage != "" {
		opts = append(opts, connect.WithPersonalSignMessage(signMessage))
	}
	if endpoint, _ := flags.GetString("endpoint"); endpoint != "" {
		opts = append(opts, connect.WithEndpoint(endpoint))
	}
	if email, _ := flags.GetString("email"); email != "" {
		opts = append(opts, connect.WithEmail(email))
	}

	if provider == connect.ProviderLocal {
		localOpts, err := localOptions(cmd, a)
		if err != nil {
			return nil, err
		}
		opts = append(opts, localOpts...)
	}
	return connect.NewConnection(provider, chainID, opts...)
}

func localOptions(cmd *cobra.Command, a *app) ([]connect.Option, error) {
	flags := cmd.Flags()
	mnemonic, _ := flags.GetString("mnemonic")
	path, _ := flags.GetString("path")
	key, _ := flags.GetString("private-key")
	ksAccount, _ := flags.GetString("keystore-account")
	seal, _ := flags.GetBool("seal")

	var opts []connect.Option
	if path != "" {
		opts = append(opts, connect.WithDerivationPath(path))
	}

	switch {
	case key != "":
		return append(opts, connect.WithPrivateKey(key)), nil
	case mnemonic != "":
		opts = append(opts, connect.WithMnemonic(mnemonic))
		if !seal {
			return opts, nil
		}
		pw, err := a.password("Password to seal the mnemonic: ")
		if err != nil {
			return nil, err
		}
		return append(opts, connect.WithPassword(pw)), nil
	case ksAccount != "":
		if !common.IsHexAddress(ksAccount) {
			return nil, fmt.Errorf("invalid keystore account: %s", ksAccount)
		}
		opts = append(opts, connect.WithKeystoreAccount(common.HexToAddress(ksAccount)))
	}

	pw, err := a.password("Wallet password: ")
	if err != nil {
		return nil, err
	}
	return append(opts, connect.WithPassword(pw)), nil
}

// restorable reports whether the secret-free document can reconnect
func restorable(conn *connect.Connection) bool {
	if p := conn.PersonalWallet(); p != nil {
		return restorable(p)
	}
	if conn.Provider() != connect.ProviderLocal {
		return true
	}
	switch {
	case conn.PrivateKey() != "":
		return false
	case conn.Mnemonic() != "":
		return conn.Password() != ""
	}
	return true
}

func pickProvider(ctx context.Context, a *app) (string, error) {
	sessions, _ := a.kit.Sessions(ctx)
	remembered := make(map[connect.ProviderID]bool, len(sessions))
	for _, s := range sessions {
		remembered[s.Provider] = true
	}
	endpoints := a.cfg.Endpoints()

	items := make([]ui.SelectorItem, 0, len(connect.AllProviders()))
	for _, p := range connect.AllProviders() {
		item := ui.SelectorItem{ID: string(p), Label: p.DisplayName()}
		switch {
		case remembered[p]:
			item.Description = "session remembered"
		case p.Remote() && endpoints[p] == "":
			item.Description = "no endpoint configured"
			item.Disabled = true
		}
		items = append(items, item)
	}
	return ui.Select(ctx, a.in, a.out, "Choose a wallet", items)
}

func printAccount(out io.Writer, a *app, acct *connect.Account, asJSON bool) error {
	info := acct.Info()
	if asJSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(info)
	}

	chainName := fmt.Sprintf("chain %d", info.ChainID)
	if c, ok := a.cfg.Registry().ByID(info.ChainID); ok {
		chainName = c.Name
	}
	fmt.Fprintf(out, "%s Connected %s on %s\n", ui.SuccessStyle.Render(ui.SymbolCheck), ui.TitleStyle.Render(info.Provider.DisplayName()), chainName)
	fmt.Fprintf(out, "  Address: %s\n", ui.AddressStyle.Render(info.Address.Hex()))
	if info.Owner != nil {
		fmt.Fprintf(out, "  Owner:   %s (%s)\n", info.Owner.Address.Hex(), info.Owner.Provider.DisplayName())
	}
	if info.Deployed != nil && !*info.Deployed {
		fmt.Fprintln(out, ui.HelpStyle.Render("  Not deployed yet; the first transaction deploys it."))
	}
	if len(info.AuthSignature) > 0 {
		fmt.Fprintf(out, "  Proof:   %s\n", info.AuthSignature)
	}
	return nil
}

func runDisconnect(ctx context.Context, a *app) error {
	acct, err := a.restore(ctx)
	switch {
	case errors.Is(err, errNoSelection):
		fmt.Fprintln(a.out, "Nothing connected.")
		return nil
	case err != nil:
		// the wallet is gone; drop what we remember anyway
		a.log.Warn("could not reconnect to disconnect", "error", err)
		if err := a.forgetSelectionSessions(ctx); err != nil {
			return err
		}
	default:
		if err := acct.Disconnect(ctx); err != nil {
			a.log.Warn("disconnect reported an error", "error", err)
		}
	}
	if err := a.forget(ctx); err != nil {
		return err
	}
	fmt.Fprintln(a.out, ui.SuccessStyle.Render(ui.SymbolCheck)+" Disconnected.")
	return nil
}

// forgetSelectionSessions drops the session records of the remembered
// provider and its owner
func (a *app) forgetSelectionSessions(ctx context.Context) error {
	var doc connect.Document
	if err := store.GetJSON(ctx, a.kv, activeKey, &doc); err != nil {
		return nil
	}
	for d := &doc; d != nil; d = d.PersonalWallet {
		if p, err := connect.ParseProviderID(d.Provider); err == nil && p.Resumable() {
			if err := a.kit.ForgetSession(ctx, p); err != nil {
				return err
			}
		}
	}
	return nil
}
