package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/term"

	"github.com/yolodolo42/walletkit/internal/aa"
	"github.com/yolodolo42/walletkit/internal/chain"
	"github.com/yolodolo42/walletkit/internal/config"
	"github.com/yolodolo42/walletkit/internal/connect"
	"github.com/yolodolo42/walletkit/internal/logger"
	"github.com/yolodolo42/walletkit/internal/metrics"
	"github.com/yolodolo42/walletkit/internal/store"
	"github.com/yolodolo42/walletkit/internal/ui"
	"github.com/yolodolo42/walletkit/internal/wallet"
)

// activeKey holds the connection document of the active selection
const activeKey = "cli/active"

// passwordEnv unlocks local wallets without a prompt
const passwordEnv = "WALLETKIT_PASSWORD"

// app is everything one command invocation needs
type app struct {
	cfg      *config.Config
	log      *slog.Logger
	kv       store.KV
	journal  *store.Journal
	chain    *chain.Client
	keystore *wallet.KeystoreManager
	metrics  *metrics.Metrics
	kit      *connect.Kit

	in  io.Reader
	out io.Writer

	bundlerMu sync.Mutex
	bundlers  map[uint64]*aa.Bundler
}

// newApp loads config and builds the Kit. approver may be nil for the
// terminal approver.
func newApp(cmd *cobra.Command, approver connect.Approver) (*app, error) {
	cfg, err := config.Load(viper.GetViper())
	if err != nil {
		return nil, err
	}

	// installed as the default so packages logging without a Kit agree
	if err := logger.Init(logger.Options{Level: cfg.Log.Level, Format: cfg.Log.Format, Output: cmd.ErrOrStderr()}); err != nil {
		return nil, err
	}
	log := slog.Default()

	kv, err := store.Open(cfg.Store.Driver, cfg.DataDir)
	if err != nil {
		return nil, fmt.Errorf("failed to open store: %w", err)
	}

	a := &app{
		cfg:      cfg,
		log:      log,
		kv:       kv,
		in:       cmd.InOrStdin(),
		out:      cmd.OutOrStdout(),
		bundlers: make(map[uint64]*aa.Bundler),
	}

	a.journal, err = store.OpenJournal(cfg.DataDir)
	if err != nil {
		log.Warn("journal disabled", "error", err)
	}
	a.keystore, err = wallet.NewKeystoreManager(cfg.DataDir)
	if err != nil {
		_ = kv.Close()
		return nil, fmt.Errorf("failed to initialize keystore: %w", err)
	}
	a.chain = chain.NewClient(cfg.Chains, chain.WithRateLimit(cfg.RPC.RateLimit, cfg.RPC.Burst))
	a.metrics = metrics.New()

	if approver == nil {
		approver = ui.NewTerminalApprover(a.in, a.out)
	}

	deps := connect.Deps{
		Chain:          a.chain,
		Store:          kv,
		Keystore:       a.keystore,
		Approver:       approver,
		Endpoints:      cfg.Endpoints(),
		Timeouts:       cfg.Timeouts(),
		DefaultTimeout: cfg.Connect.Timeout,
		EntryPoint:     cfg.EntryPointAddress(),
		Journal:        a.journal,
		Metrics:        a.metrics,
		Logger:         log,
	}
	if cfg.Smart.BundlerURL != "" {
		deps.Bundlers = a.bundler
	}

	a.kit, err = connect.New(deps)
	if err != nil {
		a.Close()
		return nil, err
	}
	return a, nil
}

// bundler is the Kit's bundler source
func (a *app) bundler(ctx context.Context, chainID uint64) (connect.Bundler, error) {
	b, err := a.dialBundler(ctx, chainID)
	if err != nil {
		return nil, err
	}
	return b, nil
}

// dialBundler dials one bundler per chain and reuses it
func (a *app) dialBundler(ctx context.Context, chainID uint64) (*aa.Bundler, error) {
	if a.cfg.Smart.BundlerURL == "" {
		return nil, errors.New("no bundler configured (smart.bundler_url)")
	}
	a.bundlerMu.Lock()
	defer a.bundlerMu.Unlock()
	if b, ok := a.bundlers[chainID]; ok {
		return b, nil
	}
	b, err := aa.DialBundler(ctx, a.cfg.BundlerURL(chainID))
	if err != nil {
		return nil, err
	}
	a.bundlers[chainID] = b
	return b, nil
}

func (a *app) Close() {
	if a.kit != nil {
		_ = a.kit.Close()
	}
	a.bundlerMu.Lock()
	for _, b := range a.bundlers {
		b.Close()
	}
	a.bundlerMu.Unlock()
	if a.chain != nil {
		a.chain.Close()
	}
	if a.journal != nil {
		a.journal.Close()
	}
	if a.kv != nil {
		_ = a.kv.Close()
	}
}

// chainID resolves the --chain flag or the configured default
func (a *app) chainID(cmd *cobra.Command) (uint64, error) {
	name := a.cfg.Chain
	if f := cmd.Flags().Lookup("chain"); f != nil && f.Changed {
		name = f.Value.String()
	}
	c, err := a.cfg.Registry().Resolve(name)
	if err != nil {
		return 0, err
	}
	return c.ID(), nil
}

// remember persists conn as the active selection, secrets left out
func (a *app) remember(ctx context.Context, conn *connect.Connection) error {
	return store.PutJSON(ctx, a.kv, activeKey, conn.Document(false))
}

func (a *app) forget(ctx context.Context) error {
	err := a.kv.Delete(ctx, activeKey)
	if errors.Is(err, store.ErrNotFound) {
		return nil
	}
	return err
}

var errNoSelection = errors.New("no wallet connected; run 'walletkit connect' first")

// restore reconnects the remembered selection. Remote sessions resume
// without approval; local wallets ask for their password.
func (a *app) restore(ctx context.Context) (*connect.Account, error) {
	var doc connect.Document
	if err := store.GetJSON(ctx, a.kv, activeKey, &doc); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, errNoSelection
		}
		return nil, err
	}
	// ownership was proven when the selection was made
	doc.PersonalSignMessage = ""
	if err := a.unlock(&doc); err != nil {
		return nil, err
	}
	conn, err := doc.Connection()
	if err != nil {
		return nil, err
	}
	return a.kit.Connect(ctx, conn)
}

// unlock fills in the password of local documents, nested ones included
func (a *app) unlock(doc *connect.Document) error {
	if doc.PersonalWallet != nil {
		return a.unlock(doc.PersonalWallet)
	}
	if doc.Provider != string(connect.ProviderLocal) || doc.Mnemonic != "" || doc.PrivateKey != "" || doc.Password != "" {
		return nil
	}
	pw, err := a.password("Wallet password: ")
	if err != nil {
		return err
	}
	doc.Password = pw
	return nil
}

// password reads WALLETKIT_PASSWORD or prompts without echo
func (a *app) password(prompt string) (string, error) {
	if pw := os.Getenv(passwordEnv); pw != "" {
		return pw, nil
	}
	return readPassword(prompt)
}

func interactive() bool {
	return term.IsTerminal(int(os.Stdin.Fd()))
}

func readPassword(prompt string) (string, error) {
	if !interactive() {
		return "", fmt.Errorf("password required: set %s or run interactively", passwordEnv)
	}
	fmt.Fprint(os.Stderr, prompt)
	password, err := term.ReadPassword(int(os.Stdin.Fd()))
	fmt.Fprintln(os.Stderr) // newline after password input
	if err != nil {
		return "", err
	}
	return string(password), nil
}

// withApp runs fn with a fresh app and closes it afterwards
func withApp(cmd *cobra.Command, fn func(ctx context.Context, a *app) error) error {
	a, err := newApp(cmd, nil)
	if err != nil {
		return err
	}
	defer a.Close()
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	return fn(ctx, a)
}
