// Package connect is the multi-provider wallet connection façade. A Kit
// resolves a Connection to a signing backend and hands back one uniform
// Account.
package connect

import (
	"context"
	"errors"
	"log/slog"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/google/uuid"

	"github.com/yolodolo42/walletkit/internal/aa"
	"github.com/yolodolo42/walletkit/internal/logger"
	"github.com/yolodolo42/walletkit/internal/metrics"
	"github.com/yolodolo42/walletkit/internal/store"
	"github.com/yolodolo42/walletkit/internal/wallet"
)

// DefaultConnectTimeout bounds a connect attempt when no provider timeout is set
const DefaultConnectTimeout = 2 * time.Minute

// ChainBackend is the chain RPC surface the backends need. *chain.Client
// satisfies it.
type ChainBackend interface {
	PendingNonceAt(ctx context.Context, chainID uint64, account common.Address) (uint64, error)
	SuggestGasTipCap(ctx context.Context, chainID uint64) (*big.Int, error)
	SuggestGasPrice(ctx context.Context, chainID uint64) (*big.Int, error)
	EstimateGas(ctx context.Context, chainID uint64, msg ethereum.CallMsg) (uint64, error)
	SendTransaction(ctx context.Context, chainID uint64, tx *types.Transaction) error
	CallContract(ctx context.Context, chainID uint64, msg ethereum.CallMsg) ([]byte, error)
	CodeAt(ctx context.Context, chainID uint64, account common.Address) ([]byte, error)
	Supports(chainID uint64) bool
}

// Deps are the collaborators a Kit is built from. Only Store is required.
type Deps struct {
	Chain     ChainBackend
	Store     store.KV
	Keystore  *wallet.KeystoreManager
	Approver  Approver
	Dial      Dialer
	Bundlers  BundlerSource
	Endpoints map[ProviderID]string

	Timeouts       map[ProviderID]time.Duration
	DefaultTimeout time.Duration
	EntryPoint     common.Address

	Journal *store.Journal
	Metrics *metrics.Metrics
	Logger  *slog.Logger
}

// Kit owns the registry, the collaborators and the single active account.
type Kit struct {
	chain      ChainBackend
	store      store.KV
	sealed     *store.Sealed
	keystore   *wallet.KeystoreManager
	approver   Approver
	dial       Dialer
	bundlers   BundlerSource
	endpoints  map[ProviderID]string
	timeouts   map[ProviderID]time.Duration
	timeout    time.Duration
	entryPoint common.Address

	journal *store.Journal
	metrics *metrics.Metrics
	log     *slog.Logger

	registry *Registry

	mu         sync.Mutex
	active     *Account
	connecting bool
	closed     bool
}

// New builds a Kit with the built-in providers registered
func New(deps Deps) (*Kit, error) {
	if deps.Store == nil {
		return nil, errors.New("connect: store is required")
	}

	k := &Kit{
		chain:      deps.Chain,
		store:      deps.Store,
		sealed:     store.NewSealed(deps.Store),
		keystore:   deps.Keystore,
		approver:   deps.Approver,
		dial:       deps.Dial,
		bundlers:   deps.Bundlers,
		endpoints:  map[ProviderID]string{},
		timeouts:   map[ProviderID]time.Duration{},
		timeout:    deps.DefaultTimeout,
		entryPoint: deps.EntryPoint,
		journal:    deps.Journal,
		metrics:    deps.Metrics,
		log:        deps.Logger,
		registry:   NewRegistry(),
	}
	if k.approver == nil {
		k.approver = NoopApprover{}
	}
	if k.dial == nil {
		k.dial = DialRPC
	}
	if k.log == nil {
		k.log = slog.Default()
	}
	if k.timeout <= 0 {
		k.timeout = DefaultConnectTimeout
	}
	if k.entryPoint == (common.Address{}) {
		k.entryPoint = aa.EntryPointV06
	}
	for p, e := range deps.Endpoints {
		k.endpoints[p] = e
	}
	for p, d := range deps.Timeouts {
		k.timeouts[p] = d
	}

	k.registry.Register(ProviderLocal, k.connectLocal)
	for _, p := range []ProviderID{ProviderMetaMask, ProviderWalletConnect, ProviderMagic, ProviderHyperplay, ProviderInjected} {
		k.registry.Register(p, k.connectRemote)
	}
	k.registry.Register(ProviderSmartWallet, k.connectSmart)
	return k, nil
}

// Registry exposes the provider registry so callers can add factories
func (k *Kit) Registry() *Registry { return k.registry }

// Connect resolves conn to a backend and connects it. On success the new
// account replaces the active one, which is then released.
func (k *Kit) Connect(ctx context.Context, conn *Connection) (*Account, error) {
	if _, err := k.registry.Resolve(conn); err != nil {
		return nil, err
	}
	p := conn.provider

	k.mu.Lock()
	switch {
	case k.closed:
		k.mu.Unlock()
		return nil, newError(KindUnavailable, p, "connect", errors.New("kit is closed"))
	case k.connecting:
		k.mu.Unlock()
		return nil, newError(KindInProgress, p, "connect", errors.New("another connect is pending"))
	}
	k.connecting = true
	k.mu.Unlock()
	defer func() {
		k.mu.Lock()
		k.connecting = false
		k.mu.Unlock()
	}()

	ctx = logger.WithAttemptID(ctx, uuid.NewString())
	log := k.logFor(ctx).With("provider", p, "chain_id", conn.chainID)
	log.Info("connecting", "connection", conn)
	k.record(ctx, store.Event{Type: store.EventConnectStarted, Provider: string(p), ChainID: conn.chainID})

	timeout := k.timeout
	if d, ok := k.timeouts[p]; ok && d > 0 {
		timeout = d
	}
	cctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	start := time.Now()
	acct, err := k.connectWith(cctx, conn)
	if err != nil {
		err = classify(err, p, "connect", true, KindUnavailable)
		k.metrics.ObserveConnect(string(p), string(KindOf(err)), time.Since(start))
		k.record(ctx, store.Event{Type: store.EventConnectFailed, Provider: string(p), ChainID: conn.chainID, Error: err.Error()})
		log.Warn("connect failed", "error", err)
		return nil, err
	}
	k.metrics.ObserveConnect(string(p), "ok", time.Since(start))

	k.mu.Lock()
	if k.closed {
		k.mu.Unlock()
		_ = acct.release(ctx, false)
		return nil, newError(KindUnavailable, p, "connect", errors.New("kit is closed"))
	}
	prev := k.active
	k.active = acct
	k.mu.Unlock()

	if prev != nil {
		if err := prev.release(ctx, false); err != nil {
			log.Warn("failed to release previous account", "error", err)
		}
	}
	k.metrics.SetActive(string(p), true)
	k.record(ctx, store.Event{Type: store.EventConnected, Provider: string(p), ChainID: conn.chainID, Address: acct.address.Hex()})
	log.Info("connected", "address", acct.address.Hex(), "backend", acct.backend)
	return acct, nil
}

// connectWith runs the provider factory and the optional ownership proof.
// It does not touch the active account.
func (k *Kit) connectWith(ctx context.Context, conn *Connection) (*Account, error) {
	factory, err := k.registry.Resolve(conn)
	if err != nil {
		return nil, err
	}
	acct, err := factory(ctx, conn)
	if err != nil {
		return nil, err
	}
	acct.kit = k
	if acct.smart != nil {
		acct.smart.owner.nested = true
	}

	if conn.signMessage != "" {
		sig, err := acct.SignMessage(ctx, []byte(conn.signMessage))
		if err != nil {
			_ = acct.release(ctx, false)
			if errors.Is(err, ErrSigningRejected) {
				return nil, newError(KindRejected, conn.provider, "personal sign", err)
			}
			return nil, err
		}
		acct.authSig = sig
	}
	return acct, nil
}

// Active returns the connected account, or nil
func (k *Kit) Active() *Account {
	k.mu.Lock()
	defer k.mu.Unlock()
	return k.active
}

// State reports the kit-level lifecycle state
func (k *Kit) State() State {
	k.mu.Lock()
	defer k.mu.Unlock()
	switch {
	case k.connecting:
		return StateConnecting
	case k.active != nil:
		return StateConnected
	}
	return StateDisconnected
}

// Disconnect ends the active session and forgets its persisted record.
// It is a no-op with no active account.
func (k *Kit) Disconnect(ctx context.Context) error {
	acct := k.Active()
	if acct == nil {
		return nil
	}
	return acct.Disconnect(ctx)
}

// Close releases the active session but keeps persisted records so the
// next run can resume. Connect fails after Close.
func (k *Kit) Close() error {
	k.mu.Lock()
	if k.closed {
		k.mu.Unlock()
		return nil
	}
	k.closed = true
	acct := k.active
	k.mu.Unlock()

	if acct == nil {
		return nil
	}
	return acct.release(context.Background(), false)
}

// Sessions lists the persisted session records
func (k *Kit) Sessions(ctx context.Context) ([]SessionRecord, error) {
	keys, err := k.store.Keys(ctx, SessionKeyPrefix)
	if err != nil {
		return nil, err
	}
	records := make([]SessionRecord, 0, len(keys))
	for _, key := range keys {
		var rec SessionRecord
		if err := store.GetJSON(ctx, k.store, key, &rec); err != nil {
			if errors.Is(err, store.ErrNotFound) {
				continue
			}
			return nil, err
		}
		records = append(records, rec)
	}
	return records, nil
}

// ForgetSession deletes the persisted record of p
func (k *Kit) ForgetSession(ctx context.Context, p ProviderID) error {
	if err := k.store.Delete(ctx, sessionKey(p)); err != nil && !errors.Is(err, store.ErrNotFound) {
		return err
	}
	k.record(ctx, store.Event{Type: store.EventSessionDiscarded, Provider: string(p)})
	return nil
}

func (k *Kit) logFor(ctx context.Context) *slog.Logger {
	if k == nil {
		return logger.FromContext(ctx)
	}
	return logger.FromContext(ctx, k.log)
}

func (k *Kit) record(ctx context.Context, ev store.Event) {
	if k == nil {
		return
	}
	if ev.AttemptID == "" {
		ev.AttemptID = logger.GetAttemptID(ctx)
	}
	k.journal.Record(ev)
}

// observe counts an account operation and journals it
func (k *Kit) observe(ctx context.Context, a *Account, op string, err error) {
	if k == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = string(KindOf(err))
	}
	k.metrics.ObserveOperation(string(a.provider), op, result)

	if a.nested {
		return
	}
	ev := store.Event{Type: store.EventSigned, Provider: string(a.provider), ChainID: a.chainID, Address: a.address.Hex(), Detail: map[string]any{"op": op}}
	if op == "send transaction" {
		ev.Type = store.EventSent
	}
	if err != nil {
		ev.Error = err.Error()
	}
	k.record(ctx, ev)
}

// released runs after an account's session is torn down
func (k *Kit) released(ctx context.Context, a *Account, forget bool) {
	if k == nil || a.nested {
		return
	}
	k.mu.Lock()
	if k.active == a {
		k.active = nil
	}
	k.mu.Unlock()

	k.metrics.SetActive(string(a.provider), false)
	k.record(ctx, store.Event{
		Type:     store.EventDisconnected,
		Provider: string(a.provider),
		ChainID:  a.chainID,
		Address:  a.address.Hex(),
		Detail:   map[string]any{"forget": forget},
	})
	k.logFor(ctx).Info("disconnected", "provider", a.provider, "forget", forget)
}
