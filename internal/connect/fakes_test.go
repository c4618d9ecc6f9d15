package connect

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"math/big"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/rpc"
	"github.com/ethereum/go-ethereum/signer/core/apitypes"
	"github.com/stretchr/testify/require"

	"github.com/yolodolo42/walletkit/internal/aa"
	"github.com/yolodolo42/walletkit/internal/store"
	"github.com/yolodolo42/walletkit/internal/testutil"
	"github.com/yolodolo42/walletkit/internal/wallet"
)

var (
	testFactory      = common.HexToAddress("0x85e23b94e7F5E9cC1fF78BCe78cfb15B81f0DF00")
	testSmartAccount = common.HexToAddress("0x5a5A5a5A5a5a5A5a5A5a5A5A5a5a5A5a5A5a5a5a")
)

// fakeChain serves chain reads from memory and records broadcasts
type fakeChain struct {
	mu       sync.Mutex
	chains   map[uint64]bool
	code     map[common.Address][]byte
	nonce    uint64
	aaNonce  int64
	sent     []*types.Transaction
	sendErr  error
	callErr  error
	getAddrs []common.Address
}

func newFakeChain(chainIDs ...uint64) *fakeChain {
	c := &fakeChain{chains: map[uint64]bool{}, code: map[common.Address][]byte{}}
	for _, id := range chainIDs {
		c.chains[id] = true
	}
	return c
}

func (c *fakeChain) Supports(chainID uint64) bool { return c.chains[chainID] }

func (c *fakeChain) PendingNonceAt(context.Context, uint64, common.Address) (uint64, error) {
	return c.nonce, nil
}

func (c *fakeChain) SuggestGasTipCap(context.Context, uint64) (*big.Int, error) {
	return big.NewInt(2), nil
}

func (c *fakeChain) SuggestGasPrice(context.Context, uint64) (*big.Int, error) {
	return big.NewInt(10), nil
}

func (c *fakeChain) EstimateGas(context.Context, uint64, ethereum.CallMsg) (uint64, error) {
	return 21000, nil
}

func (c *fakeChain) SendTransaction(_ context.Context, _ uint64, tx *types.Transaction) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.sendErr != nil {
		return c.sendErr
	}
	c.sent = append(c.sent, tx)
	return nil
}

func (c *fakeChain) CallContract(_ context.Context, _ uint64, msg ethereum.CallMsg) ([]byte, error) {
	if c.callErr != nil {
		return nil, c.callErr
	}
	getAddress, _ := aa.EncodeGetAddress(common.Address{}, nil)
	getNonce, _ := aa.EncodeGetNonce(common.Address{}, big.NewInt(0))
	switch {
	case bytes.HasPrefix(msg.Data, getAddress[:4]):
		c.mu.Lock()
		c.getAddrs = append(c.getAddrs, common.BytesToAddress(msg.Data[4:36]))
		c.mu.Unlock()
		return common.LeftPadBytes(testSmartAccount.Bytes(), 32), nil
	case bytes.HasPrefix(msg.Data, getNonce[:4]):
		return common.LeftPadBytes(big.NewInt(c.aaNonce).Bytes(), 32), nil
	}
	return nil, errors.New("unexpected call")
}

func (c *fakeChain) CodeAt(_ context.Context, _ uint64, addr common.Address) ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.code[addr], nil
}

func (c *fakeChain) deploy(addr common.Address) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.code[addr] = []byte{0x60, 0x80}
}

// fakeBundler records the operations it is handed
type fakeBundler struct {
	estimated []*aa.UserOperation
	sent      []*aa.UserOperation
}

func (b *fakeBundler) EstimateUserOperationGas(_ context.Context, op *aa.UserOperation, _ common.Address) (*aa.GasEstimate, error) {
	cp := *op
	b.estimated = append(b.estimated, &cp)
	return &aa.GasEstimate{
		PreVerificationGas:   big.NewInt(50000),
		VerificationGasLimit: big.NewInt(400000),
		CallGasLimit:         big.NewInt(90000),
	}, nil
}

func (b *fakeBundler) SendUserOperation(_ context.Context, op *aa.UserOperation, entryPoint common.Address) (common.Hash, error) {
	b.sent = append(b.sent, op)
	return op.Hash(entryPoint, big.NewInt(8453))
}

// fakeApprover answers prompts from fields and counts presentations
type fakeApprover struct {
	mu        sync.Mutex
	otp       string
	otpErr    error
	qrErr     error
	blockQR   bool
	entered   chan struct{}
	qrs       []string
	approvals int
	dismissed int
}

func (a *fakeApprover) PresentQR(ctx context.Context, uri string) error {
	a.mu.Lock()
	a.qrs = append(a.qrs, uri)
	block, entered := a.blockQR, a.entered
	a.mu.Unlock()
	if entered != nil {
		entered <- struct{}{}
	}
	if block {
		<-ctx.Done()
		return ctx.Err()
	}
	return a.qrErr
}

func (a *fakeApprover) PresentApproval(context.Context, ProviderID, string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.approvals++
	return nil
}

func (a *fakeApprover) PromptOTP(context.Context, string) (string, error) {
	return a.otp, a.otpErr
}

func (a *fakeApprover) Dismiss() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.dismissed++
}

// walletError carries an EIP-1193 code across the in-proc rpc server
type walletError struct {
	code int
	msg  string
}

func (e *walletError) Error() string  { return e.msg }
func (e *walletError) ErrorCode() int { return e.code }

var errUserRejected = &walletError{code: codeUserRejected, msg: "User rejected the request."}

// fakeWallet is a bridge wallet served over go-ethereum's in-proc rpc. It
// signs with the Hardhat account 0 key.
type fakeWallet struct {
	mu       sync.Mutex
	signer   *wallet.KeySigner
	chainID  uint64
	noSwitch bool

	pairErr   error
	resumeErr error
	signErr   error
	sendErr   error
	noAccts   bool
	otp       string

	calls   []string
	resumed []hexutil.Bytes
	sentTx  []map[string]any
}

func (w *fakeWallet) call(method string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.calls = append(w.calls, method)
}

func (w *fakeWallet) called(method string) int {
	w.mu.Lock()
	defer w.mu.Unlock()
	n := 0
	for _, c := range w.calls {
		if c == method {
			n++
		}
	}
	return n
}

// eth namespace
type ethAPI struct{ w *fakeWallet }

func (api *ethAPI) RequestAccounts() ([]common.Address, error) {
	api.w.call(methodRequestAccts)
	if api.w.noAccts {
		return []common.Address{}, nil
	}
	return []common.Address{api.w.signer.Address()}, nil
}

func (api *ethAPI) ChainId() hexutil.Uint64 {
	api.w.mu.Lock()
	defer api.w.mu.Unlock()
	return hexutil.Uint64(api.w.chainID)
}

func (api *ethAPI) SignTypedData_v4(_ common.Address, raw string) (hexutil.Bytes, error) {
	if api.w.signErr != nil {
		return nil, api.w.signErr
	}
	var td apitypes.TypedData
	if err := json.Unmarshal([]byte(raw), &td); err != nil {
		return nil, err
	}
	return api.w.signer.SignTypedData(td)
}

func (api *ethAPI) SendTransaction(args map[string]any) (common.Hash, error) {
	if api.w.sendErr != nil {
		return common.Hash{}, api.w.sendErr
	}
	api.w.mu.Lock()
	api.w.sentTx = append(api.w.sentTx, args)
	api.w.mu.Unlock()
	return common.HexToHash("0xabc1"), nil
}

// personal namespace
type personalAPI struct{ w *fakeWallet }

func (api *personalAPI) Sign(message hexutil.Bytes, _ common.Address) (hexutil.Bytes, error) {
	if api.w.signErr != nil {
		return nil, api.w.signErr
	}
	return api.w.signer.SignMessage(message)
}

// wallet namespace
type walletAPI struct{ w *fakeWallet }

func (api *walletAPI) SwitchEthereumChain(param struct {
	ChainID hexutil.Uint64 `json:"chainId"`
}) error {
	api.w.call(methodSwitchChain)
	if api.w.noSwitch {
		return &walletError{code: codeUnrecognizedChain, msg: "Unrecognized chain ID"}
	}
	api.w.mu.Lock()
	defer api.w.mu.Unlock()
	api.w.chainID = uint64(param.ChainID)
	return nil
}

// walletkit namespace
type bridgeAPI struct{ w *fakeWallet }

type pairResult struct {
	URI     string        `json:"uri"`
	Session hexutil.Bytes `json:"session"`
}

func (api *bridgeAPI) Pair(chainID hexutil.Uint64) (*pairResult, error) {
	api.w.call(methodPair)
	if api.w.pairErr != nil {
		return nil, api.w.pairErr
	}
	return &pairResult{URI: "wc:abc@2?relay-protocol=irn", Session: hexutil.Bytes{0xde, 0xad}}, nil
}

func (api *bridgeAPI) Resume(blob hexutil.Bytes) error {
	api.w.call(methodResume)
	api.w.mu.Lock()
	api.w.resumed = append(api.w.resumed, blob)
	api.w.mu.Unlock()
	return api.w.resumeErr
}

func (api *bridgeAPI) LoginEmailOtp(email string) error {
	api.w.call(methodLoginOTP)
	return nil
}

func (api *bridgeAPI) VerifyOtp(code string) (map[string]hexutil.Bytes, error) {
	api.w.call(methodVerifyOTP)
	if code != api.w.otp {
		return nil, &walletError{code: codeUserRejected, msg: "invalid code"}
	}
	return map[string]hexutil.Bytes{"session": {0xbe, 0xef}}, nil
}

func (api *bridgeAPI) Disconnect() error {
	api.w.call(methodDisconnect)
	return nil
}

func newFakeWallet(t *testing.T, chainID uint64) (*fakeWallet, Dialer) {
	t.Helper()
	signer, err := wallet.ParsePrivateKey(testutil.TestPrivateKey0)
	require.NoError(t, err)
	w := &fakeWallet{signer: signer, chainID: chainID}

	srv := rpc.NewServer()
	require.NoError(t, srv.RegisterName("eth", &ethAPI{w}))
	require.NoError(t, srv.RegisterName("personal", &personalAPI{w}))
	require.NoError(t, srv.RegisterName("wallet", &walletAPI{w}))
	require.NoError(t, srv.RegisterName("walletkit", &bridgeAPI{w}))
	t.Cleanup(srv.Stop)

	dial := func(context.Context, string) (Transport, error) {
		return rpc.DialInProc(srv), nil
	}
	return w, dial
}

type kitOption func(*Deps)

func newTestKit(t *testing.T, opts ...kitOption) (*Kit, store.KV) {
	t.Helper()
	kv, err := store.OpenSQLite(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = kv.Close() })

	deps := Deps{
		Chain: newFakeChain(1, 8453),
		Store: kv,
		Endpoints: map[ProviderID]string{
			ProviderMetaMask:      "http://bridge.test/metamask",
			ProviderWalletConnect: "http://bridge.test/walletconnect",
			ProviderMagic:         "http://bridge.test/magic",
			ProviderHyperplay:     "http://localhost:9680/rpc",
			ProviderInjected:      "http://bridge.test/injected",
		},
	}
	for _, opt := range opts {
		opt(&deps)
	}
	k, err := New(deps)
	require.NoError(t, err)
	t.Cleanup(func() { _ = k.Close() })
	return k, kv
}

func withChain(c ChainBackend) kitOption     { return func(d *Deps) { d.Chain = c } }
func withDialer(dial Dialer) kitOption       { return func(d *Deps) { d.Dial = dial } }
func withApprover(a Approver) kitOption      { return func(d *Deps) { d.Approver = a } }
func withBundler(b Bundler) kitOption        { return func(d *Deps) { d.Bundlers = staticBundler(b) } }
func withJournal(j *store.Journal) kitOption { return func(d *Deps) { d.Journal = j } }

func withTimeout(p ProviderID, d time.Duration) kitOption {
	return func(deps *Deps) { deps.Timeouts = map[ProviderID]time.Duration{p: d} }
}

func staticBundler(b Bundler) BundlerSource {
	return func(context.Context, uint64) (Bundler, error) { return b, nil }
}

func mustConnection(t *testing.T, p ProviderID, chainID uint64, opts ...Option) *Connection {
	t.Helper()
	conn, err := NewConnection(p, chainID, opts...)
	require.NoError(t, err)
	return conn
}
