package connect

import (
	"context"
	"errors"
	"sync/atomic"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/signer/core/apitypes"

	"github.com/yolodolo42/walletkit/internal/tx"
)

// Backend is the closed set of signing backend kinds
type Backend string

const (
	BackendLocal   Backend = "local"
	BackendEIP1193 Backend = "eip1193"
	BackendSmart   Backend = "smart"
)

// State is the connection lifecycle state
type State int32

const (
	StateDisconnected State = iota
	StateConnecting
	StateConnected
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	default:
		return "disconnected"
	}
}

var errDisconnected = errors.New("account is disconnected")

// Account is the uniform account surface over every backend. Exactly one
// of the session fields is set, matching backend.
type Account struct {
	backend  Backend
	provider ProviderID
	chainID  uint64
	address  common.Address
	state    atomic.Int32
	authSig  []byte

	local  *localSession
	remote *remoteSession
	smart  *smartSession

	kit    *Kit
	nested bool
}

func newAccount(conn *Connection, address common.Address, session any) *Account {
	a := &Account{
		provider: conn.provider,
		chainID:  conn.chainID,
		address:  address,
	}
	switch s := session.(type) {
	case *localSession:
		a.backend, a.local = BackendLocal, s
	case *remoteSession:
		a.backend, a.remote = BackendEIP1193, s
	case *smartSession:
		a.backend, a.smart = BackendSmart, s
	default:
		panic("connect: unknown session type")
	}
	a.state.Store(int32(StateConnected))
	return a
}

// Address never blocks and stays valid after Disconnect
func (a *Account) Address() common.Address { return a.address }

// ChainID is the chain the account is connected on
func (a *Account) ChainID() uint64 { return a.chainID }

// Provider is the provider the account was connected with
func (a *Account) Provider() ProviderID { return a.provider }

// Backend is the backend kind serving the account
func (a *Account) Backend() Backend { return a.backend }

// State is the current lifecycle state
func (a *Account) State() State { return State(a.state.Load()) }

// AuthSignature is the signature over the connection's personal sign
// message, if one was requested
func (a *Account) AuthSignature() []byte { return a.authSig }

// Owner returns the personal account behind a smart account, or nil
func (a *Account) Owner() *Account {
	if a.backend == BackendSmart {
		return a.smart.owner
	}
	return nil
}

func (a *Account) ready(op string) error {
	if a.State() != StateConnected {
		return newError(KindUnavailable, a.provider, op, errDisconnected)
	}
	return nil
}

func (a *Account) finish(ctx context.Context, op string, err error, fallback Kind) error {
	switch {
	case err == nil:
	case errors.Is(err, tx.ErrInvalidRequest):
		err = newError(KindInvalid, a.provider, op, err)
	default:
		err = classify(err, a.provider, op, false, fallback)
	}
	a.kit.observe(ctx, a, op, err)
	return err
}

// SignMessage signs message per EIP-191. Smart accounts return a signature
// their contract validates (ERC-6492 wrapped while undeployed).
func (a *Account) SignMessage(ctx context.Context, message []byte) ([]byte, error) {
	const op = "sign message"
	if err := a.ready(op); err != nil {
		return nil, err
	}

	var sig []byte
	var err error
	switch a.backend {
	case BackendLocal:
		sig, err = a.local.signer.SignMessage(message)
	case BackendEIP1193:
		sig, err = a.remote.signMessage(ctx, a.address, message)
	case BackendSmart:
		sig, err = a.smart.signMessage(ctx, a.address, message)
	}
	return sig, a.finish(ctx, op, err, KindUnavailable)
}

// SignTypedData signs EIP-712 typed data
func (a *Account) SignTypedData(ctx context.Context, typedData apitypes.TypedData) ([]byte, error) {
	const op = "sign typed data"
	if err := a.ready(op); err != nil {
		return nil, err
	}

	var sig []byte
	var err error
	switch a.backend {
	case BackendLocal:
		sig, err = a.local.signer.SignTypedData(typedData)
	case BackendEIP1193:
		sig, err = a.remote.signTypedData(ctx, a.address, typedData)
	case BackendSmart:
		sig, err = a.smart.signTypedData(ctx, a.address, typedData)
	}
	return sig, a.finish(ctx, op, err, KindUnavailable)
}

// SignTransaction signs a fully populated transaction without sending it
func (a *Account) SignTransaction(ctx context.Context, unsigned *types.Transaction) (*types.Transaction, error) {
	const op = "sign transaction"
	if err := a.ready(op); err != nil {
		return nil, err
	}
	if unsigned == nil {
		return nil, newError(KindInvalid, a.provider, op, errors.New("transaction is required"))
	}

	var signed *types.Transaction
	var err error
	switch a.backend {
	case BackendLocal:
		signed, err = a.local.signTransaction(unsigned)
	case BackendEIP1193:
		signed, err = a.remote.signTransaction(ctx, a.address, unsigned)
	case BackendSmart:
		err = newError(KindNotSupported, a.provider, op, errors.New("smart accounts submit user operations"))
	}
	return signed, a.finish(ctx, op, err, KindUnavailable)
}

// SendTransaction submits req and returns its hash. For smart accounts the
// hash is the userOpHash. Nonce, gas and retries belong to the chain layer.
func (a *Account) SendTransaction(ctx context.Context, req tx.Request) (common.Hash, error) {
	const op = "send transaction"
	if err := a.ready(op); err != nil {
		return common.Hash{}, err
	}

	var hash common.Hash
	var err error
	switch a.backend {
	case BackendLocal:
		hash, err = a.local.sendTransaction(ctx, a.address, req)
	case BackendEIP1193:
		hash, err = a.remote.sendTransaction(ctx, a.address, req)
	case BackendSmart:
		hash, err = a.smart.sendTransaction(ctx, a.address, req)
	}
	return hash, a.finish(ctx, op, err, KindSubmission)
}

// Disconnect ends the session and forgets any persisted session record.
// It is idempotent.
func (a *Account) Disconnect(ctx context.Context) error {
	return a.release(ctx, true)
}

// release tears the session down once. forget also drops persisted state.
func (a *Account) release(ctx context.Context, forget bool) error {
	if !a.state.CompareAndSwap(int32(StateConnected), int32(StateDisconnected)) {
		return nil
	}

	var err error
	switch a.backend {
	case BackendLocal:
		a.local.close()
	case BackendEIP1193:
		err = a.remote.close(ctx, forget)
	case BackendSmart:
		err = a.smart.owner.release(ctx, forget)
	}
	a.kit.released(ctx, a, forget)
	return err
}

// Info is a JSON-friendly snapshot of an account
type Info struct {
	Provider      ProviderID     `json:"provider"`
	Backend       Backend        `json:"backend"`
	ChainID       uint64         `json:"chainId"`
	Address       common.Address `json:"address"`
	State         string         `json:"state"`
	Deployed      *bool          `json:"deployed,omitempty"`
	Owner         *Info          `json:"owner,omitempty"`
	AuthSignature hexutil.Bytes  `json:"authSignature,omitempty"`
}

// Info returns a snapshot of the account
func (a *Account) Info() Info {
	info := Info{
		Provider:      a.provider,
		Backend:       a.backend,
		ChainID:       a.chainID,
		Address:       a.address,
		State:         a.State().String(),
		AuthSignature: a.authSig,
	}
	if a.backend == BackendSmart {
		deployed := a.smart.knownDeployed()
		info.Deployed = &deployed
		owner := a.smart.owner.Info()
		info.Owner = &owner
	}
	return info
}
