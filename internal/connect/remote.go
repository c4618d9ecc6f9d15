package connect

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/rpc"
	"github.com/ethereum/go-ethereum/signer/core/apitypes"

	"github.com/yolodolo42/walletkit/internal/store"
	"github.com/yolodolo42/walletkit/internal/tx"
)

// Transport is an EIP-1193 style JSON-RPC session. *rpc.Client satisfies it.
type Transport interface {
	CallContext(ctx context.Context, result any, method string, args ...any) error
	Close()
}

// Dialer opens a Transport to a bridge endpoint
type Dialer func(ctx context.Context, endpoint string) (Transport, error)

// DialRPC dials endpoint with go-ethereum's rpc client (http, ws or ipc)
func DialRPC(ctx context.Context, endpoint string) (Transport, error) {
	c, err := rpc.DialContext(ctx, endpoint)
	if err != nil {
		return nil, err
	}
	return c, nil
}

// Bridge methods beyond the standard wallet API
const (
	methodPair         = "walletkit_pair"
	methodResume       = "walletkit_resume"
	methodLoginOTP     = "walletkit_loginEmailOtp"
	methodVerifyOTP    = "walletkit_verifyOtp"
	methodDisconnect   = "walletkit_disconnect"
	methodSwitchChain  = "wallet_switchEthereumChain"
	methodRequestAccts = "eth_requestAccounts"
)

// SessionRecord lets a resumable provider reconnect without prompting
type SessionRecord struct {
	Provider  ProviderID     `json:"provider"`
	Blob      hexutil.Bytes  `json:"blob"`
	ChainID   uint64         `json:"chainId"`
	Address   common.Address `json:"address"`
	UpdatedAt time.Time      `json:"updatedAt"`
}

// SessionKeyPrefix prefixes every session record key
const SessionKeyPrefix = "session/"

func sessionKey(p ProviderID) string { return SessionKeyPrefix + string(p) }

type remoteSession struct {
	transport Transport
	provider  ProviderID
	kv        store.KV
}

func (s *remoteSession) signMessage(ctx context.Context, from common.Address, message []byte) ([]byte, error) {
	var sig hexutil.Bytes
	if err := s.transport.CallContext(ctx, &sig, "personal_sign", hexutil.Bytes(message), from); err != nil {
		return nil, err
	}
	return sig, nil
}

func (s *remoteSession) signTypedData(ctx context.Context, from common.Address, typedData apitypes.TypedData) ([]byte, error) {
	raw, err := json.Marshal(typedData)
	if err != nil {
		return nil, newError(KindInvalid, s.provider, "sign typed data", err)
	}
	var sig hexutil.Bytes
	if err := s.transport.CallContext(ctx, &sig, "eth_signTypedData_v4", from, string(raw)); err != nil {
		return nil, err
	}
	return sig, nil
}

func (s *remoteSession) signTransaction(ctx context.Context, from common.Address, unsigned *types.Transaction) (*types.Transaction, error) {
	var res json.RawMessage
	if err := s.transport.CallContext(ctx, &res, "eth_signTransaction", tx.TxArgs(from, unsigned)); err != nil {
		return nil, err
	}
	return decodeSignedTx(res)
}

// decodeSignedTx accepts a raw hex string or an object with a "raw" field
func decodeSignedTx(res json.RawMessage) (*types.Transaction, error) {
	var raw hexutil.Bytes
	if err := json.Unmarshal(res, &raw); err != nil {
		var obj struct {
			Raw hexutil.Bytes `json:"raw"`
		}
		if err := json.Unmarshal(res, &obj); err != nil || len(obj.Raw) == 0 {
			return nil, fmt.Errorf("unexpected eth_signTransaction result: %s", string(res))
		}
		raw = obj.Raw
	}
	signed := new(types.Transaction)
	if err := signed.UnmarshalBinary(raw); err != nil {
		return nil, fmt.Errorf("decode signed transaction: %w", err)
	}
	return signed, nil
}

func (s *remoteSession) sendTransaction(ctx context.Context, from common.Address, req tx.Request) (common.Hash, error) {
	if err := req.Validate(); err != nil {
		return common.Hash{}, err
	}
	var hash common.Hash
	if err := s.transport.CallContext(ctx, &hash, "eth_sendTransaction", req.RPCArgs(from)); err != nil {
		return common.Hash{}, err
	}
	return hash, nil
}

func (s *remoteSession) close(ctx context.Context, forget bool) error {
	defer s.transport.Close()
	if !forget {
		return nil
	}

	// best effort: the wallet may already be gone
	cctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	_ = s.transport.CallContext(cctx, nil, methodDisconnect)
	cancel()

	if s.provider.Resumable() && s.kv != nil {
		return s.kv.Delete(context.WithoutCancel(ctx), sessionKey(s.provider))
	}
	return nil
}

// connectRemote runs the provider handshake over the bridge, then
// eth_requestAccounts and chain negotiation.
func (k *Kit) connectRemote(ctx context.Context, conn *Connection) (*Account, error) {
	p := conn.provider
	endpoint := conn.endpoint
	if endpoint == "" {
		endpoint = k.endpoints[p]
	}
	if endpoint == "" {
		return nil, invalidf(p, "no endpoint configured")
	}

	transport, err := k.dial(ctx, endpoint)
	if err != nil {
		return nil, classify(err, p, "dial", true, KindUnavailable)
	}
	connected := false
	defer func() {
		if !connected {
			transport.Close()
		}
	}()

	log := k.logFor(ctx).With("provider", p)

	blob, resumed := k.tryResume(ctx, conn, transport)
	if !resumed {
		var presented bool
		blob, presented, err = k.handshake(ctx, conn, transport)
		if presented {
			defer k.approver.Dismiss()
		}
		if err != nil {
			return nil, err
		}
	}

	var accounts []common.Address
	if err := transport.CallContext(ctx, &accounts, methodRequestAccts); err != nil {
		return nil, classify(err, p, "request accounts", true, KindUnavailable)
	}
	if len(accounts) == 0 {
		return nil, newError(KindRejected, p, "request accounts", errors.New("wallet returned no accounts"))
	}

	if err := negotiateChain(ctx, transport, conn); err != nil {
		return nil, err
	}

	if p.Resumable() && len(blob) > 0 {
		rec := SessionRecord{Provider: p, Blob: blob, ChainID: conn.chainID, Address: accounts[0], UpdatedAt: time.Now().UTC()}
		if err := store.PutJSON(ctx, k.store, sessionKey(p), rec); err != nil {
			log.Warn("failed to persist session", "error", err)
		}
	}

	connected = true
	return newAccount(conn, accounts[0], &remoteSession{transport: transport, provider: p, kv: k.store}), nil
}

// tryResume restores a persisted session for the same chain. A stale
// record is deleted so the caller falls back to a fresh handshake.
func (k *Kit) tryResume(ctx context.Context, conn *Connection, transport Transport) ([]byte, bool) {
	p := conn.provider
	if !p.Resumable() {
		return nil, false
	}
	var rec SessionRecord
	if err := store.GetJSON(ctx, k.store, sessionKey(p), &rec); err != nil {
		return nil, false
	}
	if rec.ChainID != conn.chainID || len(rec.Blob) == 0 {
		return nil, false
	}

	if err := transport.CallContext(ctx, nil, methodResume, rec.Blob); err != nil {
		k.logFor(ctx).Info("session resume failed", "provider", p, "error", err)
		_ = k.store.Delete(ctx, sessionKey(p))
		k.record(ctx, store.Event{Type: store.EventSessionDiscarded, Provider: string(p), ChainID: conn.chainID, Error: err.Error()})
		return nil, false
	}
	k.record(ctx, store.Event{Type: store.EventSessionResumed, Provider: string(p), ChainID: conn.chainID})
	return rec.Blob, true
}

// handshake runs the provider-specific approval flow and returns the
// session blob to persist, if any. presented reports whether the approver
// is showing something that needs dismissing.
func (k *Kit) handshake(ctx context.Context, conn *Connection, transport Transport) (blob []byte, presented bool, err error) {
	p := conn.provider
	switch p {
	case ProviderWalletConnect, ProviderMetaMask:
		var pair struct {
			URI     string        `json:"uri"`
			Session hexutil.Bytes `json:"session"`
		}
		if err := transport.CallContext(ctx, &pair, methodPair, hexutil.Uint64(conn.chainID)); err != nil {
			return nil, false, classify(err, p, "pair", true, KindUnavailable)
		}
		if pair.URI == "" {
			return nil, false, newError(KindUnavailable, p, "pair", errors.New("bridge returned no pairing uri"))
		}
		if err := k.approver.PresentQR(ctx, pair.URI); err != nil {
			return nil, true, classify(err, p, "present qr", true, KindUnavailable)
		}
		return pair.Session, true, nil

	case ProviderMagic:
		if err := transport.CallContext(ctx, nil, methodLoginOTP, conn.email); err != nil {
			return nil, false, classify(err, p, "login", true, KindUnavailable)
		}
		code, err := k.approver.PromptOTP(ctx, conn.email)
		if err != nil {
			if errors.Is(err, ErrNoApprover) {
				return nil, true, newError(KindUnavailable, p, "prompt otp", err)
			}
			return nil, true, classify(err, p, "prompt otp", true, KindRejected)
		}
		code = strings.TrimSpace(code)
		if code == "" {
			return nil, true, newError(KindRejected, p, "prompt otp", errors.New("empty code"))
		}
		var res struct {
			Session hexutil.Bytes `json:"session"`
		}
		if err := transport.CallContext(ctx, &res, methodVerifyOTP, code); err != nil {
			return nil, true, classify(err, p, "verify otp", true, KindRejected)
		}
		return res.Session, true, nil

	case ProviderInjected:
		if err := k.approver.PresentApproval(ctx, p, "Approve the connection request in your browser wallet"); err != nil {
			return nil, true, classify(err, p, "present approval", true, KindUnavailable)
		}
		return nil, true, nil
	}
	return nil, false, nil
}

// negotiateChain asks the wallet to switch when it reports another chain
func negotiateChain(ctx context.Context, transport Transport, conn *Connection) error {
	p := conn.provider
	current, err := remoteChainID(ctx, transport)
	if err != nil {
		return classify(err, p, "chain id", true, KindUnavailable)
	}
	if current == conn.chainID {
		return nil
	}

	param := map[string]any{"chainId": hexutil.Uint64(conn.chainID)}
	if err := transport.CallContext(ctx, nil, methodSwitchChain, param); err != nil {
		if ctx.Err() != nil {
			return classify(ctx.Err(), p, "switch chain", true, KindUnavailable)
		}
		return newError(KindInvalid, p, "switch chain",
			fmt.Errorf("wallet is on chain %d and could not switch to %d: %w", current, conn.chainID, err))
	}

	current, err = remoteChainID(ctx, transport)
	if err != nil {
		return classify(err, p, "chain id", true, KindUnavailable)
	}
	if current != conn.chainID {
		return invalidf(p, "wallet is on chain %d, expected %d", current, conn.chainID)
	}
	return nil
}

func remoteChainID(ctx context.Context, transport Transport) (uint64, error) {
	var id hexutil.Uint64
	if err := transport.CallContext(ctx, &id, "eth_chainId"); err != nil {
		return 0, err
	}
	return uint64(id), nil
}
