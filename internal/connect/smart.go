package connect

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/common/math"
	"github.com/ethereum/go-ethereum/signer/core/apitypes"

	"github.com/yolodolo42/walletkit/internal/aa"
	"github.com/yolodolo42/walletkit/internal/tx"
)

// Bundler submits user operations. *aa.Bundler satisfies it.
type Bundler interface {
	EstimateUserOperationGas(ctx context.Context, op *aa.UserOperation, entryPoint common.Address) (*aa.GasEstimate, error)
	SendUserOperation(ctx context.Context, op *aa.UserOperation, entryPoint common.Address) (common.Hash, error)
}

// BundlerSource returns the bundler for a chain
type BundlerSource func(ctx context.Context, chainID uint64) (Bundler, error)

// dummySignature has the length and shape of an ECDSA signature so bundlers
// can simulate validation before the real one exists
var dummySignature = common.FromHex("0xfffffffffffffffffffffffffffffff0000000000000000000000000000000007aaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa1c")

type smartSession struct {
	owner    *Account
	factory  *aa.Factory
	chain    ChainBackend
	bundlers BundlerSource
	chainID  uint64
	kit      *Kit

	mu       sync.Mutex
	deployed bool
}

func (s *smartSession) knownDeployed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.deployed
}

// isDeployed re-checks the chain until the account is seen deployed
func (s *smartSession) isDeployed(ctx context.Context, account common.Address) (bool, error) {
	if s.knownDeployed() {
		return true, nil
	}
	deployed, err := s.factory.IsDeployed(ctx, account)
	if err != nil {
		return false, err
	}
	if deployed {
		s.mu.Lock()
		s.deployed = true
		s.mu.Unlock()
	}
	return deployed, nil
}

// accountMessage wraps digest in the account's EIP-712 domain so a
// signature is bound to one smart account on one chain
func accountMessage(chainID uint64, account common.Address, digest []byte) apitypes.TypedData {
	return apitypes.TypedData{
		Types: apitypes.Types{
			"EIP712Domain": {
				{Name: "name", Type: "string"},
				{Name: "version", Type: "string"},
				{Name: "chainId", Type: "uint256"},
				{Name: "verifyingContract", Type: "address"},
			},
			"AccountMessage": {
				{Name: "message", Type: "bytes"},
			},
		},
		PrimaryType: "AccountMessage",
		Domain: apitypes.TypedDataDomain{
			Name:              "Account",
			Version:           "1",
			ChainId:           math.NewHexOrDecimal256(int64(chainID)),
			VerifyingContract: account.Hex(),
		},
		Message: apitypes.TypedDataMessage{
			"message": hexutil.Encode(digest),
		},
	}
}

func (s *smartSession) signMessage(ctx context.Context, account common.Address, message []byte) ([]byte, error) {
	return s.signDigest(ctx, account, accounts.TextHash(message))
}

func (s *smartSession) signTypedData(ctx context.Context, account common.Address, typedData apitypes.TypedData) ([]byte, error) {
	digest, _, err := apitypes.TypedDataAndHash(typedData)
	if err != nil {
		return nil, newError(KindInvalid, ProviderSmartWallet, "sign typed data", err)
	}
	return s.signDigest(ctx, account, digest)
}

// signDigest has the owner sign the AccountMessage for digest. While the
// account is undeployed the signature is ERC-6492 wrapped with the factory
// deployment.
func (s *smartSession) signDigest(ctx context.Context, account common.Address, digest []byte) ([]byte, error) {
	sig, err := s.owner.SignTypedData(ctx, accountMessage(s.chainID, account, digest))
	if err != nil {
		return nil, err
	}

	deployed, err := s.isDeployed(ctx, account)
	if err != nil {
		return nil, err
	}
	if deployed {
		return sig, nil
	}

	calldata, err := aa.EncodeCreateAccount(s.owner.Address(), nil)
	if err != nil {
		return nil, err
	}
	return aa.WrapERC6492(s.factory.Address(), calldata, sig)
}

func (s *smartSession) sendTransaction(ctx context.Context, sender common.Address, req tx.Request) (common.Hash, error) {
	if req.To == nil {
		return common.Hash{}, fmt.Errorf("%w: smart accounts cannot deploy contracts directly", tx.ErrInvalidRequest)
	}
	if err := req.Validate(); err != nil {
		return common.Hash{}, err
	}
	if s.bundlers == nil {
		return common.Hash{}, newError(KindUnavailable, ProviderSmartWallet, "send transaction", errors.New("no bundler configured"))
	}
	bundler, err := s.bundlers(ctx, s.chainID)
	if err != nil {
		return common.Hash{}, newError(KindUnavailable, ProviderSmartWallet, "send transaction", err)
	}

	op, err := s.buildUserOp(ctx, sender, req)
	if err != nil {
		return common.Hash{}, err
	}

	entryPoint := s.factory.EntryPoint()
	est, err := bundler.EstimateUserOperationGas(ctx, op, entryPoint)
	if err != nil {
		return common.Hash{}, fmt.Errorf("estimate user operation gas: %w", err)
	}
	op.PreVerificationGas = est.PreVerificationGas
	op.VerificationGasLimit = est.VerificationGasLimit
	op.CallGasLimit = est.CallGasLimit
	if req.Gas != nil {
		op.CallGasLimit = new(big.Int).SetUint64(*req.Gas)
	}

	hash, err := op.Hash(entryPoint, new(big.Int).SetUint64(s.chainID))
	if err != nil {
		return common.Hash{}, err
	}
	sig, err := s.owner.SignMessage(ctx, hash.Bytes())
	if err != nil {
		return common.Hash{}, err
	}
	op.Signature = sig

	gas := op.TotalGasLimit()
	fields := []any{
		"sender", sender,
		"nonce", op.Nonce,
		"gas", gas,
		"max_cost_wei", new(big.Int).Mul(gas, op.MaxFeePerGas),
		"deploys", len(op.InitCode) > 0,
	}
	if pm := op.PaymasterAddress(); pm != (common.Address{}) {
		fields = append(fields, "paymaster", pm)
	}
	s.kit.logFor(ctx).Debug("submitting user operation", fields...)

	return bundler.SendUserOperation(ctx, op, entryPoint)
}

func (s *smartSession) buildUserOp(ctx context.Context, sender common.Address, req tx.Request) (*aa.UserOperation, error) {
	callData, err := aa.EncodeExecute(*req.To, req.ValueOrZero(), req.Data)
	if err != nil {
		return nil, err
	}

	nonce, err := s.factory.Nonce(ctx, sender)
	if err != nil {
		return nil, err
	}
	if req.Nonce != nil {
		nonce = new(big.Int).SetUint64(*req.Nonce)
	}

	var initCode []byte
	deployed, err := s.isDeployed(ctx, sender)
	if err != nil {
		return nil, err
	}
	if !deployed {
		if initCode, err = s.factory.InitCode(s.owner.Address(), nil); err != nil {
			return nil, err
		}
	}

	maxPrio := req.MaxPriorityFee
	maxFee := req.MaxFeePerGas
	if maxPrio == nil {
		if maxPrio, err = s.chain.SuggestGasTipCap(ctx, s.chainID); err != nil {
			return nil, fmt.Errorf("gas tip: %w", err)
		}
	}
	if maxFee == nil {
		price, err := s.chain.SuggestGasPrice(ctx, s.chainID)
		if err != nil {
			return nil, fmt.Errorf("gas price: %w", err)
		}
		maxFee = new(big.Int).Add(new(big.Int).Mul(price, big.NewInt(2)), maxPrio)
	}

	return &aa.UserOperation{
		Sender:               sender,
		Nonce:                nonce,
		InitCode:             initCode,
		CallData:             callData,
		MaxFeePerGas:         maxFee,
		MaxPriorityFeePerGas: maxPrio,
		Signature:            dummySignature,
	}, nil
}

// connectSmart connects the personal wallet through the registry, then
// resolves the counterfactual account it owns.
func (k *Kit) connectSmart(ctx context.Context, conn *Connection) (*Account, error) {
	p := conn.provider
	if k.chain == nil {
		return nil, newError(KindUnavailable, p, "connect", errNoChain)
	}
	if !k.chain.Supports(conn.chainID) {
		return nil, invalidf(p, "chain %d is not configured", conn.chainID)
	}

	owner, err := k.connectWith(ctx, conn.personal)
	if err != nil {
		return nil, err
	}
	// the owner is never the active account, even when released early
	owner.nested = true

	factory := aa.NewFactory(k.chain, conn.chainID, conn.factory, k.entryPoint)
	address, err := factory.AccountAddress(ctx, owner.Address(), nil)
	if err != nil {
		_ = owner.release(ctx, false)
		return nil, classify(err, p, "account address", true, KindUnavailable)
	}

	session := &smartSession{
		owner:    owner,
		factory:  factory,
		chain:    k.chain,
		bundlers: k.bundlers,
		chainID:  conn.chainID,
		kit:      k,
	}
	if _, err := session.isDeployed(ctx, address); err != nil {
		_ = owner.release(ctx, false)
		return nil, classify(err, p, "deployment check", true, KindUnavailable)
	}
	return newAccount(conn, address, session), nil
}
