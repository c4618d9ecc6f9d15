package connect

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/mail"
	"net/url"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/xeipuuv/gojsonschema"

	"github.com/yolodolo42/walletkit/internal/wallet"
)

// Connection describes which wallet to connect on which chain. It is
// immutable and only built through NewConnection or ParseConnection, so a
// *Connection is always valid.
type Connection struct {
	provider       ProviderID
	chainID        uint64
	mnemonic       string
	derivationPath string
	password       string
	privateKey     string
	keystoreAcct   *common.Address
	email          string
	personal       *Connection
	factory        common.Address
	endpoint       string
	signMessage    string
}

// Option sets a provider-specific parameter
type Option func(*Connection)

// WithMnemonic sets the BIP-39 phrase of a local wallet
func WithMnemonic(mnemonic string) Option {
	return func(c *Connection) { c.mnemonic = wallet.NormalizeMnemonic(mnemonic) }
}

// WithDerivationPath overrides the BIP-32 path of a local wallet
func WithDerivationPath(path string) Option {
	return func(c *Connection) { c.derivationPath = strings.TrimSpace(path) }
}

// WithPassword unlocks (or creates) the persisted local wallet
func WithPassword(password string) Option {
	return func(c *Connection) { c.password = password }
}

// WithPrivateKey connects a local wallet from a raw hex key
func WithPrivateKey(key string) Option {
	return func(c *Connection) { c.privateKey = strings.TrimPrefix(strings.TrimSpace(key), "0x") }
}

// WithKeystoreAccount unlocks an account from the encrypted keystore; it
// needs WithPassword too.
func WithKeystoreAccount(addr common.Address) Option {
	return func(c *Connection) { c.keystoreAcct = &addr }
}

// WithEmail sets the login email of a Magic wallet
func WithEmail(email string) Option {
	return func(c *Connection) { c.email = strings.TrimSpace(email) }
}

// WithPersonalWallet sets the owner connection of a smart wallet
func WithPersonalWallet(personal *Connection) Option {
	return func(c *Connection) { c.personal = personal }
}

// WithFactory sets the smart wallet account factory
func WithFactory(factory common.Address) Option {
	return func(c *Connection) { c.factory = factory }
}

// WithEndpoint overrides the configured bridge endpoint
func WithEndpoint(endpoint string) Option {
	return func(c *Connection) { c.endpoint = strings.TrimSpace(endpoint) }
}

// WithPersonalSignMessage asks the wallet to sign message right after
// connecting, as proof of ownership.
func WithPersonalSignMessage(message string) Option {
	return func(c *Connection) { c.signMessage = message }
}

// NewConnection validates and builds a Connection. Validation never touches
// the network.
func NewConnection(provider ProviderID, chainID uint64, opts ...Option) (*Connection, error) {
	c := &Connection{provider: provider, chainID: chainID}
	for _, opt := range opts {
		opt(c)
	}
	if c.provider == ProviderLocal && c.derivationPath == "" {
		c.derivationPath = wallet.DefaultDerivationPath
	}
	if err := c.validate(); err != nil {
		return nil, err
	}
	return c, nil
}

func (c *Connection) validate() error {
	p := c.provider
	if p == "" {
		return invalidf(p, "provider is required")
	}
	if c.chainID == 0 {
		return invalidf(p, "chain id must be positive")
	}
	if c.endpoint != "" {
		u, err := url.Parse(c.endpoint)
		if err != nil || u.Host == "" {
			return invalidf(p, "invalid endpoint %q", c.endpoint)
		}
		switch u.Scheme {
		case "http", "https", "ws", "wss":
		default:
			return invalidf(p, "endpoint scheme must be http(s) or ws(s)")
		}
	}

	switch p {
	case ProviderLocal:
		return c.validateLocal()
	case ProviderMagic:
		if c.email == "" {
			return invalidf(p, "email is required")
		}
		if addr, err := mail.ParseAddress(c.email); err != nil || addr.Address != c.email {
			return invalidf(p, "invalid email %q", c.email)
		}
	case ProviderSmartWallet:
		if c.personal == nil {
			return invalidf(p, "personal wallet connection is required")
		}
		if c.personal.provider == ProviderSmartWallet {
			return invalidf(p, "personal wallet must not be a smart wallet")
		}
		if c.personal.chainID != c.chainID {
			return invalidf(p, "personal wallet chain %d does not match %d", c.personal.chainID, c.chainID)
		}
		if c.factory == (common.Address{}) {
			return invalidf(p, "factory address is required")
		}
	}

	if p != ProviderLocal && (c.mnemonic != "" || c.privateKey != "" || c.keystoreAcct != nil) {
		return invalidf(p, "key material is only accepted by the local provider")
	}
	return nil
}

func (c *Connection) validateLocal() error {
	p := c.provider
	sources := 0
	if c.mnemonic != "" {
		sources++
		if err := wallet.ValidateMnemonic(c.mnemonic); err != nil {
			return newError(KindInvalid, p, "", err)
		}
	}
	if c.privateKey != "" {
		sources++
		raw, err := hex.DecodeString(c.privateKey)
		if err != nil || len(raw) != 32 {
			return invalidf(p, "private key must be 32 bytes of hex")
		}
	}
	if c.keystoreAcct != nil {
		sources++
		if c.password == "" {
			return invalidf(p, "keystore account requires a password")
		}
	}
	if sources > 1 {
		return invalidf(p, "mnemonic, private key and keystore account are mutually exclusive")
	}
	if sources == 0 && c.password == "" {
		return invalidf(p, "mnemonic, private key or password is required")
	}
	if err := wallet.ValidatePath(c.derivationPath); err != nil {
		return newError(KindInvalid, p, "", err)
	}
	return nil
}

func (c *Connection) Provider() ProviderID             { return c.provider }
func (c *Connection) ChainID() uint64                  { return c.chainID }
func (c *Connection) Mnemonic() string                 { return c.mnemonic }
func (c *Connection) DerivationPath() string           { return c.derivationPath }
func (c *Connection) Password() string                 { return c.password }
func (c *Connection) PrivateKey() string               { return c.privateKey }
func (c *Connection) Email() string                    { return c.email }
func (c *Connection) PersonalWallet() *Connection      { return c.personal }
func (c *Connection) Factory() common.Address          { return c.factory }
func (c *Connection) Endpoint() string                 { return c.endpoint }
func (c *Connection) PersonalSignMessage() string      { return c.signMessage }
func (c *Connection) KeystoreAccount() *common.Address { return c.keystoreAcct }

// LogValue keeps secrets out of logs
func (c *Connection) LogValue() slog.Value {
	attrs := []slog.Attr{
		slog.String("provider", string(c.provider)),
		slog.Uint64("chain_id", c.chainID),
	}
	if c.mnemonic != "" {
		attrs = append(attrs, slog.String("mnemonic", redacted))
	}
	if c.privateKey != "" {
		attrs = append(attrs, slog.String("private_key", redacted))
	}
	if c.email != "" {
		attrs = append(attrs, slog.String("email", redactEmail(c.email)))
	}
	if c.factory != (common.Address{}) {
		attrs = append(attrs, slog.String("factory", c.factory.Hex()))
	}
	if c.personal != nil {
		attrs = append(attrs, slog.Any("personal", c.personal))
	}
	return slog.GroupValue(attrs...)
}

// Document is the JSON form of a Connection
type Document struct {
	Provider            string    `json:"provider"`
	ChainID             uint64    `json:"chainId"`
	Mnemonic            string    `json:"mnemonic,omitempty"`
	DerivationPath      string    `json:"derivationPath,omitempty"`
	Password            string    `json:"password,omitempty"`
	PrivateKey          string    `json:"privateKey,omitempty"`
	KeystoreAccount     string    `json:"keystoreAccount,omitempty"`
	Email               string    `json:"email,omitempty"`
	PersonalWallet      *Document `json:"personalWallet,omitempty"`
	FactoryAddress      string    `json:"factoryAddress,omitempty"`
	Endpoint            string    `json:"endpoint,omitempty"`
	PersonalSignMessage string    `json:"personalSignMessage,omitempty"`
}

// Document renders c. Secrets are left out unless withSecrets is set.
func (c *Connection) Document(withSecrets bool) *Document {
	d := &Document{
		Provider:            string(c.provider),
		ChainID:             c.chainID,
		DerivationPath:      c.derivationPath,
		Email:               c.email,
		Endpoint:            c.endpoint,
		PersonalSignMessage: c.signMessage,
	}
	if withSecrets {
		d.Mnemonic = c.mnemonic
		d.Password = c.password
		d.PrivateKey = c.privateKey
	}
	if c.keystoreAcct != nil {
		d.KeystoreAccount = c.keystoreAcct.Hex()
	}
	if c.personal != nil {
		d.PersonalWallet = c.personal.Document(withSecrets)
	}
	if c.factory != (common.Address{}) {
		d.FactoryAddress = c.factory.Hex()
	}
	return d
}

// Connection builds a validated Connection from the document
func (d *Document) Connection() (*Connection, error) {
	provider, err := ParseProviderID(d.Provider)
	if err != nil {
		// unknown providers still resolve through the registry
		provider = ProviderID(strings.ToLower(strings.TrimSpace(d.Provider)))
	}
	opts := []Option{}
	if d.Mnemonic != "" {
		opts = append(opts, WithMnemonic(d.Mnemonic))
	}
	if d.DerivationPath != "" {
		opts = append(opts, WithDerivationPath(d.DerivationPath))
	}
	if d.Password != "" {
		opts = append(opts, WithPassword(d.Password))
	}
	if d.PrivateKey != "" {
		opts = append(opts, WithPrivateKey(d.PrivateKey))
	}
	if d.KeystoreAccount != "" {
		if !common.IsHexAddress(d.KeystoreAccount) {
			return nil, invalidf(provider, "invalid keystore account %q", d.KeystoreAccount)
		}
		opts = append(opts, WithKeystoreAccount(common.HexToAddress(d.KeystoreAccount)))
	}
	if d.Email != "" {
		opts = append(opts, WithEmail(d.Email))
	}
	if d.PersonalWallet != nil {
		personal, err := d.PersonalWallet.Connection()
		if err != nil {
			return nil, err
		}
		opts = append(opts, WithPersonalWallet(personal))
	}
	if d.FactoryAddress != "" {
		if !common.IsHexAddress(d.FactoryAddress) {
			return nil, invalidf(provider, "invalid factory address %q", d.FactoryAddress)
		}
		opts = append(opts, WithFactory(common.HexToAddress(d.FactoryAddress)))
	}
	if d.Endpoint != "" {
		opts = append(opts, WithEndpoint(d.Endpoint))
	}
	if d.PersonalSignMessage != "" {
		opts = append(opts, WithPersonalSignMessage(d.PersonalSignMessage))
	}
	return NewConnection(provider, d.ChainID, opts...)
}

const connectionSchema = `{
	"$schema": "http://json-schema.org/draft-07/schema#",
	"definitions": {
		"connection": {
			"type": "object",
			"required": ["provider", "chainId"],
			"additionalProperties": false,
			"properties": {
				"provider": {"type": "string", "minLength": 1},
				"chainId": {"type": "integer", "minimum": 1},
				"mnemonic": {"type": "string"},
				"derivationPath": {"type": "string", "pattern": "^m(/[0-9]+'?)+$"},
				"password": {"type": "string"},
				"privateKey": {"type": "string", "pattern": "^(0x)?[0-9a-fA-F]{64}$"},
				"keystoreAccount": {"type": "string", "pattern": "^0x[0-9a-fA-F]{40}$"},
				"email": {"type": "string", "format": "email"},
				"personalWallet": {"$ref": "#/definitions/connection"},
				"factoryAddress": {"type": "string", "pattern": "^0x[0-9a-fA-F]{40}$"},
				"endpoint": {"type": "string", "format": "uri"},
				"personalSignMessage": {"type": "string"}
			}
		}
	},
	"$ref": "#/definitions/connection"
}`

var connectionSchemaLoader = gojsonschema.NewStringLoader(connectionSchema)

// ParseConnection validates a JSON connection document against the schema
// and builds the Connection.
func ParseConnection(raw []byte) (*Connection, error) {
	result, err := gojsonschema.Validate(connectionSchemaLoader, gojsonschema.NewBytesLoader(raw))
	if err != nil {
		return nil, newError(KindInvalid, "", "parse connection", err)
	}
	if !result.Valid() {
		msgs := make([]string, 0, len(result.Errors()))
		for _, e := range result.Errors() {
			msgs = append(msgs, e.String())
		}
		return nil, newError(KindInvalid, "", "parse connection", fmt.Errorf("%s", strings.Join(msgs, "; ")))
	}

	var doc Document
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, newError(KindInvalid, "", "parse connection", err)
	}
	return doc.Connection()
}
