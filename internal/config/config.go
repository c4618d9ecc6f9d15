package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/spf13/viper"

	"github.com/yolodolo42/walletkit/internal/aa"
	"github.com/yolodolo42/walletkit/internal/chain"
	"github.com/yolodolo42/walletkit/internal/connect"
	"github.com/yolodolo42/walletkit/internal/logger"
	"github.com/yolodolo42/walletkit/internal/store"
)

// EnvPrefix prefixes environment overrides, e.g. WALLETKIT_LOG_LEVEL
const EnvPrefix = "WALLETKIT"

// Config is the typed view of config.yaml, the environment and flags
type Config struct {
	DataDir string
	Chain   string

	Log   LogConfig
	Store StoreConfig
	RPC   RPCConfig

	Chains    map[string]*chain.ChainConfig
	Providers map[connect.ProviderID]ProviderConfig
	Connect   ConnectConfig
	Smart     SmartConfig
	Server    ServerConfig
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

type StoreConfig struct {
	Driver string `mapstructure:"driver"`
}

// RPCConfig limits outbound chain RPC per chain
type RPCConfig struct {
	RateLimit float64 `mapstructure:"rate_limit"`
	Burst     int     `mapstructure:"burst"`
}

// ProviderConfig is the bridge endpoint and connect timeout of one provider
type ProviderConfig struct {
	Endpoint string        `mapstructure:"endpoint"`
	Timeout  time.Duration `mapstructure:"timeout"`
}

type ConnectConfig struct {
	Timeout time.Duration `mapstructure:"timeout"`
}

// SmartConfig configures smart wallets. BundlerURL may contain {chainId}.
type SmartConfig struct {
	Factory    string `mapstructure:"factory"`
	EntryPoint string `mapstructure:"entry_point"`
	BundlerURL string `mapstructure:"bundler_url"`
}

type ServerConfig struct {
	Addr string `mapstructure:"addr"`
}

// SetDefaults registers every default on v so env overrides resolve
func SetDefaults(v *viper.Viper) {
	home, _ := os.UserHomeDir()
	v.SetDefault("data_dir", filepath.Join(home, ".walletkit"))
	v.SetDefault("chain", "ethereum")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")
	v.SetDefault("store.driver", store.DriverSQLite)
	v.SetDefault("rpc.rate_limit", 10.0)
	v.SetDefault("rpc.burst", 5)
	v.SetDefault("connect.timeout", connect.DefaultConnectTimeout)
	v.SetDefault("providers.hyperplay.endpoint", "http://localhost:9680/rpc")
	v.SetDefault("smart.entry_point", aa.EntryPointV06.Hex())
	v.SetDefault("smart.factory", "")
	v.SetDefault("smart.bundler_url", "")
	v.SetDefault("server.addr", "127.0.0.1:8645")
}

// Load decodes v into a validated Config. Leaf keys are read one by one so
// WALLETKIT_* environment overrides apply inside nested sections.
func Load(v *viper.Viper) (*Config, error) {
	SetDefaults(v)

	cfg := &Config{
		DataDir: expandHome(v.GetString("data_dir")),
		Chain:   v.GetString("chain"),
		Log: LogConfig{
			Level:  v.GetString("log.level"),
			Format: v.GetString("log.format"),
		},
		Store: StoreConfig{Driver: v.GetString("store.driver")},
		RPC: RPCConfig{
			RateLimit: v.GetFloat64("rpc.rate_limit"),
			Burst:     v.GetInt("rpc.burst"),
		},
		Connect: ConnectConfig{Timeout: v.GetDuration("connect.timeout")},
		Smart: SmartConfig{
			Factory:    v.GetString("smart.factory"),
			EntryPoint: v.GetString("smart.entry_point"),
			BundlerURL: v.GetString("smart.bundler_url"),
		},
		Server: ServerConfig{Addr: v.GetString("server.addr")},
	}

	chains, err := loadChains(v)
	if err != nil {
		return nil, err
	}
	cfg.Chains = chains

	providers, err := loadProviders(v)
	if err != nil {
		return nil, err
	}
	cfg.Providers = providers

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// loadChains merges chains overrides into the defaults by short name
func loadChains(v *viper.Viper) (map[string]*chain.ChainConfig, error) {
	chains := chain.DefaultChains()
	if !v.IsSet("chains") {
		return chains, nil
	}

	var overrides map[string]*chain.ChainConfig
	if err := v.UnmarshalKey("chains", &overrides); err != nil {
		return nil, fmt.Errorf("config chains: %w", err)
	}
	for key, c := range overrides {
		key = strings.ToLower(key)
		if c == nil {
			continue
		}
		if err := c.Normalize(key); err != nil {
			return nil, err
		}
		chains[key] = c
	}
	return chains, nil
}

// loadProviders reads providers.<id>.endpoint and .timeout through Get so
// defaults and env overrides apply per key
func loadProviders(v *viper.Viper) (map[connect.ProviderID]ProviderConfig, error) {
	for name := range v.GetStringMap("providers") {
		if !connect.ProviderID(name).Known() {
			return nil, fmt.Errorf("config providers: unknown provider %q", name)
		}
	}

	providers := make(map[connect.ProviderID]ProviderConfig)
	for _, id := range connect.AllProviders() {
		prefix := "providers." + string(id)
		pc := ProviderConfig{
			Endpoint: v.GetString(prefix + ".endpoint"),
			Timeout:  v.GetDuration(prefix + ".timeout"),
		}
		if pc != (ProviderConfig{}) {
			providers[id] = pc
		}
	}
	return providers, nil
}

// Validate checks values that decode but cannot work
func (c *Config) Validate() error {
	if c.DataDir == "" {
		return fmt.Errorf("data_dir is required")
	}
	if _, err := logger.ParseLevel(c.Log.Level); err != nil {
		return err
	}
	if c.Log.Format != "text" && c.Log.Format != "json" {
		return fmt.Errorf("log.format must be 'text' or 'json', got: %s", c.Log.Format)
	}
	if c.Store.Driver != store.DriverSQLite && c.Store.Driver != store.DriverFile {
		return fmt.Errorf("store.driver must be '%s' or '%s', got: %s", store.DriverSQLite, store.DriverFile, c.Store.Driver)
	}
	if c.RPC.RateLimit < 0 || c.RPC.Burst < 0 {
		return fmt.Errorf("rpc.rate_limit and rpc.burst must not be negative")
	}
	if c.Connect.Timeout < 0 {
		return fmt.Errorf("connect.timeout must not be negative")
	}

	if _, err := c.Registry().Resolve(c.Chain); err != nil {
		return fmt.Errorf("chain: %w", err)
	}

	for id, pc := range c.Providers {
		if pc.Timeout < 0 {
			return fmt.Errorf("providers.%s.timeout must not be negative", id)
		}
		if pc.Endpoint == "" {
			continue
		}
		if u, err := url.Parse(pc.Endpoint); err != nil || u.Host == "" {
			return fmt.Errorf("providers.%s.endpoint is not a url: %q", id, pc.Endpoint)
		}
	}

	for name, addr := range map[string]string{"smart.factory": c.Smart.Factory, "smart.entry_point": c.Smart.EntryPoint} {
		if addr != "" && !common.IsHexAddress(addr) {
			return fmt.Errorf("%s is not an address: %q", name, addr)
		}
	}
	if c.Smart.BundlerURL != "" {
		if u, err := url.Parse(c.BundlerURL(1)); err != nil || u.Host == "" {
			return fmt.Errorf("smart.bundler_url is not a url: %q", c.Smart.BundlerURL)
		}
	}
	return nil
}

// Registry indexes the configured chains
func (c *Config) Registry() *chain.Registry {
	return chain.NewRegistry(c.Chains)
}

// Endpoints returns the configured bridge endpoint per provider
func (c *Config) Endpoints() map[connect.ProviderID]string {
	out := make(map[connect.ProviderID]string, len(c.Providers))
	for id, pc := range c.Providers {
		if pc.Endpoint != "" {
			out[id] = pc.Endpoint
		}
	}
	return out
}

// Timeouts returns the configured connect timeout per provider
func (c *Config) Timeouts() map[connect.ProviderID]time.Duration {
	out := make(map[connect.ProviderID]time.Duration, len(c.Providers))
	for id, pc := range c.Providers {
		if pc.Timeout > 0 {
			out[id] = pc.Timeout
		}
	}
	return out
}

// FactoryAddress returns the smart wallet factory, or the zero address
func (c *Config) FactoryAddress() common.Address {
	if c.Smart.Factory == "" {
		return common.Address{}
	}
	return common.HexToAddress(c.Smart.Factory)
}

// EntryPointAddress returns the configured EntryPoint, or the zero address
func (c *Config) EntryPointAddress() common.Address {
	if c.Smart.EntryPoint == "" {
		return common.Address{}
	}
	return common.HexToAddress(c.Smart.EntryPoint)
}

// BundlerURL expands {chainId} in the bundler url template
func (c *Config) BundlerURL(chainID uint64) string {
	return strings.ReplaceAll(c.Smart.BundlerURL, "{chainId}", strconv.FormatUint(chainID, 10))
}

func expandHome(path string) string {
	if path == "~" || strings.HasPrefix(path, "~/") {
		if home, err := os.UserHomeDir(); err == nil {
			return filepath.Join(home, strings.TrimPrefix(path, "~"))
		}
	}
	return path
}
