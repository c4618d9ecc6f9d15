package cli

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/yolodolo42/walletkit/internal/config"
)

var (
	cfgFile string
	rootCmd = &cobra.Command{
		Use:   "walletkit",
		Short: "Connect wallets from the terminal",
		Long: `walletkit connects an end-user wallet through one surface: a local HD
wallet, MetaMask, WalletConnect, Magic, HyperPlay, a browser wallet, or a
smart wallet owned by any of them.

Connect once, then sign and send with the active account. Remote sessions
are remembered and resumed until you disconnect.`,
		SilenceUsage: true,
	}
)

func Execute(ctx context.Context) error {
	return rootCmd.ExecuteContext(ctx)
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.walletkit/config.yaml)")
	rootCmd.PersistentFlags().String("chain", "ethereum", "Chain name or ID")
	rootCmd.PersistentFlags().String("data-dir", "", "Data directory (default is $HOME/.walletkit)")
	rootCmd.PersistentFlags().String("log-level", "", "Log level: debug, info, warn, error")
	_ = viper.BindPFlag("chain", rootCmd.PersistentFlags().Lookup("chain"))
	_ = viper.BindPFlag("data_dir", rootCmd.PersistentFlags().Lookup("data-dir"))
	_ = viper.BindPFlag("log.level", rootCmd.PersistentFlags().Lookup("log-level"))
}

func initConfig() {
	// .env is optional
	_ = godotenv.Load()

	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		home, err := os.UserHomeDir()
		cobra.CheckErr(err)

		configDir := filepath.Join(home, ".walletkit")
		if err := os.MkdirAll(configDir, 0o700); err != nil {
			fmt.Fprintf(os.Stderr, "Warning: could not create config directory: %v\n", err)
		}

		viper.AddConfigPath(configDir)
		viper.AddConfigPath(".")
		viper.SetConfigType("yaml")
		viper.SetConfigName("config")
	}

	viper.SetEnvPrefix(config.EnvPrefix)
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	viper.AutomaticEnv()

	// Silently ignore missing config file - it's optional
	_ = viper.ReadInConfig()
}
