package main

import (
	"encoding/json"
	"fmt"
	"math/big"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/jmerrifield20/forkledger/pkg/address"
	"github.com/jmerrifield20/forkledger/pkg/client"
)

// version is overridden via -ldflags "-X main.version=...".
var version = "dev"

var (
	serverURL    string
	cfgFile      string
	tokenFile    string
	outputFormat string
	timeout      time.Duration
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "ledgerctl",
	Short: "forkledger CLI",
	Long: `ledgerctl talks to a ledgerd server.

It creates ledgers and clones, moves tokens, and reads balances and supply
at any past block. Log in once with an operator-issued token:

  ledgerctl login 0x5aAeb6053F3E94C9b9A09f33669435E7Ef1BeAed --admin-secret $SECRET`,
	SilenceUsage: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		home, _ := os.UserHomeDir()
		if cfgFile != "" {
			viper.SetConfigFile(cfgFile)
		} else {
			viper.AddConfigPath(filepath.Join(home, ".forkledger"))
			viper.SetConfigName("config")
			viper.SetConfigType("yaml")
		}
		viper.SetEnvPrefix("FORKLEDGER")
		viper.AutomaticEnv()
		_ = viper.ReadInConfig()

		if serverURL == "" {
			serverURL = viper.GetString("server")
		}
		if serverURL == "" {
			serverURL = "http://localhost:8080"
		}
		if tokenFile == "" {
			tokenFile = viper.GetString("token_file")
		}
		if tokenFile == "" {
			tokenFile = filepath.Join(home, ".forkledger", "token.json")
		}
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default ~/.forkledger/config.yaml)")
	rootCmd.PersistentFlags().StringVar(&serverURL, "server", "", "ledgerd base URL (default http://localhost:8080)")
	rootCmd.PersistentFlags().StringVar(&tokenFile, "token-file", "", "caller token file (default ~/.forkledger/token.json)")
	rootCmd.PersistentFlags().StringVarP(&outputFormat, "output", "o", "text", "Output format: text or json")
	rootCmd.PersistentFlags().DurationVar(&timeout, "timeout", 10*time.Second, "Request timeout")

	rootCmd.AddCommand(versionCmd)
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the ledgerctl version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println("ledgerctl", version)
	},
}

// ── Helpers ──────────────────────────────────────────────────────────────────

// newClient returns an anonymous client for public reads.
func newClient(opts ...client.Option) (*client.Client, error) {
	return client.New(serverURL, append([]client.Option{client.WithTimeout(timeout)}, opts...)...)
}

// authedClient returns a client carrying the saved caller token.
func authedClient() (*client.Client, error) {
	c, err := newClient(client.WithTokenFile(tokenFile))
	if err != nil {
		return nil, fmt.Errorf("%w (run ledgerctl login first)", err)
	}
	return c, nil
}

func parseAddress(name, raw string) (address.Address, error) {
	a, err := address.Parse(raw)
	if err != nil {
		return address.Zero, fmt.Errorf("%s: %w", name, err)
	}
	return a, nil
}

// parseAmount accepts a non-negative base-10 integer in base units.
func parseAmount(raw string) (*big.Int, error) {
	v, ok := new(big.Int).SetString(strings.ReplaceAll(raw, "_", ""), 10)
	if !ok || v.Sign() < 0 {
		return nil, fmt.Errorf("invalid amount %q: want a non-negative integer", raw)
	}
	return v, nil
}

// parseToggle accepts on/off style switches.
func parseToggle(raw string) (bool, error) {
	switch strings.ToLower(raw) {
	case "on", "true", "yes", "enable", "enabled":
		return true, nil
	case "off", "false", "no", "disable", "disabled":
		return false, nil
	}
	return false, fmt.Errorf("invalid switch %q: want on or off", raw)
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
