package main

import (
	"context"
	"fmt"
	"math/big"
	"os"
	"strconv"
	"strings"
	"sync"

	"transfer-backend/internal/clients"
	"transfer-backend/internal/config"
	"transfer-backend/internal/db"
	"transfer-backend/internal/feed"
	"transfer-backend/internal/models"
	"transfer-backend/internal/repository"
	"transfer-backend/internal/services"
	"transfer-backend/internal/session"
	"transfer-backend/internal/tokens"
	"transfer-backend/internal/utils"

	"github.com/ethereum/go-ethereum/crypto"
	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var (
	configPath string
	chainFlag  string
	userFlag   string

	cfg *config.Config
)

var rootCmd = &cobra.Command{
	Use:   "transfer",
	Short: "Send and track token transfers against the ledger from the command line",
	Long: `transfer signs and sends native or ERC20 transfers with a local key,
waits for the receipt and records the outcome in the same ledger the API
server reads. It can also watch hashes sent by another wallet and print the
ledger views (history, stats, recipients) for an address.

The private key is read from <NETWORK>_PRIVATE_KEY or PRIVATE_KEY.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
			logrus.WithError(err).Warn("⚠️ failed to load .env")
		}
		loaded, err := config.LoadConfig(configPath)
		if err != nil {
			return err
		}
		loaded.ConfigureLogger()
		cfg = loaded
		return nil
	},
}

func main() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "path to config.yaml")
	rootCmd.PersistentFlags().StringVarP(&chainFlag, "chain", "c", "", "chain id or network key (default: blockchain.defaultChainId)")
	rootCmd.PersistentFlags().StringVarP(&userFlag, "user", "u", "", "address to act as (default: the signer address)")

	rootCmd.AddCommand(sendCmd, trackCmd, historyCmd, statsCmd, recipientsCmd)
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// runtime ledger plus, when dialed, one chain context
type runtime struct {
	chains       *utils.ChainRegistry
	registry     *tokens.Registry
	chainInfo    *utils.ChainInfo
	chain        *clients.EVMChain
	transactions repository.TransactionRepository
	recipients   repository.RecipientRepository
	transport    *feed.Transport
}

func (r *runtime) close() {
	if r.chain != nil {
		r.chain.Close()
	}
	if r.transport != nil {
		r.transport.Close()
	}
}

func selectChain(chains *utils.ChainRegistry) (*utils.ChainInfo, error) {
	if chainFlag == "" {
		if cfg.Blockchain.DefaultChainID == 0 {
			return nil, fmt.Errorf("no --chain given and blockchain.defaultChainId is not set")
		}
		return chains.MustGet(cfg.Blockchain.DefaultChainID)
	}
	if id, err := strconv.ParseUint(chainFlag, 10, 64); err == nil {
		return chains.MustGet(id)
	}
	if info, ok := chains.GetByKey(strings.ToLower(chainFlag)); ok {
		return info, nil
	}
	return nil, fmt.Errorf("unknown chain %q", chainFlag)
}

func networkFor(info *utils.ChainInfo) config.NetworkConfig {
	network := config.NetworkConfig{ChainID: info.ChainID}
	if n, err := cfg.GetNetworkConfigByChainID(info.ChainID); err == nil {
		network = *n
	}
	if network.PrivateKey == "" {
		network.PrivateKey = os.Getenv("PRIVATE_KEY")
	}
	return network
}

func openRuntime(ctx context.Context, dial bool) (*runtime, error) {
	r := &runtime{chains: cfg.ChainRegistry()}

	registry, err := tokens.NewRegistry(r.chains, cfg.Tokens)
	if err != nil {
		return nil, err
	}
	r.registry = registry

	// read-only commands work without a chain
	if r.chainInfo, err = selectChain(r.chains); err != nil && dial {
		return nil, err
	}

	gdb, err := db.InitDB(cfg.Database)
	if err != nil {
		return nil, err
	}
	r.transactions = repository.NewTransactionRepository(gdb)
	r.recipients = repository.NewRecipientRepository(gdb)

	r.transport, err = feed.OpenTransport(ctx, cfg)
	if err != nil {
		logrus.WithError(err).Warn("⚠️ change feed unavailable, observers will not be notified")
		r.transport = &feed.Transport{Name: "none", Publisher: feed.NopPublisher{}}
	}

	if !dial {
		return r, nil
	}
	r.chain, err = clients.DialEVMChain(ctx, r.chainInfo, networkFor(r.chainInfo), cfg.Watcher.PollIntervalDuration())
	if err != nil {
		r.close()
		return nil, err
	}
	return r, nil
}

// session acts as --user, else as the address of the configured key
func (r *runtime) session() (*session.Session, error) {
	user := userFlag
	if user == "" {
		user = r.signerAddress()
	}
	if !utils.IsEvmAddress(user) {
		return nil, fmt.Errorf("no usable address: pass --user or configure a private key")
	}
	return session.New(user, r.chainInfo), nil
}

func (r *runtime) signerAddress() string {
	if r.chain != nil && r.chain.CanSign() {
		return r.chain.ActiveAddress().Hex()
	}
	if r.chainInfo == nil {
		return ""
	}
	hexKey := strings.TrimPrefix(networkFor(r.chainInfo).PrivateKey, "0x")
	if hexKey == "" {
		return ""
	}
	key, err := crypto.HexToECDSA(hexKey)
	if err != nil {
		return ""
	}
	return crypto.PubkeyToAddress(key.PublicKey).Hex()
}

// outcomeCollector records through the ledger writer and keeps the outcomes for printing
type outcomeCollector struct {
	next services.OutcomeRecorder

	mu       sync.Mutex
	outcomes []services.Outcome
	errs     []error
}

func (c *outcomeCollector) Record(ctx context.Context, o services.Outcome) error {
	err := c.next.Record(ctx, o)
	c.mu.Lock()
	c.outcomes = append(c.outcomes, o)
	c.errs = append(c.errs, err)
	c.mu.Unlock()
	return err
}

func (c *outcomeCollector) print(chain *utils.ChainInfo) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.outcomes) == 0 {
		fmt.Println("⚠️ nothing recorded (the transaction did not match, see the log)")
	}
	for i, o := range c.outcomes {
		if o.Status == models.TransactionStatusSuccess {
			fmt.Printf("✅ confirmed in block %d, gas fee %s wei\n", o.BlockNumber, weiString(o.GasFee))
		} else {
			fmt.Printf("❌ failed: %v\n", o.Err)
		}
		if url := chain.TxURL(o.Submission.HashHex()); url != "" {
			fmt.Printf("   %s\n", url)
		}
		if c.errs[i] != nil {
			fmt.Printf("⚠️ ledger write failed: %v\n", c.errs[i])
		}
	}
}

func (r *runtime) watcher() (*services.ReceiptWatcher, *outcomeCollector) {
	writer := services.NewLedgerWriter(r.transactions, r.recipients, r.transport.Publisher)
	collector := &outcomeCollector{next: writer}
	return services.NewReceiptWatcher(services.StaticChains{r.chainInfo.ChainID: r.chain}, collector, cfg.Watcher), collector
}

func weiString(v *big.Int) string {
	if v == nil {
		return "0"
	}
	return v.String()
}
