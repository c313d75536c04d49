package main

import (
	"a4achat/internal/config"
	"a4achat/internal/gateway"
	"a4achat/internal/logging"
	"a4achat/internal/session"
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"golang.org/x/sync/errgroup"
)

// version is stamped by the release script via
// -ldflags "-X main.version=...".
var version = "0.4.0-dev"

var (
	// Global flags
	verbose     bool
	gatewayFlag string
	configFlag  string

	// Logger for one-shot commands. The interactive chat writes to the
	// category file logs instead of the terminal.
	logger *zap.Logger
)

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "a4a",
	Short: "a4a - terminal chat for the ai4all community gateway",
	Long: `a4a is a terminal client for an ai4all community gateway.

The gateway fronts donated GPUs with an OpenAI-compatible API and pays
contributors in community tokens. a4a streams chat completions from it
and keeps the wallet balance, node link and host utilisation in view
while you type.

Run without arguments to start the interactive chat interface.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		// Skip logger init for interactive mode (it has its own UI)
		if cmd.Use == "a4a" && cmd.CalledAs() == "a4a" {
			return nil
		}

		// Initialize logger
		config := zap.NewProductionConfig()
		if verbose {
			config.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
		}
		var err error
		logger, err = config.Build()
		if err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Sync()
		}
		logging.CloseAll()
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		// Default behavior: launch interactive chat
		return runInteractiveChat()
	},
}

// statusCmd shows one concurrent sweep over the gateway status resources
var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show gateway, node, GPU and host status",
	RunE:  showStatus,
}

// balanceCmd shows the community token wallet
var balanceCmd = &cobra.Command{
	Use:   "balance",
	Short: "Show the community token balance",
	RunE:  showBalance,
}

// versionCmd prints the build version
var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the a4a version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("a4a %s\n", version)
	},
}

func init() {
	// Global flags
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose logging")
	rootCmd.PersistentFlags().StringVar(&gatewayFlag, "gateway", "", "Gateway base URL (overrides config and A4A_GATEWAY_URL)")
	rootCmd.PersistentFlags().StringVar(&configFlag, "config", "", "Config file (default ~/.a4a/config.yaml)")

	// Ask flags
	askCmd.Flags().StringVarP(&askModel, "model", "m", "", "Model id (default from config)")
	askCmd.Flags().Float64VarP(&askTemperature, "temperature", "t", -1, "Sampling temperature (default from config)")
	askCmd.Flags().BoolVar(&askNoSave, "no-save", false, "Skip writing the exchange to local history")

	// History flags
	historyCmd.Flags().IntVarP(&historyLimit, "limit", "n", 20, "Number of turns to show")

	// Add commands to root
	rootCmd.AddCommand(askCmd)
	rootCmd.AddCommand(modelsCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(balanceCmd)
	rootCmd.AddCommand(grantCmd)
	rootCmd.AddCommand(historyCmd)
	rootCmd.AddCommand(versionCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// app bundles the services every command shares after bootstrap.
type app struct {
	cfg      *config.Config
	cfgPath  string
	stateDir string
	client   *gateway.Client
	session  *session.Manager
}

// bootstrap loads configuration, wires the gateway client and opens the
// session stores. Every command goes through here so flag and env
// overrides behave identically in the chat UI and the one-shot commands.
func bootstrap() (*app, error) {
	cfgPath := configFlag
	if cfgPath == "" {
		cfgPath = config.DefaultConfigPath()
	}
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if gatewayFlag != "" {
		cfg.Gateway.BaseURL = gatewayFlag
	}

	stateDir := filepath.Dir(cfgPath)
	if err := logging.Initialize(stateDir); err != nil {
		// File logging is diagnostics only; the client still works.
		fmt.Fprintf(os.Stderr, "warning: file logging disabled: %v\n", err)
	}

	client := gateway.NewClient(cfg.Gateway.BaseURL, cfg.RequestTimeout())

	permanent, err := session.OpenPermanentStore(filepath.Join(stateDir, "state.json"))
	if err != nil {
		return nil, fmt.Errorf("open state store: %w", err)
	}

	return &app{
		cfg:      cfg,
		cfgPath:  cfgPath,
		stateDir: stateDir,
		client:   client,
		session:  session.NewManager(session.NewSessionStore(), permanent, client),
	}, nil
}

// historyDBPath is the sqlite transcript location under the state dir.
func (a *app) historyDBPath() string {
	return filepath.Join(a.stateDir, "history.db")
}

// statusReport collects one result per status resource. Each resource
// carries its own error so one unreachable endpoint never hides the rest.
type statusReport struct {
	health    *gateway.Health
	healthErr error
	node      *gateway.NodeStatus
	nodeErr   error
	gpu       *gateway.GPUStatus
	gpuErr    error
	stats     *gateway.SystemStats
	statsErr  error
	balance   *gateway.TokenBalance
	balErr    error
}

// fetchStatus queries the five status resources concurrently. The
// goroutines always return nil; failures land in the per-field errors.
func fetchStatus(ctx context.Context, client *gateway.Client) *statusReport {
	var rep statusReport
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { rep.health, rep.healthErr = client.Health(ctx); return nil })
	g.Go(func() error { rep.node, rep.nodeErr = client.NodeStatus(ctx); return nil })
	g.Go(func() error { rep.gpu, rep.gpuErr = client.GPUStatus(ctx); return nil })
	g.Go(func() error { rep.stats, rep.statsErr = client.SystemStats(ctx); return nil })
	g.Go(func() error { rep.balance, rep.balErr = client.Balance(ctx); return nil })
	_ = g.Wait()
	return &rep
}

func showStatus(cmd *cobra.Command, args []string) error {
	a, err := bootstrap()
	if err != nil {
		return err
	}

	logger.Debug("Fetching gateway status", zap.String("gateway", a.client.BaseURL()))
	rep := fetchStatus(cmd.Context(), a.client)

	fmt.Println("ai4all Gateway Status")
	fmt.Println("=====================")
	fmt.Printf("Gateway: %s\n", a.client.BaseURL())
	fmt.Println()

	if rep.healthErr != nil {
		fmt.Printf("✗ Gateway unreachable: %v\n", rep.healthErr)
	} else {
		fmt.Printf("✓ Gateway %s (v%s)\n", rep.health.Status, rep.health.Version)
	}

	if rep.nodeErr != nil {
		fmt.Printf("✗ Node status unavailable: %v\n", rep.nodeErr)
	} else if !rep.node.Online() {
		fmt.Printf("✗ Node daemon offline: %s\n", rep.node.Error)
	} else {
		fmt.Printf("✓ Node %s (%s mode, %d peers, up %s)\n",
			rep.node.NodeID, rep.node.Mode, rep.node.Peers, formatUptime(rep.node.UptimeSecs))
	}

	if rep.balErr != nil {
		fmt.Printf("✗ Balance unavailable: %v\n", rep.balErr)
	} else {
		fmt.Printf("✓ Balance: %d tokens (earned %d, spent %d)\n",
			rep.balance.Balance, rep.balance.EarnedTotal, rep.balance.SpentTotal)
	}

	if rep.gpuErr != nil {
		fmt.Printf("✗ GPU inventory unavailable: %v\n", rep.gpuErr)
	} else if !rep.gpu.Available {
		fmt.Printf("✗ No GPU acceleration (%s backend)\n", rep.gpu.Backend)
	} else {
		fmt.Printf("✓ GPU backend: %s\n", rep.gpu.Backend)
		for _, d := range rep.gpu.Devices {
			line := fmt.Sprintf("  [%d] %s %s, %d GB VRAM (%d GB free)",
				d.Index, d.Vendor, d.Name, d.VRAMGB, d.VRAMFreeGB)
			if d.UtilizationPct != nil {
				line += fmt.Sprintf(", %d%% busy", *d.UtilizationPct)
			}
			fmt.Println(line)
		}
	}

	if rep.statsErr != nil {
		fmt.Printf("✗ Host stats unavailable: %v\n", rep.statsErr)
	} else {
		fmt.Printf("✓ Host: CPU %.0f%%, RAM %.0f%% (%d/%d GB)\n",
			rep.stats.CPUPct, rep.stats.RAMPct, rep.stats.RAMUsedGB, rep.stats.RAMTotalGB)
	}

	return nil
}

func showBalance(cmd *cobra.Command, args []string) error {
	a, err := bootstrap()
	if err != nil {
		return err
	}

	bal, err := a.client.Balance(cmd.Context())
	if err != nil {
		return fmt.Errorf("fetch balance: %w", err)
	}
	fmt.Printf("Balance: %d tokens\n", bal.Balance)
	fmt.Printf("Earned:  %d\n", bal.EarnedTotal)
	fmt.Printf("Spent:   %d\n", bal.SpentTotal)
	return nil
}

// formatUptime renders daemon uptime the way the gateway dashboard does.
func formatUptime(secs int64) string {
	switch {
	case secs >= 86400:
		return fmt.Sprintf("%dd%dh", secs/86400, secs%86400/3600)
	case secs >= 3600:
		return fmt.Sprintf("%dh%dm", secs/3600, secs%3600/60)
	case secs >= 60:
		return fmt.Sprintf("%dm", secs/60)
	default:
		return fmt.Sprintf("%ds", secs)
	}
}
