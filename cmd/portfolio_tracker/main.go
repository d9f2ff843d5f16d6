package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"text/tabwriter"
	"time"

	jsoniter "github.com/json-iterator/go"
	slogzap "github.com/samber/slog-zap/v2"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"portfolio_tracker/internal/app/port"
	"portfolio_tracker/internal/app/provider"
	"portfolio_tracker/internal/app/service"
	apiclient "portfolio_tracker/internal/client"
	"portfolio_tracker/internal/config"
	"portfolio_tracker/internal/domain/entity"
	"portfolio_tracker/internal/infrastructure/configloader"
	clientprovider "portfolio_tracker/internal/infrastructure/network/client"
	networkdefinition "portfolio_tracker/internal/infrastructure/network/definition"
	"portfolio_tracker/internal/infrastructure/pricing"
	"portfolio_tracker/internal/infrastructure/protocol"
	"portfolio_tracker/internal/pkg/logger"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// walletReport pairs a scanned wallet with its aggregation result for rendering.
type walletReport struct {
	Address string                   `json:"address"`
	Label   string                   `json:"label,omitempty"`
	Summary *entity.PortfolioSummary `json:"summary"`
}

func main() {
	var (
		address       = flag.String("address", "", "single wallet address to scan")
		addressesFile = flag.String("addresses-file", "", "file with one wallet address per line (default from config)")
		chainsFlag    = flag.String("chains", "", "comma separated chain subset, e.g. ethereum,base")
		configPath    = flag.String("config", "", "path to the YAML configuration")
		format        = flag.String("format", "table", "output format: table or json")
		timeout       = flag.Duration("timeout", 0, "overall deadline for the run, 0 relies on the per-stage timeouts")
	)
	flag.Parse()

	if *format != "table" && *format != "json" {
		fmt.Fprintf(os.Stderr, "unknown -format %q, want table or json\n", *format)
		os.Exit(2)
	}

	// Temporary logger for everything that can fail before the configured one exists.
	tempZapLogger, err := zap.NewDevelopment()
	if err != nil {
		fmt.Fprintf(os.Stderr, "CRITICAL: failed to initialize temporary zap logger: %v\n", err)
		os.Exit(1)
	}

	runtime, err := config.LoadRuntime()
	if err != nil {
		tempZapLogger.Fatal("Failed to read runtime environment", zap.Error(err))
	}
	path := runtime.ConfigPath
	if *configPath != "" {
		path = *configPath
	}

	cfg, err := configloader.Load(path)
	if err != nil {
		tempZapLogger.Fatal("Failed to load configuration", zap.String("path", path), zap.Error(err))
	}
	runtime.Apply(cfg)

	zapLogger := newZapLogger(cfg.Logging.Level)
	defer zapLogger.Sync()

	slogHandler := slogzap.Option{Level: slogLevelFor(cfg.Logging.Level), Logger: zapLogger}.NewZapHandler()
	logger.InitWithHandler(slogHandler)
	appLogger := logger.NewSlogAdapter()

	logger.Info("Portfolio tracker starting", "config", path)

	descriptors, err := networkdefinition.ResolveChains(cfg.Chains, appLogger)
	if err != nil {
		logger.Fatal("Failed to resolve chain definitions", "error", err)
	}

	callCache := clientprovider.NewCallCache(time.Duration(cfg.Cache.CleanupIntervalMinutes) * time.Minute)
	chainProvider := clientprovider.NewEVMClientProvider(descriptors, cfg.RpcClient, callCache, appLogger)
	scanner := clientprovider.NewActivityScanner(
		callCache,
		time.Duration(cfg.Scanner.ActivityCacheTTLSeconds)*time.Second,
		cfg.Scanner.MaxBlockRange,
		appLogger,
	)

	catalog := provider.NewTokenCatalog(cfg.Files.TokensDir, descriptors, appLogger)
	registry, err := protocol.BuildRegistry(cfg, catalog, appLogger)
	if err != nil {
		logger.Fatal("Failed to build protocol registry", "error", err)
	}

	feedReader := pricing.NewFeedReader(
		chainProvider,
		cfg.Pricing.Feeds,
		callCache,
		time.Duration(cfg.Cache.MetadataTTLMinutes)*time.Minute,
		appLogger,
	)
	llamaClient := apiclient.NewDefiLlamaClient(
		cfg.DefiLlama.BaseURL,
		time.Duration(cfg.DefiLlama.RequestTimeoutMillis)*time.Millisecond,
		zapLogger,
		cfg.DefiLlama.MaxTokensPerRequest,
		cfg.DefiLlama.RateLimitPerMinute,
	)
	priceService := service.NewPriceService(chainProvider, feedReader, llamaClient, callCache, cfg, appLogger)
	aggregator := service.NewPositionAggregator(chainProvider, registry, scanner, priceService, cfg, appLogger)
	logger.Info("Aggregation engine initialized", "chains", len(descriptors), "protocols", len(registry.Protocols()))

	wallets, err := resolveWallets(cfg, *address, *addressesFile, appLogger)
	if err != nil {
		logger.Fatal("Failed to resolve wallet addresses", "error", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	if *timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, *timeout)
		defer cancel()
	}

	reports := make([]walletReport, 0, len(wallets))
	failed := 0
	for _, wallet := range wallets {
		summary, err := aggregator.ScanAddress(ctx, wallet.Address, splitList(*chainsFlag))
		if err != nil {
			failed++
			logger.Error("Wallet scan failed", "address", wallet.Address, "error", err)
			continue
		}
		reports = append(reports, walletReport{Address: summary.WalletAddress, Label: wallet.Label, Summary: summary})
	}

	if len(reports) > 0 {
		if *format == "json" {
			err = renderJSON(os.Stdout, reports)
		} else {
			err = renderTable(os.Stdout, reports)
		}
		if err != nil {
			logger.Fatal("Failed to render output", "error", err)
		}
	}

	if failed > 0 {
		logger.Warn("Some wallets could not be scanned", "failed", failed, "succeeded", len(reports))
		if len(reports) == 0 {
			os.Exit(1)
		}
	}
}

// newZapLogger builds the process logger; debug level selects the development config.
func newZapLogger(level string) *zap.Logger {
	build := zap.NewProduction
	if strings.EqualFold(level, "debug") {
		build = zap.NewDevelopment
	}
	zapLogger, err := build()
	if err != nil {
		fmt.Fprintf(os.Stderr, "CRITICAL: failed to initialize zap logger: %v\n", err)
		os.Exit(1)
	}
	return zapLogger
}

func slogLevelFor(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// resolveWallets picks the scan targets: an explicit -address wins, then an
// explicit wallet file, then the wallet file from the configuration.
func resolveWallets(cfg *config.Config, address, addressesFile string, log port.Logger) ([]entity.Wallet, error) {
	if address != "" {
		return []entity.Wallet{{Address: address}}, nil
	}

	walletsFile := addressesFile
	if walletsFile == "" {
		walletsFile = cfg.Files.WalletsFile
	}
	wallets, err := provider.NewWalletProvider(walletsFile, log).GetWallets()
	if err != nil {
		return nil, err
	}
	if len(wallets) == 0 {
		return nil, fmt.Errorf("wallet file %s contains no addresses", walletsFile)
	}
	return wallets, nil
}

func splitList(raw string) []string {
	if raw == "" {
		return nil
	}
	var items []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			items = append(items, part)
		}
	}
	return items
}

func renderJSON(w io.Writer, reports []walletReport) error {
	out, err := json.MarshalIndent(reports, "", "  ")
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(w, string(out))
	return err
}

func renderTable(w io.Writer, reports []walletReport) error {
	for i, report := range reports {
		if i > 0 {
			fmt.Fprintln(w)
		}
		if err := renderSummary(w, report); err != nil {
			return err
		}
	}
	return nil
}

func renderSummary(w io.Writer, report walletReport) error {
	title := report.Address
	if report.Label != "" {
		title += " (" + report.Label + ")"
	}
	fmt.Fprintf(w, "Wallet %s\n", title)

	summary := report.Summary
	if chains := summary.ScannedChains(); len(chains) > 0 {
		fmt.Fprintf(w, "Scanned chains: %s\n", strings.Join(chains, ", "))
	}

	if len(summary.Positions) == 0 {
		fmt.Fprintln(w, "No positions found.")
	} else {
		tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "PROTOCOL\tCHAIN\tKIND\tTOKEN\tBALANCE\tUSD VALUE")
		for _, pos := range summary.Positions {
			fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\n",
				pos.Protocol, pos.Chain, pos.Kind, pos.Token.Symbol, pos.Balance.String(), usdColumn(pos.USDValue))
		}
		if err := tw.Flush(); err != nil {
			return err
		}
	}

	fmt.Fprintf(w, "Total value: $%s", summary.TotalValueUSD.StringFixed(2))
	if !summary.TotalRewardsUSD.IsZero() {
		fmt.Fprintf(w, "  Unclaimed rewards: $%s", summary.TotalRewardsUSD.StringFixed(2))
	}
	if summary.UnpricedPositions > 0 {
		fmt.Fprintf(w, "  Unpriced positions: %d", summary.UnpricedPositions)
	}
	fmt.Fprintln(w)

	for _, failure := range summary.FailedChains {
		fmt.Fprintf(w, "WARNING: chain %s failed during %s: %s\n", failure.Chain, failure.Stage, failure.Reason)
	}
	return nil
}

func usdColumn(value *decimal.Decimal) string {
	if value == nil {
		return "-"
	}
	return value.StringFixed(2)
}
