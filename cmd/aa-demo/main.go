// Command aa-demo runs an owner-signed operation through the orchestrator
// against an in-memory ledger configured for the selected network, and can
// keep serving metrics and account state afterwards.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io/fs"
	"math/big"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/R3E-Network/smartaccount/internal/config"
	"github.com/R3E-Network/smartaccount/internal/keys"
	"github.com/R3E-Network/smartaccount/pkg/logger"
)

func main() {
	var (
		network     = flag.String("network", "", "Network to run against (default: AA_NETWORK or the config default)")
		configPath  = flag.String("config", config.DefaultPath(), "Path to networks YAML")
		envFile     = flag.String("env", ".env", "Path to .env file (optional)")
		metricsAddr = flag.String("metrics-addr", "", "Serve /metrics and /accounts on this address after the run")
		logLevel    = flag.String("log-level", "info", "Log level: trace|debug|info|warn|error")
		logFormat   = flag.String("log-format", "text", "Log format: text|json")
		rateLimit   = flag.Float64("rate-limit", 20, "Requests per second per client on the HTTP API (0 disables)")
	)
	flag.Parse()

	log := logger.New("aa-demo", logger.Config{Level: *logLevel, Format: *logFormat})

	if err := godotenv.Load(*envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
		log.WithError(err).Fatalf("load env (%s)", *envFile)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, *network, *configPath, *metricsAddr, *rateLimit, log); err != nil {
		log.WithError(err).Fatal("aa-demo failed")
	}
}

func run(ctx context.Context, networkName, configPath, metricsAddr string, rps float64, log *logger.Logger) error {
	provider, err := config.LoadOrDefault(configPath)
	if err != nil {
		return err
	}
	network, err := provider.Resolve(networkName)
	if err != nil {
		return err
	}

	mnemonic := os.Getenv("AA_MNEMONIC")
	if mnemonic == "" {
		mnemonic = keys.DevMnemonic
	}

	d, err := newDemo(network, mnemonic, log)
	if err != nil {
		return fmt.Errorf("set up %s: %w", network.Name, err)
	}
	log.WithField("network", network.Name).
		WithField("chain_id", network.ChainID.String()).
		WithField("orchestrator", network.Orchestrator.Hex()).
		WithField("account", d.acctAddr.Hex()).
		WithField("owner", d.owner.Hex()).
		Info("demo world ready")

	if _, err := d.mint(ctx, big.NewInt(1e18)); err != nil {
		return err
	}

	if metricsAddr == "" {
		return nil
	}
	return serve(ctx, metricsAddr, d.router(rps), log)
}

func serve(ctx context.Context, addr string, handler http.Handler, log *logger.Logger) error {
	server := &http.Server{
		Addr:         addr,
		Handler:      handler,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.WithField("addr", addr).Info("serving metrics and account state")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	log.Info("Shutting down...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}
