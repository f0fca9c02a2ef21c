package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/GodfreyEngineering/ChainSolve-Web-sub005/internal/audit"
	"github.com/GodfreyEngineering/ChainSolve-Web-sub005/internal/auth"
	"github.com/GodfreyEngineering/ChainSolve-Web-sub005/internal/config"
	"github.com/GodfreyEngineering/ChainSolve-Web-sub005/internal/copilot"
	"github.com/GodfreyEngineering/ChainSolve-Web-sub005/internal/entitlement"
	"github.com/GodfreyEngineering/ChainSolve-Web-sub005/internal/graph"
	"github.com/GodfreyEngineering/ChainSolve-Web-sub005/internal/llm"
	"github.com/GodfreyEngineering/ChainSolve-Web-sub005/internal/quota"
	"github.com/GodfreyEngineering/ChainSolve-Web-sub005/internal/ratelimit"
	"github.com/GodfreyEngineering/ChainSolve-Web-sub005/internal/server"
)

var (
	servePort         int
	serveAuthEndpoint string
	serveElevation    bool
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the copilot HTTP service",
	RunE:  runServe,
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "HTTP server port (overrides config)")
	serveCmd.Flags().StringVar(&serveAuthEndpoint, "auth-endpoint", "", "identity provider token verification URL (omit to use CHAINSOLVE_STATIC_TOKENS)")
	serveCmd.Flags().BoolVar(&serveElevation, "internal-elevation", false, "treat developer/admin accounts as enterprise (internal testing only)")
	rootCmd.AddCommand(serveCmd)
}

// parseStaticTokens returns a token -> user_id map from
// CHAINSOLVE_STATIC_TOKENS (comma-separated token:user_id entries).
func parseStaticTokens(env string) map[string]string {
	m := make(map[string]string)
	for _, part := range strings.Split(env, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		if idx := strings.Index(part, ":"); idx > 0 {
			m[strings.TrimSpace(part[:idx])] = strings.TrimSpace(part[idx+1:])
		}
	}
	return m
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	if err := cfg.EnsureDataDir(); err != nil {
		return fmt.Errorf("creating data directory: %w", err)
	}
	if servePort != 0 {
		cfg.Port = servePort
	}

	entStore, err := entitlement.NewSQLStore(cfg.EntitlementDBPath())
	if err != nil {
		return fmt.Errorf("initializing entitlement store: %w", err)
	}
	defer entStore.Close()

	ledger, err := quota.NewLedger(cfg.QuotaDBPath())
	if err != nil {
		return fmt.Errorf("initializing quota ledger: %w", err)
	}
	defer ledger.Close()

	graphStore, err := graph.NewSQLStore(cfg.GraphDBPath())
	if err != nil {
		return fmt.Errorf("initializing graph store: %w", err)
	}
	defer graphStore.Close()

	auditStore, err := audit.NewStore(cfg.AuditDBPath())
	if err != nil {
		return fmt.Errorf("initializing audit store: %w", err)
	}
	defer auditStore.Close()

	janitor := audit.NewJanitor(auditStore, cfg.AuditRetentionDays)
	if err := janitor.Start(); err != nil {
		return fmt.Errorf("starting audit janitor: %w", err)
	}
	defer janitor.Stop()

	var invoker copilot.Invoker
	if cfg.OpenAIAPIKey != "" {
		invoker = llm.NewInvoker(llm.NewOpenAIProvider(cfg.OpenAIAPIKey), cfg.Model)
	} else {
		log.Warn().Msg("no model provider key configured; copilot requests will return AI_NOT_CONFIGURED")
	}

	var resolverOpts []entitlement.ResolverOption
	if serveElevation {
		log.Warn().Msg("internal elevation enabled: developer/admin accounts resolve as enterprise")
		resolverOpts = append(resolverOpts, entitlement.WithInternalElevation(true))
	}
	resolver := entitlement.NewResolver(entStore, resolverOpts...)

	service := copilot.NewService(resolver, ledger, graphStore, invoker, auditStore, cfg.Model)

	var verifier auth.Verifier
	if serveAuthEndpoint != "" {
		verifier = auth.NewRemoteVerifier(serveAuthEndpoint)
	} else {
		tokens := parseStaticTokens(os.Getenv("CHAINSOLVE_STATIC_TOKENS"))
		if len(tokens) == 0 {
			log.Warn().Msg("no auth endpoint and no static tokens; every request will be rejected with 401")
		}
		verifier = auth.NewStaticVerifier(tokens)
	}

	srv := server.NewServer(service, verifier,
		server.WithCORSOrigins(cfg.CORSOrigins),
		server.WithRateLimiter(ratelimit.New(cfg.RequestsPerSecond)),
	)

	httpServer := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           srv.Routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info().Int("port", cfg.Port).Str("model", cfg.Model).Msg("copilot service listening")
		errCh <- httpServer.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
	case <-ctx.Done():
		log.Info().Msg("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown: %w", err)
		}
	}
	return nil
}
