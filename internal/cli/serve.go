package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/querygate/querygate/internal/audit"
	"github.com/querygate/querygate/internal/auth"
	"github.com/querygate/querygate/internal/config"
	"github.com/querygate/querygate/internal/execute"
	"github.com/querygate/querygate/internal/gateway"
	"github.com/querygate/querygate/internal/parser"
	"github.com/querygate/querygate/internal/policy"
	"github.com/querygate/querygate/internal/server"
	"github.com/querygate/querygate/internal/store"
)

var serveConfigPath string

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().StringVar(&serveConfigPath, "config", "", "Path to configuration YAML")
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP gateway",
	Long:  "Runs the gateway server: login, natural-language query submission with\npreview/confirm, reports, and schema introspection.\nSupports hot-reload of the policy rules file.",
	RunE:  runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(serveConfigPath)
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	log := zerolog.New(os.Stderr).With().Timestamp().Logger()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	db, err := store.Open(ctx, cfg.Database.DSN, cfg.Database.MaxConns)
	if err != nil {
		return fmt.Errorf("failed to open store: %w", err)
	}
	defer db.Close()

	recorder := audit.Recorder(audit.NewStoreRecorder(db))
	if cfg.Audit.FilePath != "" {
		fileRec, err := audit.OpenFile(cfg.Audit.FilePath)
		if err != nil {
			return fmt.Errorf("failed to open audit file: %w", err)
		}
		defer fileRec.Close()
		recorder = audit.Fanout{recorder, fileRec}
	}

	var p parser.Parser
	switch cfg.Parser.Variant {
	case "model":
		p = parser.NewModel(parser.ModelConfig{
			APIURL:    cfg.Parser.APIURL,
			APIKey:    cfg.Parser.APIKey,
			Model:     cfg.Parser.Model,
			MaxTokens: cfg.Parser.MaxTokens,
			Timeout:   cfg.Parser.Timeout.Std(),
		})
	default:
		p = parser.NewPattern()
	}

	rules, err := policy.Load(cfg.Policy.RulesPath)
	if err != nil {
		return fmt.Errorf("failed to load policy rules: %w", err)
	}

	exec := execute.New(db, recorder, log)
	gw := gateway.New(p, policy.NewEngine(rules), exec, log)
	reports := store.NewReports(db, rules)
	verifier := auth.NewCredentialStore(db)
	issuer := auth.NewIssuer([]byte(cfg.Auth.TokenSecret), cfg.Auth.TokenTTL.Std())

	srv := server.New(server.Config{
		Addr:      cfg.Server.Addr,
		RulesPath: cfg.Policy.RulesPath,
	}, gw, reports, verifier, issuer, log)

	reloader, err := server.NewReloader(srv, log)
	if err != nil {
		log.Warn().Err(err).Msg("hot-reload disabled")
	}
	if reloader != nil {
		go reloader.Run(ctx)
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-sigCh
		log.Info().Msg("shutting down")
		cancel()
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer shutdownCancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("shutdown error")
		}
	}()

	log.Info().
		Str("addr", cfg.Server.Addr).
		Str("parser", cfg.Parser.Variant).
		Str("config_hash", cfg.Hash).
		Msg("querygate starting")
	return srv.ListenAndServe()
}
