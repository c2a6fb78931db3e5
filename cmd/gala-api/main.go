package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/fenwicklabs/gala/internal/auth"
	"github.com/fenwicklabs/gala/internal/config"
	"github.com/fenwicklabs/gala/internal/crossword"
	"github.com/fenwicklabs/gala/internal/database"
	"github.com/fenwicklabs/gala/internal/logging"
	"github.com/fenwicklabs/gala/internal/party"
	"github.com/fenwicklabs/gala/internal/scoring"
	"github.com/fenwicklabs/gala/internal/server"
	"github.com/fenwicklabs/gala/internal/voting"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var cfgFile string

func main() {
	rootCmd := &cobra.Command{
		Use:   "gala-api",
		Short: "Gala event scoring and ranked-choice voting service",
		PreRunE: func(cmd *cobra.Command, args []string) error {
			return initConfig()
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer(cmd.Context())
		},
	}

	resetCmd := &cobra.Command{
		Use:   "reset-event",
		Short: "Reset all event state (guests, ledger, ballots, crossword)",
		PreRunE: func(cmd *cobra.Command, args []string) error {
			return initConfig()
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAdmin(database.ResetEvent)
		},
	}

	clearBallotsCmd := &cobra.Command{
		Use:   "clear-ballots",
		Short: "Delete all cast ballots without touching other state",
		PreRunE: func(cmd *cobra.Command, args []string) error {
			return initConfig()
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAdmin(database.ClearBallots)
		},
	}

	rootCmd.AddCommand(resetCmd, clearBallotsCmd)
	setupFlags(rootCmd)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func setupFlags(cmd *cobra.Command) {
	config.ApplyDefaults(viper.GetViper())
	defaults := config.NewViper()
	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "Path to configuration file")
	cmd.PersistentFlags().String("http-address", defaults.GetString("http.address"), "HTTP listen address")
	cmd.PersistentFlags().String("database-path", defaults.GetString("database.path"), "SQLite database path")
	cmd.PersistentFlags().String("log-level", defaults.GetString("log.level"), "Log level (debug, info, warn, error)")
	cmd.PersistentFlags().String("signing-secret", "", "Session token signing secret (overrides env)")
	cmd.PersistentFlags().Duration("token-ttl", defaults.GetDuration("token.ttl"), "Session token TTL")
	cmd.PersistentFlags().Bool("reject-zero-awards", defaults.GetBool("scoring.reject_zero_awards"), "Reject zero-amount point awards")
	cmd.PersistentFlags().Int("word-bonus", defaults.GetInt("crossword.word_bonus"), "Points per first crossword word completion")
	cmd.PersistentFlags().Int("puzzle-bonus", defaults.GetInt("crossword.puzzle_bonus"), "Extra points for completing the whole crossword")

	bindFlag(cmd, "http.address", "http-address")
	bindFlag(cmd, "database.path", "database-path")
	bindFlag(cmd, "log.level", "log-level")
	bindFlag(cmd, "token.signing_secret", "signing-secret")
	bindFlag(cmd, "token.ttl", "token-ttl")
	bindFlag(cmd, "scoring.reject_zero_awards", "reject-zero-awards")
	bindFlag(cmd, "crossword.word_bonus", "word-bonus")
	bindFlag(cmd, "crossword.puzzle_bonus", "puzzle-bonus")
}

func bindFlag(cmd *cobra.Command, key, flag string) {
	if err := viper.BindPFlag(key, cmd.PersistentFlags().Lookup(flag)); err != nil {
		panic(err)
	}
}

func initConfig() error {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	}

	if err := viper.ReadInConfig(); err != nil {
		var configNotFound viper.ConfigFileNotFoundError
		if cfgFile != "" && errors.As(err, &configNotFound) {
			return err
		}
	}

	return nil
}

func runServer(ctx context.Context) error {
	appConfig, err := config.Load(viper.GetViper())
	if err != nil {
		return err
	}

	logger, err := logging.NewLogger(appConfig.LogLevel)
	if err != nil {
		return err
	}
	defer logger.Sync() //nolint:errcheck

	db, err := database.Open(appConfig.DatabasePath, logger)
	if err != nil {
		return err
	}
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	defer sqlDB.Close()

	tokenIssuer := auth.NewTokenIssuer(auth.TokenIssuerConfig{
		SigningSecret: []byte(appConfig.TokenSigningKey),
		TokenTTL:      appConfig.TokenTTL,
	})

	partyService, err := party.NewService(party.ServiceConfig{
		Database: db,
		Tokens:   tokenIssuer,
		Logger:   logger,
	})
	if err != nil {
		return err
	}

	ledger, err := scoring.NewLedger(scoring.LedgerConfig{
		Database:         db,
		Logger:           logger,
		RejectZeroAwards: appConfig.RejectZeroAwards,
	})
	if err != nil {
		return err
	}

	aggregator, err := scoring.NewAggregator(db, logger)
	if err != nil {
		return err
	}
	if _, err := aggregator.Reconcile(ctx); err != nil {
		return err
	}

	votingService, err := voting.NewService(voting.ServiceConfig{
		Database: db,
		Logger:   logger,
	})
	if err != nil {
		return err
	}

	tracker, err := crossword.NewTracker(crossword.TrackerConfig{
		Database:    db,
		Ledger:      ledger,
		Logger:      logger,
		WordBonus:   appConfig.WordBonus,
		PuzzleBonus: appConfig.PuzzleBonus,
	})
	if err != nil {
		return err
	}

	handler, err := server.NewHTTPHandler(server.Dependencies{
		Party:     partyService,
		Ledger:    ledger,
		Scores:    aggregator,
		Voting:    votingService,
		Crossword: tracker,
		Tokens:    tokenIssuer,
		Logger:    logger,
	})
	if err != nil {
		return err
	}

	httpServer := &http.Server{
		Addr:    appConfig.HTTPAddress,
		Handler: handler,
	}

	signalCtx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		logger.Info("server starting", zap.String("address", appConfig.HTTPAddress))
		err := httpServer.ListenAndServe()
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-signalCtx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return httpServer.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}

func runAdmin(action func(db *gorm.DB) error) error {
	appConfig, err := config.Load(viper.GetViper())
	if err != nil {
		return err
	}

	logger, err := logging.NewLogger(appConfig.LogLevel)
	if err != nil {
		return err
	}
	defer logger.Sync() //nolint:errcheck

	db, err := database.Open(appConfig.DatabasePath, logger)
	if err != nil {
		return err
	}
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	defer sqlDB.Close()

	return action(db)
}
