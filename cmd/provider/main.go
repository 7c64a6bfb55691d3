package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/arlofn/provider/internal/common/config"
	"github.com/arlofn/provider/internal/handler"
	"github.com/arlofn/provider/internal/identity"
	"github.com/arlofn/provider/internal/oauth"
	"github.com/arlofn/provider/internal/storage"
	"github.com/arlofn/provider/pkg/logger"
	"github.com/arlofn/provider/pkg/metrics"
	"github.com/arlofn/provider/pkg/version"
)

var (
	configPath string

	versionCmd = &cobra.Command{
		Use:   "version",
		Short: "Print the version number of provider",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("provider version %s\n", version.Get())
		},
	}

	rootCmd = &cobra.Command{
		Use:   "provider",
		Short: "OAuth2 Provider",
		Long:  `OAuth2 authorization server: clients, authorization codes, bearer tokens and refresh tokens`,
		Run: func(cmd *cobra.Command, args []string) {
			run()
		},
	}
)

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "conf", "provider.yaml", "path to configuration file")
	rootCmd.AddCommand(versionCmd)
}

// newVerifier picks the identity backend. The database type shares the
// entity store's connection, so it requires a gorm-backed store.
func newVerifier(cfg *config.Config, store storage.Store) (identity.Verifier, error) {
	switch cfg.Identity.Type {
	case "static":
		return identity.NewStaticVerifier(cfg.Identity.Users), nil
	case "database":
		gs, ok := store.(*storage.GormStore)
		if !ok {
			return nil, fmt.Errorf("identity type %q requires a database storage type, got %q",
				cfg.Identity.Type, cfg.Storage.Type)
		}
		return identity.NewGormVerifier(gs.DB())
	default:
		return nil, fmt.Errorf("unsupported identity type: %s", cfg.Identity.Type)
	}
}

func run() {
	cfg, cfgPath, err := config.LoadConfig(configPath)
	if err != nil {
		log.Fatalf("Failed to load configuration from %s: %v", cfgPath, err)
	}

	zapLogger, err := logger.NewLogger(&cfg.Logger)
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer zapLogger.Sync()

	zapLogger.Info("starting provider",
		zap.String("version", version.Get()),
		zap.String("config", cfgPath))

	store, err := storage.NewStore(zapLogger, &cfg.Storage)
	if err != nil {
		zapLogger.Fatal("failed to initialize storage", zap.Error(err))
	}
	defer store.Close()

	verifier, err := newVerifier(cfg, store)
	if err != nil {
		zapLogger.Fatal("failed to initialize identity verifier", zap.Error(err))
	}

	opts := []oauth.Option{}
	var m *metrics.Metrics
	if cfg.Metrics.Enabled {
		m = metrics.New(cfg.Metrics)
		opts = append(opts, oauth.WithMetrics(m))
	}
	provider := oauth.NewProvider(zapLogger, store, verifier, cfg.OAuth2, opts...)

	gin.SetMode(gin.ReleaseMode)
	router := handler.NewRouter(zapLogger, provider, m)

	srv := &http.Server{
		Addr:    cfg.Server.Addr,
		Handler: router,
	}

	go func() {
		zapLogger.Info("listening", zap.String("addr", cfg.Server.Addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			zapLogger.Fatal("failed to start server", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	zapLogger.Info("shutting down")
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		zapLogger.Error("failed to shutdown server", zap.Error(err))
	}
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		log.Fatalf("Failed to execute command: %v", err)
	}
}
