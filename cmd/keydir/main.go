package main

import (
	"context"
	"crypto/rand"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"signalcore/internal/app"
	"signalcore/internal/crypto"
	"signalcore/internal/logging"
	"signalcore/internal/relay"
)

func main() {
	if err := rootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	var (
		addr     string
		rootFile string
	)
	cmd := &cobra.Command{
		Use:          "keydir",
		Short:        "Key directory: pre-key bundles, sender certificates and account lookups",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := app.LoadConfig()
			if cmd.Flags().Changed("addr") {
				cfg.ListenAddr = addr
			}
			if cmd.Flags().Changed("trust-root") {
				cfg.TrustRootFile = rootFile
			}
			log, err := logging.New(cfg.LogMode)
			if err != nil {
				return err
			}
			defer func() { _ = log.Sync() }()
			return serve(cmd.Context(), cfg, log)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "listen address (default :8080)")
	cmd.Flags().StringVar(&rootFile, "trust-root", "", "trust-root key file, created when missing")
	return cmd
}

func serve(ctx context.Context, cfg *app.Config, log *zap.Logger) error {
	root, err := relay.LoadOrCreateTrustRoot(cfg.TrustRootFile, rand.Reader)
	if err != nil {
		return err
	}
	signer, err := relay.NewSigner(rand.Reader, root, cfg.ServerKeyID)
	if err != nil {
		return err
	}

	var dir relay.Directory = relay.NewMemoryDirectory()
	if cfg.RedisAddr != "" {
		rdb := goredis.NewClient(&goredis.Options{Addr: cfg.RedisAddr, Password: cfg.RedisPassword})
		defer rdb.Close()
		if err := rdb.Ping(ctx).Err(); err != nil {
			return err
		}
		dir = relay.NewRedisDirectory(rdb, cfg.RedisPrefix+":keydir")
		log.Info("using redis directory", zap.String("addr", cfg.RedisAddr))
	}

	srv := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           relay.NewServer(dir, signer, cfg.CertTTL, log).Router(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		log.Info("key directory listening",
			zap.String("addr", cfg.ListenAddr),
			zap.String("trust_root", crypto.B64(signer.TrustRoot().Serialize())))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
