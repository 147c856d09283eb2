package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/ovaphlow/pitchfork/service-health-go/internal/auth"
	authrepo "github.com/ovaphlow/pitchfork/service-health-go/internal/auth/repo"
	"github.com/ovaphlow/pitchfork/service-health-go/internal/router"
	userrepo "github.com/ovaphlow/pitchfork/service-health-go/internal/user/repo"
	"github.com/ovaphlow/pitchfork/service-health-go/pkg/database"
	"github.com/ovaphlow/pitchfork/service-health-go/pkg/utilities"
)

func main() {
	// load .env file if present so os.Getenv picks values from it
	_ = godotenv.Load()

	lg, err := utilities.Init(utilities.ConfigFromEnv())
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to init logger: %v\n", err)
		os.Exit(1)
	}
	defer lg.Sync()

	sugar := lg.Sugar()
	sugar.Info("starting vitals-api")

	db, err := database.Connect(database.ConfigFromEnv())
	if err != nil {
		sugar.Fatalf("db connect: %v", err)
	}
	defer db.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := userrepo.NewUserRepo(db).EnsureTable(ctx); err != nil {
		sugar.Fatalf("ensure users table: %v", err)
	}
	if err := authrepo.NewRefreshRepo(db).EnsureTable(ctx); err != nil {
		sugar.Fatalf("ensure refresh sessions table: %v", err)
	}

	authCfg := auth.ConfigFromEnv()
	tokens, err := auth.NewTokenService(db, authCfg)
	if err != nil {
		sugar.Fatalf("token service: %v", err)
	}
	sugar.Infow("auth configured", "issuer", authCfg.Issuer, "access_ttl", authCfg.AccessTTL.String(), "refresh_ttl", authCfg.RefreshTTL.String())

	routerCfg := router.ConfigFromEnv()
	sugar.Infow("http configured", "cors_origins", routerCfg.CORSOrigins, "rate_limit", routerCfg.RateLimit)

	addr := os.Getenv("HTTP_ADDR")
	if addr == "" {
		addr = "0.0.0.0:8000"
	}
	srv := &http.Server{
		Addr:              addr,
		Handler:           router.RegisterRoutes(sugar, db, tokens, routerCfg),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			sugar.Fatalf("http server failed: %v", err)
		}
	}()
	go purgeExpiredSessions(ctx, tokens, sugar.Named("purge"))

	sugar.Infow("service is running; press Ctrl+C to stop", "addr", addr)
	<-ctx.Done()
	sugar.Info("shutting down")

	doneCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.Shutdown(doneCtx); err != nil {
		sugar.Warnf("http server shutdown failed: %v", err)
	}

	sugar.Info("goodbye")
}
