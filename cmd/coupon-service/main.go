package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"time"

	"github.com/spf13/viper"

	"github.com/membercore/coupon-service/internal/api"
	"github.com/membercore/coupon-service/internal/api/handlers"
	"github.com/membercore/coupon-service/internal/cache"
	"github.com/membercore/coupon-service/internal/repository"
	"github.com/membercore/coupon-service/internal/service"
	"github.com/membercore/coupon-service/pkg/db"
	"github.com/membercore/coupon-service/pkg/logger"
)

func main() {
	zlog, err := logger.New()
	if err != nil {
		log.Fatalf("logger init: %v", err)
	}
	defer zlog.Sync()

	v := viper.New()
	v.AutomaticEnv()
	v.SetDefault("HTTP_ADDR", ":8080")
	v.SetDefault("COUPON_CACHE_TTL", 30*time.Second)

	conn, err := db.NewPostgresConnection(db.LoadPostgresConfig())
	if err != nil {
		zlog.Fatalw("db connect failed", "error", err)
	}
	defer conn.Close()

	couponRepo := repository.NewCouponRepo(conn)
	settingsRepo := repository.NewSettingsRepo(conn)
	couponCache := cache.NewCouponCache(v.GetDuration("COUPON_CACHE_TTL"))

	svc := service.NewCouponService(couponRepo, settingsRepo, couponCache, zlog)
	handler := handlers.NewCouponHandler(svc, zlog)

	srv := &http.Server{
		Addr:         v.GetString("HTTP_ADDR"),
		Handler:      api.NewRouter(handler, zlog),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// graceful shutdown
	idleConnsClosed := make(chan struct{})
	go func() {
		c := make(chan os.Signal, 1)
		signal.Notify(c, os.Interrupt)
		<-c
		ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		if err := srv.Shutdown(ctx); err != nil {
			zlog.Errorw("server shutdown", "error", err)
		}
		close(idleConnsClosed)
	}()

	zlog.Infow("starting coupon-service", "addr", srv.Addr)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		zlog.Fatalw("listen failed", "error", err)
	}

	<-idleConnsClosed
	zlog.Info("server stopped")
}
