package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"charterops/internal/config"
	"charterops/internal/db"
	router "charterops/internal/http"
	"charterops/internal/http/handlers"
	"charterops/internal/lock"
	"charterops/internal/metrics"
	"charterops/internal/notify"
	"charterops/internal/repositories"
	"charterops/internal/services"
	"charterops/internal/store"
	"charterops/internal/utils"
)

func main() {
	config.LoadDotEnv()
	env := config.LoadEnv()
	utils.ConfigureLogger(env.LogLevel, env.LogFormat)
	if env.GinMode != "" {
		gin.SetMode(env.GinMode)
	}
	logger := utils.Logger()
	metrics.RegisterDefault()

	ctx := context.Background()

	st, conn, err := openStore(ctx, env)
	if err != nil {
		logger.WithError(err).Fatal("failed to open store")
	}
	defer config.CloseDB()

	locker, err := newLocker(env, conn)
	if err != nil {
		logger.WithError(err).Fatal("failed to configure allocation locks")
	}

	notifier, closeNotifier := newNotifier(env)

	rules, err := config.LoadTariffRules(env.TariffRulesPath)
	if err != nil {
		logger.WithError(err).Fatal("failed to load tariff rules")
	}

	tariff := services.TariffService{Store: st, Rules: rules}
	availability := services.AvailabilityService{Store: st}
	dispatch := services.DispatchService{Store: st, Notifier: notifier}
	handler := &handlers.Handler{
		Tariff:       tariff,
		Availability: availability,
		Dispatch:     dispatch,
		Bookings: services.BookingService{
			Store:        st,
			Tariff:       tariff,
			Availability: availability,
			Dispatch:     dispatch,
			Locker:       locker,
			Notifier:     notifier,
			Rules:        rules,
		},
	}
	if conn != nil {
		handler.DB = conn
	}

	srv := &http.Server{
		Addr:              env.AppAddr,
		Handler:           router.NewRouter(env, handler),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       20 * time.Second,
		WriteTimeout:      20 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		logger.WithField("addr", env.AppAddr).Info("server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.WithError(err).Fatal("server failed")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.WithError(err).Error("server shutdown failed")
	}
	closeNotifier(shutdownCtx)

	logger.Info("server stopped")
}

// openStore returns the configured store; conn is nil for the memory store.
func openStore(ctx context.Context, env config.Env) (store.Store, *sql.DB, error) {
	switch env.StoreDriver {
	case "memory":
		m := store.NewMemory()
		if env.SeedPath != "" {
			if err := store.LoadSeedFile(m, env.SeedPath); err != nil {
				return nil, nil, err
			}
			utils.Logger().WithField("path", env.SeedPath).Info("memory store seeded")
		}
		return m, nil, nil
	case "mysql", "":
		conn, err := config.ConnectDB(ctx, env)
		if err != nil {
			return nil, nil, err
		}
		if err := db.EnsureSchema(ctx, conn); err != nil {
			return nil, nil, fmt.Errorf("ensure schema: %w", err)
		}
		return repositories.NewMySQLStore(conn), conn, nil
	default:
		return nil, nil, fmt.Errorf("unknown STORE_DRIVER %q", env.StoreDriver)
	}
}

func newLocker(env config.Env, conn *sql.DB) (lock.Locker, error) {
	switch env.LockBackend {
	case "redis":
		if env.RedisURL == "" {
			return nil, errors.New("LOCK_BACKEND=redis requires REDIS_URL")
		}
		r, err := lock.NewRedisFromURL(env.RedisURL)
		if err != nil {
			return nil, fmt.Errorf("redis url: %w", err)
		}
		r.Wait, r.Prefix = lock.DefaultWait, "charterops:"
		return r, nil
	case "mysql":
		if conn != nil {
			return lock.MySQL{DB: conn, Wait: lock.DefaultWait}, nil
		}
		utils.Logger().Warn("LOCK_BACKEND=mysql without a MySQL store; using in-process locks")
		return lock.NewLocal(lock.DefaultWait), nil
	case "local", "":
		return lock.NewLocal(lock.DefaultWait), nil
	default:
		return nil, fmt.Errorf("unknown LOCK_BACKEND %q", env.LockBackend)
	}
}

// newNotifier fans events to the log and, when configured, MQTT. Delivery
// runs off the request path.
func newNotifier(env config.Env) (notify.Notifier, func(context.Context)) {
	sinks := notify.Multi{notify.Log{}}
	disconnect := func() {}
	if env.MQTTBroker != "" {
		m, closeFn, err := notify.DialMQTT(env.MQTTBroker, "charterops-"+uuid.NewString()[:8], env.MQTTTopic)
		if err != nil {
			utils.Logger().WithError(err).Warn("mqtt unavailable; notifications go to the log only")
		} else {
			sinks = append(sinks, m)
			disconnect = closeFn
		}
	}
	async := notify.NewAsync(sinks, 0)
	return async, func(ctx context.Context) {
		if err := async.Close(ctx); err != nil {
			utils.Logger().WithError(err).Warn("notification queue not drained")
		}
		disconnect()
	}
}
