package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/linemk/tolo-delivery/internal/app"
	"github.com/linemk/tolo-delivery/internal/app/handlers"
	"github.com/linemk/tolo-delivery/internal/config"
	"github.com/linemk/tolo-delivery/internal/distance"
	"github.com/linemk/tolo-delivery/internal/gateway"
	"github.com/linemk/tolo-delivery/internal/initdata"
	security "github.com/linemk/tolo-delivery/internal/jwt-new"
	"github.com/linemk/tolo-delivery/internal/jwt-new/jwtmiddleware"
	"github.com/linemk/tolo-delivery/internal/lib/logger"
	"github.com/linemk/tolo-delivery/internal/lib/logger/handlers/urllog"
	"github.com/linemk/tolo-delivery/internal/lib/metrics"
	"github.com/linemk/tolo-delivery/internal/service"
	"github.com/linemk/tolo-delivery/internal/storage"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func main() {
	// загрузка конфигурации
	cfg := config.MustLoad()

	// инициализация логгера, зависит от настройки окружения
	log := logger.SetupLogger(cfg.Env)
	log.Info("starting app", slog.String("env", cfg.Env))

	// секреты проверяются до подключения к БД
	tokens, err := security.NewIssuer([]byte(cfg.JWT.Secret), cfg.TokenTTL())
	if err != nil {
		panic(errors.Wrap(err, "failed to create token issuer"))
	}
	verifier, err := initdata.NewVerifier(cfg.Telegram.BotToken, cfg.Telegram.MaxAge)
	if err != nil {
		panic(errors.Wrap(err, "failed to create init data verifier"))
	}

	// загружаем объект приложения, конфигом и подключением к БД
	application, err := app.NewApp(log, cfg)
	if err != nil {
		log.Error("failed to initialize app", slog.Any("error", err))
		panic(errors.Wrap(err, "failed to initialize app"))
	}
	defer application.Close()

	m := metrics.New(cfg.Metrics.Namespace, prometheus.DefaultRegisterer)

	// реализация слоев по работе с БД по каждому направлению
	userRepo := storage.NewUserRepository(application.DB)
	orderRepo := storage.NewOrderRepository(application.DB)

	gw := gateway.New(gateway.Config{
		BaseURL:     cfg.Gateway.BaseURL,
		SecretKey:   cfg.Gateway.SecretKey,
		CallbackURL: cfg.Gateway.CallbackURL,
		ReturnURL:   cfg.Gateway.ReturnURL,
		Timeout:     cfg.Gateway.Timeout,
	}, log, m)

	// nil в интерфейсе отключает кэш; *cache.Redis(nil) передавать нельзя
	var quoteCache service.QuoteCache
	if application.Cache != nil {
		quoteCache = application.Cache
	}

	authService := service.NewAuthService(log, userRepo, tokens, verifier, m)
	orderService := service.NewOrderService(log, orderRepo, gw, service.OrderConfig{
		Currency:  cfg.Gateway.Currency,
		PublicKey: cfg.Gateway.PublicKey,
	}, m)
	priceService := service.NewPriceService(log, distance.NewHaversine(), quoteCache, cfg.Redis.QuoteTTL, service.Pricing{
		BaseFee: cfg.Pricing.BaseFee,
		PerKm:   cfg.Pricing.PerKm,
	})

	router := chi.NewRouter()
	// настройка middleware
	router.Use(middleware.RequestID)
	router.Use(middleware.RealIP)
	router.Use(urllog.CustomLoggerMiddleware(log))
	router.Use(middleware.Recoverer)

	router.Handle("/metrics", promhttp.Handler())

	// эндпоинты аутентификации
	router.Post("/api/register", handlers.RegisterHandler(log, authService))
	router.Post("/api/login", handlers.LoginHandler(log, authService))
	router.Post("/api/login/telegram", handlers.TelegramLoginHandler(log, authService))

	router.Post("/api/price", handlers.PriceHandler(log, priceService))

	// уведомления шлюза приходят без токена пользователя
	router.Get("/api/pay/callback", handlers.PaymentCallbackHandler(log, orderService))
	router.Post("/api/pay/callback", handlers.PaymentCallbackHandler(log, orderService))

	router.Group(func(r chi.Router) {
		r.Use(jwtmiddleware.New(log, authService))
		r.Post("/api/order", handlers.CreateOrderHandler(log, orderService))
		r.Get("/api/orders", handlers.ListOrdersHandler(log, orderService))
	})

	srv := &http.Server{
		Addr:         cfg.HTTPServer.Address,
		Handler:      router,
		ReadTimeout:  cfg.HTTPServer.Timeout,
		WriteTimeout: cfg.HTTPServer.Timeout,
		IdleTimeout:  cfg.HTTPServer.IdleTimeout,
	}

	go func() {
		log.Info("starting server", slog.String("address", cfg.HTTPServer.Address))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("server error", slog.Any("error", err))
		}
	}()

	// graceful shutdown
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	stopSign := <-stop
	log.Info("received shutdown signal", slog.String("signal", stopSign.String()))

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Error("server shutdown failed", slog.Any("error", err))
	}
	log.Info("server gracefully stopped")
}
