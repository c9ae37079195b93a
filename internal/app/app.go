package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/mohitraj1509/kishan-unati-project-sub000/internal/config"
	"github.com/mohitraj1509/kishan-unati-project-sub000/internal/directory"
	"github.com/mohitraj1509/kishan-unati-project-sub000/internal/httpapi"
	"github.com/mohitraj1509/kishan-unati-project-sub000/internal/order"
	"github.com/mohitraj1509/kishan-unati-project-sub000/internal/payment"
	"github.com/mohitraj1509/kishan-unati-project-sub000/internal/revenue"
	"github.com/mohitraj1509/kishan-unati-project-sub000/internal/storage"
	"github.com/mohitraj1509/kishan-unati-project-sub000/internal/websocket"
	"github.com/mohitraj1509/kishan-unati-project-sub000/pkg/contracts"
	"github.com/mohitraj1509/kishan-unati-project-sub000/pkg/messaging"
	"github.com/mohitraj1509/kishan-unati-project-sub000/pkg/metrics"

	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/sync/errgroup"
)

type App struct {
	cfg       config.Config
	logger    *slog.Logger
	store     *storage.Store
	orderSvc  *order.Service
	wsHub     *websocket.Hub
	publisher messaging.Publisher
	consumer  *messaging.Consumer
	outbox    *messaging.OutboxDispatcher
	httpSrv   *http.Server
}

func New(ctx context.Context, cfg config.Config, logger *slog.Logger) (*App, error) {
	store, err := storage.New(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, err
	}

	m := metrics.New(prometheus.DefaultRegisterer)
	repo := order.NewPostgresRepository(store.Pool())
	gateway := payment.NewDefaultGateway(logger)
	catalog := directory.NewHTTP(cfg.CatalogBaseURL, cfg.CatalogTimeout)

	orderSvc := order.NewService(repo, gateway, catalog, cfg.PaymentTimeout, logger, m)
	aggregator := revenue.NewAggregator(repo)
	wsHub := websocket.NewHub()

	publisher, err := messaging.NewRabbitPublisher(cfg.RabbitURL, cfg.OrdersExchange)
	if err != nil {
		store.Close()
		return nil, err
	}

	consumer, err := messaging.NewRabbitConsumer(cfg.RabbitURL, cfg.OrdersExchange, cfg.UpdatesQueue, logger)
	if err != nil {
		store.Close()
		publisher.Close()
		return nil, err
	}

	api := httpapi.NewServer(orderSvc, aggregator, cfg.AdminToken, logger, m)
	wsHandler := websocket.NewHandler(wsHub, orderSvc, logger)
	api.HandleFunc("GET /orders/{orderID}/ws", wsHandler.ServeWS)
	httpSrv := &http.Server{
		Addr:    cfg.HTTPAddr,
		Handler: api,
	}

	outbox := messaging.NewOutboxDispatcher(store.Pool(), publisher, "order_outbox", cfg.OutboxInterval, cfg.OutboxBatchSize, logger)

	return &App{
		cfg:       cfg,
		logger:    logger,
		store:     store,
		orderSvc:  orderSvc,
		wsHub:     wsHub,
		publisher: publisher,
		consumer:  consumer,
		outbox:    outbox,
		httpSrv:   httpSrv,
	}, nil
}

func (a *App) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)

	a.outbox.Start(ctx)

	g.Go(func() error {
		a.wsHub.Run(ctx)
		return nil
	})

	g.Go(func() error {
		return a.consumer.Start(ctx, a.handleOrderEvent)
	})

	g.Go(func() error {
		a.logger.Info("order service listening", "addr", a.cfg.HTTPAddr)
		if err := a.httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), a.cfg.ShutdownGracePeriod)
		defer cancel()
		return a.httpSrv.Shutdown(shutdownCtx)
	})

	return g.Wait()
}

func (a *App) Close() {
	a.consumer.Close()
	a.publisher.Close()
	a.store.Close()
}

// handleOrderEvent feeds published lifecycle events into the websocket hub.
// Updates flow through the broker rather than in-process so every instance
// behind a load balancer sees them. Malformed payloads are dropped; a nack
// would just loop them forever.
func (a *App) handleOrderEvent(ctx context.Context, eventType string, body []byte) error {
	switch eventType {
	case contracts.OrderCreatedType:
		var evt contracts.OrderCreatedEvent
		if err := json.Unmarshal(body, &evt); err != nil {
			a.logger.Error("invalid order created event", "err", err)
			return nil
		}
		a.wsHub.BroadcastStatus(evt.OrderID, evt.Status)
	case contracts.OrderStatusChangedType:
		var evt contracts.OrderStatusChangedEvent
		if err := json.Unmarshal(body, &evt); err != nil {
			a.logger.Error("invalid status changed event", "err", err)
			return nil
		}
		a.wsHub.BroadcastStatus(evt.OrderID, evt.To)
	default:
		a.logger.Warn("unknown event type", "type", eventType)
	}
	return nil
}

func Run() error {
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	cfg := config.Load()
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	app, err := New(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("init app: %w", err)
	}
	defer app.Close()

	return app.Run(ctx)
}
