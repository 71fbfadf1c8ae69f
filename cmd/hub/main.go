// Command hub is the Bridge Hub process: it wires every component
// (pollers, listener, repositories, HTTP API, metrics) together and
// shuts them down in the fixed order spec.md §5 mandates, grounded on
// explorer/indexer/cmd/main.go's construct-then-reverse-shutdown shape.
package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/avicenne-studio/bridge-hub/internal/api"
	"github.com/avicenne-studio/bridge-hub/internal/chains/qubic/eventpoller"
	"github.com/avicenne-studio/bridge-hub/internal/chains/solana/costestimator"
	"github.com/avicenne-studio/bridge-hub/internal/chains/solana/txpoller"
	"github.com/avicenne-studio/bridge-hub/internal/chains/solana/wslistener"
	"github.com/avicenne-studio/bridge-hub/internal/config"
	"github.com/avicenne-studio/bridge-hub/internal/events/pgevents"
	"github.com/avicenne-studio/bridge-hub/internal/fees"
	"github.com/avicenne-studio/bridge-hub/internal/httpclient"
	"github.com/avicenne-studio/bridge-hub/internal/metrics"
	"github.com/avicenne-studio/bridge-hub/internal/oracle/healthpoll"
	"github.com/avicenne-studio/bridge-hub/internal/oracle/orderspoll"
	"github.com/avicenne-studio/bridge-hub/internal/oracle/registry"
	"github.com/avicenne-studio/bridge-hub/internal/orders/pgorders"
	"github.com/avicenne-studio/bridge-hub/internal/respcache"
	"github.com/avicenne-studio/bridge-hub/internal/sched"
	"github.com/avicenne-studio/bridge-hub/internal/signer"
	"github.com/avicenne-studio/bridge-hub/pkg/logger"
)

var (
	configPath = flag.String("config", "config/hub.yaml", "path to configuration file")
	version    = "1.0.0"
)

func main() {
	flag.Parse()

	log := logger.New("hub")
	log.Info("starting bridge hub", "version", version)

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Error("failed to load configuration", "error", err.Error())
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		log.Error("invalid configuration", "error", err.Error())
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	metricsServer := metrics.NewServer(cfg.Metrics.Port)
	if metricsServer != nil {
		go func() {
			if err := metricsServer.Start(); err != nil {
				log.Error("metrics server failed", "error", err.Error())
			}
		}()
	}

	keys, err := signer.LoadKeysFile(cfg.Keys.HubKeysFile)
	if err != nil {
		log.Error("failed to load hub keys", "error", err.Error())
		os.Exit(1)
	}
	sign := signer.New(keys)

	ordersRepo, err := pgorders.New(pgorders.Config{URL: cfg.Storage.DatabaseURL})
	if err != nil {
		log.Error("failed to connect orders repository", "error", err.Error())
		os.Exit(1)
	}
	if err := ordersRepo.InitSchema(); err != nil {
		log.Error("failed to initialize orders schema", "error", err.Error())
		os.Exit(1)
	}

	eventsRepo, err := pgevents.New(pgevents.Config{URL: cfg.Storage.DatabaseURL})
	if err != nil {
		log.Error("failed to connect events repository", "error", err.Error())
		os.Exit(1)
	}
	if err := eventsRepo.InitSchema(); err != nil {
		log.Error("failed to initialize events schema", "error", err.Error())
		os.Exit(1)
	}

	var cache *respcache.Cache
	if cfg.Redis.Enabled {
		cache, err = respcache.New(respcache.Config{
			Address:  cfg.Redis.Address,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err != nil {
			log.Error("failed to connect response cache", "error", err.Error())
			os.Exit(1)
		}
	}

	reg := registry.New(cfg.Oracles.URLs)
	oracleHTTP := httpclient.New(httpclient.Config{})
	solanaHTTP := httpclient.New(httpclient.Config{})
	qubicHTTP := httpclient.New(httpclient.Config{})

	cost := costestimator.New(solanaHTTP, cfg.Helius.RPCURL)
	estimator := fees.New(reg, cost, fees.Config{})

	pollerCfg := sched.Config{
		IntervalMs:       cfg.Poller.IntervalMs,
		RequestTimeoutMs: cfg.Poller.RequestTimeoutMs,
		JitterMs:         cfg.Poller.JitterMs,
	}

	healthPoller := healthpoll.New(cfg.Oracles.URLs, oracleHTTP, sign, reg, pollerCfg)
	ordersPoller := orderspoll.New(cfg.Oracles.URLs, oracleHTTP, sign, reg, ordersRepo,
		orderspoll.Threshold{Value: cfg.Oracles.SignatureThreshold, OracleCount: cfg.Oracles.Count}, pollerCfg)

	var txPoller *txpoller.Poller
	if cfg.Helius.PollerEnabled {
		txPoller = txpoller.New(cfg.Helius.RPCURL, solanaHTTP, eventsRepo, txpoller.Config{
			IntervalMs:   cfg.Helius.PollerIntervalMs,
			TimeoutMs:    cfg.Helius.PollerTimeoutMs,
			RetryDelayMs: cfg.Helius.RetryDelayMs,
			TokenMint:    cfg.Helius.TokenMint,
		})
	}

	var wsListener *wslistener.Listener
	if cfg.Solana.ListenerEnabled {
		wsListener = wslistener.New(wslistener.Config{
			PrimaryURL:      cfg.Solana.WSURL,
			FallbackURL:     cfg.Solana.FallbackWSURL,
			ProgramAddress:  cfg.Helius.TokenMint,
			ReconnectBaseMs: cfg.Solana.WSReconnectBaseMs,
			ReconnectMaxMs:  cfg.Solana.WSReconnectMaxMs,
			FallbackRetryMs: cfg.Solana.WSFallbackRetryMs,
		}, eventsRepo)
	}

	var qEventPoller interface {
		Start(context.Context)
		Stop()
	}
	if cfg.Qubic.PollerEnabled {
		qEventPoller = eventpoller.New(cfg.Qubic.RPCURL, qubicHTTP, eventsRepo, sched.Config{
			IntervalMs:       cfg.Qubic.PollerIntervalMs,
			RequestTimeoutMs: cfg.Qubic.PollerTimeoutMs,
			JitterMs:         cfg.Poller.JitterMs,
		})
	}

	apiServer := api.NewServer(api.Config{
		Host:         cfg.Server.Host,
		Port:         cfg.Server.Port,
		RateLimitMax: cfg.Server.RateLimitMax,
	}, api.Deps{
		Orders:    ordersRepo,
		Events:    eventsRepo,
		Registry:  reg,
		Estimator: estimator,
		Signer:    sign,
		Cache:     cache,
	}, log)

	healthPoller.Start(ctx)
	ordersPoller.Start(ctx)
	if txPoller != nil {
		txPoller.Start(ctx)
	}
	if wsListener != nil {
		wsListener.Start(ctx)
	}
	if qEventPoller != nil {
		qEventPoller.Start(ctx)
	}

	go func() {
		if err := apiServer.Start(); err != nil {
			log.Error("api server failed", "error", err.Error())
			cancel()
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	select {
	case <-sigCh:
		log.Info("received interrupt signal, shutting down")
	case <-ctx.Done():
		log.Info("context cancelled, shutting down")
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	// Shutdown order per spec.md §5: stop all pollers, send
	// logsUnsubscribe (wslistener.Stop does this internally), close HTTP
	// client pools, close repository handles.
	log.Info("stopping pollers")
	healthPoller.Stop()
	ordersPoller.Stop()
	if txPoller != nil {
		txPoller.Stop()
	}
	if qEventPoller != nil {
		qEventPoller.Stop()
	}

	log.Info("stopping websocket listener")
	if wsListener != nil {
		wsListener.Stop()
	}

	log.Info("stopping api server")
	if err := apiServer.Stop(shutdownCtx); err != nil {
		log.Error("failed to stop api server gracefully", "error", err.Error())
	}

	if metricsServer != nil {
		log.Info("stopping metrics server")
		if err := metricsServer.Stop(shutdownCtx); err != nil {
			log.Error("failed to stop metrics server gracefully", "error", err.Error())
		}
	}

	log.Info("closing http client pools")
	oracleHTTP.Close()
	solanaHTTP.Close()
	qubicHTTP.Close()
	if cache != nil {
		if err := cache.Close(); err != nil {
			log.Error("failed to close response cache", "error", err.Error())
		}
	}

	log.Info("closing repository handles")
	if err := ordersRepo.Close(); err != nil {
		log.Error("failed to close orders repository", "error", err.Error())
	}
	if err := eventsRepo.Close(); err != nil {
		log.Error("failed to close events repository", "error", err.Error())
	}

	log.Info("bridge hub stopped")
}
