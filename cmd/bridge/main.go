// Command bridge runs the webhook order-routing service: it accepts
// alert webhooks, normalizes them, resolves instruments against the
// symbol masters, and routes order decisions to the Fyers and XTS
// gateways with position bookkeeping in redis.
package main

import (
	"context"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"orderbridge/config"
	"orderbridge/internal/api"
	"orderbridge/internal/audit"
	"orderbridge/internal/broker/fyers"
	"orderbridge/internal/broker/xts"
	"orderbridge/internal/engine"
	"orderbridge/internal/ledger"
	"orderbridge/internal/logger"
	"orderbridge/internal/metrics"
	"orderbridge/internal/model"
	"orderbridge/internal/notification"
	"orderbridge/internal/refdata"
)

func main() {
	cfg := config.Load()
	logger.Init("bridge", slog.LevelInfo)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Reference data
	downloader := refdata.NewDownloader(cfg.DataDir)
	if cfg.DownloadOnStart {
		dlCtx, dlCancel := context.WithTimeout(ctx, 5*time.Minute)
		if err := downloader.FetchAll(dlCtx); err != nil {
			log.Printf("[bridge] master download incomplete: %v", err)
		}
		dlCancel()
	}
	store := refdata.NewStore(cfg.DataDir)

	// Ledger and dedup
	rledger, err := ledger.NewRedis(ctx, cfg.RedisAddr, cfg.RedisPassword)
	if err != nil {
		log.Fatalf("[bridge] %v", err)
	}
	locks := ledger.NewKeyMutex()

	// Audit trail
	journal, err := audit.NewJournal(cfg.SQLitePath)
	if err != nil {
		log.Fatalf("[bridge] %v", err)
	}
	defer journal.Close()
	csvw, err := audit.NewCSVWriter(cfg.AuditCSVDir)
	if err != nil {
		log.Fatalf("[bridge] %v", err)
	}
	recorder := &audit.Recorder{Journal: journal, CSV: csvw}

	// Notifications
	sinks := notification.Multi{notification.NewLogNotifier()}
	if cfg.TelegramBotToken != "" && cfg.TelegramChatID != "" {
		sinks = append(sinks, notification.NewTelegramNotifier(cfg.TelegramBotToken, cfg.TelegramChatID))
	}
	if cfg.NotifyWebhookURL != "" {
		sinks = append(sinks, notification.NewWebhookNotifier(cfg.NotifyWebhookURL, "bridge"))
	}
	var notifier notification.Notifier = sinks

	// Metrics and health
	m := metrics.NewMetrics()
	health := metrics.NewHealthStatus("fyers+xts")
	health.SetRefdataLoaded(store.Loaded())
	health.StartLivenessChecker(ctx, rledger.Client(), journal.DB(), 30*time.Second)
	msrv := metrics.NewServer(cfg.MetricsAddr, health)
	msrv.Start()

	// Broker gateways
	fySession := fyers.NewSession(fyers.Credentials{
		AppID:      cfg.FyersAppID,
		SecretKey:  cfg.FyersSecretKey,
		ClientID:   cfg.FyersClientID,
		PIN:        cfg.FyersPIN,
		TOTPSecret: cfg.FyersTOTPSecret,
		TokenPath:  cfg.FyersTokenPath,
	})
	fyGateway := fyers.New(fySession)

	xtsSession := xts.NewSession(xts.Credentials{
		AppKey:    cfg.XTSAppKey,
		SecretKey: cfg.XTSSecretKey,
		UserID:    cfg.XTSUserID,
		BaseURL:   cfg.XTSBaseURL,
		TokenPath: cfg.XTSTokenPath,
	})
	xtsGateway := xts.New(xtsSession)

	fyExec := &engine.Executor{
		Gateway:           fyGateway,
		Ledger:            rledger,
		Locks:             locks,
		Resolver:          store,
		Dedup:             rledger,
		Window:            cfg.DedupWindow,
		Notifier:          notifier,
		Audit:             recorder,
		Metrics:           m,
		ReconcileOnSignal: cfg.ReconcileOnSignal,
	}
	xtsExec := &engine.Executor{
		Gateway:           xtsGateway,
		Ledger:            rledger,
		Locks:             locks,
		Resolver:          store,
		Dedup:             rledger,
		Window:            cfg.DedupWindow,
		Notifier:          notifier,
		Audit:             recorder,
		Metrics:           m,
		SegmentLookup:     true,
		ReconcileOnSignal: cfg.ReconcileOnSignal,
	}

	// Fyers order-update stream feeds reconciliation marks.
	stream := fyers.NewOrderStream(fySession)
	stream.OnUpdate = func(u fyers.OrderUpdate) {
		m.StreamEvents.Inc()
		if u.Status == model.StatusRejected {
			fyExec.MarkDirty(u.Key)
		}
	}
	stream.OnReconnect = func() {
		m.StreamRedials.Inc()
	}
	go func() {
		health.SetStreamUp(true)
		stream.Run(ctx)
		health.SetStreamUp(false)
	}()

	// Daily master refresh before open.
	if cfg.RefreshDaily {
		refresher := &refdata.Refresher{Downloader: downloader, Store: store}
		go refresher.Run(ctx)
	}

	// Webhook server
	mux := api.NewRouter(map[string]api.SignalHandler{
		"/fyers": tracked{fyExec, health},
		"/xts":   tracked{xtsExec, health},
	}, health)
	srv := &http.Server{
		Addr:         cfg.ListenAddr,
		Handler:      mux,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 60 * time.Second,
	}
	go func() {
		log.Printf("[bridge] webhook server listening on %s", cfg.ListenAddr)
		if err := srv.ListenAndServe(); err != http.ErrServerClosed {
			log.Fatalf("[bridge] server: %v", err)
		}
	}()

	// Graceful shutdown
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh
	log.Println("[bridge] shutting down")

	cancel()
	shCtx, shCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shCancel()
	srv.Shutdown(shCtx)
	msrv.Stop(shCtx)
	log.Println("[bridge] bye")
}

// tracked stamps the health status with each signal receipt.
type tracked struct {
	*engine.Executor
	health *metrics.HealthStatus
}

func (t tracked) Handle(ctx context.Context, in *model.Intent) (engine.Outcome, string) {
	t.health.SetLastSignalTime(time.Now())
	return t.Executor.Handle(ctx, in)
}
