// Package app assembles the bot: config, logging, storage, transport,
// scheduler, outbound pipeline and the dialog router.
package app

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"sanbot/internal/aggregate"
	"sanbot/internal/bot"
	"sanbot/internal/config"
	"sanbot/internal/narrative"
	"sanbot/internal/notify"
	rtsup "sanbot/internal/runtime/supervisor"
	"sanbot/internal/schedule"
	"sanbot/internal/storage"
	kit "sanbot/internal/transport"
	"sanbot/internal/transport/telegram"
	logx "sanbot/pkg/logx"
)

const updateBuffer = 256

// dispatchWorkers bounds concurrent update handling; per-user state is
// still serialized by the router.
const dispatchWorkers = 4

type App struct {
	cfgMgr *config.Manager
	logSvc *logx.Service
	log    logx.Logger

	adapter  *telegram.Adapter
	store    storage.Store
	notifier *notify.Service
	sched    *schedule.Service
	router   *bot.Router

	schedulerEnabled bool

	sup     *rtsup.Supervisor
	updates chan kit.Update
}

func New(cfgPath string) (*App, error) {
	mgr := config.NewManager(cfgPath)
	cfg, err := mgr.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if err := Validate(context.Background(), cfg); err != nil {
		return nil, err
	}
	mgr.SetValidator(Validate)

	logSvc, log := logx.New(logx.Config{
		Level:   cfg.Logging.Level,
		Console: cfg.Logging.Console,
		File: logx.FileConfig{
			Enabled: cfg.Logging.File.Enabled,
			Path:    cfg.Logging.File.Path,
		},
	})
	mgr.SetLogger(log.With(logx.String("comp", "config")))

	token := strings.TrimSpace(os.Getenv("TELEGRAM_BOT_TOKEN"))
	if token == "" {
		token = cfg.Telegram.Token
	}
	pollTimeout, _ := config.Duration("telegram.poll_timeout", cfg.Telegram.PollTimeout, 10*time.Second)
	adapter, err := telegram.New(telegram.Config{
		Token:       token,
		PollTimeout: pollTimeout,
	}, log.With(logx.String("comp", "telegram")))
	if err != nil {
		_ = logSvc.Close()
		return nil, err
	}

	busyTimeout, _ := config.Duration("storage.busy_timeout", cfg.Storage.BusyTimeout, 5*time.Second)
	store, err := storage.Open(storage.Config{
		Driver:      cfg.Storage.Driver,
		Path:        cfg.Storage.Path,
		BusyTimeout: busyTimeout,
	}, log.With(logx.String("comp", "storage")))
	if err != nil {
		_ = logSvc.Close()
		if errors.Is(err, storage.ErrDisabled) {
			return nil, errors.New("storage is required: set storage.driver")
		}
		return nil, fmt.Errorf("open storage: %w", err)
	}

	retryBase, _ := config.Duration("notify.retry_base", cfg.Notify.RetryBase, 500*time.Millisecond)
	notifier := notify.New(notify.Config{
		Workers:    cfg.Notify.Workers,
		QueueSize:  cfg.Notify.QueueSize,
		RatePerSec: cfg.Notify.RatePerSec,
		RetryMax:   cfg.Notify.RetryMax,
		RetryBase:  retryBase,
	}, adapter, log)

	narrTimeout, _ := config.Duration("narrative.timeout", cfg.Narrative.Timeout, 30*time.Second)
	gen := narrative.New(narrative.Config{
		Enabled:   cfg.Narrative.Enabled,
		APIKey:    os.Getenv("GEMINI_API_KEY"),
		Model:     cfg.Narrative.Model,
		MaxTokens: cfg.Narrative.MaxTokens,
		Timeout:   narrTimeout,
	}, log.With(logx.String("comp", "narrative")))

	fire := func(ctx context.Context, rec storage.ScheduleRecord) error {
		return notifier.Enqueue(bot.ScheduledNotification(rec))
	}
	sched := schedule.New(store, fire, log.With(logx.String("comp", "schedule")))

	agg := aggregate.New(store, log.With(logx.String("comp", "aggregate")))
	router := bot.New(adapter, store, sched, agg, gen, log.With(logx.String("comp", "bot")))

	return &App{
		cfgMgr:           mgr,
		logSvc:           logSvc,
		log:              log,
		adapter:          adapter,
		store:            store,
		notifier:         notifier,
		sched:            sched,
		router:           router,
		schedulerEnabled: cfg.Scheduler.Enabled,
	}, nil
}

func (a *App) Start(ctx context.Context) error {
	a.sup = rtsup.New(ctx, rtsup.WithLogger(a.log.With(logx.String("comp", "app"))))
	runCtx := a.sup.Context()

	a.notifier.Start(runCtx)

	if a.schedulerEnabled {
		if err := a.sched.Start(runCtx); err != nil {
			return fmt.Errorf("start scheduler: %w", err)
		}
	}

	a.updates = make(chan kit.Update, updateBuffer)
	if err := a.adapter.Start(runCtx, a.updates); err != nil {
		return fmt.Errorf("start transport: %w", err)
	}

	// Updates are sharded by chat so one user's messages always land on
	// the same worker, preserving arrival order through the router.
	shards := make([]chan kit.Update, dispatchWorkers)
	for i := range shards {
		shards[i] = make(chan kit.Update, updateBuffer/dispatchWorkers)
	}
	a.sup.Go0("dispatch.shard", func(c context.Context) {
		for {
			select {
			case <-c.Done():
				return
			case up, ok := <-a.updates:
				if !ok {
					return
				}
				var chatID int64
				if up.Message != nil {
					chatID = up.Message.ChatID
				}
				select {
				case shards[shardIndex(chatID, dispatchWorkers)] <- up:
				case <-c.Done():
					return
				}
			}
		}
	})
	for i := 0; i < dispatchWorkers; i++ {
		ch := shards[i]
		a.sup.Go0(fmt.Sprintf("dispatch.%d", i), func(c context.Context) {
			for {
				select {
				case <-c.Done():
					return
				case up, ok := <-ch:
					if !ok {
						return
					}
					a.router.HandleUpdate(c, up)
				}
			}
		})
	}

	a.sup.GoRestart("config.watch", a.cfgMgr.Watch)
	a.sup.Go0("config.apply", func(c context.Context) { a.applyLoop(c) })

	a.log.Info("bot started", logx.Bool("scheduler", a.schedulerEnabled))
	return nil
}

// shardIndex maps a chat onto a dispatch worker. Chat IDs can be
// negative (group chats), so reduce through uint64.
func shardIndex(chatID int64, workers int) int {
	return int(uint64(chatID) % uint64(workers))
}

// applyLoop applies hot-reloadable settings; everything else needs a
// restart.
func (a *App) applyLoop(ctx context.Context) {
	sub := a.cfgMgr.Subscribe(1)
	defer a.cfgMgr.Unsubscribe(sub)
	for {
		select {
		case <-ctx.Done():
			return
		case cfg, ok := <-sub:
			if !ok || cfg == nil {
				return
			}
			a.logSvc.Apply(logx.Config{
				Level:   cfg.Logging.Level,
				Console: cfg.Logging.Console,
				File: logx.FileConfig{
					Enabled: cfg.Logging.File.Enabled,
					Path:    cfg.Logging.File.Path,
				},
			})
			a.log.Info("logging settings applied")
		}
	}
}

func (a *App) Stop(ctx context.Context) {
	if err := a.adapter.Stop(ctx); err != nil {
		a.log.Warn("transport stop", logx.Err(err))
	}
	a.sched.Stop()
	a.notifier.Stop(ctx)
	if a.sup != nil {
		_ = a.sup.Stop(ctx)
	}
	if err := a.store.Close(); err != nil {
		a.log.Warn("storage close", logx.Err(err))
	}
	a.log.Info("bot stopped")
	_ = a.logSvc.Close()
}

// Validate rejects configs the app could not run with. Used both at
// startup and before committing a hot reload.
func Validate(_ context.Context, cfg *config.Config) error {
	if cfg == nil {
		return errors.New("nil config")
	}
	switch strings.ToLower(strings.TrimSpace(cfg.Storage.Driver)) {
	case "sqlite", "sqlite3":
		if strings.TrimSpace(cfg.Storage.Path) == "" {
			return errors.New("storage.path is required for sqlite")
		}
	case "", "none":
		return errors.New("storage.driver is required")
	default:
		return fmt.Errorf("unknown storage.driver %q", cfg.Storage.Driver)
	}
	for _, d := range []struct{ path, raw string }{
		{"telegram.poll_timeout", cfg.Telegram.PollTimeout},
		{"storage.busy_timeout", cfg.Storage.BusyTimeout},
		{"notify.retry_base", cfg.Notify.RetryBase},
		{"narrative.timeout", cfg.Narrative.Timeout},
	} {
		if d.raw == "" {
			continue
		}
		if _, err := config.Duration(d.path, d.raw, 0); err != nil {
			return err
		}
	}
	return nil
}
