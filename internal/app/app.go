package app

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"albowatch/internal/bulletin"
	"albowatch/internal/config"
	"albowatch/internal/fetch"
	"albowatch/internal/heartbeat"
	"albowatch/internal/notifier"
	"albowatch/internal/pipeline"
	"albowatch/internal/runlock"
	"albowatch/internal/secrets"
	"albowatch/internal/storage"
	"albowatch/internal/transport"
	telegram "albowatch/internal/transport/telegram/adapter"
	logx "albowatch/pkg/logx"
)

// App owns one configured monitor: the pipeline collaborators, the history
// store and the logging service.
type App struct {
	cfgm *config.Manager

	log  logx.Logger
	logs *logx.Service

	tokenSource secrets.Source
	sender      transport.Sender

	fetcher   *fetch.Fetcher
	extractor *bulletin.Extractor
	filter    *liveFilter
	notif     *notifier.Dispatcher
	store     storage.HistoryStore
	runner    *pipeline.Runner

	beatMu sync.Mutex
	beat   *heartbeat.Heartbeat

	lockPath string
	now      func() time.Time
}

// New loads the configuration from cfgm and builds the app. It fails only on
// configuration or storage problems; a missing token disables sending.
func New(cfgm *config.Manager) (*App, error) {
	if cfgm == nil {
		return nil, errors.New("app: nil config manager")
	}
	cfg, err := cfgm.Load()
	if err != nil {
		return nil, err
	}

	// Sender mapping. The adapter logs through a console logger until the
	// logging service exists, since the service itself needs the sender.
	token, source, tokErr := secrets.TelegramToken(cfg.Telegram.Token, cfg.Telegram.KeyringAccount)
	var sender transport.Sender
	if tokErr == nil {
		bootLog := logx.NewConsole(cfg.Logging.Level).With(logx.String("comp", "telegram"))
		sendTimeout, err := config.ParseDurationOrDefault("telegram.send_timeout", cfg.Telegram.SendTimeout, 10*time.Second)
		if err != nil {
			return nil, err
		}
		ad, err := telegram.New(telegram.Config{
			Token:       token,
			APIURL:      cfg.Telegram.APIURL,
			SendTimeout: sendTimeout,
		}, bootLog)
		if err != nil {
			return nil, fmt.Errorf("telegram: %w", err)
		}
		sender = ad
	}

	logSvc, log := logx.New(mapLogConfig(cfg), sender)
	log = log.With(logx.String("comp", "app"))
	switch {
	case tokErr == nil:
		log.Debug("telegram token resolved", logx.String("source", string(source)))
	case errors.Is(tokErr, secrets.ErrNotFound):
		log.Warn("telegram sending disabled", logx.String("reason", tokErr.Error()))
	default:
		log.Warn("telegram sending disabled: keyring lookup failed", logx.Err(tokErr))
	}

	a, err := build(cfg, sender, logSvc, log)
	if err != nil {
		_ = logSvc.Close(context.Background())
		return nil, err
	}
	a.cfgm = cfgm
	a.tokenSource = source
	return a, nil
}

func build(cfg *config.Config, sender transport.Sender, logSvc *logx.Service, log logx.Logger) (*App, error) {
	fc, err := mapFetchConfig(cfg)
	if err != nil {
		return nil, err
	}
	ncfg, err := mapNotifierConfig(cfg)
	if err != nil {
		return nil, err
	}
	hbc, err := mapHeartbeatConfig(cfg)
	if err != nil {
		return nil, err
	}
	sc, err := mapStorageConfig(cfg)
	if err != nil {
		return nil, err
	}

	notif := notifier.New(ncfg, sender, log.With(logx.String("comp", "notifier")))
	if !notif.Enabled() {
		log.Warn("alerts will not be delivered: telegram token or chat id missing")
	}
	beat, err := heartbeat.New(hbc, notif, log.With(logx.String("comp", "heartbeat")))
	if err != nil {
		return nil, err
	}

	store, err := storage.Open(sc, log.With(logx.String("comp", "storage")))
	if err != nil {
		return nil, err
	}
	log.Debug("history store opened", logx.String("driver", sc.Driver), logx.String("path", sc.Path))

	a := &App{
		log:       log,
		logs:      logSvc,
		sender:    sender,
		fetcher:   fetch.New(fc),
		extractor: bulletin.NewExtractor(cfg.Source.TableSelector),
		filter:    newLiveFilter(cfg.Filter),
		notif:     notif,
		store:     store,
		beat:      beat,
		lockPath:  runlock.PathFor(sc.Path),
		now:       time.Now,
	}
	a.runner = pipeline.New(a.fetcher, a.extractor, a.filter, a.notif, a.store, log.With(logx.String("comp", "pipeline")))
	return a, nil
}

// Logger returns the root application logger.
func (a *App) Logger() logx.Logger { return a.log }

// Close releases the history store and flushes pending log output.
func (a *App) Close(ctx context.Context) error {
	var errs []error
	if a.store != nil {
		if err := a.store.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close history: %w", err))
		}
	}
	if a.logs != nil {
		if err := a.logs.Close(ctx); err != nil {
			errs = append(errs, fmt.Errorf("close logs: %w", err))
		}
	}
	return errors.Join(errs...)
}

func (a *App) currentBeat() *heartbeat.Heartbeat {
	a.beatMu.Lock()
	defer a.beatMu.Unlock()
	return a.beat
}

func (a *App) setHeartbeat(h *heartbeat.Heartbeat) {
	a.beatMu.Lock()
	a.beat = h
	a.beatMu.Unlock()
}

// liveFilter lets a config reload replace the interest rule between runs.
type liveFilter struct {
	p atomic.Pointer[bulletin.Filter]
}

func newLiveFilter(fc config.FilterConfig) *liveFilter {
	f := &liveFilter{}
	f.set(fc)
	return f
}

func (f *liveFilter) set(fc config.FilterConfig) {
	nf := bulletin.NewFilter(fc.Keywords, fc.Departments)
	f.p.Store(&nf)
}

func (f *liveFilter) Explain(r bulletin.Record) bulletin.Verdict {
	return f.p.Load().Explain(r)
}
