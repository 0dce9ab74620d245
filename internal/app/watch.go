package app

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/coreos/go-systemd/v22/daemon"
	"github.com/robfig/cron/v3"

	"albowatch/internal/config"
	"albowatch/internal/heartbeat"
	"albowatch/internal/runtime/supervisor"
	"albowatch/internal/schedule"
	logx "albowatch/pkg/logx"
)

// restartSections are config sections that are only read at startup.
var restartSections = []string{"source", "history", "watch"}

// Watch runs the pipeline on the configured schedule until ctx is done. The
// first run starts immediately. Runs never overlap: a tick that fires while
// a run is still going is skipped. Config file changes are applied live
// where possible.
func (a *App) Watch(ctx context.Context) error {
	cfg := a.cfgm.Get()
	if cfg == nil {
		return errors.New("watch: config not loaded")
	}
	spec, err := schedule.Parse(cfg.Watch.Schedule)
	if err != nil {
		return fmt.Errorf("watch.schedule: %w", err)
	}
	loc, err := loadLocation("watch.timezone", cfg.Watch.Timezone)
	if err != nil {
		return err
	}
	sched, err := spec.Schedule(loc)
	if err != nil {
		return fmt.Errorf("watch.schedule: %w", err)
	}

	sup := supervisor.New(ctx,
		supervisor.WithLogger(a.log.With(logx.String("comp", "supervisor"))),
		supervisor.WithCancelOnError(true),
	)

	// transactional config reload: validate before commit/publish
	a.cfgm.SetLogger(a.log.With(logx.String("comp", "config")))
	a.cfgm.SetValidator(func(_ context.Context, c *config.Config) error { return validateReload(c) })

	clog := cronLogger{log: a.log.With(logx.String("comp", "cron"))}
	job := cron.NewChain(cron.Recover(clog), cron.SkipIfStillRunning(clog)).Then(cron.FuncJob(func() {
		res := a.RunOnce(sup.Context())
		if res.Skipped {
			return
		}
		a.log.Debug("scheduled run finished",
			logx.String("outcome", string(res.Report.Outcome)),
			logx.Time("next", sched.Next(time.Now().In(loc))),
		)
	}))

	c := cron.New(cron.WithLocation(loc))
	c.Schedule(sched, job)

	sup.GoRestart("config.watch", a.cfgm.Watch, supervisor.WithRestartBackoff(time.Second, 30*time.Second))
	sub := a.cfgm.Subscribe(8)
	sup.Go("config.reload", func(ctx context.Context) error {
		defer a.cfgm.Unsubscribe(sub)
		a.reloadLoop(ctx, sub, cfg)
		return nil
	})
	sup.Go("run.initial", func(ctx context.Context) error {
		job.Run()
		return nil
	})

	c.Start()
	a.log.Info("watching",
		logx.String("schedule", spec.String()),
		logx.String("tz", loc.String()),
		logx.String("source", a.fetcher.URL()),
	)
	if ok, err := daemon.SdNotify(false, daemon.SdNotifyReady); err != nil {
		a.log.Warn("sd_notify ready failed", logx.Err(err))
	} else if ok {
		a.log.Debug("sd_notify ready sent")
	}

	<-sup.Context().Done()
	a.log.Info("stopping watch")
	_, _ = daemon.SdNotify(false, daemon.SdNotifyStopping)

	// Cancelling the supervisor context aborts an in-flight run before it
	// commits; wait for it to unwind.
	stopCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	select {
	case <-c.Stop().Done():
	case <-stopCtx.Done():
		a.log.Warn("scheduled run did not stop in time")
	}
	if err := sup.Wait(stopCtx); err != nil {
		return err
	}
	return nil
}

func (a *App) reloadLoop(ctx context.Context, sub chan *config.Config, applied *config.Config) {
	for {
		select {
		case <-ctx.Done():
			return
		case newCfg, ok := <-sub:
			if !ok {
				return
			}
			// Coalesce bursts: keep only the latest config in the channel.
		drain:
			for {
				select {
				case newer := <-sub:
					if newer != nil {
						newCfg = newer
					}
				default:
					break drain
				}
			}
			if newCfg == nil {
				continue
			}
			a.applyConfig(applied, newCfg)
			applied = newCfg
		}
	}
}

// applyConfig swaps the parts of the app that can change between runs:
// logging, filter, notifier settings and the heartbeat.
func (a *App) applyConfig(prev, next *config.Config) {
	sections, attrs := config.SummarizeConfigChange(prev, next)
	if len(sections) == 0 {
		a.log.Info("config reloaded (no changes)")
		return
	}
	fields := append([]logx.Field{logx.String("changed", strings.Join(sections, ","))}, attrs...)
	a.log.Debug("config change summary", fields...)

	for _, s := range sections {
		if slices.Contains(restartSections, s) {
			a.log.Warn("config section changed; restart required for changes to take effect", logx.String("section", s))
		}
	}
	if prev != nil && (prev.Telegram.Token != next.Telegram.Token ||
		prev.Telegram.KeyringAccount != next.Telegram.KeyringAccount ||
		prev.Telegram.APIURL != next.Telegram.APIURL) {
		a.log.Warn("telegram credentials changed; restart required for changes to take effect")
	}

	a.logs.Apply(mapLogConfig(next))
	a.filter.set(next.Filter)

	if ncfg, err := mapNotifierConfig(next); err != nil {
		a.log.Warn("invalid telegram config; keeping previous", logx.Err(err))
	} else {
		a.notif.Apply(ncfg)
	}

	if slices.Contains(sections, "heartbeat") {
		hbc, err := mapHeartbeatConfig(next)
		if err == nil {
			var hb *heartbeat.Heartbeat
			hb, err = heartbeat.New(hbc, a.notif, a.log.With(logx.String("comp", "heartbeat")))
			if err == nil {
				a.setHeartbeat(hb)
			}
		}
		if err != nil {
			a.log.Warn("invalid heartbeat config; keeping previous", logx.Err(err))
		}
	}

	a.log.Info("config reloaded", fields...)
}

// validateReload rejects configs the app could not apply.
func validateReload(cfg *config.Config) error {
	if _, err := mapFetchConfig(cfg); err != nil {
		return err
	}
	if _, err := mapNotifierConfig(cfg); err != nil {
		return err
	}
	if _, err := mapHeartbeatConfig(cfg); err != nil {
		return err
	}
	if _, err := mapStorageConfig(cfg); err != nil {
		return err
	}
	_, err := schedule.Parse(cfg.Watch.Schedule)
	return err
}

// cronLogger routes cron's own messages through logx.
type cronLogger struct {
	log logx.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...any) {
	l.log.Debug(msg, kvFields(keysAndValues)...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...any) {
	l.log.Error(msg, append(kvFields(keysAndValues), logx.Err(err))...)
}

func kvFields(kv []any) []logx.Field {
	out := make([]logx.Field, 0, len(kv)/2)
	for i := 0; i+1 < len(kv); i += 2 {
		k, ok := kv[i].(string)
		if !ok {
			k = fmt.Sprint(kv[i])
		}
		out = append(out, logx.Any(k, kv[i+1]))
	}
	return out
}
