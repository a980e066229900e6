package app

import (
	"cuckoo/internal/config"
	"cuckoo/internal/detect"
	"cuckoo/internal/notify"
	"cuckoo/internal/poller"
	"cuckoo/internal/server"
	"cuckoo/internal/storage"
	logx "cuckoo/pkg/logx"
)

// The map* helpers translate a validated config into component settings.
// Durations fall back to defaults, so run config.Validate first.

func mapLogging(cfg *config.Config) logx.Config {
	return logx.Config{
		Level:   cfg.Logging.Level,
		Console: cfg.Logging.Console,
		File: logx.FileConfig{
			Enabled: cfg.Logging.File.Enabled,
			Path:    cfg.Logging.File.Path,
		},
	}
}

func mapStorage(cfg *config.Config) storage.Config {
	return storage.Config{
		Driver:      cfg.Storage.Driver,
		Path:        cfg.Storage.Path,
		BusyTimeout: cfg.Durations().StorageBusy,
	}
}

func mapPoller(cfg *config.Config) poller.Config {
	d := cfg.Durations()
	return poller.Config{
		Interval:    d.PollInterval,
		Workers:     cfg.Scheduler.Workers,
		FireTimeout: d.FireTimeout,
	}
}

func mapNotify(cfg *config.Config) notify.Config {
	d := cfg.Durations()
	n := cfg.Notifier
	return notify.Config{
		Driver:     n.Driver,
		RatePerSec: n.RatePerSec,
		Burst:      n.Burst,
		Timeout:    d.NotifyTimeout,
		Command: notify.CommandConfig{
			Path:           n.Command.Path,
			Args:           n.Command.Args,
			ExpectResponse: n.Command.ExpectResponse,
		},
		Telegram: notify.TelegramConfig{
			Token:        n.Telegram.Token,
			ChatID:       n.Telegram.ChatID,
			ReplyTimeout: d.ReplyTimeout,
			PollTimeout:  d.PollTimeout,
		},
		ServerChan: notify.ServerChanConfig{
			SendKey: n.ServerChan.SendKey,
			BaseURL: n.ServerChan.BaseURL,
		},
	}
}

func mapDetect(cfg *config.Config) detect.Config {
	return detect.Config{
		Detector: cfg.Context.Detector,
		Static:   cfg.Context.Static,
		Command:  cfg.Context.Command,
		Args:     cfg.Context.Args,
		Timeout:  cfg.Durations().DetectTimeout,
	}
}

func mapListen(cfg *config.Config) server.ListenConfig {
	d := cfg.Durations()
	return server.ListenConfig{
		Addr:         cfg.HTTP.Addr,
		ReadTimeout:  d.HTTPRead,
		WriteTimeout: d.HTTPWrite,
	}
}
