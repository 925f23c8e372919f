package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/alexisbeaulieu97/feedupdate/internal/condition"
	"github.com/alexisbeaulieu97/feedupdate/internal/config"
	"github.com/alexisbeaulieu97/feedupdate/internal/feed"
	"github.com/alexisbeaulieu97/feedupdate/internal/logger"
	"github.com/alexisbeaulieu97/feedupdate/internal/manager"
	"github.com/alexisbeaulieu97/feedupdate/internal/source"
)

// app bundles what the check and apply commands share.
type app struct {
	cfg     *config.Config
	log     *logger.Logger
	source  source.Source
	closers []io.Closer
}

func openApp(flags *rootFlags, stderr io.Writer) (*app, error) {
	if err := validateConfigPath(flags.configPath); err != nil {
		return nil, err
	}
	cfg, err := config.Load(flags.configPath)
	if err != nil {
		return nil, err
	}

	a := &app{cfg: cfg}
	if err := a.openLogger(flags.verbose, stderr); err != nil {
		return nil, err
	}
	src, err := newSource(cfg.Feed)
	if err != nil {
		a.Close()
		return nil, err
	}
	if c, ok := src.(io.Closer); ok {
		a.closers = append(a.closers, c)
	}
	a.source = src
	return a, nil
}

func (a *app) openLogger(verbose bool, stderr io.Writer) error {
	level := a.cfg.Log.Level
	if verbose {
		level = "debug"
	}
	writer := stderr
	if a.cfg.Log.File != "" {
		f, err := os.OpenFile(a.cfg.Log.File, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
		if err != nil {
			return fmt.Errorf("open log file: %w", err)
		}
		a.closers = append(a.closers, f)
		writer = f
	}
	log, err := logger.New(logger.Options{
		Level:         level,
		HumanReadable: a.cfg.Log.HumanReadable,
		Writer:        writer,
		Journal:       logger.NewJournal(0),
	})
	if err != nil {
		return err
	}
	a.log = log
	return nil
}

func (a *app) reader() (feed.Reader, error) {
	keys, err := a.cfg.LoadPublicKeys()
	if err != nil {
		return nil, err
	}
	return feed.NewSignedReader(keys, feed.WithLogger(a.log))
}

func (a *app) newManager(opts ...manager.Option) (*manager.Manager, error) {
	reader, err := a.reader()
	if err != nil {
		return nil, err
	}
	base := []manager.Option{
		manager.WithReader(reader),
		manager.WithSource(a.source),
		manager.WithLogger(a.log),
	}
	if a.cfg.VersionProbe == config.VersionProbeExec {
		base = append(base, manager.WithVersionProber(condition.ExecVersionProber{}))
	}
	return manager.New(a.cfg, append(base, opts...)...), nil
}

func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		_ = a.closers[i].Close()
	}
}

func newSource(fc config.FeedConfig) (source.Source, error) {
	if strings.TrimSpace(fc.Location) == "" {
		return nil, errors.New("feed location is required")
	}
	kind := fc.Kind
	if kind == "" {
		kind = config.FeedLocal
		if strings.HasPrefix(fc.Location, "http://") || strings.HasPrefix(fc.Location, "https://") {
			kind = config.FeedHTTP
		}
	}

	switch kind {
	case config.FeedHTTP:
		return source.NewHTTP(fc.Location, fc.BaseURL), nil
	case config.FeedLocal:
		l := source.NewLocal(fc.Location)
		if fc.FeedName != "" {
			l.FeedName = fc.FeedName
		}
		return l, nil
	case config.FeedGit:
		g := source.NewGit(fc.Location, fc.Branch)
		if fc.FeedName != "" {
			g.FeedName = fc.FeedName
		}
		return g, nil
	default:
		return nil, fmt.Errorf("unknown feed kind %q", fc.Kind)
	}
}
