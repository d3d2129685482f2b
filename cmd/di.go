package cmd

import (
	"context"
	"time"

	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/kidoz/zabbix-vuln-matrix/internal/config"
	"github.com/kidoz/zabbix-vuln-matrix/internal/fixer"
	"github.com/kidoz/zabbix-vuln-matrix/internal/scanner"
	"github.com/kidoz/zabbix-vuln-matrix/internal/zabbix"
)

const stopTimeout = 10 * time.Second

// build starts a short-lived fx app for one command and returns a stop
// function that runs the lifecycle stop hooks, such as the Zabbix logout.
func build(cfg *config.Config, log *zap.Logger, module fx.Option, targets ...any) (func(), error) {
	app := fx.New(
		fx.NopLogger,
		fx.Supply(cfg, log),
		module,
		fx.Populate(targets...),
	)
	if err := app.Err(); err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(context.Background(), stopTimeout)
	defer cancel()
	if err := app.Start(ctx); err != nil {
		return nil, err
	}

	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), stopTimeout)
		defer cancel()
		if err := app.Stop(ctx); err != nil {
			log.Warn("Shutdown hooks failed", zap.Error(err))
		}
	}, nil
}

func initScanner(cfg *config.Config, log *zap.Logger) (*scanner.Scanner, func(), error) {
	var s *scanner.Scanner
	stop, err := build(cfg, log, scanner.Module, &s)
	return s, stop, err
}

func initFixer(cfg *config.Config, log *zap.Logger) (*fixer.Fixer, func(), error) {
	var f *fixer.Fixer
	stop, err := build(cfg, log, fixer.Module, &f)
	return f, stop, err
}

func initZabbixClient(cfg *config.Config, log *zap.Logger) (*zabbix.Client, func(), error) {
	var c *zabbix.Client
	stop, err := build(cfg, log, zabbix.Module, &c)
	return c, stop, err
}
