package main

import (
	"errors"
	"fmt"
	"os"
	"sync"

	"blair"
	"blair/config"
	"blair/server"
	"blair/shell"

	log "github.com/sirupsen/logrus"
	"github.com/urfave/cli/v2"
)

// Version is the blair version, set at build time.
var Version = "dev"

const (
	configFlag      = "config"
	watchFlag       = "watch"
	metricsAddrFlag = "metrics-addr"
	logLevelFlag    = "log-level"
	historyFlag     = "history"
)

// Entrypoint builds the blair command line application.
func Entrypoint() *cli.App {
	return &cli.App{
		Name:      "blair",
		Version:   Version,
		Usage:     "software ethernet switch",
		ArgsUsage: "[INTERFACE...]",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  configFlag,
				Usage: "port configuration file to load",
			},
			&cli.BoolFlag{
				Name:  watchFlag,
				Usage: "re-apply the configuration file whenever it changes",
			},
			&cli.StringFlag{
				Name:  metricsAddrFlag,
				Usage: "serve prometheus metrics on this address, e.g. :9100",
			},
			&cli.StringFlag{
				Name:  logLevelFlag,
				Usage: "log level: trace, debug, info, warn or error",
				Value: "info",
			},
			&cli.StringFlag{
				Name:  historyFlag,
				Usage: "shell history file",
				Value: defaultHistoryFile(),
			},
		},
		Action: run,
	}
}

func defaultHistoryFile() string {
	dir, err := os.UserCacheDir()
	if err != nil {
		return ""
	}

	return dir + "/blair_history"
}

func run(c *cli.Context) error {
	level, err := log.ParseLevel(c.String(logLevelFlag))
	if err != nil {
		return err
	}

	log.SetLevel(level)

	ctx, cancel := signalHandledContext()
	defer cancel()

	sw, err := blair.New()
	if err != nil {
		return err
	}

	for _, name := range c.Args().Slice() {
		if _, err = sw.AddInterface(blair.TransportPacket, name); err != nil {
			return err
		}
	}

	if path := c.String(configFlag); path != "" {
		cfg, err := config.Load(path)
		if err != nil {
			return fmt.Errorf("loading %s: %w", path, err)
		}

		if err = sw.ApplyConfig(cfg); err != nil {
			return err
		}

		if c.Bool(watchFlag) {
			err = config.Watch(ctx, path, func(cfg *config.Config) {
				log.WithField("path", path).Info("configuration changed, applying")

				if err := sw.ApplyConfig(cfg); err != nil {
					log.WithField("path", path).WithField("error", err).Error("failed applying configuration")
				}
			})
			if err != nil {
				return err
			}
		}
	}

	if len(sw.Ports()) == 0 {
		return errors.New("no interfaces given on the command line or in the configuration")
	}

	var wg sync.WaitGroup

	errs := make(chan error, 2)

	wg.Add(1)

	go func() {
		defer wg.Done()

		errs <- sw.Run(ctx)
	}()

	if addr := c.String(metricsAddrFlag); addr != "" {
		wg.Add(1)

		go func() {
			defer wg.Done()

			if err := server.New(addr, sw).Run(ctx); err != nil {
				log.WithField("addr", addr).WithField("error", err).Error("metrics server failed")
			}
		}()
	}

	err = shell.New(sw, os.Stdout).Run(ctx, c.String(historyFlag))

	cancel()
	wg.Wait()

	return errors.Join(err, <-errs)
}
