package main

import (
	"context"
	"os"
	"os/signal"
	"sync"
	"syscall"

	log "github.com/sirupsen/logrus"
)

// signalHandledContext returns a context canceled by the first SIGINT or SIGTERM. A
// second signal exits immediately. The returned cancel func also releases the signal
// handler.
func signalHandledContext() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())

	sigs := make(chan os.Signal, 2)
	stopped := make(chan struct{})

	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		defer signal.Stop(sigs)

		select {
		case sig := <-sigs:
			log.WithField("signal", sig.String()).Info("received signal, shutting down")
			cancel()
		case <-stopped:
			return
		}

		select {
		case sig := <-sigs:
			log.WithField("signal", sig.String()).Warn("received second signal, exiting")
			os.Exit(130)
		case <-stopped:
		}
	}()

	var once sync.Once

	return ctx, func() {
		once.Do(func() {
			close(stopped)
			cancel()
		})
	}
}
