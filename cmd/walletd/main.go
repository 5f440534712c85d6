// Command walletd is a read-only HTTP demo server: it starts the sync
// controller against a configured back-end and exposes its status, balance,
// and transaction log as JSON, grounded on the teacher's walletserver
// (main.go -> config.Load -> controllers -> routes.Register ->
// http.ListenAndServe).
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"
)

func main() {
	logger := logrus.StandardLogger()
	cfg, err := loadConfig()
	if err != nil {
		logger.WithError(err).Fatal("walletd: config")
	}
	if level, parseErr := logrus.ParseLevel(cfg.Logging.Level); parseErr == nil {
		logger.SetLevel(level)
	}

	controller, backend, err := buildController(cfg, logger)
	if err != nil {
		logger.WithError(err).Fatal("walletd: config")
	}

	startCtx, startCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer startCancel()
	if err := controller.Start(startCtx, backend); err != nil {
		logger.WithError(err).Fatal("walletd: backend start")
	}

	wc := newWalletController(controller)
	r := mux.NewRouter()
	registerRoutes(r, wc, logger)

	srv := &http.Server{Addr: ":" + cfg.HTTP.Port, Handler: r}
	go func() {
		logger.Infof("walletd: listening on %s", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.WithError(err).Fatal("walletd: serve")
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.WithError(err).Warn("walletd: http shutdown")
	}
	if err := controller.Stop(shutdownCtx); err != nil {
		logger.WithError(err).Warn("walletd: backend stop")
	}
}
