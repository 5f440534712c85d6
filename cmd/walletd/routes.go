package main

import (
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"
)

// registerRoutes wires the read-only demo endpoints, mirroring the
// teacher's walletserver/routes.Register layout (one mux.Router, one
// logging middleware, one HandleFunc per route).
func registerRoutes(r *mux.Router, wc *walletController, logger *logrus.Logger) {
	r.Use(loggingMiddleware(logger))
	r.HandleFunc("/api/wallet/status", wc.Status).Methods(http.MethodGet)
	r.HandleFunc("/api/wallet/balance", wc.Balance).Methods(http.MethodGet)
	r.HandleFunc("/api/wallet/transactions", wc.Transactions).Methods(http.MethodGet)
}

// loggingMiddleware is the teacher's walletserver/middleware.Logger,
// parameterized on the caller's logger instead of the logrus package
// logger.
func loggingMiddleware(logger *logrus.Logger) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			next.ServeHTTP(w, r)
			logger.WithFields(logrus.Fields{
				"method":   r.Method,
				"uri":      r.RequestURI,
				"duration": time.Since(start),
			}).Info("walletd: request")
		})
	}
}
