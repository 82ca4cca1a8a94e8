package main

import (
	"context"
	"errors"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/simplesurance/automerger/internal/logfields"
)

const httpShutdownTimeout = 30 * time.Second

// startHTTPServer starts srv in a new go-routine. If certFile and keyFile
// are set, the server serves HTTPS.
func startHTTPServer(srv *http.Server, certFile, keyFile string) {
	proto := "http"
	if certFile != "" {
		proto = "https"
	}

	logger := logger.With(zap.String("protocol", proto), zap.String("listenAddr", srv.Addr))

	go func() {
		defer panicHandler()

		logger.Info(proto+" server started", logfields.Event(proto+"_server_started"))

		var err error
		if certFile != "" {
			err = srv.ListenAndServeTLS(certFile, keyFile)
		} else {
			err = srv.ListenAndServe()
		}

		if errors.Is(err, http.ErrServerClosed) {
			logger.Info(proto+" server terminated", logfields.Event(proto+"_server_terminated"))
			return
		}

		logger.Fatal(
			proto+" server terminated unexpectedly",
			logfields.Event(proto+"_server_terminated_unexpectedly"),
			zap.Error(err),
		)
	}()
}

func shutdownHTTPServer(srv *http.Server) {
	ctx, cancelFn := context.WithTimeout(context.Background(), httpShutdownTimeout)
	defer cancelFn()

	logger.Debug(
		"terminating http server",
		logfields.Event("http_server_terminating"),
		zap.String("listenAddr", srv.Addr),
		zap.Duration("shutdown_timeout", httpShutdownTimeout),
	)

	err := srv.Shutdown(ctx)
	if err != nil {
		logger.Warn(
			"shutting down http server failed",
			logfields.Event("http_server_termination_failed"),
			zap.String("listenAddr", srv.Addr),
			zap.Error(err),
		)
	}
}
