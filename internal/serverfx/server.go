package serverfx

import (
	"context"
	"log"
	"net"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
	"github.com/spf13/viper"
	"go.uber.org/fx"

	"github.com/yurykabanov/sitebackuper/pkg/http/middleware"
	"github.com/yurykabanov/sitebackuper/pkg/notify"
)

const (
	ConfigServerAddress      = "server.address"
	ConfigServerTimeoutRead  = "server.timeout.read"
	ConfigServerTimeoutWrite = "server.timeout.write"
	ConfigServerLogRequests  = "server.log.requests"
	ConfigServerToken        = "server.token"

	metricsPath = "/metrics"
)

type HttpServerConfig struct {
	Address           string
	ReadTimeout       time.Duration
	WriteTimeout      time.Duration
	EnableRequestsLog bool
	Token             string
}

// HttpServerConfigProvider falls back to the notification token when no api
// token is configured, so the reporting endpoint can call back with what it knows.
// A token computable from the domain alone is never used; the API then rejects every call.
func HttpServerConfigProvider(v *viper.Viper, logger *logrus.Logger, notifier *notify.Client) (*HttpServerConfig, error) {
	token := v.GetString(ConfigServerToken)
	if token == "" {
		if notifier.PrivateToken() {
			token = notifier.Token()
		} else {
			logger.Warn("Neither server.token nor notify.salt is set, API is disabled")
		}
	}

	return &HttpServerConfig{
		Address:           v.GetString(ConfigServerAddress),
		ReadTimeout:       v.GetDuration(ConfigServerTimeoutRead),
		WriteTimeout:      v.GetDuration(ConfigServerTimeoutWrite),
		EnableRequestsLog: v.GetBool(ConfigServerLogRequests),
		Token:             token,
	}, nil
}

func HttpServer(
	config *HttpServerConfig,
	logger *logrus.Logger,
	defaultLogger *log.Logger,
	router *mux.Router,
) (*http.Server, error) {
	var h http.Handler = router

	h = middleware.WithApiToken(h, logger, config.Token, metricsPath)

	if config.EnableRequestsLog {
		h = middleware.WithRequestLogging(h, logger)
	}

	h = middleware.WithRequestId(h, middleware.DefaultRequestIdProvider)

	return &http.Server{
		Addr:         config.Address,
		ReadTimeout:  config.ReadTimeout,
		WriteTimeout: config.WriteTimeout,
		ErrorLog:     defaultLogger,
		Handler:      h,
	}, nil
}

func HttpRouter() (*mux.Router, error) {
	return mux.NewRouter(), nil
}

func RegisterMetricsHandler(router *mux.Router) {
	router.Handle(metricsPath, promhttp.Handler()).Methods(http.MethodGet)
}

func Listener(config *HttpServerConfig) (net.Listener, error) {
	return net.Listen("tcp", config.Address)
}

func RunServer(lc fx.Lifecycle, logger *logrus.Logger, listener net.Listener, server *http.Server) {
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			logger.WithField("address", listener.Addr().String()).Info("Starting API server")

			go func() {
				if err := server.Serve(listener); err != nil && err != http.ErrServerClosed {
					logger.WithError(err).Error("API server stopped")
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			return server.Shutdown(ctx)
		},
	})
}
