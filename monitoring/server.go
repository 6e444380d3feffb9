package monitoring

import (
	"fmt"
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// NewMetricsServer returns an operational HTTP server exposing Prometheus
// metrics and a liveness probe, kept off the public API port.
func NewMetricsServer(port string) *http.Server {
	e := echo.New()

	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))
	e.GET("/healthz", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
	})

	return &http.Server{
		Addr:    fmt.Sprintf(":%s", port),
		Handler: e,
	}
}

// StartMetricsServer runs the operational server until it fails or is shut
// down.
func StartMetricsServer(srv *http.Server) {
	slog.Info("metrics server listening", "addr", srv.Addr)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		slog.Error("metrics server stopped", "error", err)
	}
}
