package http

import (
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	log "github.com/sirupsen/logrus"
)

// NewEcho настраивает echo: recover, access-лог в logrus и единый формат ошибок.
func NewEcho(logger *log.Entry) *echo.Echo {
	if logger == nil {
		logger = log.New().WithField("component", "http")
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.HTTPErrorHandler = errorHandler(logger)

	e.Use(middleware.Recover())
	e.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogMethod:    true,
		LogURI:       true,
		LogStatus:    true,
		LogLatency:   true,
		LogRequestID: true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			logger.WithFields(log.Fields{
				"method":     v.Method,
				"uri":        v.URI,
				"status":     v.Status,
				"latency":    v.Latency.String(),
				"request_id": v.RequestID,
			}).Info("http request")
			return nil
		},
	}))
	e.Use(middleware.RequestID())

	return e
}

// NewServer собирает echo со всеми маршрутами API.
func NewServer(deps Deps) *echo.Echo {
	h := NewHandler(deps)
	e := NewEcho(h.deps.Logger)
	Register(e, h)
	return e
}
