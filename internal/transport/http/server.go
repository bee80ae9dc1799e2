// Package http assembles the chat server's echo instance.
package http

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/rancherdx/pawfect-livechat/internal/apperr"
	"github.com/rancherdx/pawfect-livechat/internal/auth"
	"github.com/rancherdx/pawfect-livechat/internal/config"
	"github.com/rancherdx/pawfect-livechat/internal/hub"
	"github.com/rancherdx/pawfect-livechat/internal/service"
	v1 "github.com/rancherdx/pawfect-livechat/internal/transport/http/v1"
	"github.com/rancherdx/pawfect-livechat/internal/transport/ws"
)

// Deps are the collaborators the HTTP server routes to.
type Deps struct {
	Config   *config.Config
	Service  *service.Service
	Hub      *hub.Hub
	Sockets  *ws.Server
	Verifier auth.Verifier
	Gatherer prometheus.Gatherer
	Logger   *zap.Logger
}

// NewServer creates and configures the chat HTTP server: REST API, sockets,
// health and metrics.
func NewServer(d Deps) *echo.Echo {
	logger := d.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	// Middleware
	e.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogMethod:   true,
		LogURI:      true,
		LogStatus:   true,
		LogLatency:  true,
		LogError:    true,
		HandleError: true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			fields := []zap.Field{
				zap.String("method", v.Method),
				zap.String("uri", v.URI),
				zap.Int("status", v.Status),
				zap.Duration("latency", v.Latency),
			}
			if v.Error != nil {
				fields = append(fields, zap.Error(v.Error))
			}
			logger.Info("request", fields...)
			return nil
		},
	}))
	e.Use(middleware.Recover())
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins: d.Config.CORSOrigins,
		AllowHeaders: []string{echo.HeaderOrigin, echo.HeaderContentType, echo.HeaderAccept, echo.HeaderAuthorization},
	}))

	// Handlers
	v1Handler := v1.NewHandler(d.Service, logger)

	// Register Routes
	v1Handler.RegisterRoutes(e, AdminAuth(d.Verifier))
	if d.Sockets != nil {
		d.Sockets.RegisterRoutes(e)
	}
	e.GET("/health", func(c echo.Context) error {
		body := map[string]interface{}{"status": "healthy"}
		if d.Hub != nil {
			body["connections"] = d.Hub.Stats()
		}
		return c.JSON(http.StatusOK, body)
	})
	if d.Gatherer != nil {
		e.GET("/metrics", echo.WrapHandler(promhttp.HandlerFor(d.Gatherer, promhttp.HandlerOpts{})))
	}

	return e
}

// AdminAuth verifies the bearer token and stores the admin id on the context.
func AdminAuth(verifier auth.Verifier) echo.MiddlewareFunc {
	return middleware.KeyAuthWithConfig(middleware.KeyAuthConfig{
		KeyLookup:  "header:" + echo.HeaderAuthorization,
		AuthScheme: "Bearer",
		Validator: func(key string, c echo.Context) (bool, error) {
			adminID, err := verifier.Verify(c.Request().Context(), key)
			if err != nil {
				return false, err
			}
			c.Set(v1.AdminIDKey, adminID)
			return true, nil
		},
		ErrorHandler: func(err error, c echo.Context) error {
			msg := "missing or invalid bearer token"
			var coded *apperr.CodedError
			if errors.As(err, &coded) {
				msg = coded.Message
			}
			return c.JSON(http.StatusUnauthorized, v1.ErrorResponse{Error: msg, Code: apperr.CodeAuthInvalid})
		},
	})
}
