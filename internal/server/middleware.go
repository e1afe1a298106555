// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package server

import (
	"crypto/subtle"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"net/netip"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"codeberg.org/oliverandrich/player-accounts/internal/config"
	"codeberg.org/oliverandrich/player-accounts/internal/i18n"
	"codeberg.org/oliverandrich/player-accounts/internal/throttle"
)

func setupMiddleware(e *echo.Echo, cfg *config.Config, th *throttle.Throttle) {
	e.Use(middleware.RequestID())
	e.Use(requestLogger())
	e.Use(i18nMiddleware())
	e.Use(throttleGate(th))
	// Inside the gate so a panicking handler is charged as a failure.
	e.Use(middleware.Recover())
	e.Use(middleware.Secure())
	e.Use(middleware.BodyLimit(fmt.Sprintf("%dM", cfg.Server.MaxBodySize)))
	e.Use(middleware.Gzip())
}

// requestLogger returns middleware that logs requests using slog.
func requestLogger() echo.MiddlewareFunc {
	return middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogStatus:    true,
		LogURI:       true,
		LogMethod:    true,
		LogLatency:   true,
		LogRemoteIP:  true,
		LogRequestID: true,
		LogError:     true,
		HandleError:  true,
		Skipper: func(c echo.Context) bool {
			return c.Path() == "/health" || c.Path() == "/metrics"
		},
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			attrs := []slog.Attr{
				slog.String("method", v.Method),
				slog.String("uri", v.URI),
				slog.Int("status", v.Status),
				slog.Duration("latency", v.Latency),
				slog.String("remote_ip", v.RemoteIP),
				slog.String("request_id", v.RequestID),
			}

			if v.Error != nil {
				attrs = append(attrs, slog.String("error", v.Error.Error()))
				slog.LogAttrs(c.Request().Context(), slog.LevelError, "request", attrs...)
			} else {
				slog.LogAttrs(c.Request().Context(), slog.LevelInfo, "request", attrs...)
			}

			return nil
		},
	})
}

// i18nMiddleware sets the locale based on Accept-Language header.
func i18nMiddleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			acceptLang := c.Request().Header.Get("Accept-Language")
			lang := i18n.MatchLanguage(acceptLang)
			ctx := i18n.WithLocale(c.Request().Context(), lang)
			c.SetRequest(c.Request().WithContext(ctx))
			return next(c)
		}
	}
}

// connectionKey identifies the peer of a request as family|address|port.
func connectionKey(remoteAddr string) string {
	host, port, err := net.SplitHostPort(remoteAddr)
	if err != nil {
		return "unknown|" + remoteAddr + "|"
	}
	family := "unknown"
	if addr, err := netip.ParseAddr(host); err == nil {
		if addr.Unmap().Is4() {
			family = "IPv4"
		} else {
			family = "IPv6"
		}
	}
	return family + "|" + host + "|" + port
}

// throttleGate scores every connection. Connections above the hard
// threshold are dropped without a response, connections above the soft
// threshold get a 429, everyone else is dispatched and scored by outcome.
func throttleGate(th *throttle.Throttle) echo.MiddlewareFunc {
	cfg := th.Config()
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			key := connectionKey(c.Request().RemoteAddr)

			if th.ShouldHardBlock(key) {
				th.Increase(key, cfg.BlockedDelta)
				th.RecordBlock("hard")
				slog.Warn("throttle_hard_block", "key", key, "score", th.Score(key))
				return dropConnection(c)
			}

			if th.ShouldSoftBlock(key) {
				th.Increase(key, cfg.FailureDelta)
				th.RecordBlock("soft")
				slog.Warn("throttle_soft_block", "key", key, "score", th.Score(key))
				return c.JSON(http.StatusTooManyRequests, map[string]string{
					"error": i18n.TDefault(c.Request().Context(), "error_too_many_requests", nil,
						"Too many requests attempted.  Close your client and try again later."),
				})
			}

			err := next(c)
			if failed(c, err) {
				th.Increase(key, cfg.FailureDelta)
			} else {
				th.Increase(key, cfg.SuccessDelta)
			}
			return err
		}
	}
}

// failed reports whether a dispatched request ended in an error status.
func failed(c echo.Context, err error) bool {
	if err != nil {
		var he *echo.HTTPError
		if errors.As(err, &he) {
			return he.Code >= http.StatusBadRequest
		}
		return true
	}
	return c.Response().Status >= http.StatusBadRequest
}

// dropConnection closes the underlying connection without writing a
// response. Writers that cannot be hijacked get an empty 429.
func dropConnection(c echo.Context) error {
	hj, ok := c.Response().Writer.(http.Hijacker)
	if !ok {
		return c.NoContent(http.StatusTooManyRequests)
	}
	conn, _, err := hj.Hijack()
	if err != nil {
		return err
	}
	return conn.Close()
}

// requireAdmin guards operator routes with a bearer token. An empty token
// disables the check.
func requireAdmin(token string) echo.MiddlewareFunc {
	return middleware.KeyAuthWithConfig(middleware.KeyAuthConfig{
		Skipper: func(echo.Context) bool {
			return token == ""
		},
		KeyLookup:  "header:" + echo.HeaderAuthorization,
		AuthScheme: "Bearer",
		Validator: func(key string, _ echo.Context) (bool, error) {
			return subtle.ConstantTimeCompare([]byte(key), []byte(token)) == 1, nil
		},
		ErrorHandler: func(_ error, c echo.Context) error {
			slog.Warn("admin_auth_failed", "path", c.Path(), "remote_ip", c.RealIP())
			return c.JSON(http.StatusUnauthorized, map[string]string{
				"error": i18n.TDefault(c.Request().Context(), "error_unauthorized", nil, "You are not allowed to do that."),
			})
		},
	})
}
