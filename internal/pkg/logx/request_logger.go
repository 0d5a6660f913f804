/*
Package logx provides a structured logging wrapper based on zerolog.

This file contains the HTTP middleware of the messenger. Plain requests get one line when they
complete. WebSocket handshakes are tagged with the pool named by the last path segment
(/ws/chat, /ws/presence) and logged once, either when the handshake is rejected or when the
upgraded session ends. Remote addresses are anonymised.
*/
package logx

import (
	"net"
	"net/http"
	"path"
	"strings"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"
)

var (
	ipv4Prefix = net.CIDRMask(24, 32)
	ipv6Prefix = net.CIDRMask(64, 128)
)

// anonymizeIP keeps the /24 of an IPv4 address or the /64 of an IPv6 address.
func anonymizeIP(addr string) string {
	if host, _, err := net.SplitHostPort(addr); err == nil {
		addr = host
	}

	ip := net.ParseIP(addr)
	switch {
	case ip == nil:
		return "unknown_ip"
	case ip.IsLoopback():
		return "127.0.0.1"
	case ip.To4() != nil:
		return ip.To4().Mask(ipv4Prefix).String()
	default:
		return ip.Mask(ipv6Prefix).String()
	}
}

// isWebSocketHandshake reports whether r asks for a protocol upgrade to WebSocket.
func isWebSocketHandshake(r *http.Request) bool {
	return strings.EqualFold(r.Header.Get("Upgrade"), "websocket")
}

// FromRequest returns the request-scoped logger installed by RequestLogger, or the global
// logger when there is none.
func FromRequest(r *http.Request) *zerolog.Logger {
	logger := zerolog.Ctx(r.Context())
	if logger.GetLevel() == zerolog.Disabled {
		return Logger()
	}
	return logger
}

// RequestLogger returns the HTTP logging middleware. Every line carries instanceID so logs
// of several service instances can be told apart.
func RequestLogger(instanceID string) func(next http.Handler) http.Handler {
	baseLogger := Logger()

	return func(next http.Handler) http.Handler {
		fn := func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			handshake := isWebSocketHandshake(r)

			ctx := baseLogger.With().
				Str("component", "http").
				Str("instance_id", instanceID).
				Str("request_id", middleware.GetReqID(r.Context())).
				Str("remote_ip", anonymizeIP(r.RemoteAddr)).
				Str("request_method", r.Method).
				Str("request_uri", r.RequestURI)
			if handshake {
				ctx = ctx.Str("ws_pool", path.Base(r.URL.Path))
			}
			logger := ctx.Logger()

			r = r.WithContext(logger.WithContext(r.Context()))

			started := time.Now()
			next.ServeHTTP(ww, r)
			elapsed := time.Since(started)

			status := ww.Status()

			if handshake {
				// A hijacked connection never reports a status through the wrapper.
				if status == 0 || status == http.StatusSwitchingProtocols {
					logger.Info().Dur("session_duration", elapsed).Msg("WebSocket session ended")
					return
				}
				logger.Warn().Int("status", status).Dur("latency", elapsed).Msg("WebSocket handshake rejected")
				return
			}

			logEvent := logger.Info()
			if status >= 500 {
				logEvent = logger.Error()
			} else if status >= 400 {
				logEvent = logger.Warn()
			}

			logEvent.
				Int("status", status).
				Int("bytes", ww.BytesWritten()).
				Dur("latency", elapsed).
				Msg("Request completed")
		}

		return http.HandlerFunc(fn)
	}
}
