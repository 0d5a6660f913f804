/*
Package handler provides the HTTP handler function for WebSocket connection upgrading.

The handshake is accepted before the token is checked: authentication is part of the connection
lifecycle, and a rejected client receives an error frame and a 4401 close code instead of an HTTP
error, so browser clients can tell the two failures apart.
*/
package handler

import (
	"net/http"

	"github.com/gorilla/websocket"

	"messenger/internal/app/gateway"
	"messenger/internal/app/registry"
	"messenger/internal/pkg/auth/jwt"
	"messenger/internal/pkg/logx"
)

// HandleWebSocket creates an HTTP HandlerFunc that upgrades the request and serves the
// connection in pool until it closes.
func HandleWebSocket(gw *gateway.Gateway, upgrader websocket.Upgrader, pool registry.Pool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		token := jwt.TokenFromRequest(r)

		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			logx.FromRequest(r).Warn().Err(err).Msg("Failed to upgrade connection to WebSocket")
			return
		}

		gw.Serve(conn, pool, token)
	}
}
