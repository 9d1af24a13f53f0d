// Package handshake builds the authenticated upgrade request used to open a
// WebSocket connection to the watchdog endpoint.
package handshake

import (
	"fmt"
	"net/http"
	"strings"

	"golang.org/x/net/websocket"
)

// AuthorizationHeader is the request header carrying the bearer token.
const AuthorizationHeader = "Authorization"

// Build returns an upgrade request for serverURL that authenticates with token.
// The token is inserted verbatim after "Bearer ".
// A malformed serverURL is returned as an error; callers decide whether to retry.
func Build(serverURL, token string) (*websocket.Config, error) {
	origin := "http://localhost/"
	if strings.HasPrefix(serverURL, "wss://") {
		origin = "https://localhost/"
	}
	cfg, err := websocket.NewConfig(serverURL, origin)
	if err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}

	cfg.Header = make(http.Header)
	cfg.Header[AuthorizationHeader] = []string{"Bearer " + token}
	return cfg, nil
}
