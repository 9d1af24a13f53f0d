/*
Package main implements watchdog, a long-running client that holds one
authenticated WebSocket connection to a remote watchdog endpoint.

The client reads config.toml from the working directory:

	url = "wss://watchdog.example.com/ws"
	server_token = "..."
	keepalive = 120   # seconds between pings, optional
	log_level = "info"
	metrics_addr = ":9100"   # optional

Every key can be overridden with a WATCHDOG_ environment variable, e.g.
WATCHDOG_SERVER_TOKEN. On first run, when config.toml does not exist, a default
file with empty credentials is written and the process exits with status 1.

The connection is opened with an "Authorization: Bearer <server_token>" header
and kept alive with WebSocket ping frames. Whenever the connection ends, for any
reason, the client reconnects immediately. A successful handshake resets the
failure count; three connection-ending events in a row without one abort the
process.

Usage:

	watchdog -config /etc/watchdog/config.toml -debug

Exit behavior:
  - 0 after SIGINT or SIGTERM
  - 1 when the configuration cannot be loaded or url/server_token are empty
  - abnormal termination (panic) when the failure budget is exhausted
*/
package main
