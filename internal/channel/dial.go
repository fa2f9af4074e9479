package channel

import (
	"context"
	"fmt"
	"net/url"
	"strings"
)

// Transport names accepted in Config.Transports.
const (
	TransportWebSocket = "websocket"
	TransportPolling   = "polling"
)

// Conn is one established connection, whichever transport carries it.
// WriteEnvelope and Close may be called concurrently with ReadEnvelope.
type Conn interface {
	WriteEnvelope(env Envelope) error
	ReadEnvelope() (Envelope, error)
	Close() error
}

// Dialer opens a Conn to the server described by cfg.
type Dialer func(ctx context.Context, cfg Config) (Conn, error)

// endpoint rewrites the configured server URL for a transport. The WebSocket
// endpoint lives at <base>/ws and the polling endpoints under <base>/poll.
func endpoint(raw, transport string, query map[string]string) (string, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("parse server url: %w", err)
	}
	base := strings.TrimSuffix(strings.TrimSuffix(u.Path, "/"), "/ws")
	switch transport {
	case TransportWebSocket:
		switch u.Scheme {
		case "http", "ws":
			u.Scheme = "ws"
		case "https", "wss":
			u.Scheme = "wss"
		default:
			return "", fmt.Errorf("unsupported url scheme %q", u.Scheme)
		}
		u.Path = base + "/ws"
	case TransportPolling:
		switch u.Scheme {
		case "http", "ws":
			u.Scheme = "http"
		case "https", "wss":
			u.Scheme = "https"
		default:
			return "", fmt.Errorf("unsupported url scheme %q", u.Scheme)
		}
		u.Path = base + "/poll"
	default:
		return "", ErrUnsupportedTransport
	}
	if len(query) > 0 {
		q := u.Query()
		for k, v := range query {
			q.Set(k, v)
		}
		u.RawQuery = q.Encode()
	}
	return u.String(), nil
}
