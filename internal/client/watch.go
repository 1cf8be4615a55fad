package client

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/gorilla/websocket"

	"valentine/internal/wire"
)

// WatchChallenge subscribes to challenge status pushes for a session. The
// returned channel yields each status and is closed when the server ends the
// stream, the connection fails, or ctx is cancelled.
func (c *Client) WatchChallenge(ctx context.Context, sessionID string) (<-chan string, error) {
	u, err := url.Parse(c.base + "/challenge/watch")
	if err != nil {
		return nil, err
	}
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	default:
		u.Scheme = "ws"
	}
	u.RawQuery = sessionQuery(sessionID).Encode()

	conn, resp, err := websocket.DefaultDialer.DialContext(ctx, u.String(), nil)
	if err != nil {
		if resp != nil {
			return nil, &APIError{Status: resp.StatusCode, Detail: strings.TrimSpace(err.Error())}
		}
		return nil, fmt.Errorf("watch challenge: %w", err)
	}

	out := make(chan string, 1)
	stop := make(chan struct{})
	go func() {
		select {
		case <-ctx.Done():
			_ = conn.Close()
		case <-stop:
		}
	}()
	go func() {
		defer close(out)
		defer close(stop)
		defer conn.Close()
		for {
			var msg wire.ChallengeStatus
			if err := conn.ReadJSON(&msg); err != nil {
				return
			}
			select {
			case out <- msg.Status:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, nil
}
