package natsclient

import (
	"fmt"
	"log/slog"
	"time"
)

// ClientOption configures a Client. Options that receive an out-of-range
// value fail NewClient.
type ClientOption func(*Client) error

func positive(what string, d time.Duration) error {
	if d <= 0 {
		return fmt.Errorf("%s must be positive, got %v", what, d)
	}
	return nil
}

// WithLogger sets the logger. A nil logger keeps slog.Default().
func WithLogger(logger *slog.Logger) ClientOption {
	return func(c *Client) error {
		if logger != nil {
			c.logger = logger
		}
		return nil
	}
}

// WithName sets the connection name shown by the server's monitoring
// endpoints.
func WithName(name string) ClientOption {
	return func(c *Client) error {
		c.clientName = name
		return nil
	}
}

// WithMaxReconnects limits reconnection attempts after a lost connection.
// -1 retries forever and 0 disables reconnection.
func WithMaxReconnects(n int) ClientOption {
	return func(c *Client) error {
		if n < -1 {
			return fmt.Errorf("max reconnects must be -1 or more, got %d", n)
		}
		c.maxReconnects = n
		return nil
	}
}

// WithReconnectWait sets the pause between reconnection attempts.
func WithReconnectWait(d time.Duration) ClientOption {
	return func(c *Client) error {
		if d < 0 {
			return fmt.Errorf("reconnect wait must not be negative, got %v", d)
		}
		c.reconnectWait = d
		return nil
	}
}

// WithPingInterval sets how often the server is pinged to detect a dead
// connection.
func WithPingInterval(d time.Duration) ClientOption {
	return func(c *Client) error {
		if err := positive("ping interval", d); err != nil {
			return err
		}
		c.pingInterval = d
		return nil
	}
}

// WithTimeout bounds dialling and is the request timeout used when the
// caller's context has no deadline.
func WithTimeout(d time.Duration) ClientOption {
	return func(c *Client) error {
		if err := positive("timeout", d); err != nil {
			return err
		}
		c.timeout = d
		return nil
	}
}

// WithDrainTimeout bounds how long Close waits for subscriptions to drain.
func WithDrainTimeout(d time.Duration) ClientOption {
	return func(c *Client) error {
		if err := positive("drain timeout", d); err != nil {
			return err
		}
		c.drainTimeout = d
		return nil
	}
}

// WithCredentials authenticates with a user name and password.
func WithCredentials(username, password string) ClientOption {
	return func(c *Client) error {
		if c.token != "" {
			return fmt.Errorf("credentials and token are mutually exclusive")
		}
		c.username, c.password = username, password
		return nil
	}
}

// WithToken authenticates with a token.
func WithToken(token string) ClientOption {
	return func(c *Client) error {
		if c.username != "" {
			return fmt.Errorf("credentials and token are mutually exclusive")
		}
		c.token = token
		return nil
	}
}

// WithDisconnectCallback is called, with the cause, whenever the
// connection drops.
func WithDisconnectCallback(fn func(error)) ClientOption {
	return func(c *Client) error {
		c.onDisconnect = fn
		return nil
	}
}

// WithReconnectCallback is called after each successful reconnection.
func WithReconnectCallback(fn func()) ClientOption {
	return func(c *Client) error {
		c.onReconnect = fn
		return nil
	}
}
