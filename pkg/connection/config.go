package connection

import (
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"os"

	"github.com/dhilipwind-Hospital/Ayphen-PM-toll-latest-sub005/internal/codec"
	"github.com/dhilipwind-Hospital/Ayphen-PM-toll-latest-sub005/pkg/logger"
	"github.com/dhilipwind-Hospital/Ayphen-PM-toll-latest-sub005/pkg/metrics"
)

// Config is what a transport and the connection on top of it need.
type Config struct {
	URL     url.URL
	Codec   codec.Codec
	Logger  logger.Logger
	Metrics *metrics.Metrics
}

// NewConfig creates a new Config for the collaboration endpoint at u,
// such as "ws://localhost:4000/ws".
// It is not absolutely necessary to create a Config using this function,
// but it sets up the JSON codec and a stdout logger for you.
func NewConfig(u *url.URL) *Config {
	return &Config{
		URL:    *u,
		Codec:  codec.NewJSON(),
		Logger: logger.New(slog.NewTextHandler(os.Stdout, nil)),
	}
}

// Validate checks that the config can be used to dial.
func (c *Config) Validate() error {
	switch c.URL.Scheme {
	case WebsocketScheme, SecureWebsocketScheme:
	default:
		return fmt.Errorf("unsupported websocket scheme %q", c.URL.Scheme)
	}
	if c.Codec == nil {
		return errors.New("codec is required")
	}
	if c.Logger == nil {
		c.Logger = logger.Discard()
	}
	return nil
}
