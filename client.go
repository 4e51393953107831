package collab

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/dhilipwind-Hospital/Ayphen-PM-toll-latest-sub005/internal/codec"
	"github.com/dhilipwind-Hospital/Ayphen-PM-toll-latest-sub005/pkg/config"
	"github.com/dhilipwind-Hospital/Ayphen-PM-toll-latest-sub005/pkg/connection"
	"github.com/dhilipwind-Hospital/Ayphen-PM-toll-latest-sub005/pkg/connection/gorillaws"
	"github.com/dhilipwind-Hospital/Ayphen-PM-toll-latest-sub005/pkg/connection/gws"
	"github.com/dhilipwind-Hospital/Ayphen-PM-toll-latest-sub005/pkg/connection/rews"
	"github.com/dhilipwind-Hospital/Ayphen-PM-toll-latest-sub005/pkg/engine"
	"github.com/dhilipwind-Hospital/Ayphen-PM-toll-latest-sub005/pkg/logger"
	"github.com/dhilipwind-Hospital/Ayphen-PM-toll-latest-sub005/pkg/metrics"
	"github.com/dhilipwind-Hospital/Ayphen-PM-toll-latest-sub005/pkg/models"
	"github.com/dhilipwind-Hospital/Ayphen-PM-toll-latest-sub005/pkg/session"
	"github.com/dhilipwind-Hospital/Ayphen-PM-toll-latest-sub005/pkg/store/memory"
)

// ErrClientClosed is returned by operations on a closed Client.
var ErrClientClosed = errors.New("client closed")

// Option configures a Client.
type Option func(c *Client)

// WithLogger replaces the logger built from the config.
func WithLogger(l logger.Logger) Option {
	return func(c *Client) {
		c.logger = l
	}
}

// WithLogOutput sets where the logger built from the config writes.
// It defaults to os.Stderr.
func WithLogOutput(w io.Writer) Option {
	return func(c *Client) {
		c.logOutput = w
	}
}

// WithMetrics replaces the metrics created for the client.
func WithMetrics(m *metrics.Metrics) Option {
	return func(c *Client) {
		c.metrics = m
	}
}

// Client is the collaboration context of one process. It owns the single
// connection shared by the sync engine and every document session opened
// through it.
type Client struct {
	conf      *config.Config
	logger    logger.Logger
	logOutput io.Writer
	metrics   *metrics.Metrics

	conn   *rews.Connection
	store  *memory.Store
	engine *engine.Engine

	mu       sync.Mutex
	sessions map[*session.Session]struct{}
	closed   bool
}

// New builds a Client from conf. Nothing is dialed until Connect.
func New(conf *config.Config, opts ...Option) (*Client, error) {
	if err := conf.Validate(); err != nil {
		return nil, err
	}

	c := &Client{
		conf:      conf,
		logOutput: os.Stderr,
		sessions:  make(map[*session.Session]struct{}),
	}
	for _, opt := range opts {
		opt(c)
	}

	if c.logger == nil {
		l, err := logger.Open(c.logOutput, logger.Format(conf.Log.Format), conf.Log.Level)
		if err != nil {
			return nil, fmt.Errorf("open logger: %w", err)
		}
		c.logger = l
	}
	if c.metrics == nil {
		m, err := metrics.NewMetrics()
		if err != nil {
			return nil, fmt.Errorf("create metrics: %w", err)
		}
		c.metrics = m
	}

	cd, err := codec.ByName(conf.Codec)
	if err != nil {
		return nil, err
	}
	p := &connection.Config{
		URL:     *conf.ParsedURL(),
		Codec:   cd,
		Logger:  c.logger,
		Metrics: c.metrics,
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}

	c.conn = rews.New(c.transportFunc(p), p, retryer(conf.Reconnect))
	c.conn.CheckInterval = conf.CheckInterval
	c.conn.DialTimeout = conf.DialTimeout
	c.conn.WriteTimeout = conf.WriteTimeout

	c.store, err = memory.New(c.logger)
	if err != nil {
		return nil, fmt.Errorf("create store: %w", err)
	}

	c.engine = engine.New(c.conn, c.store,
		engine.WithLogger(c.logger),
		engine.WithMetrics(c.metrics),
		engine.WithPurgeOnLeave(conf.PurgeOnLeave),
		engine.WithEmitTimeout(conf.WriteTimeout),
		engine.WithConnectTimeout(conf.DialTimeout),
	)

	return c, nil
}

func (c *Client) transportFunc(p *connection.Config) func(context.Context) (connection.Transport, error) {
	switch c.conf.Transport {
	case config.TransportGWS:
		return func(context.Context) (connection.Transport, error) {
			t := gws.New(p)
			t.WriteTimeout = c.conf.WriteTimeout
			return t, nil
		}
	default:
		return func(context.Context) (connection.Transport, error) {
			return gorillaws.New(p).SetWriteTimeout(c.conf.WriteTimeout), nil
		}
	}
}

func retryer(r config.Reconnect) rews.Retryer {
	if r.Backoff == config.BackoffExponential {
		b := rews.NewExponentialBackoffRetryer()
		b.InitialDelay = r.Delay
		b.MaxRetries = r.MaxAttempts
		return b
	}
	return rews.NewFixedDelayRetryer(r.Delay, r.MaxAttempts)
}

// Connect starts connecting and authenticating as userID. It returns
// immediately; watch Transitions or poll Connected for the outcome.
func (c *Client) Connect(userID string) {
	c.engine.Connect(userID)
}

// Disconnect leaves the current room and closes the transport. Open
// document sessions stay open and re-join when the client connects again.
func (c *Client) Disconnect() {
	c.engine.Disconnect()
}

// JoinProject subscribes to the project's room, leaving the current one.
func (c *Client) JoinProject(projectID string) {
	c.engine.JoinProject(projectID)
}

// LeaveProject leaves the project's room if it is the current one.
func (c *Client) LeaveProject(projectID string) {
	c.engine.LeaveProject(projectID)
}

// Connected reports whether the connection is authenticated.
func (c *Client) Connected() bool {
	return c.engine.Connected()
}

// State returns the sync engine state.
func (c *Client) State() engine.State {
	return c.engine.State()
}

// Transitions subscribes to sync engine state changes.
func (c *Client) Transitions() (<-chan engine.State, func()) {
	return c.engine.Transitions()
}

// Comments subscribes to comments pushed for the current room.
func (c *Client) Comments() (<-chan models.Comment, func()) {
	return c.engine.Comments()
}

// Store returns the store the engine keeps in sync.
func (c *Client) Store() *memory.Store {
	return c.store
}

func (c *Client) Metrics() *metrics.Metrics {
	return c.metrics
}

func (c *Client) Logger() logger.Logger {
	return c.logger
}

// OpenDocument joins the edit session of an issue over the client's
// connection. UserID defaults to the connected user and PresenceTTL to the
// configured one.
func (c *Client) OpenDocument(opts session.Options) (*session.Session, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil, ErrClientClosed
	}

	if opts.UserID == "" {
		opts.UserID = c.engine.State().UserID
	}
	if opts.PresenceTTL == 0 {
		opts.PresenceTTL = c.conf.PresenceTTL
	}

	s, err := session.New(c.conn, opts,
		session.WithLogger(c.logger),
		session.WithMetrics(c.metrics),
		session.WithEmitTimeout(c.conf.WriteTimeout),
		session.WithOnClose(c.forgetSession),
	)
	if err != nil {
		return nil, err
	}
	c.sessions[s] = struct{}{}

	return s, nil
}

func (c *Client) forgetSession(s *session.Session) {
	c.mu.Lock()
	defer c.mu.Unlock()

	delete(c.sessions, s)
}

// Close closes every document session, the engine and the connection.
func (c *Client) Close(ctx context.Context) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClientClosed
	}
	c.closed = true
	sessions := c.sessions
	c.sessions = nil
	c.mu.Unlock()

	var errs []error
	for s := range sessions {
		if err := s.Close(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	if err := c.engine.Close(ctx); err != nil {
		errs = append(errs, err)
	}
	c.store.Close()

	return errors.Join(errs...)
}
