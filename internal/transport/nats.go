package transport

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"github.com/threadline-chat/messenger-platform/pkg/logger"
)

// NATSConfig holds NATS connection configuration.
type NATSConfig struct {
	URL      string
	CAFile   string
	CertFile string
	KeyFile  string
	Token    string
}

// NATSBus is a Bus backed by core NATS publish/subscribe. Each channel
// maps onto a subject namespace; per-channel ordering follows from NATS
// per-subject ordering on a single connection. Presence bootstrap uses
// request/reply against the PresenceRegistry.
type NATSBus struct {
	conn   *nats.Conn
	logger *logger.Logger
}

// ConnectNATS establishes a connection to the NATS server.
func ConnectNATS(ctx context.Context, cfg NATSConfig, log *logger.Logger) (*NATSBus, error) {
	opts := []nats.Option{
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2 * time.Second),
		nats.ReconnectBufSize(8 * 1024 * 1024),
		nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
			log.Warn("NATS disconnected", zap.Error(err))
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Info("NATS reconnected")
		}),
		nats.ErrorHandler(func(nc *nats.Conn, sub *nats.Subscription, err error) {
			log.Error("NATS error", zap.Error(err))
		}),
	}

	if cfg.CAFile != "" && cfg.CertFile != "" && cfg.KeyFile != "" {
		tlsConfig, err := createTLSConfig(cfg.CAFile, cfg.CertFile, cfg.KeyFile)
		if err != nil {
			return nil, fmt.Errorf("failed to create TLS config: %w", err)
		}
		opts = append(opts, nats.Secure(tlsConfig))
	}

	if cfg.Token != "" {
		opts = append(opts, nats.Token(cfg.Token))
	}

	nc, err := nats.Connect(cfg.URL, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}

	return &NATSBus{conn: nc, logger: log}, nil
}

// Conn returns the underlying NATS connection.
func (b *NATSBus) Conn() *nats.Conn { return b.conn }

// IsConnected reports whether the bus is connected to NATS.
func (b *NATSBus) IsConnected() bool {
	return b.conn != nil && b.conn.IsConnected()
}

// Publish emits one event on a channel.
func (b *NATSBus) Publish(_ context.Context, channel, event string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal %s payload: %w", event, err)
	}
	if err := b.conn.Publish(eventSubject(channel, event), data); err != nil {
		return fmt.Errorf("publish %s on %s: %w", event, channel, err)
	}
	return nil
}

// Connect returns a client connection sharing the bus's NATS connection.
func (b *NATSBus) Connect(memberID string) (Conn, error) {
	if b.conn == nil || b.conn.IsClosed() {
		return nil, ErrClosed
	}
	return &natsClientConn{bus: b, memberID: memberID}, nil
}

// Close drains and closes the NATS connection.
func (b *NATSBus) Close() {
	if b.conn != nil {
		b.conn.Close()
	}
}

type natsClientConn struct {
	bus      *NATSBus
	memberID string

	mu     sync.Mutex
	subs   []*natsSubscription
	closed bool
}

func (c *natsClientConn) MemberID() string { return c.memberID }

func (c *natsClientConn) Subscribe(channel string) (Subscription, error) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil, ErrClosed
	}
	c.mu.Unlock()

	sub := &natsSubscription{
		bus:      c.bus,
		channel:  channel,
		member:   c.memberID,
		handlers: make(map[string]HandlerFunc),
		pending:  make(map[string][][]byte),
	}

	nsub, err := c.bus.conn.Subscribe(channelWildcard(channel), func(m *nats.Msg) {
		sub.dispatch(eventFromSubject(m.Subject), m.Data)
	})
	if err != nil {
		return nil, fmt.Errorf("subscribe %s: %w", channel, err)
	}
	sub.nsub = nsub

	if IsPresence(channel) {
		// Bootstrap membership from the registry, then announce the join.
		reply, err := c.bus.conn.Request(presenceStateSubject(channel), nil, 2*time.Second)
		if err != nil {
			nsub.Unsubscribe()
			return nil, fmt.Errorf("presence state for %s: %w", channel, err)
		}
		sub.dispatch(EventSubscriptionSucceeded, reply.Data)

		announce, _ := json.Marshal(presenceAnnounce{Member: c.memberID})
		if err := c.bus.conn.Publish(presenceJoinSubject(channel), announce); err != nil {
			c.bus.logger.Warn("presence join announce failed",
				zap.String("channel", channel), zap.Error(err))
		}
	}

	c.mu.Lock()
	c.subs = append(c.subs, sub)
	c.mu.Unlock()
	return sub, nil
}

func (c *natsClientConn) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	subs := c.subs
	c.subs = nil
	c.mu.Unlock()

	for _, sub := range subs {
		sub.Close()
	}
}

type natsSubscription struct {
	bus     *NATSBus
	channel string
	member  string
	nsub    *nats.Subscription

	mu       sync.Mutex
	handlers map[string]HandlerFunc
	pending  map[string][][]byte
	closed   bool
}

func (s *natsSubscription) Channel() string { return s.channel }

func (s *natsSubscription) Bind(event string, fn HandlerFunc) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.handlers[event] = fn
	for _, data := range s.pending[event] {
		fn(data)
	}
	delete(s.pending, event)
}

func (s *natsSubscription) Unbind(event string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.handlers, event)
}

func (s *natsSubscription) dispatch(event string, data []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	if fn, ok := s.handlers[event]; ok {
		fn(data)
		return
	}
	s.pending[event] = append(s.pending[event], data)
}

func (s *natsSubscription) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.handlers = nil
	s.pending = nil
	s.mu.Unlock()

	if IsPresence(s.channel) {
		announce, _ := json.Marshal(presenceAnnounce{Member: s.member})
		if err := s.bus.conn.Publish(presenceLeaveSubject(s.channel), announce); err != nil {
			s.bus.logger.Warn("presence leave announce failed",
				zap.String("channel", s.channel), zap.Error(err))
		}
	}
	return s.nsub.Unsubscribe()
}

// Channel and event names may carry characters NATS subjects reserve
// (emails contain dots), so every token is percent-escaped.
func escapeToken(tok string) string {
	return strings.NewReplacer(
		"%", "%25",
		".", "%2E",
		"*", "%2A",
		">", "%3E",
		" ", "%20",
	).Replace(tok)
}

func unescapeToken(tok string) string {
	return strings.NewReplacer(
		"%2E", ".",
		"%2A", "*",
		"%3E", ">",
		"%20", " ",
		"%25", "%",
	).Replace(tok)
}

func eventSubject(channel, event string) string {
	return fmt.Sprintf("chan.%s.%s", escapeToken(channel), escapeToken(event))
}

func channelWildcard(channel string) string {
	return fmt.Sprintf("chan.%s.*", escapeToken(channel))
}

func eventFromSubject(subject string) string {
	idx := strings.LastIndex(subject, ".")
	if idx < 0 {
		return subject
	}
	return unescapeToken(subject[idx+1:])
}

func presenceJoinSubject(channel string) string {
	return fmt.Sprintf("presence.join.%s", escapeToken(channel))
}

func presenceLeaveSubject(channel string) string {
	return fmt.Sprintf("presence.leave.%s", escapeToken(channel))
}

func presenceStateSubject(channel string) string {
	return fmt.Sprintf("presence.state.%s", escapeToken(channel))
}

type presenceAnnounce struct {
	Member string `json:"member"`
}

func createTLSConfig(caFile, certFile, keyFile string) (*tls.Config, error) {
	caCert, err := os.ReadFile(caFile)
	if err != nil {
		return nil, fmt.Errorf("failed to read CA file: %w", err)
	}

	caCertPool := x509.NewCertPool()
	if !caCertPool.AppendCertsFromPEM(caCert) {
		return nil, fmt.Errorf("failed to parse CA certificate")
	}

	cert, err := tls.LoadX509KeyPair(certFile, keyFile)
	if err != nil {
		return nil, fmt.Errorf("failed to load client cert: %w", err)
	}

	return &tls.Config{
		RootCAs:      caCertPool,
		Certificates: []tls.Certificate{cert},
		MinVersion:   tls.VersionTLS12,
	}, nil
}
