package fix

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/finbridge/fixtrader/internal/metrics"
)

// ErrNotConnected is returned by Send when the session has no live socket.
var ErrNotConnected = errors.New("fix: session not connected")

// App receives every decoded inbound message and disconnect notices.
// Session-level types (Heartbeat, TestRequest, Logon, Logout) are handled by
// the session first and then forwarded so the application can observe them.
type App interface {
	OnMessage(channel string, msg *Message)
	OnDisconnect(channel string, reason string)
}

// Dialer opens the transport socket. The default dials TLS with certificate
// verification disabled: the broker's demo environment presents certificates
// that do not validate, a documented compatibility exception.
type Dialer func(ctx context.Context, addr string) (net.Conn, error)

func tlsDialer(ctx context.Context, addr string) (net.Conn, error) {
	d := &net.Dialer{Timeout: 10 * time.Second}
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, err
	}
	tlsConn := tls.Client(conn, &tls.Config{InsecureSkipVerify: true})
	if err := tlsConn.HandshakeContext(ctx); err != nil {
		conn.Close()
		return nil, err
	}
	return tlsConn, nil
}

// SessionConfig holds per-channel connection parameters.
type SessionConfig struct {
	Host         string
	Port         int
	SenderCompID string
	TargetCompID string
	SenderSubID  string // "QUOTE" or "TRADE"; also the channel name
	Password     string
	Heartbeat    time.Duration
	ReadTimeout  time.Duration
}

// Session owns one logical FIX channel: a single socket, the monotonic
// outbound sequence counter, and the read loop. It does not retry on its own;
// reconnect policy belongs to the owning client.
type Session struct {
	cfg  SessionConfig
	app  App
	log  *zap.Logger
	dial Dialer

	mu        sync.Mutex // guards conn, seq, flags, lastSent
	conn      net.Conn
	done      chan struct{}
	seq       int
	connected bool
	loggedOn  bool
	running   bool
	lastSent  time.Time

	sendMu sync.Mutex // serialises socket writes
}

// NewSession creates a session for one channel. A nil dialer selects the
// default TLS dialer.
func NewSession(cfg SessionConfig, app App, log *zap.Logger, dial Dialer) *Session {
	if cfg.Heartbeat <= 0 {
		cfg.Heartbeat = 30 * time.Second
	}
	if cfg.ReadTimeout <= 0 {
		cfg.ReadTimeout = 5 * time.Second
	}
	if dial == nil {
		dial = tlsDialer
	}
	return &Session{
		cfg:  cfg,
		app:  app,
		log:  log.Named(strings.ToLower(cfg.SenderSubID)),
		dial: dial,
	}
}

// Channel returns the logical channel name (the SenderSubID).
func (s *Session) Channel() string { return s.cfg.SenderSubID }

// Connected reports whether the socket is up.
func (s *Session) Connected() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.connected
}

// LoggedOn reports whether the broker confirmed our Logon.
func (s *Session) LoggedOn() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loggedOn
}

// Running reports whether the read loop should keep going.
func (s *Session) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// Connect opens the socket, starts the read loop, and sends Logon with
// sequence number 1 and a sequence reset request. It does not wait for the
// Logon response and does not retry; on failure the session is simply marked
// not connected.
func (s *Session) Connect(ctx context.Context) error {
	addr := fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port)
	s.log.Info("connecting", zap.String("addr", addr))

	conn, err := s.dial(ctx, addr)
	if err != nil {
		s.mu.Lock()
		s.connected = false
		s.mu.Unlock()
		s.log.Error("connect failed", zap.Error(err))
		return err
	}

	done := make(chan struct{})
	s.mu.Lock()
	s.conn = conn
	s.done = done
	s.seq = 1
	s.connected = true
	s.running = true
	s.loggedOn = false
	s.mu.Unlock()

	metrics.SessionConnects.WithLabelValues(s.Channel()).Inc()

	go s.readLoop(conn, done)
	go s.heartbeatLoop(done)

	s.sendLogon()
	return nil
}

// Stop idempotently halts the read loop and closes the socket. Errors from an
// already-closed socket are suppressed.
func (s *Session) Stop() {
	s.mu.Lock()
	if !s.running && s.conn == nil {
		s.mu.Unlock()
		return
	}
	s.running = false
	conn := s.conn
	s.conn = nil
	s.mu.Unlock()

	if conn != nil {
		_ = conn.Close()
	}
}

// readLoop blocks on the socket with a bounded deadline so Stop is observed
// within one timeout interval. One malformed message is logged and dropped;
// only a dead socket ends the loop.
func (s *Session) readLoop(conn net.Conn, done chan struct{}) {
	defer close(done)

	parser := NewParser()
	buf := make([]byte, 4096)
	reason := ""

	for s.Running() {
		_ = conn.SetReadDeadline(time.Now().Add(s.cfg.ReadTimeout))
		n, err := conn.Read(buf)
		if err != nil {
			var netErr net.Error
			if errors.As(err, &netErr) && netErr.Timeout() {
				continue
			}
			reason = fmt.Sprintf("read error: %v", err)
			break
		}
		if n == 0 {
			reason = "connection closed by peer"
			break
		}

		parser.Write(buf[:n])
		for {
			msg, err := parser.Next()
			if err != nil {
				s.log.Warn("dropping malformed message", zap.Error(err))
				metrics.ProtocolErrors.WithLabelValues(s.Channel()).Inc()
				continue
			}
			if msg == nil {
				break
			}
			s.handleMessage(msg)
		}
	}

	s.mu.Lock()
	wasRunning := s.running
	wasConnected := s.connected
	s.running = false
	s.connected = false
	s.loggedOn = false
	s.mu.Unlock()

	if wasConnected {
		s.log.Info("disconnected", zap.String("reason", reason))
		metrics.SessionDisconnects.WithLabelValues(s.Channel()).Inc()
		if wasRunning {
			// Loop ended while we still wanted to run: unexpected.
			s.app.OnDisconnect(s.Channel(), reason)
		}
	}
}

// handleMessage intercepts session-level types, then forwards everything to
// the application router. A panicking handler must not kill the connection.
func (s *Session) handleMessage(msg *Message) {
	defer func() {
		if r := recover(); r != nil {
			s.log.Error("message handler panic", zap.Any("panic", r), zap.String("msg", msg.String()))
		}
	}()

	metrics.MessagesReceived.WithLabelValues(s.Channel(), msg.MsgType()).Inc()

	switch msg.MsgType() {
	case MsgTypeHeartbeat:
		// Nothing to do.
	case MsgTypeTestRequest:
		s.sendHeartbeatReply(msg.GetOr(TagTestReqID, ""))
	case MsgTypeLogon:
		s.mu.Lock()
		s.loggedOn = true
		s.mu.Unlock()
		s.log.Info("logged on")
	case MsgTypeLogout:
		s.log.Info("logout received", zap.String("text", msg.GetOr(TagText, "")))
		s.mu.Lock()
		s.running = false
		s.loggedOn = false
		s.mu.Unlock()
	}

	s.app.OnMessage(s.Channel(), msg)
}

// heartbeatLoop sends an unsolicited Heartbeat when no outbound traffic
// happened within the heartbeat interval.
func (s *Session) heartbeatLoop(done chan struct{}) {
	ticker := time.NewTicker(s.cfg.Heartbeat / 2)
	defer ticker.Stop()
	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			s.mu.Lock()
			idle := time.Since(s.lastSent) >= s.cfg.Heartbeat
			loggedOn := s.loggedOn
			s.mu.Unlock()
			if loggedOn && idle {
				_ = s.Send(MsgTypeHeartbeat, NewMessage())
			}
		}
	}
}

// addHeader stamps the standard header and increments the outbound sequence
// number. This is the only place the counter changes; the caller must hold mu.
func (s *Session) addHeader(msg *Message, msgType string) {
	msg.Append(TagBeginString, BeginString)
	msg.Append(TagMsgType, msgType)
	msg.Append(TagSenderCompID, s.cfg.SenderCompID)
	msg.Append(TagTargetCompID, s.cfg.TargetCompID)
	msg.Append(TagSenderSubID, s.cfg.SenderSubID)
	msg.Append(TagTargetSubID, s.cfg.SenderSubID)
	msg.AppendInt(TagMsgSeqNum, s.seq)
	s.seq++
	msg.Append(TagSendingTime, time.Now().UTC().Format(UTCTimeFormat))
}

// Send stamps the header onto body and writes the encoded message. The
// sequence lock covers only header construction; the network write happens
// outside it so a slow send never blocks the read loop's repliers.
func (s *Session) Send(msgType string, body *Message) error {
	s.mu.Lock()
	if s.conn == nil {
		s.mu.Unlock()
		return ErrNotConnected
	}
	conn := s.conn
	msg := NewMessage()
	s.addHeader(msg, msgType)
	s.lastSent = time.Now()
	s.mu.Unlock()

	body.Fields(func(tag int, value string) {
		msg.Append(tag, value)
	})

	raw, err := msg.Encode()
	if err != nil {
		return err
	}

	s.sendMu.Lock()
	_, err = conn.Write(raw)
	s.sendMu.Unlock()
	if err != nil {
		// A send on a broken socket is not fatal here: the read loop will
		// independently detect and report the disconnect.
		s.log.Error("send error", zap.String("msg_type", msgType), zap.Error(err))
		return err
	}
	metrics.MessagesSent.WithLabelValues(s.Channel(), msgType).Inc()
	return nil
}

func (s *Session) sendLogon() {
	body := NewMessage()
	body.Append(TagEncryptMethod, "0")
	body.AppendInt(TagHeartBtInt, int(s.cfg.Heartbeat/time.Second))
	// The broker derives the account login from the CompID tail,
	// e.g. demo.broker.5211712 -> 5211712.
	if i := strings.LastIndex(s.cfg.SenderCompID, "."); i >= 0 && i+1 < len(s.cfg.SenderCompID) {
		body.Append(TagUsername, s.cfg.SenderCompID[i+1:])
	}
	body.Append(TagPassword, s.cfg.Password)
	body.Append(TagResetSeqNumFlag, "Y")

	s.log.Info("sending logon", zap.String("masked", s.maskPassword(body.String())))
	_ = s.Send(MsgTypeLogon, body)
}

func (s *Session) sendHeartbeatReply(testReqID string) {
	body := NewMessage()
	if testReqID != "" {
		body.Append(TagTestReqID, testReqID)
	}
	_ = s.Send(MsgTypeHeartbeat, body)
}

func (s *Session) maskPassword(raw string) string {
	if s.cfg.Password == "" {
		return raw
	}
	return strings.ReplaceAll(raw, s.cfg.Password, "******")
}
