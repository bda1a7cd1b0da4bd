package fix

import (
	"context"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

type recordingApp struct {
	mu          sync.Mutex
	messages    []*Message
	disconnects []string
}

func (a *recordingApp) OnMessage(channel string, msg *Message) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.messages = append(a.messages, msg)
}

func (a *recordingApp) OnDisconnect(channel, reason string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.disconnects = append(a.disconnects, reason)
}

func (a *recordingApp) disconnectCount() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.disconnects)
}

// testPeer drives the broker side of a net.Pipe: it parses everything the
// session writes and can inject inbound frames.
type testPeer struct {
	conn   net.Conn
	frames chan *Message
}

func newTestPeer(conn net.Conn) *testPeer {
	p := &testPeer{conn: conn, frames: make(chan *Message, 16)}
	go func() {
		parser := NewParser()
		buf := make([]byte, 4096)
		for {
			n, err := conn.Read(buf)
			if err != nil {
				close(p.frames)
				return
			}
			parser.Write(buf[:n])
			for {
				msg, err := parser.Next()
				if err != nil {
					continue
				}
				if msg == nil {
					break
				}
				p.frames <- msg
			}
		}
	}()
	return p
}

func (p *testPeer) expect(t *testing.T, msgType string) *Message {
	t.Helper()
	deadline := time.After(3 * time.Second)
	for {
		select {
		case msg, ok := <-p.frames:
			require.True(t, ok, "peer closed while waiting for %s", msgType)
			if msg.MsgType() == msgType {
				return msg
			}
		case <-deadline:
			t.Fatalf("timed out waiting for %s", msgType)
		}
	}
}

func (p *testPeer) send(t *testing.T, msgType string, body ...[2]string) {
	t.Helper()
	raw := encodeTestFrame(t, msgType, body...)
	_, err := p.conn.Write(raw)
	require.NoError(t, err)
}

func newTestSession(t *testing.T, app App) (*Session, *testPeer) {
	t.Helper()
	client, server := net.Pipe()
	cfg := SessionConfig{
		Host:         "test",
		Port:         1,
		SenderCompID: "demo.broker.5211712",
		TargetCompID: "cServer",
		SenderSubID:  "TRADE",
		Password:     "secret",
		Heartbeat:    time.Second,
		ReadTimeout:  50 * time.Millisecond,
	}
	dial := func(ctx context.Context, addr string) (net.Conn, error) {
		return client, nil
	}
	s := NewSession(cfg, app, zaptest.NewLogger(t), dial)
	peer := newTestPeer(server)
	t.Cleanup(func() {
		s.Stop()
		server.Close()
	})
	return s, peer
}

func TestSessionLogonSequence(t *testing.T) {
	app := &recordingApp{}
	s, peer := newTestSession(t, app)
	require.NoError(t, s.Connect(context.Background()))

	logon := peer.expect(t, MsgTypeLogon)
	assert.Equal(t, "1", logon.GetOr(TagMsgSeqNum, ""))
	assert.Equal(t, "Y", logon.GetOr(TagResetSeqNumFlag, ""))
	assert.Equal(t, "secret", logon.GetOr(TagPassword, ""))
	// Account login derived from the CompID tail.
	assert.Equal(t, "5211712", logon.GetOr(TagUsername, ""))
	assert.Equal(t, "TRADE", logon.GetOr(TagSenderSubID, ""))

	assert.False(t, s.LoggedOn())
	peer.send(t, MsgTypeLogon)
	require.Eventually(t, s.LoggedOn, 2*time.Second, 10*time.Millisecond)
}

func TestSessionEchoesTestRequest(t *testing.T) {
	app := &recordingApp{}
	s, peer := newTestSession(t, app)
	require.NoError(t, s.Connect(context.Background()))
	peer.expect(t, MsgTypeLogon)
	peer.send(t, MsgTypeLogon)

	peer.send(t, MsgTypeTestRequest, [2]string{"112", "alive-check"})
	hb := peer.expect(t, MsgTypeHeartbeat)
	assert.Equal(t, "alive-check", hb.GetOr(TagTestReqID, ""))
}

func TestSessionSequenceNumbersIncrease(t *testing.T) {
	app := &recordingApp{}
	s, peer := newTestSession(t, app)
	require.NoError(t, s.Connect(context.Background()))
	peer.expect(t, MsgTypeLogon) // seq 1

	require.NoError(t, s.Send(MsgTypeHeartbeat, NewMessage()))
	hb := peer.expect(t, MsgTypeHeartbeat)
	assert.Equal(t, "2", hb.GetOr(TagMsgSeqNum, ""))

	require.NoError(t, s.Send(MsgTypeHeartbeat, NewMessage()))
	hb = peer.expect(t, MsgTypeHeartbeat)
	assert.Equal(t, "3", hb.GetOr(TagMsgSeqNum, ""))
}

func TestSessionUnexpectedDisconnectReportedOnce(t *testing.T) {
	app := &recordingApp{}
	s, peer := newTestSession(t, app)
	require.NoError(t, s.Connect(context.Background()))
	peer.expect(t, MsgTypeLogon)

	// Broker drops the connection.
	require.NoError(t, peer.conn.Close())

	require.Eventually(t, func() bool {
		return app.disconnectCount() == 1
	}, 2*time.Second, 10*time.Millisecond)
	assert.False(t, s.Connected())
	assert.False(t, s.LoggedOn())

	// No second report, and Stop after the fact stays quiet.
	s.Stop()
	time.Sleep(100 * time.Millisecond)
	assert.Equal(t, 1, app.disconnectCount())
}

func TestSessionStopIsQuietAndIdempotent(t *testing.T) {
	app := &recordingApp{}
	s, peer := newTestSession(t, app)
	require.NoError(t, s.Connect(context.Background()))
	peer.expect(t, MsgTypeLogon)

	s.Stop()
	s.Stop()

	require.Eventually(t, func() bool { return !s.Connected() }, 2*time.Second, 10*time.Millisecond)
	time.Sleep(100 * time.Millisecond)
	assert.Equal(t, 0, app.disconnectCount())
}

func TestSessionSendWithoutConnection(t *testing.T) {
	app := &recordingApp{}
	s, _ := newTestSession(t, app)
	err := s.Send(MsgTypeHeartbeat, NewMessage())
	assert.ErrorIs(t, err, ErrNotConnected)
}
