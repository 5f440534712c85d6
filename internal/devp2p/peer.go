package devp2p

import (
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"evmwalletkit/internal/chainparams"
	"evmwalletkit/internal/rlp"
	"evmwalletkit/internal/rlpx"
	"evmwalletkit/internal/werr"
)

// State is one of the peer connection's lifecycle states (§4.8).
type State int

const (
	StateConnecting State = iota
	StateAuthSent
	StateAuthAckReceived
	StateHelloExchange
	StateStatusExchange
	StateReady
	StateSyncing
	StateDisconnected
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "Connecting"
	case StateAuthSent:
		return "AuthSent"
	case StateAuthAckReceived:
		return "AuthAckReceived"
	case StateHelloExchange:
		return "HelloExchange"
	case StateStatusExchange:
		return "StatusExchange"
	case StateReady:
		return "Ready"
	case StateSyncing:
		return "Syncing"
	case StateDisconnected:
		return "Disconnected"
	default:
		return "Unknown"
	}
}

const (
	ourProtocolVersion = 5
	pingInterval       = 15 * time.Second
	pongTimeout         = 5 * time.Second
)

// Peer drives one devp2p session over an already handshook rlpx.Conn: Hello
// exchange, capability negotiation, LES Status exchange, and ongoing
// keepalive. Mirrors the teacher's mutex-guarded peer bookkeeping
// (core/peer_management.go's active-peer map pattern), generalized to a
// single peer's own state machine rather than a registry of many.
type Peer struct {
	conn   *rlpx.Conn
	logger *logrus.Logger
	params chainparams.Params

	mu               sync.RWMutex
	state            State
	remoteCaps       []Capability
	remoteStatus     Status
	lastPongRecv     time.Time
	disconnectReason DisconnectReason
}

// NewPeer wraps an already-handshook RLPx connection.
func NewPeer(conn *rlpx.Conn, params chainparams.Params, logger *logrus.Logger) *Peer {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Peer{conn: conn, params: params, logger: logger, state: StateConnecting}
}

func (p *Peer) State() State {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.state
}

func (p *Peer) setState(s State) {
	p.mu.Lock()
	p.state = s
	p.mu.Unlock()
}

// Negotiate performs Hello exchange and LES Status exchange (§4.8),
// assuming the RLPx handshake already completed (state starts at
// AuthAckReceived conceptually; we mark it so for completeness).
func (p *Peer) Negotiate(localHello Hello, localStatus Status) error {
	p.setState(StateAuthAckReceived)
	p.setState(StateHelloExchange)

	if err := p.conn.WriteFrame(Message{Code: MsgHello, Payload: localHello.encode()}.Encode()); err != nil {
		return werr.Wrap(werr.Transport, "devp2p: send hello", err)
	}
	frame, err := p.conn.ReadFrame()
	if err != nil {
		return werr.Wrap(werr.Transport, "devp2p: recv hello", err)
	}
	msg, err := DecodeMessage(frame)
	if err != nil {
		return err
	}
	if msg.Code != MsgHello {
		return p.disconnect(DisconnectBadProtocol, "devp2p: expected hello")
	}
	remoteHello, err := decodeHello(msg.Payload)
	if err != nil {
		return err
	}
	p.mu.Lock()
	p.remoteCaps = remoteHello.Caps
	p.mu.Unlock()

	if !HasCapability(remoteHello.Caps, "les", 2) {
		return p.disconnect(DisconnectUselessPeer, "devp2p: peer lacks les/2")
	}

	p.setState(StateStatusExchange)
	if err := p.conn.WriteFrame(Message{Code: MsgStatus, Payload: localStatus.encode()}.Encode()); err != nil {
		return werr.Wrap(werr.Transport, "devp2p: send status", err)
	}
	frame, err = p.conn.ReadFrame()
	if err != nil {
		return werr.Wrap(werr.Transport, "devp2p: recv status", err)
	}
	msg, err = DecodeMessage(frame)
	if err != nil {
		return err
	}
	if msg.Code != MsgStatus {
		return p.disconnect(DisconnectBadProtocol, "devp2p: expected status")
	}
	remoteStatus, err := decodeStatus(msg.Payload)
	if err != nil {
		return err
	}
	if remoteStatus.GenesisHash != p.params.GenesisHash || remoteStatus.NetworkID != p.params.NetworkID {
		return p.disconnect(DisconnectBadProtocol, "devp2p: genesis/network mismatch")
	}
	p.mu.Lock()
	p.remoteStatus = remoteStatus
	p.mu.Unlock()

	p.setState(StateReady)
	return nil
}

// RemoteStatus returns the peer's last known LES Status.
func (p *Peer) RemoteStatus() Status {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.remoteStatus
}

func (p *Peer) disconnect(reason DisconnectReason, logMsg string) error {
	p.mu.Lock()
	p.disconnectReason = reason
	p.state = StateDisconnected
	p.mu.Unlock()
	p.logger.Warnf("%s: disconnecting with reason %d", logMsg, reason)
	_ = p.conn.WriteFrame(Message{Code: MsgDisconnect, Payload: disconnectPayload(reason)}.Encode())
	_ = p.conn.Close()
	return werr.New(werr.Protocol, logMsg)
}

func disconnectPayload(reason DisconnectReason) []byte {
	return rlp.EncodeList(rlp.EncodeUint64(uint64(reason)))
}

// Keepalive sends Ping every 15s. On each tick, once a Pong has been
// recorded through NotePong, it disconnects with TimeOut if the last Pong
// is more than 20s (pingInterval+pongTimeout) old; until a Pong is
// recorded it never times out. Runs until stop is closed or a Ping write
// fails. It does not read the connection, so it neither sees Pong frames
// itself nor handles an inbound Disconnect.
func (p *Peer) Keepalive(stop <-chan struct{}) {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			if err := p.conn.WriteFrame(Message{Code: MsgPing, Payload: rlp.EncodeList()}.Encode()); err != nil {
				p.logger.Warnf("devp2p: ping failed: %v", err)
				return
			}
			p.mu.RLock()
			lastPong := p.lastPongRecv
			p.mu.RUnlock()
			if !lastPong.IsZero() && time.Since(lastPong) > pingInterval+pongTimeout {
				_ = p.disconnect(DisconnectTimeout, "devp2p: pong timeout")
				return
			}
		}
	}
}

// NotePong records receipt of a Pong frame for Keepalive's timeout check.
func (p *Peer) NotePong() {
	p.mu.Lock()
	p.lastPongRecv = time.Now()
	p.mu.Unlock()
}
