// Package session implements the DVRIP login handshake, the "sofia hash"
// password digest, session-id bookkeeping, and the keep-alive timer.
package session

import (
	"crypto/md5"
	"fmt"
	"strconv"
	"sync"
	"sync/atomic"
	"time"
)

const hashAlphabet = "0123456789ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz"

// SofiaHash computes the device's 8-character password digest: MD5 the
// password, then for each of the 8 big-endian byte pairs sum the pair mod
// 62 and map through the digits/upper/lower alphabet.
func SofiaHash(password string) string {
	sum := md5.Sum([]byte(password))
	out := make([]byte, 8)
	for i := 0; i < 8; i++ {
		out[i] = hashAlphabet[(int(sum[2*i])+int(sum[2*i+1]))%62]
	}
	return string(out)
}

// FormatSessionID renders a numeric session id as the "0xNNNNNNNN" hex
// string the protocol expects inside JSON bodies.
func FormatSessionID(id uint32) string {
	return fmt.Sprintf("0x%08X", id)
}

// ParseSessionID parses the "0xNNNNNNNN" hex string the device returns at
// login back into a numeric session id.
func ParseSessionID(hex string) (uint32, error) {
	s := hex
	if len(s) > 2 && (s[0:2] == "0x" || s[0:2] == "0X") {
		s = s[2:]
	}
	v, err := strconv.ParseUint(s, 16, 32)
	if err != nil {
		return 0, fmt.Errorf("session: invalid session id %q: %w", hex, err)
	}
	return uint32(v), nil
}

// KeepAliveSender is implemented by the RPC layer: sending a keep-alive is
// just another synchronous request, so Session doesn't know about framing.
type KeepAliveSender interface {
	SendKeepAlive() error
}

// State tracks session identity and drives the keep-alive timer. It is
// safe for concurrent use: the sequence counter and session id are updated
// from the RPC path and read from the keep-alive timer goroutine.
type State struct {
	sessionID atomic.Uint32
	sequence  atomic.Uint32

	mu            sync.Mutex
	aliveInterval time.Duration
	deviceType    string
	timer         *time.Timer
	sender        KeepAliveSender
	onKeepAliveFailure func()
}

// New creates session State bound to a keep-alive sender. onFailure is
// invoked (once) if a keep-alive round trip fails; a failed keep-alive
// closes the whole session unconditionally.
func New(sender KeepAliveSender, onFailure func()) *State {
	return &State{sender: sender, onKeepAliveFailure: onFailure}
}

// SessionID returns the numeric session id assigned at login, or 0 before
// login completes.
func (s *State) SessionID() uint32 { return s.sessionID.Load() }

// NextSequence returns the next monotonic sequence number and advances the
// counter. Sequence numbers are monotonic for the life of the session.
func (s *State) NextSequence() uint32 { return s.sequence.Add(1) - 1 }

// ApplyLogin records the server's login reply and arms the keep-alive timer.
func (s *State) ApplyLogin(sessionIDHex string, aliveIntervalSeconds int, deviceType string) error {
	id, err := ParseSessionID(sessionIDHex)
	if err != nil {
		return err
	}
	s.sessionID.Store(id)

	s.mu.Lock()
	s.aliveInterval = time.Duration(aliveIntervalSeconds) * time.Second
	s.deviceType = deviceType
	s.mu.Unlock()

	s.armKeepAlive()
	return nil
}

// DeviceType returns the device type string reported at login.
func (s *State) DeviceType() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.deviceType
}

// LoggedIn reports whether ApplyLogin has run (session id is non-zero).
func (s *State) LoggedIn() bool { return s.sessionID.Load() != 0 }

func (s *State) armKeepAlive() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.aliveInterval <= 0 {
		return
	}
	if s.timer != nil {
		s.timer.Stop()
	}
	s.timer = time.AfterFunc(s.aliveInterval, s.fireKeepAlive)
}

func (s *State) fireKeepAlive() {
	if err := s.sender.SendKeepAlive(); err != nil {
		if s.onKeepAliveFailure != nil {
			s.onKeepAliveFailure()
		}
		return
	}
	s.armKeepAlive()
}

// Close cancels the keep-alive timer. Idempotent, safe to call from any
// goroutine.
func (s *State) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
	s.sessionID.Store(0)
}
