// Package rpc serialises every synchronous command/response exchange over
// a DVRIP connection behind a single mutex ("busy"), and runs the alarm
// listener that shares the same socket.
package rpc

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"sync"

	"github.com/openipc/dvrip-go/internal/dvriperr"
	"github.com/openipc/dvrip-go/internal/framer"
	"github.com/openipc/dvrip-go/internal/logging"
	"github.com/openipc/dvrip-go/internal/protocol"
	"github.com/openipc/dvrip-go/internal/session"
	"github.com/openipc/dvrip-go/internal/transport"
)

// AlarmCallback receives the inner body of an AlarmInfo push and the
// device's sequence number for it.
type AlarmCallback func(body map[string]any, sequence uint32)

// Multiplexer owns the single busy gate shared by RPCs, the keep-alive
// timer, and the alarm listener: at most one outstanding exchange at a
// time on the connection.
type Multiplexer struct {
	conn *transport.Conn
	sess *session.State
	log  *slog.Logger

	busy sync.Mutex

	alarmMu  sync.Mutex
	alarmCb  AlarmCallback
	alarmRun bool
	stopCh   chan struct{}
	doneCh   chan struct{}
}

// New builds a Multiplexer over an already-dialed transport connection.
func New(conn *transport.Conn, sess *session.State) *Multiplexer {
	return &Multiplexer{conn: conn, sess: sess, log: logging.L("rpc")}
}

// claim is a busy-lock handle exposing the raw frame I/O primitives to
// callers that need more than one request/response pair in a row (file
// download, live monitor). Release must be called exactly once.
type claim struct {
	m *Multiplexer
}

func (m *Multiplexer) claimBusy() *claim {
	m.busy.Lock()
	return &claim{m: m}
}

func (c *claim) release() { c.m.busy.Unlock() }

// send writes one framed request. version selects the legacy (0) or
// session-in-body (1) wire form.
func (c *claim) send(messageID uint16, payload []byte, version uint8) error {
	seq := c.m.sess.NextSequence()
	wire := framer.Pack(messageID, c.m.sess.SessionID(), seq, version, payload)
	if err := c.m.conn.Send(wire); err != nil {
		return fmt.Errorf("rpc: send message %d: %w", messageID, err)
	}
	return nil
}

// readHeader reads exactly one 20-byte header.
func (c *claim) readHeader() (framer.Header, error) {
	raw, err := c.m.conn.RecvExact(framer.HeaderSize)
	if err != nil {
		return framer.Header{}, err
	}
	return framer.Unpack(raw)
}

// readPayload reads exactly n bytes of payload.
func (c *claim) readPayload(n uint32) ([]byte, error) {
	if n == 0 {
		return nil, nil
	}
	return c.m.conn.RecvExact(int(n))
}

// jsonBody builds the standard {Name, SessionID, <name>: data} envelope
// used by set_command, or the bare {Name, SessionID} used by get_command.
func (m *Multiplexer) jsonBody(name string, data any, includeData bool) map[string]any {
	body := map[string]any{
		"Name":      name,
		"SessionID": session.FormatSessionID(m.sess.SessionID()),
	}
	if includeData {
		body[name] = data
	}
	return body
}

// exec performs one full synchronous round trip: acquire busy, send,
// receive header+payload, parse, release. This is the building block for
// Get/Set/SendRaw/KeepAlive.
func (m *Multiplexer) exec(messageID uint16, payload []byte, version uint8) (dvriperr.Response, error) {
	if m.conn == nil {
		return dvriperr.Fault(dvriperr.RetUnknown), nil
	}

	c := m.claimBusy()
	defer c.release()

	if err := c.send(messageID, payload, version); err != nil {
		return dvriperr.Fault(dvriperr.RetUnknown), err
	}

	hdr, err := c.readHeader()
	if err != nil {
		return dvriperr.Fault(dvriperr.RetUnknown), nil
	}

	raw, err := c.readPayload(hdr.PayloadLength)
	if err != nil {
		return dvriperr.Fault(dvriperr.RetUnknown), nil
	}

	return decodeJSONResponse(raw), nil
}

func decodeJSONResponse(raw []byte) dvriperr.Response {
	stripped := framer.StripTrailer(raw)
	var body map[string]any
	if err := json.Unmarshal(stripped, &body); err != nil {
		return dvriperr.Raw(dvriperr.RetUnknown, raw)
	}
	ret := retCode(body)
	name, _ := body["Name"].(string)
	return dvriperr.Parsed(ret, name, body)
}

func retCode(body map[string]any) uint16 {
	switch v := body["Ret"].(type) {
	case float64:
		return uint16(v)
	case int:
		return uint16(v)
	}
	return dvriperr.RetUnknown
}

func marshalEnvelope(body map[string]any) []byte {
	data, _ := json.Marshal(body)
	return append(data, framer.JSONTrailer...)
}

// Get issues a GET-style query (1042) and, on success, unwraps the named
// sub-object the way get_command does.
func (m *Multiplexer) Get(name string) (dvriperr.Response, error) {
	return m.GetCode(name, protocol.MsgConfigGet)
}

// GetCode is Get with an explicit message code override (e.g. 1044 for
// ConfigDefault, or a feed-book "GET" code).
func (m *Multiplexer) GetCode(name string, code uint16) (dvriperr.Response, error) {
	body := m.jsonBody(name, nil, false)
	resp, err := m.exec(code, marshalEnvelope(body), 0)
	if err != nil || !resp.OK() {
		return resp, err
	}
	if inner, ok := resp.Field(name); ok {
		if innerMap, ok := inner.(map[string]any); ok {
			return dvriperr.Parsed(resp.Ret, name, innerMap), nil
		}
		// Non-object field (e.g. OPTimeQuery returns a bare string): wrap
		// it so callers can still retrieve it via Field(name).
		return dvriperr.Parsed(resp.Ret, name, map[string]any{name: inner}), nil
	}
	return resp, nil
}

// Set issues a SET-style write (1040) wrapping body as {Name, SessionID,
// <name>: body}.
func (m *Multiplexer) Set(name string, body any) (dvriperr.Response, error) {
	return m.SetCode(name, body, protocol.MsgConfigSet)
}

// SetCode is Set with an explicit message code override.
func (m *Multiplexer) SetCode(name string, data any, code uint16) (dvriperr.Response, error) {
	env := m.jsonBody(name, data, true)
	return m.exec(code, marshalEnvelope(env), 0)
}

// SendRaw is the low-level escape hatch: send an arbitrary JSON body under
// an arbitrary message code, optionally without waiting for a reply.
func (m *Multiplexer) SendRaw(code uint16, body map[string]any, wait bool) (dvriperr.Response, error) {
	if !wait {
		c := m.claimBusy()
		defer c.release()
		if err := c.send(code, marshalEnvelope(body), 0); err != nil {
			return dvriperr.Fault(dvriperr.RetUnknown), err
		}
		return dvriperr.Response{}, nil
	}
	return m.exec(code, marshalEnvelope(body), 0)
}

// SendKeepAlive implements session.KeepAliveSender.
func (m *Multiplexer) SendKeepAlive() error {
	body := map[string]any{
		"Name":      "KeepAlive",
		"SessionID": session.FormatSessionID(m.sess.SessionID()),
	}
	resp, err := m.exec(protocol.MsgKeepAlive, marshalEnvelope(body), 0)
	if err != nil {
		return err
	}
	if resp.IsFault() {
		return fmt.Errorf("rpc: keep-alive failed")
	}
	return nil
}

// Login performs the DVRIP login handshake (message 1000).
func (m *Multiplexer) Login(user, passwordHash string) (dvriperr.Response, error) {
	body := map[string]any{
		"EncryptType": "MD5",
		"LoginType":   "DVRIP-Web",
		"PassWord":    passwordHash,
		"UserName":    user,
	}
	return m.exec(protocol.MsgLogin, marshalEnvelope(body), 0)
}

// ListFilesPage issues one page of an OPFileQuery (1440); CollectFiles in
// pagination.go drives the 64/511 paging algorithm over this.
func (m *Multiplexer) ListFilesPage(beginTime, endTime, fileType string, channel int) ([]map[string]any, uint16, error) {
	body := map[string]any{
		"Name": "OPFileQuery",
		"SessionID": session.FormatSessionID(m.sess.SessionID()),
		"OPFileQuery": map[string]any{
			"BeginTime":      beginTime,
			"Channel":        channel,
			"DriverTypeMask": "0x0000FFFF",
			"EndTime":        endTime,
			"Event":          "*",
			"StreamType":     "0x00000000",
			"Type":           fileType,
		},
	}
	resp, err := m.exec(protocol.MsgFileQuery, marshalEnvelope(body), 0)
	if err != nil {
		return nil, dvriperr.RetUnknown, err
	}
	if resp.IsFault() {
		return nil, resp.Ret, nil
	}
	if resp.Ret != dvriperr.RetOK {
		return nil, resp.Ret, nil
	}
	entries, _ := resp.Field("OPFileQuery")
	list, _ := entries.([]any)
	out := make([]map[string]any, 0, len(list))
	for _, e := range list {
		if m, ok := e.(map[string]any); ok {
			out = append(out, m)
		}
	}
	return out, resp.Ret, nil
}

// ListFiles queries the full result set for a time range, driving the
// device's page-at-a-time pagination to completion.
func (m *Multiplexer) ListFiles(beginTime, endTime, fileType string, channel int) ([]map[string]any, error) {
	return CollectFiles(beginTime, func(pageBeginTime string) ([]map[string]any, error) {
		page, ret, err := m.ListFilesPage(pageBeginTime, endTime, fileType, channel)
		if err != nil {
			return nil, err
		}
		if ret != dvriperr.RetOK {
			return nil, nil
		}
		return page, nil
	})
}

// StartAlarm registers the alarm push listener (1500) and spawns the
// listener goroutine. Calling StartAlarm while already running replaces
// the callback without spawning a second listener.
func (m *Multiplexer) StartAlarm(cb AlarmCallback) (dvriperr.Response, error) {
	m.alarmMu.Lock()
	m.alarmCb = cb
	alreadyRunning := m.alarmRun
	if !alreadyRunning {
		m.alarmRun = true
		m.stopCh = make(chan struct{})
		m.doneCh = make(chan struct{})
	}
	m.alarmMu.Unlock()

	resp, err := m.exec(protocol.MsgAlarmSet, marshalEnvelope(m.jsonBody("", nil, false)), 0)
	if !alreadyRunning {
		go m.runAlarmListener()
	}
	return resp, err
}

// StopAlarm clears the callback and stops the listener goroutine.
func (m *Multiplexer) StopAlarm() {
	m.alarmMu.Lock()
	if !m.alarmRun {
		m.alarmMu.Unlock()
		return
	}
	m.alarmRun = false
	m.alarmCb = nil
	stopCh := m.stopCh
	doneCh := m.doneCh
	m.alarmMu.Unlock()

	close(stopCh)
	<-doneCh
}

func (m *Multiplexer) runAlarmListener() {
	defer close(m.doneCh)
	for {
		select {
		case <-m.stopCh:
			return
		default:
		}

		c := m.claimBusy()
		hdr, err := c.readHeader()
		if err != nil {
			c.release()
			// Timeout or no data yet: loop and try again. A genuine
			// disconnect (peer closed the socket, or it was closed
			// locally) also lands here; stop cleanly.
			if m.conn == nil || errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) || errors.Is(err, net.ErrClosed) {
				return
			}
			continue
		}
		payload, err := c.readPayload(hdr.PayloadLength)
		c.release()
		if err != nil {
			continue
		}

		if hdr.MessageID != protocol.MsgAlarmInfo || hdr.SessionID != m.sess.SessionID() {
			continue
		}

		var body map[string]any
		if err := json.Unmarshal(framer.StripTrailer(payload), &body); err != nil {
			continue
		}
		name, _ := body["Name"].(string)
		inner, _ := body[name].(map[string]any)

		m.alarmMu.Lock()
		cb := m.alarmCb
		m.alarmMu.Unlock()
		if cb != nil {
			cb(inner, hdr.Sequence)
		}
	}
}

// StreamClaim exposes the busy lock to the media assembler for the
// duration of a file download or live monitor session: one Claim, many
// raw frame reads, because those operations own the channel exclusively
// and no other request may interleave with them.
type StreamClaim struct {
	c *claim
}

// Claim acquires busy for exclusive streaming use. Release must be called
// when the caller is done (download complete, monitor stopped).
func (m *Multiplexer) Claim() *StreamClaim {
	return &StreamClaim{c: m.claimBusy()}
}

func (s *StreamClaim) Release() { s.c.release() }

func (s *StreamClaim) Send(messageID uint16, body map[string]any) error {
	return s.c.send(messageID, marshalEnvelope(body), 0)
}

func (s *StreamClaim) ReadHeader() (framer.Header, error) { return s.c.readHeader() }

func (s *StreamClaim) ReadPayload(n uint32) ([]byte, error) { return s.c.readPayload(n) }

// ExecOnClaim runs one request/response round trip using an already-held
// claim, for callers (download/monitor start) that need to issue an
// ordinary JSON RPC without releasing the streaming claim in between.
func (s *StreamClaim) ExecOnClaim(messageID uint16, body map[string]any) (dvriperr.Response, error) {
	if err := s.Send(messageID, body); err != nil {
		return dvriperr.Fault(dvriperr.RetUnknown), err
	}
	hdr, err := s.ReadHeader()
	if err != nil {
		return dvriperr.Fault(dvriperr.RetUnknown), nil
	}
	raw, err := s.ReadPayload(hdr.PayloadLength)
	if err != nil {
		return dvriperr.Fault(dvriperr.RetUnknown), nil
	}
	return decodeJSONResponse(raw), nil
}
