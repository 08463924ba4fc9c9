// Package dvrip is the public client for the DVRIP/XMeye protocol spoken
// by XMeye-family DVRs and NVRs: session login, synchronous RPCs, alarm
// push, paginated file listing, bulk download, and live media streaming.
package dvrip

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/openipc/dvrip-go/internal/dvriperr"
	"github.com/openipc/dvrip-go/internal/logging"
	"github.com/openipc/dvrip-go/internal/media"
	"github.com/openipc/dvrip-go/internal/protocol"
	"github.com/openipc/dvrip-go/internal/rpc"
	"github.com/openipc/dvrip-go/internal/session"
	"github.com/openipc/dvrip-go/internal/transport"
)

// Config describes how to reach and authenticate against one device.
type Config struct {
	Address  string // host:port
	User     string
	Password string // plaintext; hashed internally before it touches the wire

	Network transport.Network // defaults to TCP
	Iface   string            // optional bind interface

	ConnectTimeout time.Duration // defaults to 10s
	RequestTimeout time.Duration // defaults to 10s
}

func (c Config) withDefaults() Config {
	if c.Network == "" {
		c.Network = transport.TCP
	}
	if c.ConnectTimeout <= 0 {
		c.ConnectTimeout = 10 * time.Second
	}
	if c.RequestTimeout <= 0 {
		c.RequestTimeout = 10 * time.Second
	}
	return c
}

// Client is a logged-in (or about-to-log-in) connection to one device.
// A Client is not safe for concurrent Login/Close calls, but the
// underlying RPC multiplexer safely serialises concurrent Get/Set/SendRaw
// calls from multiple goroutines.
type Client struct {
	cfg  Config
	conn *transport.Conn
	sess *session.State
	rpc  *rpc.Multiplexer
	log  *slog.Logger

	monitoring bool
}

// New dials the device and prepares a Client. Call Login before issuing
// any other operation.
func New(cfg Config) (*Client, error) {
	cfg = cfg.withDefaults()

	conn, err := transport.Dial(cfg.Network, cfg.Address, cfg.ConnectTimeout, cfg.Iface)
	if err != nil {
		return nil, fmt.Errorf("dvrip: connect to %s: %w", cfg.Address, err)
	}
	conn.SetTimeout(cfg.RequestTimeout)

	c := &Client{cfg: cfg, conn: conn, log: logging.L("client")}

	sess := session.New(keepAliveSender{c}, c.onKeepAliveFailure)
	c.sess = sess
	c.rpc = rpc.New(conn, sess)
	return c, nil
}

// keepAliveSender hands the session's keep-alive timer to the RPC
// multiplexer, which is built after the session it depends on.
type keepAliveSender struct{ c *Client }

func (k keepAliveSender) SendKeepAlive() error { return k.c.rpc.SendKeepAlive() }

func (c *Client) onKeepAliveFailure() {
	c.log.Warn("keep-alive failed, closing session")
	c.Close()
}

// Login authenticates with the device's "sofia hash" password digest.
func (c *Client) Login() error {
	hash := session.SofiaHash(c.cfg.Password)
	resp, err := c.rpc.Login(c.cfg.User, hash)
	if err != nil {
		return fmt.Errorf("dvrip: login: %w", err)
	}
	if !resp.OK() {
		return fmt.Errorf("dvrip: login rejected, ret=%d: %w", resp.Ret, dvriperr.ErrAuthFailed)
	}

	sessionIDHex, _ := resp.Body()["SessionID"].(string)
	aliveInterval, _ := resp.Body()["AliveInterval"].(float64)
	deviceType, _ := resp.Body()["DeviceType"].(string)

	if err := c.sess.ApplyLogin(sessionIDHex, int(aliveInterval), deviceType); err != nil {
		return fmt.Errorf("dvrip: apply login: %w", err)
	}
	c.log.Info("logged in", logging.KeySessionID, sessionIDHex, "deviceType", deviceType)
	return nil
}

// Close cancels the keep-alive timer, stops any alarm listener, and
// closes the socket. Idempotent.
func (c *Client) Close() error {
	c.sess.Close()
	c.rpc.StopAlarm()
	return c.conn.Close()
}

// DeviceType reports the device type string reported at login.
func (c *Client) DeviceType() string { return c.sess.DeviceType() }

// Get issues a GET-style query.
func (c *Client) Get(name string) (dvriperr.Response, error) { return c.rpc.Get(name) }

// Set issues a SET-style write.
func (c *Client) Set(name string, body any) (dvriperr.Response, error) {
	return c.rpc.Set(name, body)
}

// SendRaw is the low-level escape hatch for a custom message code/body.
func (c *Client) SendRaw(code uint16, body map[string]any, wait bool) (dvriperr.Response, error) {
	return c.rpc.SendRaw(code, body, wait)
}

// StartAlarm registers an alarm push callback.
func (c *Client) StartAlarm(cb rpc.AlarmCallback) error {
	_, err := c.rpc.StartAlarm(cb)
	return err
}

// StopAlarm stops the alarm listener and clears the callback.
func (c *Client) StopAlarm() { c.rpc.StopAlarm() }

// ListFiles drives the device's paginated OPFileQuery to completion.
// Results may contain duplicates across pages; callers needing a set
// should dedupe by (FileName, BeginTime).
func (c *Client) ListFiles(beginTime, endTime, fileType string, channel int) ([]map[string]any, error) {
	return c.rpc.ListFiles(beginTime, endTime, fileType, channel)
}

// DownloadFile requests a recorded file by name over a time range and
// streams it to destPath, deleting a partial file on any error.
func (c *Client) DownloadFile(beginTime, endTime, fileName, destPath string) error {
	claim := c.rpc.Claim()
	defer claim.Release()

	claimParams := map[string]any{
		"PlayMode":   "ByName",
		"FileName":   fileName,
		"StreamType": 0,
		"Value":      0,
		"TransMode":  "TCP",
	}
	claimBody := map[string]any{
		"Name": "OPPlayBack",
		"OPPlayBack": map[string]any{
			"Action":    "Claim",
			"Parameter": claimParams,
			"StartTime": beginTime,
			"EndTime":   endTime,
		},
	}
	if _, err := claim.ExecOnClaim(protocol.MsgPlayBackClaim, claimBody); err != nil {
		return fmt.Errorf("dvrip: playback claim: %w", err)
	}

	startBody := map[string]any{
		"Name": "OPPlayBack",
		"OPPlayBack": map[string]any{
			"Action":    "DownloadStart",
			"Parameter": claimParams,
			"StartTime": beginTime,
			"EndTime":   endTime,
		},
	}
	// DownloadStart's reply header carries the length of the first raw
	// binary chunk directly, not a JSON body: the device switches the
	// channel from command mode to file-transfer mode as soon as the
	// request lands.
	if err := claim.Send(protocol.MsgPlayBack, startBody); err != nil {
		return fmt.Errorf("dvrip: download start: %w", err)
	}
	firstHdr, err := claim.ReadHeader()
	if err != nil {
		return fmt.Errorf("dvrip: read download start reply: %w", err)
	}
	var firstChunk []byte
	if firstHdr.PayloadLength > 0 {
		firstChunk, err = claim.ReadPayload(firstHdr.PayloadLength)
		if err != nil {
			return fmt.Errorf("dvrip: read first download chunk: %w", err)
		}
	}

	downloadErr := media.DownloadToFile(claim, firstChunk, destPath)

	stopBody := map[string]any{
		"Name": "OPPlayBack",
		"OPPlayBack": map[string]any{
			"Action":    "DownloadStop",
			"Parameter": claimParams,
			"StartTime": beginTime,
			"EndTime":   endTime,
		},
	}
	claim.Send(protocol.MsgPlayBack, stopBody)

	if downloadErr != nil {
		return &dvriperr.PartialFileError{Path: destPath, Err: downloadErr}
	}
	return nil
}

// StartMonitor begins a live stream on channel 0 with the given stream type,
// invoking cb for every reassembled frame until StopMonitor is called or
// the claim errors out. It blocks the calling goroutine for the duration
// of the stream, matching the device's exclusive use of the channel.
func (c *Client) StartMonitor(cb func(media.Frame), stream string) error {
	claim := c.rpc.Claim()
	defer claim.Release()

	params := map[string]any{
		"Channel":    0,
		"CombinMode": "NONE",
		"StreamType": stream,
		"TransMode":  "TCP",
	}
	claimBody := map[string]any{
		"Name": "OPMonitor",
		"OPMonitor": map[string]any{
			"Action":    "Claim",
			"Parameter": params,
		},
	}
	resp, err := claim.ExecOnClaim(protocol.MsgMonitorClaim, claimBody)
	if err != nil {
		return fmt.Errorf("dvrip: monitor claim: %w", err)
	}
	if !resp.OK() {
		return fmt.Errorf("dvrip: monitor claim rejected, ret=%d", resp.Ret)
	}

	startBody := map[string]any{
		"Name": "OPMonitor",
		"OPMonitor": map[string]any{
			"Action":    "Start",
			"Parameter": params,
		},
	}
	if err := claim.Send(protocol.MsgMonitorData, startBody); err != nil {
		return fmt.Errorf("dvrip: monitor start: %w", err)
	}

	c.monitoring = true
	for c.monitoring {
		frame, err := media.ReadFrame(claim, c.cfg.RequestTimeout)
		if err != nil {
			return fmt.Errorf("dvrip: monitor stream: %w", err)
		}
		cb(frame)
	}
	return nil
}

// StopMonitor ends a running StartMonitor loop after its current frame.
func (c *Client) StopMonitor() {
	c.monitoring = false
}

// Snapshot requests one JPEG frame from the given channel.
func (c *Client) Snapshot(channel int) ([]byte, error) {
	claim := c.rpc.Claim()
	defer claim.Release()

	body := map[string]any{
		"Name": "OPSNAP",
		"OPSNAP": map[string]any{
			"Channel": channel,
		},
	}
	if err := claim.Send(protocol.MsgSnapshot, body); err != nil {
		return nil, fmt.Errorf("dvrip: snapshot request: %w", err)
	}

	frame, err := media.ReadFrame(claim, c.cfg.RequestTimeout)
	if err != nil {
		return nil, fmt.Errorf("dvrip: snapshot read: %w", err)
	}
	return frame.Data, nil
}
