// Package wsrelay maintains an outbound WebSocket connection from a
// device bridge to a relay server, pushing alarm events and live frames
// and receiving remote commands (e.g. PTZ, snapshot) that it hands to a
// CommandHandler.
package wsrelay

import (
	"encoding/json"
	"fmt"
	"math/rand"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/openipc/dvrip-go/internal/logging"
)

var log = logging.L("wsrelay")

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 512 * 1024
	initialBackoff = 1 * time.Second
	maxBackoff     = 60 * time.Second
	backoffFactor  = 2.0
	jitterFactor   = 0.3
)

// Config holds relay connection settings.
type Config struct {
	ServerURL string
	DeviceID  string
	AuthToken string
}

// Command is a remote action requested by the relay server, destined for
// the device client (e.g. {"type":"ptz","payload":{"direction":"up"}}).
type Command struct {
	ID      string         `json:"id"`
	Type    string         `json:"type"`
	Payload map[string]any `json:"payload"`
}

// CommandResult is the outcome of executing a Command, sent back upstream.
type CommandResult struct {
	Type      string `json:"type"`
	CommandID string `json:"commandId"`
	Status    string `json:"status"`
	Result    any    `json:"result,omitempty"`
	Error     string `json:"error,omitempty"`
}

// CommandHandler executes a Command and returns its result.
type CommandHandler func(cmd Command) CommandResult

// Client maintains a reconnecting WebSocket session to the relay server.
type Client struct {
	config          *Config
	conn            *websocket.Conn
	connMu          sync.RWMutex
	cmdHandler      CommandHandler
	done            chan struct{}
	sendChan        chan []byte
	binaryFrameChan chan []byte
	stopOnce        sync.Once
	isRunning       bool
	runningMu       sync.RWMutex
}

// New builds a Client that dispatches received commands to handler.
func New(cfg *Config, handler CommandHandler) *Client {
	return &Client{
		config:          cfg,
		cmdHandler:      handler,
		done:            make(chan struct{}),
		sendChan:        make(chan []byte, 256),
		binaryFrameChan: make(chan []byte, 30),
	}
}

// Start connects and reconnects with backoff until Stop is called. It
// blocks the calling goroutine.
func (c *Client) Start() {
	c.runningMu.Lock()
	if c.isRunning {
		c.runningMu.Unlock()
		return
	}
	c.isRunning = true
	c.runningMu.Unlock()

	c.reconnectLoop()
}

// Stop closes the connection and ends the reconnect loop.
func (c *Client) Stop() {
	c.stopOnce.Do(func() {
		c.runningMu.Lock()
		c.isRunning = false
		c.runningMu.Unlock()

		close(c.done)

		c.connMu.Lock()
		if c.conn != nil {
			c.conn.WriteControl(
				websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(writeWait),
			)
			c.conn.Close()
			c.conn = nil
		}
		c.connMu.Unlock()

		log.Info("client stopped")
	})
}

func (c *Client) connect() error {
	wsURL, err := c.buildWSURL()
	if err != nil {
		return fmt.Errorf("build relay url: %w", err)
	}

	dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}
	conn, _, err := dialer.Dial(wsURL, nil)
	if err != nil {
		return fmt.Errorf("dial relay: %w", err)
	}

	c.connMu.Lock()
	c.conn = conn
	c.connMu.Unlock()

	conn.SetReadLimit(maxMessageSize)
	log.Info("connected", "server", c.config.ServerURL)
	return nil
}

func (c *Client) buildWSURL() (string, error) {
	serverURL, err := url.Parse(c.config.ServerURL)
	if err != nil {
		return "", err
	}

	switch serverURL.Scheme {
	case "https":
		serverURL.Scheme = "wss"
	case "http":
		serverURL.Scheme = "ws"
	}

	serverURL.Path = fmt.Sprintf("/api/v1/device-ws/%s/ws", c.config.DeviceID)
	q := serverURL.Query()
	q.Set("token", c.config.AuthToken)
	serverURL.RawQuery = q.Encode()

	return serverURL.String(), nil
}

func (c *Client) reconnectLoop() {
	backoff := initialBackoff

	for {
		select {
		case <-c.done:
			return
		default:
		}

		if err := c.connect(); err != nil {
			log.Warn("connection failed", "error", err)

			jitter := time.Duration(float64(backoff) * jitterFactor * (rand.Float64()*2 - 1))
			sleep := backoff + jitter
			if sleep < 0 {
				sleep = backoff
			}

			log.Info("retrying", "delay", sleep)
			select {
			case <-c.done:
				return
			case <-time.After(sleep):
			}

			backoff = time.Duration(float64(backoff) * backoffFactor)
			if backoff > maxBackoff {
				backoff = maxBackoff
			}
			continue
		}

		backoff = initialBackoff

		done := make(chan struct{})
		go c.writePump(done)
		c.readPump()
		close(done)

		c.runningMu.RLock()
		running := c.isRunning
		c.runningMu.RUnlock()
		if !running {
			return
		}
	}
}

func (c *Client) readPump() {
	c.connMu.RLock()
	conn := c.conn
	c.connMu.RUnlock()
	if conn == nil {
		return
	}

	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, message, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Warn("read error", "error", err)
			}
			return
		}

		var envelope struct {
			Type string `json:"type"`
			ID   string `json:"id"`
		}
		if err := json.Unmarshal(message, &envelope); err != nil {
			log.Warn("failed to parse message", "error", err)
			continue
		}
		if envelope.ID == "" {
			continue // server ack/heartbeat, not a command
		}

		var cmd Command
		if err := json.Unmarshal(message, &cmd); err != nil {
			log.Warn("failed to parse command", "error", err)
			continue
		}
		go c.processCommand(cmd)
	}
}

func (c *Client) writePump(done chan struct{}) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			return
		case <-c.done:
			return

		case message := <-c.sendChan:
			if err := c.writeMessage(websocket.TextMessage, message); err != nil {
				return
			}

		case frame := <-c.binaryFrameChan:
			if err := c.writeMessage(websocket.BinaryMessage, frame); err != nil {
				return
			}

		case <-ticker.C:
			if err := c.writeMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (c *Client) writeMessage(kind int, data []byte) error {
	c.connMu.RLock()
	conn := c.conn
	c.connMu.RUnlock()
	if conn == nil {
		return nil
	}
	conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := conn.WriteMessage(kind, data); err != nil {
		log.Warn("write error", "error", err)
		return err
	}
	return nil
}

func (c *Client) processCommand(cmd Command) {
	log.Info("processing command", "commandId", cmd.ID, "commandType", cmd.Type)

	result := c.cmdHandler(cmd)
	result.Type = "command_result"
	result.CommandID = cmd.ID

	if err := c.SendResult(result); err != nil {
		log.Error("failed to send command result", "error", err)
	}
}

// SendResult pushes the outcome of a remote command back upstream.
func (c *Client) SendResult(result CommandResult) error {
	data, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("marshal result: %w", err)
	}
	select {
	case c.sendChan <- data:
		return nil
	case <-c.done:
		return fmt.Errorf("wsrelay: client is stopped")
	default:
		return fmt.Errorf("wsrelay: send channel is full")
	}
}

// SendAlarm pushes an alarm event (from rpc.AlarmCallback) upstream.
func (c *Client) SendAlarm(event map[string]any) error {
	msg := map[string]any{"type": "alarm", "event": event}
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal alarm: %w", err)
	}
	select {
	case c.sendChan <- data:
		return nil
	case <-c.done:
		return fmt.Errorf("wsrelay: client is stopped")
	default:
		return fmt.Errorf("wsrelay: send channel is full")
	}
}

// SendFrame pushes one binary media frame (JPEG snapshot or raw H264
// access unit) upstream. Non-blocking: drops the frame if the channel is
// full, since live preview tolerates drops better than backpressure.
func (c *Client) SendFrame(data []byte) error {
	select {
	case c.binaryFrameChan <- data:
		return nil
	case <-c.done:
		return fmt.Errorf("wsrelay: client is stopped")
	default:
		return fmt.Errorf("wsrelay: frame channel full, dropping frame")
	}
}
