package main

import (
	"fmt"
	"sync"

	"github.com/openipc/dvrip-go/internal/media"
	"github.com/openipc/dvrip-go/internal/webrtcsink"
	"github.com/openipc/dvrip-go/internal/wsrelay"
	"github.com/openipc/dvrip-go/pkg/dvrip"
)

// bridge owns the one DVRIP session this process keeps open and fans its
// capabilities out to the relay connection and any WebRTC viewers.
type bridge struct {
	client *dvrip.Client

	mu         sync.Mutex
	monitoring bool
	viewers    map[*webrtcsink.Publisher]struct{}
}

func newBridge(client *dvrip.Client) *bridge {
	return &bridge{client: client, viewers: make(map[*webrtcsink.Publisher]struct{})}
}

// handleCommand executes a remote command received over the relay
// WebSocket and reports its outcome.
func (b *bridge) handleCommand(cmd wsrelay.Command) wsrelay.CommandResult {
	switch cmd.Type {
	case "ptz":
		return b.handlePTZ(cmd)
	case "snapshot":
		return b.handleSnapshot(cmd)
	default:
		return wsrelay.CommandResult{Status: "error", Error: fmt.Sprintf("unknown command type %q", cmd.Type)}
	}
}

func (b *bridge) handlePTZ(cmd wsrelay.Command) wsrelay.CommandResult {
	direction, _ := cmd.Payload["direction"].(string)
	channel := 0
	if v, ok := cmd.Payload["channel"].(float64); ok {
		channel = int(v)
	}
	speed := 4
	if v, ok := cmd.Payload["speed"].(float64); ok {
		speed = int(v)
	}

	dir, err := parsePTZDirection(direction)
	if err != nil {
		return wsrelay.CommandResult{Status: "error", Error: err.Error()}
	}
	if err := b.client.PTZStep(channel, dir, speed); err != nil {
		return wsrelay.CommandResult{Status: "error", Error: err.Error()}
	}
	return wsrelay.CommandResult{Status: "ok"}
}

func (b *bridge) handleSnapshot(cmd wsrelay.Command) wsrelay.CommandResult {
	channel := 0
	if v, ok := cmd.Payload["channel"].(float64); ok {
		channel = int(v)
	}
	data, err := b.client.Snapshot(channel)
	if err != nil {
		return wsrelay.CommandResult{Status: "error", Error: err.Error()}
	}
	return wsrelay.CommandResult{Status: "ok", Result: map[string]any{"bytesLen": len(data)}}
}

func parsePTZDirection(s string) (dvrip.PTZDirection, error) {
	switch s {
	case "up":
		return dvrip.PTZUp, nil
	case "down":
		return dvrip.PTZDown, nil
	case "left":
		return dvrip.PTZLeft, nil
	case "right":
		return dvrip.PTZRight, nil
	case "zoomin":
		return dvrip.PTZZoomIn, nil
	case "zoomout":
		return dvrip.PTZZoomOut, nil
	default:
		return "", fmt.Errorf("unknown ptz direction %q", s)
	}
}

// addViewer registers a WebRTC publisher and, if it is the first one,
// starts pulling live frames off the device to feed it and every
// subsequently-added viewer.
func (b *bridge) addViewer(pub *webrtcsink.Publisher) {
	b.mu.Lock()
	b.viewers[pub] = struct{}{}
	startMonitor := !b.monitoring
	if startMonitor {
		b.monitoring = true
	}
	b.mu.Unlock()

	if startMonitor {
		go b.runMonitor()
	}
}

func (b *bridge) removeViewer(pub *webrtcsink.Publisher) {
	b.mu.Lock()
	delete(b.viewers, pub)
	empty := len(b.viewers) == 0
	if empty {
		b.monitoring = false
	}
	b.mu.Unlock()

	if empty {
		b.client.StopMonitor()
	}
}

func (b *bridge) runMonitor() {
	err := b.client.StartMonitor(func(frame media.Frame) {
		b.mu.Lock()
		viewers := make([]*webrtcsink.Publisher, 0, len(b.viewers))
		for pub := range b.viewers {
			viewers = append(viewers, pub)
		}
		b.mu.Unlock()

		for _, pub := range viewers {
			if err := pub.WriteFrame(frame); err != nil {
				log.Warn("failed to write frame to viewer", "error", err)
			}
		}
	}, "Main")
	if err != nil {
		log.Warn("monitor stream ended", "error", err)
	}

	b.mu.Lock()
	b.monitoring = false
	b.mu.Unlock()
}
