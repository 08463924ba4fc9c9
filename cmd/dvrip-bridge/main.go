// Command dvrip-bridge runs as a long-lived process next to a camera: it
// keeps one DVRIP session open, relays alarms and remote PTZ/snapshot
// commands over a WebSocket to a relay server, and serves WebRTC live
// video to browsers over local HTTP signaling.
package main

import (
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/openipc/dvrip-go/internal/config"
	"github.com/openipc/dvrip-go/internal/logging"
	"github.com/openipc/dvrip-go/internal/transport"
	"github.com/openipc/dvrip-go/internal/wsrelay"
	"github.com/openipc/dvrip-go/pkg/dvrip"
)

var log = logging.L("bridge")

func main() {
	cfgFile := flag.String("config", "", "config file (default is dvrip.yaml in /etc/dvrip or cwd)")
	listenAddr := flag.String("listen", ":8089", "address to serve WebRTC signaling on")
	deviceID := flag.String("device-id", "", "device identifier reported to the relay server")
	authToken := flag.String("auth-token", "", "bearer token for the relay server")
	flag.Parse()

	cfg, err := config.Load(*cfgFile)
	if err != nil {
		fmt.Fprintln(os.Stderr, "load config:", err)
		os.Exit(1)
	}
	logging.Init(cfg.LogFormat, cfg.LogLevel, nil)

	client, err := dvrip.New(dvrip.Config{
		Address:        cfg.DeviceAddress,
		User:           cfg.DeviceUser,
		Password:       cfg.DevicePassword,
		Network:        networkFromString(cfg.Network),
		Iface:          cfg.Interface,
		ConnectTimeout: time.Duration(cfg.ConnectTimeoutSeconds) * time.Second,
		RequestTimeout: time.Duration(cfg.RequestTimeoutSeconds) * time.Second,
	})
	if err != nil {
		log.Error("connect failed", "error", err)
		os.Exit(1)
	}
	defer client.Close()

	if err := client.Login(); err != nil {
		log.Error("login failed", "error", err)
		os.Exit(1)
	}
	log.Info("connected to device", "address", cfg.DeviceAddress)

	bridge := newBridge(client)

	var relay *wsrelay.Client
	if cfg.BridgeWebSocketAddr != "" {
		relay = wsrelay.New(&wsrelay.Config{
			ServerURL: cfg.BridgeWebSocketAddr,
			DeviceID:  *deviceID,
			AuthToken: *authToken,
		}, bridge.handleCommand)
		go relay.Start()
		defer relay.Stop()

		if err := client.StartAlarm(func(body map[string]any, sequence uint32) {
			if err := relay.SendAlarm(body); err != nil {
				log.Warn("failed to relay alarm", "error", err)
			}
		}); err != nil {
			log.Warn("alarm listener failed to start", "error", err)
		}
		defer client.StopAlarm()
	}

	var httpServer *signalingServer
	if cfg.BridgeWebRTCEnabled {
		httpServer = newSignalingServer(bridge)
		go func() {
			if err := httpServer.ListenAndServe(*listenAddr); err != nil {
				log.Error("signaling server stopped", "error", err)
			}
		}()
		log.Info("serving WebRTC signaling", "addr", *listenAddr)
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh
	log.Info("shutting down")
}

func networkFromString(s string) transport.Network {
	if s == "udp" {
		return transport.UDP
	}
	return transport.TCP
}
