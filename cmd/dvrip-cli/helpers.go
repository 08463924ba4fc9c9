package main

import (
	"context"

	"github.com/openipc/dvrip-go/internal/transport"
)

func cmdContext() context.Context {
	return context.Background()
}

func networkFromString(s string) transport.Network {
	if s == "udp" {
		return transport.UDP
	}
	return transport.TCP
}
