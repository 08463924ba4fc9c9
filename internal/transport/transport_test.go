package transport

import (
	"net"
	"testing"
	"time"
)

func TestDialSendRecvExact(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	defer ln.Close()

	serverDone := make(chan struct{})
	go func() {
		defer close(serverDone)
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		buf := make([]byte, 5)
		if _, err := conn.Read(buf); err != nil {
			return
		}
		conn.Write([]byte("world"))
	}()

	c, err := Dial(TCP, ln.Addr().String(), time.Second, "")
	if err != nil {
		t.Fatal(err)
	}
	defer c.Close()

	if err := c.Send([]byte("hello")); err != nil {
		t.Fatal(err)
	}

	got, err := c.RecvExact(5)
	if err != nil {
		t.Fatal(err)
	}
	if string(got) != "world" {
		t.Fatalf("got %q, want %q", got, "world")
	}
	<-serverDone
}

func TestRecvExactTimesOut(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	defer ln.Close()

	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		time.Sleep(200 * time.Millisecond)
	}()

	c, err := Dial(TCP, ln.Addr().String(), 50*time.Millisecond, "")
	if err != nil {
		t.Fatal(err)
	}
	defer c.Close()

	if _, err := c.RecvExact(20); err == nil {
		t.Fatal("expected timeout error")
	}
}

func TestCloseIsIdempotent(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	defer ln.Close()
	go func() {
		conn, err := ln.Accept()
		if err == nil {
			conn.Close()
		}
	}()

	c, err := Dial(TCP, ln.Addr().String(), time.Second, "")
	if err != nil {
		t.Fatal(err)
	}
	if err := c.Close(); err != nil {
		t.Fatal(err)
	}
	if err := c.Close(); err != nil {
		t.Fatalf("second close should be a no-op, got %v", err)
	}
}
