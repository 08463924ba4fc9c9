package logging

import (
	"bytes"
	"strings"
	"testing"
)

func TestInitJSONFormat(t *testing.T) {
	var buf bytes.Buffer
	Init("json", "debug", &buf)
	L("rpc").Info("hello", "k", "v")
	if !strings.Contains(buf.String(), `"k":"v"`) {
		t.Fatalf("expected json output to contain k:v, got %s", buf.String())
	}
	if !strings.Contains(buf.String(), `"component":"rpc"`) {
		t.Fatalf("expected component field, got %s", buf.String())
	}
}

func TestInitTextFormatDefault(t *testing.T) {
	var buf bytes.Buffer
	Init("", "info", &buf)
	L("media").Info("assembled frame")
	if !strings.Contains(buf.String(), "component=media") {
		t.Fatalf("expected text output to contain component=media, got %s", buf.String())
	}
}

func TestLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	Init("text", "warn", &buf)
	L("session").Info("should not appear")
	if buf.Len() != 0 {
		t.Fatalf("expected info log suppressed at warn level, got %s", buf.String())
	}
	L("session").Warn("should appear")
	if buf.Len() == 0 {
		t.Fatal("expected warn log to be emitted")
	}
}
