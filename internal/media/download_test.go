package media

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/openipc/dvrip-go/internal/framer"
)

type chunkScript struct {
	headers  []framer.Header
	payloads [][]byte
	idx      int
	failAt   int
}

func (c *chunkScript) ReadHeader() (framer.Header, error) {
	if c.failAt >= 0 && c.idx == c.failAt {
		return framer.Header{}, errors.New("boom")
	}
	h := c.headers[c.idx]
	return h, nil
}

func (c *chunkScript) ReadPayload(n uint32) ([]byte, error) {
	p := c.payloads[c.idx]
	c.idx++
	return p, nil
}

func TestDownloadToFileConcatenatesChunksUntilZero(t *testing.T) {
	dir := t.TempDir()
	dest := filepath.Join(dir, "out.mp4")

	script := &chunkScript{
		headers: []framer.Header{
			{PayloadLength: 3},
			{PayloadLength: 0},
		},
		payloads: [][]byte{[]byte("def"), nil},
		failAt:   -1,
	}

	if err := DownloadToFile(script, []byte("abc"), dest); err != nil {
		t.Fatal(err)
	}

	got, err := os.ReadFile(dest)
	if err != nil {
		t.Fatal(err)
	}
	if string(got) != "abcdef" {
		t.Fatalf("got %q, want %q", got, "abcdef")
	}
}

func TestDownloadToFileRemovesPartialOnError(t *testing.T) {
	dir := t.TempDir()
	dest := filepath.Join(dir, "out.mp4")

	script := &chunkScript{
		headers: []framer.Header{{PayloadLength: 3}},
		payloads: [][]byte{[]byte("def")},
		failAt:   1,
	}

	err := DownloadToFile(script, []byte("abc"), dest)
	if err == nil {
		t.Fatal("expected error")
	}
	if _, statErr := os.Stat(dest); !os.IsNotExist(statErr) {
		t.Fatal("expected partial download file to be removed")
	}
}

func TestDownloadToFileCreatesParentDirs(t *testing.T) {
	dir := t.TempDir()
	dest := filepath.Join(dir, "nested", "deep", "out.mp4")

	script := &chunkScript{
		headers:  []framer.Header{{PayloadLength: 0}},
		payloads: [][]byte{nil},
		failAt:   -1,
	}

	if err := DownloadToFile(script, nil, dest); err != nil {
		t.Fatal(err)
	}
	if _, err := os.Stat(dest); err != nil {
		t.Fatalf("expected file to exist: %v", err)
	}
}
