package media

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/openipc/dvrip-go/internal/framer"
)

// ChunkReader is the minimal contract a download needs: read one frame
// header, then an arbitrarily sized payload of exactly that length.
type ChunkReader interface {
	ReadHeader() (framer.Header, error)
	ReadPayload(n uint32) ([]byte, error)
}

// DownloadToFile streams a file transfer to destPath: firstChunk holds the
// bytes that immediately follow the DownloadStart reply header (already
// read by the caller), then the device sends further 20-byte-headered
// chunks until a zero-length chunk signals end of file. On any read or
// write error the partially written file is deleted and the error is
// returned wrapped with context.
func DownloadToFile(r ChunkReader, firstChunk []byte, destPath string) (err error) {
	if err := os.MkdirAll(filepath.Dir(destPath), 0o755); err != nil {
		return fmt.Errorf("media: create destination directory: %w", err)
	}

	f, err := os.Create(destPath)
	if err != nil {
		return fmt.Errorf("media: create destination file: %w", err)
	}
	defer func() {
		f.Close()
		if err != nil {
			if removeErr := os.Remove(destPath); removeErr != nil {
				err = fmt.Errorf("%w (cleanup also failed: %v)", err, removeErr)
			}
		}
	}()

	if len(firstChunk) > 0 {
		if _, err = f.Write(firstChunk); err != nil {
			return fmt.Errorf("media: write first chunk: %w", err)
		}
	}

	for {
		hdr, readErr := r.ReadHeader()
		if readErr != nil {
			err = fmt.Errorf("media: read chunk header: %w", readErr)
			return err
		}
		if hdr.PayloadLength == 0 {
			return nil
		}
		chunk, readErr := r.ReadPayload(hdr.PayloadLength)
		if readErr != nil {
			err = fmt.Errorf("media: read chunk payload: %w", readErr)
			return err
		}
		if _, err = f.Write(chunk); err != nil {
			return fmt.Errorf("media: write chunk: %w", err)
		}
	}
}
