package server

import (
	"bytes"
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/Pablu23/Uplink/internal/common"
)

var errDiskFull = errors.New("disk full")

// failingWriter accepts the first write and fails every later one.
type failingWriter struct {
	written bytes.Buffer
	writes  int
}

func (w *failingWriter) Write(b []byte) (int, error) {
	w.writes++
	if w.writes > 1 {
		return 0, errDiskFull
	}
	return w.written.Write(b)
}

func TestReceive(t *testing.T) {
	data := testPayload(3*common.ChunkSize + 7)

	var file bytes.Buffer
	digest := common.NewDigest()
	received, writeErr, readErr := receive(bytes.NewReader(data), &file, digest, int64(len(data)))
	if writeErr != nil || readErr != nil {
		t.Fatalf("receive() errors = %v, %v", writeErr, readErr)
	}
	if received != int64(len(data)) {
		t.Errorf("received = %d, want %d", received, len(data))
	}
	if !cmp.Equal(data, file.Bytes()) {
		t.Error("stored bytes differ from sent bytes")
	}
	if got, want := common.DigestString(digest), common.DigestOf(data); got != want {
		t.Errorf("digest = %s, want %s", got, want)
	}
}

func TestReceiveDrainsAfterWriteFailure(t *testing.T) {
	data := testPayload(3*common.ChunkSize + 7)

	var stream bytes.Buffer
	stream.Write(data)
	next, err := (&common.Message{Op: common.List}).ToBytes()
	if err != nil {
		t.Fatal(err)
	}
	stream.Write(next)

	var file failingWriter
	received, writeErr, readErr := receive(&stream, &file, common.NewDigest(), int64(len(data)))

	if received != int64(len(data)) {
		t.Errorf("received = %d, want %d", received, len(data))
	}
	if !errors.Is(writeErr, errDiskFull) {
		t.Errorf("writeErr = %v, want %v", writeErr, errDiskFull)
	}
	if readErr != nil {
		t.Errorf("readErr = %v, want nil", readErr)
	}
	if file.written.Len() != common.ChunkSize {
		t.Errorf("file holds %d bytes, want %d", file.written.Len(), common.ChunkSize)
	}

	// the following frame is still intact
	if !cmp.Equal(next, stream.Bytes()) {
		t.Errorf("left in stream %v, want %v", stream.Bytes(), next)
	}
}

func TestReceiveConnectionLost(t *testing.T) {
	data := testPayload(100)

	var file bytes.Buffer
	received, writeErr, readErr := receive(bytes.NewReader(data[:40]), &file, common.NewDigest(), int64(len(data)))
	if writeErr != nil {
		t.Errorf("writeErr = %v, want nil", writeErr)
	}
	if !errors.Is(readErr, common.ErrConnectionLost) {
		t.Errorf("readErr = %v, want ErrConnectionLost", readErr)
	}
	if received != 40 || file.Len() != 40 {
		t.Errorf("received %d bytes, stored %d, want 40", received, file.Len())
	}
}
