package server

import (
	"errors"
	"fmt"
	"io"
	"strings"

	log "github.com/sirupsen/logrus"

	"github.com/Pablu23/Uplink/internal/common"
)

// handler services exactly one client connection.
type handler struct {
	server *Server
	conn   *common.CountingConn
	r      io.Reader
	id     SessionID
	remote string
	log    *log.Entry
}

func (h *handler) serve() {
	for {
		msg, err := common.ReadFrameLimit(h.r, common.MaxRequestLength)
		if errors.Is(err, io.EOF) {
			h.log.Info("Client closed connection")
			return
		}
		if err != nil {
			h.log.WithError(err).Warn("Could not read frame")
			return
		}

		switch msg.Op {
		case common.List:
			err = h.handleList()
		case common.Put:
			err = h.handlePut(msg.Text())
		case common.Quit:
			h.log.Info("[QUIT] Closing connection")
			return
		default:
			h.log.WithField("OpCode", msg.Op).Warn("Unexpected opcode from client")
			return
		}

		if err != nil {
			h.log.WithError(err).Warn("Terminating connection")
			return
		}
	}
}

func (h *handler) send(op common.OpCode, text string) error {
	_, err := common.WriteFrame(h.conn, op, []byte(text))
	return err
}

func (h *handler) handleList() error {
	h.log.Info("[LIST] Request")

	names, err := h.server.directory.List()
	if err != nil {
		h.log.WithError(err).Error("Unable to list storage root")
		return h.send(common.Error, fmt.Sprintf("could not list files: %v", err))
	}

	if len(names) == 0 {
		return h.send(common.Success, common.EmptyListing)
	}
	return h.send(common.Success, strings.Join(names, "\n"))
}

func (h *handler) handlePut(requested string) error {
	name := BaseName(requested)
	entry := h.log.WithField("File", name)
	entry.Info("[PUT] Request")

	var ackErr error
	file, err := h.server.directory.Create(requested, func() error {
		ackErr = h.send(common.Success, "")
		return ackErr
	})
	if ackErr != nil {
		return ackErr
	}
	if err != nil {
		switch {
		case errors.Is(err, ErrFileExists):
			entry.Warn("File already exists")
			return h.send(common.Error, fmt.Sprintf("file %q already exists", name))
		case errors.Is(err, ErrInvalidName):
			entry.Warn("Invalid file name")
			return h.send(common.Error, fmt.Sprintf("invalid file name %q", requested))
		default:
			entry.WithError(err).Error("Unable to create file")
			return h.send(common.Error, fmt.Sprintf("could not create file %q: %v", name, err))
		}
	}

	prefix, err := common.ReadLengthPrefix(h.r)
	if err != nil {
		h.closeFile(file, entry)
		h.recordTransfer(name, 0, 0, "", false)
		entry.Warn("Connection lost before upload size, empty file left")
		if errors.Is(err, io.EOF) {
			return fmt.Errorf("%w: no upload size for %q", common.ErrConnectionLost, name)
		}
		return err
	}

	size := int64(prefix.Length)
	entry = entry.WithField("Size", size)

	digest := common.NewDigest()
	received, writeErr, readErr := receive(h.r, file, digest, size)
	if cerr := file.Close(); cerr != nil && writeErr == nil {
		writeErr = cerr
	}

	if readErr != nil {
		h.recordTransfer(name, size, received, "", false)
		entry.WithField("Received", received).Warn("Connection lost during upload, partial file left")
		return readErr
	}

	if writeErr != nil {
		h.recordTransfer(name, size, received, "", false)
		entry.WithError(writeErr).Error("Unable to write file")
		return h.send(common.Error, fmt.Sprintf("could not store file %q: %v", name, writeErr))
	}

	sum := common.DigestString(digest)
	h.recordTransfer(name, size, received, sum, true)

	return h.server.directory.Locked(func() error {
		entry.WithField("Digest", sum).Info("[PUT] File received")
		return h.send(common.Success, fmt.Sprintf("file %q received (%d bytes, blake2b-256 %s)", name, size, sum))
	})
}

// receive copies exactly size bytes from r. A failing destination does not
// stop the copy, the remaining bytes are drained so the stream stays framed.
func receive(r io.Reader, dst io.Writer, digest io.Writer, size int64) (received int64, writeErr error, readErr error) {
	buf := make([]byte, common.ChunkSize)

	for received < size {
		chunk := buf[:min(int64(len(buf)), size-received)]
		n, err := r.Read(chunk)
		if n > 0 {
			if writeErr == nil {
				if _, werr := dst.Write(chunk[:n]); werr != nil {
					writeErr = werr
				} else {
					_, _ = digest.Write(chunk[:n])
				}
			}
			received += int64(n)
		}

		if err != nil && received < size {
			if errors.Is(err, io.EOF) {
				return received, writeErr, fmt.Errorf("%w: received %d of %d bytes", common.ErrConnectionLost, received, size)
			}
			return received, writeErr, fmt.Errorf("%w: received %d of %d bytes: %w", common.ErrConnectionLost, received, size, err)
		}
	}

	return received, writeErr, nil
}

func (h *handler) closeFile(file io.Closer, entry *log.Entry) {
	if err := file.Close(); err != nil {
		entry.WithError(err).Error("Could not close file")
	}
}

func (h *handler) recordTransfer(name string, size int64, received int64, digest string, complete bool) {
	record := TransferRecord{
		Session:  uint32(h.id),
		Remote:   h.remote,
		Name:     name,
		Size:     size,
		Received: received,
		Digest:   digest,
		Complete: complete,
	}
	if err := h.server.journal.RecordTransfer(&record); err != nil {
		h.log.WithError(err).Error("Could not record transfer")
	}
}
