package client

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/schollz/progressbar/v3"
	log "github.com/sirupsen/logrus"

	"github.com/Pablu23/Uplink/internal/common"
)

var (
	ErrRejected           = errors.New("rejected by server")
	ErrUnexpectedResponse = errors.New("unexpected response")
	ErrSessionClosed      = errors.New("session closed")
	ErrNotRegularFile     = errors.New("not a regular file")
)

// RejectedError carries the message of an ERROR response.
type RejectedError struct {
	Op      common.OpCode
	Message string
}

func (e *RejectedError) Error() string {
	return fmt.Sprintf("server rejected %v: %s", e.Op, e.Message)
}

func (e *RejectedError) Is(target error) bool {
	return target == ErrRejected
}

type Options struct {
	Logger *log.Logger
	// Progress receives an upload progress bar when set.
	Progress io.Writer
}

type Stats struct {
	Address       string
	BytesSent     int64
	BytesReceived int64
	Started       time.Time
	Ended         time.Time
}

type PutResult struct {
	Name   string
	Size   int64
	Digest string
	Reply  string
}

// Session drives one connection through LIST, PUT and QUIT exchanges. It is
// not safe for concurrent use.
type Session struct {
	conn    *common.CountingConn
	address string
	options *Options
	log     *log.Entry
	started time.Time
	ended   time.Time
	closed  bool
}

func Dial(ctx context.Context, address string, opts ...func(*Options)) (*Session, error) {
	var dialer net.Dialer
	conn, err := dialer.DialContext(ctx, "tcp", address)
	if err != nil {
		return nil, err
	}
	return NewSession(conn, opts...), nil
}

func NewSession(conn net.Conn, opts ...func(*Options)) *Session {
	options := &Options{Logger: log.StandardLogger()}
	for _, opt := range opts {
		opt(options)
	}
	if options.Logger == nil {
		options.Logger = log.StandardLogger()
	}

	address := conn.RemoteAddr().String()
	return &Session{
		conn:    common.NewCountingConn(conn),
		address: address,
		options: options,
		log:     options.Logger.WithField("Server", address),
		started: time.Now(),
	}
}

func (s *Session) Stats() Stats {
	return Stats{
		Address:       s.address,
		BytesSent:     s.conn.BytesSent(),
		BytesReceived: s.conn.BytesReceived(),
		Started:       s.started,
		Ended:         s.ended,
	}
}

func (s *Session) Closed() bool {
	return s.closed
}

// List returns the file names held by the server. An empty server yields an
// empty slice.
func (s *Session) List() ([]string, error) {
	if s.closed {
		return nil, ErrSessionClosed
	}

	if _, err := common.WriteFrame(s.conn, common.List, nil); err != nil {
		return nil, s.fail(err)
	}

	msg, err := s.receive()
	if err != nil {
		return nil, err
	}

	switch msg.Op {
	case common.Success:
		text := msg.Text()
		if text == "" || text == common.EmptyListing {
			return []string{}, nil
		}
		return strings.Split(text, "\n"), nil
	case common.Error:
		return nil, &RejectedError{Op: common.List, Message: msg.Text()}
	default:
		return nil, s.fail(fmt.Errorf("%w: %v to LIST", ErrUnexpectedResponse, msg.Op))
	}
}

// Put uploads the file at path under its base name. Local problems with the
// file are reported before anything is sent; a server rejection ends only
// this upload.
func (s *Session) Put(path string) (*PutResult, error) {
	if s.closed {
		return nil, ErrSessionClosed
	}

	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer func(file *os.File) {
		if err := file.Close(); err != nil {
			s.log.WithError(err).Error("Could not close file")
		}
	}(file)

	info, err := file.Stat()
	if err != nil {
		return nil, err
	}
	if !info.Mode().IsRegular() {
		return nil, fmt.Errorf("%w: %s", ErrNotRegularFile, path)
	}
	size := info.Size()
	if size > common.MaxPayloadLength {
		return nil, fmt.Errorf("%w: %s is %d bytes", common.ErrPayloadTooLarge, path, size)
	}

	name := filepath.Base(path)
	entry := s.log.WithFields(log.Fields{"File": name, "Size": size})

	if _, err := common.WriteFrame(s.conn, common.Put, []byte(name)); err != nil {
		return nil, s.fail(err)
	}

	msg, err := s.receive()
	if err != nil {
		return nil, err
	}
	switch msg.Op {
	case common.Success:
	case common.Error:
		entry.WithField("Reason", msg.Text()).Warn("Server refused upload")
		return nil, &RejectedError{Op: common.Put, Message: msg.Text()}
	default:
		return nil, s.fail(fmt.Errorf("%w: %v to PUT", ErrUnexpectedResponse, msg.Op))
	}

	if _, err := common.WriteLengthPrefix(s.conn, size); err != nil {
		return nil, s.fail(err)
	}

	digest := common.NewDigest()
	writers := []io.Writer{s.conn, digest}
	var bar *progressbar.ProgressBar
	if s.options.Progress != nil {
		bar = progressbar.NewOptions64(size,
			progressbar.OptionSetWriter(s.options.Progress),
			progressbar.OptionSetDescription(name),
			progressbar.OptionShowBytes(true),
			progressbar.OptionClearOnFinish(),
		)
		writers = append(writers, bar)
	}

	entry.Info("Sending file")
	if _, err := io.CopyN(io.MultiWriter(writers...), file, size); err != nil {
		// The server expects the declared byte count, the stream cannot recover.
		return nil, s.fail(fmt.Errorf("sending %s: %w", name, err))
	}
	if bar != nil {
		_ = bar.Finish()
	}

	msg, err = s.receive()
	if err != nil {
		return nil, err
	}
	switch msg.Op {
	case common.Success:
		result := &PutResult{
			Name:   name,
			Size:   size,
			Digest: common.DigestString(digest),
			Reply:  msg.Text(),
		}
		entry.WithField("Digest", result.Digest).Info("File sent")
		return result, nil
	case common.Error:
		return nil, &RejectedError{Op: common.Put, Message: msg.Text()}
	default:
		return nil, s.fail(fmt.Errorf("%w: %v after upload", ErrUnexpectedResponse, msg.Op))
	}
}

// Quit asks the server to end the session and closes the connection without
// waiting for a reply.
func (s *Session) Quit() error {
	if s.closed {
		return ErrSessionClosed
	}

	_, err := common.WriteFrame(s.conn, common.Quit, nil)
	if cerr := s.Close(); err == nil {
		err = cerr
	}
	return err
}

func (s *Session) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true
	s.ended = time.Now()

	err := s.conn.Close()
	if err != nil && errors.Is(err, net.ErrClosed) {
		return nil
	}
	return err
}

func (s *Session) receive() (*common.Message, error) {
	msg, err := common.ReadFrame(s.conn)
	if errors.Is(err, io.EOF) {
		return nil, s.fail(fmt.Errorf("%w: server closed the connection", common.ErrConnectionLost))
	}
	if err != nil {
		return nil, s.fail(err)
	}
	return msg, nil
}

// fail closes the session after a transport or decoding error.
func (s *Session) fail(err error) error {
	s.log.WithError(err).Error("Connection failed")
	_ = s.Close()
	return err
}
