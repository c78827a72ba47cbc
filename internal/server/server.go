package server

import (
	"errors"
	"net"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/Pablu23/Uplink/internal/common"
)

type Server struct {
	options   *Options
	logger    *log.Logger
	directory *Directory
	journal   *Journal
	sessions  *sessions

	mu       sync.Mutex
	listener net.Listener
	closed   bool
	wg       sync.WaitGroup
}

func New(opts ...func(*Options)) (*Server, error) {
	options := NewDefaultOptions()

	for _, opt := range opts {
		opt(options)
	}

	if options.Logger == nil {
		options.Logger = log.StandardLogger()
	}

	directory, err := OpenDirectory(options.Datapath)
	if err != nil {
		return nil, err
	}

	var journal *Journal
	if options.JournalPath != "" {
		journal, err = OpenJournal(options.JournalPath)
		if err != nil {
			return nil, err
		}
	}

	return &Server{
		options:   options,
		logger:    options.Logger,
		directory: directory,
		journal:   journal,
		sessions:  newSessions(),
	}, nil
}

// Listen binds the configured address. Serve calls it when needed.
func (server *Server) Listen() error {
	server.mu.Lock()
	defer server.mu.Unlock()

	if server.listener != nil {
		return nil
	}

	listener, err := net.Listen("tcp", server.options.Address)
	if err != nil {
		return err
	}
	server.listener = listener
	return nil
}

func (server *Server) Addr() net.Addr {
	server.mu.Lock()
	defer server.mu.Unlock()

	if server.listener == nil {
		return nil
	}
	return server.listener.Addr()
}

func (server *Server) Directory() *Directory {
	return server.directory
}

func (server *Server) Journal() *Journal {
	return server.journal
}

func (server *Server) ActiveSessions() int {
	return server.sessions.count()
}

// Serve accepts connections until Close is called, handling each one on its
// own goroutine.
func (server *Server) Serve() error {
	if err := server.Listen(); err != nil {
		return err
	}

	server.mu.Lock()
	listener := server.listener
	server.mu.Unlock()

	server.logger.WithFields(log.Fields{
		"Address":  listener.Addr().String(),
		"Datapath": server.directory.Root(),
	}).Info("Started listening")

	for {
		conn, err := listener.Accept()
		if err != nil {
			if server.isClosed() || errors.Is(err, net.ErrClosed) {
				return nil
			}
			server.logger.WithError(err).Warn("Could not accept TCP connection")
			continue
		}

		server.mu.Lock()
		if server.closed {
			server.mu.Unlock()
			_ = conn.Close()
			return nil
		}
		server.wg.Add(1)
		server.mu.Unlock()

		go server.handleConnection(conn)
	}
}

// Close stops accepting, severs every live connection and waits for the
// handlers to return.
func (server *Server) Close() error {
	server.mu.Lock()
	if server.closed {
		server.mu.Unlock()
		return nil
	}
	server.closed = true
	listener := server.listener
	server.mu.Unlock()

	var err error
	if listener != nil {
		err = listener.Close()
	}

	server.sessions.closeAll()
	server.wg.Wait()

	if jerr := server.journal.Close(); jerr != nil && err == nil {
		err = jerr
	}

	server.logger.Info("Server is shutting down")
	return err
}

func (server *Server) isClosed() bool {
	server.mu.Lock()
	defer server.mu.Unlock()
	return server.closed
}

func (server *Server) handleConnection(raw net.Conn) {
	defer server.wg.Done()

	started := time.Now()
	id, ok := server.sessions.add(raw)
	if !ok {
		_ = raw.Close()
		return
	}
	conn := common.NewCountingConn(raw)
	remote := raw.RemoteAddr().String()

	entry := server.logger.WithFields(log.Fields{
		"Session": id,
		"Remote":  remote,
	})
	entry.Info("Client connected")

	defer func() {
		err := raw.Close()
		if err != nil && !errors.Is(err, net.ErrClosed) {
			entry.WithError(err).Error("Could not close TCP connection")
		}
		server.sessions.remove(id)

		record := SessionRecord{
			Session:       uint32(id),
			Remote:        remote,
			BytesSent:     conn.BytesSent(),
			BytesReceived: conn.BytesReceived(),
			StartedAt:     started,
			EndedAt:       time.Now(),
		}
		if err := server.journal.RecordSession(&record); err != nil {
			entry.WithError(err).Error("Could not record session")
		}

		entry.WithFields(log.Fields{
			"Sent":     record.BytesSent,
			"Received": record.BytesReceived,
		}).Info("Connection closed")
	}()

	h := &handler{
		server: server,
		conn:   conn,
		r:      conn,
		id:     id,
		remote: remote,
		log:    entry,
	}
	if server.options.IdleTimeout > 0 {
		h.r = &idleReader{conn: conn, timeout: server.options.IdleTimeout}
	}

	h.serve()
}

// idleReader arms a fresh read deadline before every read.
type idleReader struct {
	conn    net.Conn
	timeout time.Duration
}

func (r *idleReader) Read(b []byte) (int, error) {
	if err := r.conn.SetReadDeadline(time.Now().Add(r.timeout)); err != nil {
		return 0, err
	}
	return r.conn.Read(b)
}
