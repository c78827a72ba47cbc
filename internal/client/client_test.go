package client

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"

	"github.com/Pablu23/Uplink/internal/common"
	"github.com/Pablu23/Uplink/internal/server"
)

func quietLogger() *log.Logger {
	logger := log.New()
	logger.SetOutput(io.Discard)
	return logger
}

func startServer(t *testing.T) *server.Server {
	t.Helper()

	srv, err := server.New(func(o *server.Options) {
		o.Address = "127.0.0.1:0"
		o.Datapath = t.TempDir()
		o.Logger = quietLogger()
	})
	require.NoError(t, err)
	require.NoError(t, srv.Listen())

	done := make(chan error, 1)
	go func() {
		done <- srv.Serve()
	}()
	t.Cleanup(func() {
		require.NoError(t, srv.Close())
		require.NoError(t, <-done)
	})
	return srv
}

func dial(t *testing.T, srv *server.Server, opts ...func(*Options)) *Session {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	opts = append([]func(*Options){func(o *Options) { o.Logger = quietLogger() }}, opts...)
	session, err := Dial(ctx, srv.Addr().String(), opts...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = session.Close() })
	return session
}

func writeFile(t *testing.T, name string, data []byte) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, data, 0o644))
	return path
}

func TestSessionListAndPut(t *testing.T) {
	srv := startServer(t)
	session := dial(t, srv)

	names, err := session.List()
	require.NoError(t, err)
	require.Empty(t, names)

	data := []byte("some file content")
	result, err := session.Put(writeFile(t, "doc.txt", data))
	require.NoError(t, err)
	require.Equal(t, "doc.txt", result.Name)
	require.EqualValues(t, len(data), result.Size)
	require.Equal(t, common.DigestOf(data), result.Digest)
	require.Contains(t, result.Reply, result.Digest)

	names, err = session.List()
	require.NoError(t, err)
	require.Equal(t, []string{"doc.txt"}, names)

	stored, err := os.ReadFile(filepath.Join(srv.Directory().Root(), "doc.txt"))
	require.NoError(t, err)
	require.Equal(t, data, stored)
}

func TestSessionPutRejected(t *testing.T) {
	srv := startServer(t)
	session := dial(t, srv)

	path := writeFile(t, "dup.txt", []byte("one"))
	_, err := session.Put(path)
	require.NoError(t, err)

	_, err = session.Put(path)
	require.ErrorIs(t, err, ErrRejected)

	var rejected *RejectedError
	require.True(t, errors.As(err, &rejected))
	require.Equal(t, common.Put, rejected.Op)
	require.Equal(t, `file "dup.txt" already exists`, rejected.Message)
	require.False(t, session.Closed())

	names, err := session.List()
	require.NoError(t, err)
	require.Equal(t, []string{"dup.txt"}, names)
}

func TestSessionPutMissingFileSendsNothing(t *testing.T) {
	srv := startServer(t)
	session := dial(t, srv)

	before := session.Stats().BytesSent
	_, err := session.Put(filepath.Join(t.TempDir(), "missing.txt"))
	require.ErrorIs(t, err, os.ErrNotExist)
	require.Equal(t, before, session.Stats().BytesSent)
	require.False(t, session.Closed())

	_, err = session.Put(t.TempDir())
	require.ErrorIs(t, err, ErrNotRegularFile)
	require.Equal(t, before, session.Stats().BytesSent)
}

func TestSessionProgress(t *testing.T) {
	srv := startServer(t)

	var progress bytes.Buffer
	session := dial(t, srv, func(o *Options) { o.Progress = &progress })

	data := bytes.Repeat([]byte("x"), 50000)
	_, err := session.Put(writeFile(t, "big.bin", data))
	require.NoError(t, err)
	require.NotZero(t, progress.Len())
}

func TestSessionStats(t *testing.T) {
	srv := startServer(t)
	session := dial(t, srv)

	data := []byte("0123456789")
	_, err := session.Put(writeFile(t, "ten.txt", data))
	require.NoError(t, err)

	stats := session.Stats()
	// PUT frame + length prefix + file bytes
	require.EqualValues(t, common.HeaderSize+len("ten.txt")+common.HeaderSize+len(data), stats.BytesSent)
	require.Positive(t, stats.BytesReceived)
	require.Equal(t, srv.Addr().String(), stats.Address)
	require.True(t, stats.Ended.IsZero())

	require.NoError(t, session.Quit())
	require.False(t, session.Stats().Ended.IsZero())
}

func TestSessionClosedAfterQuit(t *testing.T) {
	srv := startServer(t)
	session := dial(t, srv)

	require.NoError(t, session.Quit())
	require.True(t, session.Closed())

	_, err := session.List()
	require.ErrorIs(t, err, ErrSessionClosed)
	_, err = session.Put("anything")
	require.ErrorIs(t, err, ErrSessionClosed)
	require.ErrorIs(t, session.Quit(), ErrSessionClosed)
	require.NoError(t, session.Close())
}

func TestSessionServerGone(t *testing.T) {
	srv := startServer(t)
	session := dial(t, srv)

	require.Eventually(t, func() bool {
		return srv.ActiveSessions() == 1
	}, 5*time.Second, 10*time.Millisecond)
	require.NoError(t, srv.Close())

	_, err := session.List()
	require.Error(t, err)
	require.True(t, session.Closed())
}
