package client

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRunInteractive(t *testing.T) {
	srv := startServer(t)
	session := dial(t, srv)

	path := writeFile(t, "shell.txt", []byte("from the shell"))
	script := strings.Join([]string{
		"list",
		"",
		"put",
		"put " + path,
		"PUT " + path,
		"bogus",
		"list",
		"quit",
		"list",
	}, "\n")

	var out bytes.Buffer
	require.NoError(t, RunInteractive(session, strings.NewReader(script), &out))
	require.True(t, session.Closed())

	output := out.String()
	require.Contains(t, output, "(none)")
	require.Contains(t, output, "Usage: put <file>")
	require.Contains(t, output, `file "shell.txt" received (14 bytes, blake2b-256 `)
	require.Contains(t, output, `Server refused PUT: file "shell.txt" already exists`)
	require.Contains(t, output, "Unknown command: 'bogus'")
	require.Contains(t, output, "--- Files on server ---\nshell.txt\n")

	// the trailing list after quit is never read
	require.Equal(t, 2, strings.Count(output, "--- Files on server ---"))
}

func TestRunInteractiveEndOfInputQuits(t *testing.T) {
	srv := startServer(t)
	session := dial(t, srv)

	var out bytes.Buffer
	require.NoError(t, RunInteractive(session, strings.NewReader("list\n"), &out))
	require.True(t, session.Closed())
}

func TestRunInteractiveMissingFile(t *testing.T) {
	srv := startServer(t)
	session := dial(t, srv)

	var out bytes.Buffer
	script := "put " + filepath.Join(t.TempDir(), "nope.txt") + "\nlist\nquit\n"
	require.NoError(t, RunInteractive(session, strings.NewReader(script), &out))
	require.Contains(t, out.String(), "ERROR: ")
	require.Contains(t, out.String(), "(none)")
}

func TestRunAutomatic(t *testing.T) {
	srv := startServer(t)
	session := dial(t, srv)

	data := []byte("automatic upload")
	var out bytes.Buffer
	require.NoError(t, RunAutomatic(session, writeFile(t, "auto.txt", data), &out))
	require.True(t, session.Closed())
	require.Contains(t, out.String(), `file "auto.txt" received`)

	stored, err := os.ReadFile(filepath.Join(srv.Directory().Root(), "auto.txt"))
	require.NoError(t, err)
	require.Equal(t, data, stored)
}

func TestRunAutomaticRejected(t *testing.T) {
	srv := startServer(t)
	require.NoError(t, os.WriteFile(filepath.Join(srv.Directory().Root(), "taken.txt"), []byte("old"), 0o644))
	session := dial(t, srv)

	var out bytes.Buffer
	err := RunAutomatic(session, writeFile(t, "taken.txt", []byte("new")), &out)
	require.ErrorIs(t, err, ErrRejected)
	require.True(t, session.Closed())
	require.Contains(t, out.String(), "Server refused PUT")
}
