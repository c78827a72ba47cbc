package client

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strings"
)

const prompt = "uplink> "

// RunInteractive reads list, put <path> and quit commands from in until quit,
// end of input or a broken connection. Results are written to out.
func RunInteractive(session *Session, in io.Reader, out io.Writer) error {
	fmt.Fprintln(out, "Connected! Type 'list', 'put <file>' or 'quit'.")

	scanner := bufio.NewScanner(in)
	for {
		fmt.Fprint(out, prompt)
		if !scanner.Scan() {
			if err := scanner.Err(); err != nil {
				_ = session.Close()
				return err
			}
			fmt.Fprintln(out)
			return session.Quit()
		}

		fields := strings.Fields(scanner.Text())
		if len(fields) == 0 {
			continue
		}

		switch strings.ToLower(fields[0]) {
		case "list":
			names, err := session.List()
			if err != nil {
				report(out, err)
				if session.Closed() {
					return err
				}
				continue
			}
			fmt.Fprintln(out, "--- Files on server ---")
			if len(names) == 0 {
				fmt.Fprintln(out, "(none)")
			}
			for _, name := range names {
				fmt.Fprintln(out, name)
			}
		case "put":
			if len(fields) != 2 {
				fmt.Fprintln(out, "Usage: put <file>")
				continue
			}
			result, err := session.Put(fields[1])
			if err != nil {
				report(out, err)
				if session.Closed() {
					return err
				}
				continue
			}
			fmt.Fprintln(out, result.Reply)
		case "quit":
			return session.Quit()
		default:
			fmt.Fprintf(out, "Unknown command: '%s'\n", fields[0])
		}
	}
}

// RunAutomatic uploads a single file and ends the session.
func RunAutomatic(session *Session, path string, out io.Writer) error {
	result, err := session.Put(path)
	if err != nil {
		report(out, err)
		if session.Closed() {
			return err
		}
		if qerr := session.Quit(); qerr != nil {
			return errors.Join(err, qerr)
		}
		return err
	}

	fmt.Fprintln(out, result.Reply)
	return session.Quit()
}

func report(out io.Writer, err error) {
	var rejected *RejectedError
	if errors.As(err, &rejected) {
		fmt.Fprintf(out, "Server refused %v: %s\n", rejected.Op, rejected.Message)
		return
	}
	fmt.Fprintf(out, "ERROR: %v\n", err)
}
