package client

import (
	"errors"
	"fmt"
	"math/rand"
	"os"
	"path/filepath"
	"time"
)

// WriteReport stores a connection summary in dir and returns its path.
// Reports never overwrite each other.
func WriteReport(dir string, stats Stats) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}

	ended := stats.Ended
	if ended.IsZero() {
		ended = time.Now()
	}
	duration := ended.Sub(stats.Started).Seconds()

	var rate float64
	if duration > 0 {
		rate = float64(stats.BytesSent+stats.BytesReceived) / duration
	}

	content := fmt.Sprintf("--- Connection Report ---\n"+
		"Server: %s\n"+
		"Connection start: %s\n"+
		"Connection end:   %s\n"+
		"Duration (s): %.4f\n"+
		"Bytes sent:     %d\n"+
		"Bytes received: %d\n"+
		"Rate (bytes/s): %.2f\n",
		stats.Address,
		stats.Started.Format(time.ANSIC),
		ended.Format(time.ANSIC),
		duration,
		stats.BytesSent,
		stats.BytesReceived,
		rate,
	)

	timestamp := stats.Started.Format("20060102_150405")
	for {
		path := filepath.Join(dir, fmt.Sprintf("log_client_%s_%05d.txt", timestamp, 10000+rand.Intn(90000)))
		file, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
		if errors.Is(err, os.ErrExist) {
			continue
		}
		if err != nil {
			return "", err
		}

		_, err = file.WriteString(content)
		if cerr := file.Close(); err == nil {
			err = cerr
		}
		return path, err
	}
}
