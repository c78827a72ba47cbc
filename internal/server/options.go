package server

import (
	"time"

	log "github.com/sirupsen/logrus"
)

type Options struct {
	Address     string
	Datapath    string
	JournalPath string
	// IdleTimeout bounds every single read from a client. Zero means reads
	// block until the peer sends data or closes the connection.
	IdleTimeout time.Duration
	Logger      *log.Logger
}

func NewDefaultOptions() *Options {
	return &Options{
		Address:     "0.0.0.0:23456",
		Datapath:    "./ServerFiles/",
		JournalPath: "",
		IdleTimeout: 0,
		Logger:      log.StandardLogger(),
	}
}
