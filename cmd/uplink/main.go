package main

import (
	"os"

	log "github.com/sirupsen/logrus"
)

func main() {
	log.SetFormatter(&log.TextFormatter{
		ForceColors:   true,
		FullTimestamp: true,
	})

	if err := newRootCommand().Execute(); err != nil {
		log.WithError(err).Error("uplink failed")
		os.Exit(1)
	}
}
