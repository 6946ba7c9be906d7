package main

import (
	"os"

	log "github.com/sirupsen/logrus"
)

func main() {
	if err := Entrypoint().Run(os.Args); err != nil {
		log.WithField("error", err).Fatal("blair failed")
	}
}
