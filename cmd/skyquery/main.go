package main

import (
	"os"

	log "github.com/sirupsen/logrus"
)

func main() {
	r := &runner{}
	if err := r.run(os.Args[1:]); err != nil {
		log.Fatal(err.Error())
	}
}
