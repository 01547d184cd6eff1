package main

import (
	"log"

	"github.com/scrumdeck/taskmail/cmd/taskmailctl/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		log.Fatal(err)
	}
}
