package main

import (
	"log"

	"github.com/Godswillconcept/markethub-sub002/cmd/internal/app"
)

func main() {
	if err := app.Run(); err != nil {
		log.Fatal(err)
	}
}
