package main

import (
	"rirstats/internal/app"

	"github.com/charmbracelet/log"
)

func main() {
	if err := app.Run(); err != nil {
		log.Fatal("rirstats terminated", "error", err)
	}
}
