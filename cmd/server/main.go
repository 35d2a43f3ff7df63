package main

import (
	"log"

	"gatewatch/internal/app"
)

func main() {
	application, err := app.NewApp()
	if err != nil {
		log.Fatalf("Failed to initialize gatewatch: %v", err)
	}

	if err := application.Run(); err != nil {
		log.Fatalf("gatewatch exited: %v", err)
	}
}
