package main

import (
	"log"

	"github.com/mohitraj1509/kishan-unati-project-sub000/internal/app"
)

func main() {
	if err := app.Run(); err != nil {
		log.Fatalf("order service failed: %v", err)
	}
}
