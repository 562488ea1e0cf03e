package main

import (
	"log"

	"github.com/AtRiskMedia/pagecontent-go/internal/application/startup"
)

func main() {
	if err := startup.Initialize(); err != nil {
		log.Fatalf("Startup failed: %v", err)
	}
}
