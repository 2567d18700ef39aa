package main

import (
	"fmt"
	"os"

	"github.com/clinvault/clinvault-backend/internal/platform/logger"
	"github.com/clinvault/clinvault-backend/internal/tools"
	"github.com/clinvault/clinvault-backend/internal/utils"
)

// Standalone tool server. The API talks to it when TOOL_SERVER_URL is
// set; with the variable unset tools run in-process and this binary is
// not needed.
func main() {
	logMode := os.Getenv("LOG_MODE")
	if logMode == "" {
		logMode = "development"
	}
	log, err := logger.New(logMode)
	if err != nil {
		fmt.Printf("Failed to init logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	registry := tools.NewRegistry(log,
		tools.NewCalculator(log),
		tools.NewPHIDetector(log),
	)
	server := tools.NewServer(registry, log)

	port := utils.GetEnv("TOOL_SERVER_PORT", "8001", log)
	fmt.Printf("Tool server listening on :%s\n", port)
	if err := server.Router().Run(":" + port); err != nil {
		log.Error("Tool server failed", "error", err)
		os.Exit(1)
	}
}
