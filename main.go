package main

import (
	"log"

	"github.com/google/gops/agent"

	"github.com/gar1t/groktest/cmd"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	// Start gops agent for runtime debugging.
	if err := agent.Listen(agent.Options{
		ShutdownCleanup: true,
	}); err != nil {
		log.Printf("failed to start gops agent: %v", err)
	}
	defer agent.Close()

	cmd.SetVersionInfo(version, commit, date)
	cmd.Execute()
}
