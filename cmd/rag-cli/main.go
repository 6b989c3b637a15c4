// Package main provides the RAG engine command-line client.
package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
)

func main() {
	// A local .env can carry RAG_SERVER defaults; absence is fine.
	_ = godotenv.Load()

	if server := os.Getenv("RAG_SERVER"); server != "" {
		serverURL = server
	}

	if err := Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
