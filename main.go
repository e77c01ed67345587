// Command btcrl trains reinforcement learning agents to trade on a
// simulated Bitcoin market and records every training episode.
package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
)

func main() {
	// A missing .env file is fine, the process environment is used
	_ = godotenv.Load()

	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "btcrl:", err)
		os.Exit(1)
	}
}
