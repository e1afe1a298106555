// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package main

import (
	"context"
	"log"
	"os"

	"github.com/urfave/cli/v3"

	"codeberg.org/oliverandrich/player-accounts/internal/config"
	"codeberg.org/oliverandrich/player-accounts/internal/server"
)

// Version information (set via ldflags during build)
var Version = "dev"

func main() {
	cmd := &cli.Command{
		Name:    "player-accounts",
		Usage:   "Player accounts service",
		Version: Version,
		Flags:   config.Flags(),
		Action:  server.Run,
	}

	if err := cmd.Run(context.Background(), os.Args); err != nil {
		log.Fatal(err)
	}
}
