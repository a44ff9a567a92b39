// Command pressedge runs the edge daemon: reverse proxy, certificate
// manager and container discovery for a WordPress stack.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
)

// Version information (set by build)
var (
	Version   = "dev"
	BuildTime = "unknown"
)

func main() {
	os.Exit(run())
}

func run() int {
	configPath := flag.String("config", "", "Path to config file")
	showVersion := flag.Bool("version", false, "Print version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Printf("pressedge %s (built %s)\n", Version, BuildTime)
		return ExitSuccess
	}

	cfg, err := LoadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "configuration error: %v\n", err)
		return ExitConfigError
	}

	logger := SetupLogger(cfg)
	logger.Info("starting pressedge",
		"version", Version,
		"config", *configPath,
	)

	server, err := NewServer(cfg, logger)
	if err != nil {
		if sErr, ok := err.(*ServerError); ok {
			logger.Error("failed to create server",
				"error", sErr.Err,
				"operation", sErr.Op,
			)
			return sErr.ExitCode
		}
		logger.Error("failed to create server", "error", err)
		return ExitConfigError
	}

	ctx := context.Background()
	if err := server.Start(ctx); err != nil {
		if sErr, ok := err.(*ServerError); ok {
			logger.Error("server error",
				"error", sErr.Err,
				"operation", sErr.Op,
			)
			return sErr.ExitCode
		}
		logger.Error("server error", "error", err)
		return ExitServerError
	}

	return ExitSuccess
}
