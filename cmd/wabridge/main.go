package main

import (
	"fmt"
	"os"

	"wabridge/pkg/config"
	"wabridge/pkg/logger"
)

const version = "0.1.0"

var globalConfigPathOverride string

func main() {
	globalConfigPathOverride = detectConfigPathFromArgs(os.Args)

	for _, arg := range os.Args {
		if arg == "--debug" || arg == "-d" {
			config.SetDebugMode(true)
			logger.SetLevel(logger.DEBUG)
			break
		}
	}

	os.Args = normalizeCLIArgs(os.Args)

	if len(os.Args) < 2 {
		printHelp()
		os.Exit(1)
	}

	switch command := os.Args[1]; command {
	case "serve":
		serveCmd()
	case "init":
		initCmd()
	case "status":
		statusCmd()
	case "version", "--version", "-v":
		fmt.Printf("wabridge v%s\n", version)
	default:
		fmt.Printf("Unknown command: %s\n", command)
		printHelp()
		os.Exit(1)
	}
}
