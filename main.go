package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/webflix/webflix/internal"
	"github.com/webflix/webflix/pkg/logger"
)

var log = logger.Get("Main")

// main is the entry point to the program. It loads the users Webflix
// configuration, constructs the server, and runs it until an interrupt
// is received.
func main() {
	configPath := flag.String("config", internal.DefaultConfigPath(), "path to the YAML configuration file")
	verbose := flag.Bool("verbose", false, "enable verbose logging")
	flag.Parse()

	if *verbose {
		logger.SetMinLoggingLevel(logger.VERBOSE.Level())
	}

	config := internal.WebflixConfig{}
	if err := config.LoadFromFile(*configPath); err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration from %s: %v\n", *configPath, err)
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := internal.New(config).Run(ctx); err != nil {
		log.Emit(logger.FATAL, "Webflix stopped with error: %v\n", err)
		os.Exit(1)
	}

	log.Emit(logger.STOP, "Webflix shutdown complete\n")
}
