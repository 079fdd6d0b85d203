package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/appetiteclub/apt"
	"github.com/grafnet-dev/kitchenscreens/services/kitchen/cmd/utils/internal/commands"
	"github.com/joho/godotenv"
)

const (
	appName    = "kitchenscreens-utils"
	appVersion = "0.1.0"
)

type command struct {
	needsBus bool
	run      func(ctx context.Context, rt *commands.Runtime, args []string) error
}

var registry = map[string]command{
	"seed-demo": {
		run: func(ctx context.Context, rt *commands.Runtime, args []string) error {
			return commands.SeedDemo(ctx, rt, os.Stdout)
		},
	},
	"reconcile": {
		needsBus: true,
		run: func(ctx context.Context, rt *commands.Runtime, args []string) error {
			return commands.Reconcile(ctx, rt, args, os.Stdout)
		},
	},
	"trigger": {
		needsBus: true,
		run: func(ctx context.Context, rt *commands.Runtime, args []string) error {
			return commands.Trigger(ctx, rt, args, os.Stdout)
		},
	},
	"coverage": {
		run: func(ctx context.Context, rt *commands.Runtime, args []string) error {
			return commands.Coverage(ctx, rt, args, os.Stdout)
		},
	},
	"status": {
		run: func(ctx context.Context, rt *commands.Runtime, args []string) error {
			return commands.Status(ctx, rt, args, os.Stdout)
		},
	},
}

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	name := os.Args[1]
	switch name {
	case "version":
		fmt.Printf("%s version %s\n", appName, appVersion)
		return
	case "help", "-h", "--help":
		printUsage()
		return
	}

	cmd, ok := registry[name]
	if !ok {
		fmt.Printf("Unknown command: %s\n\n", name)
		printUsage()
		os.Exit(1)
	}

	_ = godotenv.Load()

	config, err := commands.Config()
	if err != nil {
		log.Fatalf("Cannot load config: %v", err)
	}

	logLevel := config.GetStringOrDef("log.level", "info")
	logger := apt.NewLogger(logLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rt, err := commands.Open(ctx, config, logger, cmd.needsBus)
	if err != nil {
		log.Fatalf("%s failed: %v", name, err)
	}

	err = cmd.run(ctx, rt, os.Args[2:])
	rt.Close()
	if err != nil {
		log.Fatalf("%s failed: %v", name, err)
	}
	logger.Infof("%s completed", name)
}

func printUsage() {
	fmt.Printf(`%s - kitchen screen operator commands

Usage:
  %s <command> [flags]

Commands:
  seed-demo    Create the demo terminal, categories, products and screens
  reconcile    Repair screen assignments (--order <id> | --config <id> | all terminals)
  trigger      Re-send an order to screens (--config <id> --reference <ref> [--screens a,b])
  coverage     List categories no active screen covers (--config <id> [--categories a,b])
  status       Show whether an order reference is open or closed (--reference <ref> [--config <id>])
  version      Print version information
  help         Show this help message

Environment Variables:
  KITCHEN_DB_DRIVER        postgres, sqlite or mongo (default: postgres)
  KITCHEN_DB_POSTGRES_DSN  Postgres connection string
  KITCHEN_DB_SQLITE_PATH   SQLite database file
  KITCHEN_DB_MONGO_URL     MongoDB connection URL
  KITCHEN_NATS_URL         NATS server used by reconcile and trigger
  KITCHEN_LOG_LEVEL        Log level: debug, info, error (default: info)

Examples:
  %s seed-demo
  %s coverage --config 7f1c7e1e-2b1e-4d55-9c1a-0d5e0f3b9a11
  KITCHEN_DB_DRIVER=sqlite %s reconcile

`, appName, appName, appName, appName, appName)
}
