package commands

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"

	"github.com/appetiteclub/apt"
	"github.com/grafnet-dev/kitchenscreens/services/kitchen/internal/app"
	"github.com/grafnet-dev/kitchenscreens/services/kitchen/internal/kitchen"
)

// SeedDemo creates the demo terminal with its categories, products and screens.
func SeedDemo(ctx context.Context, rt *Runtime, out io.Writer) error {
	if err := kitchen.SeedDemo(ctx, rt.Backend, rt.Registry, app.SeedTracker(rt.Backend), rt.logger); err != nil {
		return err
	}

	cfg, err := rt.Backend.FindConfigByName(ctx, kitchen.DemoConfigName)
	if err != nil {
		return fmt.Errorf("cannot look up demo terminal: %w", err)
	}
	if cfg == nil {
		return errors.New("demo terminal missing after seeding")
	}
	screens, err := rt.Registry.ScreensForConfig(ctx, cfg.ID, false)
	if err != nil {
		return err
	}
	return writeJSON(out, map[string]interface{}{
		"config":  cfg,
		"screens": screens,
	})
}

// Reconcile repairs screen assignments of one order, one terminal, or every
// terminal when no flag is given.
func Reconcile(ctx context.Context, rt *Runtime, args []string, out io.Writer) error {
	fs := flag.NewFlagSet("reconcile", flag.ContinueOnError)
	fs.SetOutput(out)
	configFlag := fs.String("config", "", "terminal config id")
	orderFlag := fs.String("order", "", "order id")
	if err := fs.Parse(args); err != nil {
		return err
	}

	switch {
	case *orderFlag != "":
		orderID, err := parseUUID("order", *orderFlag)
		if err != nil {
			return err
		}
		res, err := rt.Coordinator.Reconcile(ctx, orderID)
		if err != nil {
			return err
		}
		return writeJSON(out, res)

	case *configFlag != "":
		configID, err := parseUUID("config", *configFlag)
		if err != nil {
			return err
		}
		results, err := rt.Coordinator.ReconcileConfig(ctx, configID)
		if err != nil {
			return err
		}
		return writeJSON(out, results)

	default:
		repaired, err := rt.Coordinator.ReconcileAll(ctx)
		if err != nil {
			return err
		}
		return writeJSON(out, map[string]int{"repaired": repaired})
	}
}

// Trigger re-sends an order to screens without touching its assignment.
func Trigger(ctx context.Context, rt *Runtime, args []string, out io.Writer) error {
	fs := flag.NewFlagSet("trigger", flag.ContinueOnError)
	fs.SetOutput(out)
	configFlag := fs.String("config", "", "terminal config id (required)")
	refFlag := fs.String("reference", "", "pos order reference (required)")
	screensFlag := fs.String("screens", "", "comma separated screen ids, defaults to the assigned screens")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *configFlag == "" || *refFlag == "" {
		return errors.New("trigger needs --config and --reference")
	}

	configID, err := parseUUID("config", *configFlag)
	if err != nil {
		return err
	}
	screenIDs, err := parseUUIDList("screens", *screensFlag)
	if err != nil {
		return err
	}

	res, err := rt.Coordinator.TriggerNotifications(ctx, configID, *refFlag, screenIDs)
	if err != nil {
		return err
	}
	return writeJSON(out, res)
}

// Coverage reports categories no active screen of a terminal covers.
func Coverage(ctx context.Context, rt *Runtime, args []string, out io.Writer) error {
	fs := flag.NewFlagSet("coverage", flag.ContinueOnError)
	fs.SetOutput(out)
	configFlag := fs.String("config", "", "terminal config id (required)")
	categoriesFlag := fs.String("categories", "", "comma separated category ids, defaults to all")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *configFlag == "" {
		return errors.New("coverage needs --config")
	}

	configID, err := parseUUID("config", *configFlag)
	if err != nil {
		return err
	}
	categoryIDs, err := parseUUIDList("categories", *categoriesFlag)
	if err != nil {
		return err
	}

	report, err := rt.Queries.CoverageCheck(ctx, configID, categoryIDs)
	if err != nil {
		return err
	}
	return writeJSON(out, report)
}

// Status prints whether an order reference is open or closed.
func Status(ctx context.Context, rt *Runtime, args []string, out io.Writer) error {
	fs := flag.NewFlagSet("status", flag.ContinueOnError)
	fs.SetOutput(out)
	configFlag := fs.String("config", "", "terminal config id, any terminal when empty")
	refFlag := fs.String("reference", "", "pos order reference (required)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *refFlag == "" {
		return errors.New("status needs --reference")
	}

	var configID kitchen.ConfigID
	if *configFlag != "" {
		id, err := parseUUID("config", *configFlag)
		if err != nil {
			return err
		}
		configID = id
	}

	report, err := rt.Coordinator.CheckOrderStatus(ctx, configID, *refFlag)
	if err != nil {
		return err
	}
	return writeJSON(out, report)
}

// Config reads the service configuration from the environment only; command
// flags are parsed per command.
func Config() (*apt.Config, error) {
	return apt.LoadConfig("KITCHEN", nil)
}
