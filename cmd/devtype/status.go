package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"devtype/internal/config"
	"devtype/internal/health"
	"devtype/internal/keymap"
	"devtype/internal/logging"
	"devtype/internal/store"
)

func cmdStatus(args []string) {
	fs := flag.NewFlagSet("status", flag.ExitOnError)
	clearCrashes := fs.Bool("clear-crashes", false, "Remove pad crash reports after listing them")
	fs.Parse(args)

	a := setup("status")
	defer a.close()

	fmt.Println("=== devtype Status ===")
	fmt.Printf("Config:  %s\n", a.cfgPath)
	fmt.Printf("Store:   %s\n", a.cfg.Storage.Path)
	if a.cfg.Engine.KeymapPath != "" {
		fmt.Printf("Keymap:  %s\n", a.cfg.Engine.KeymapPath)
	}
	fmt.Println()

	var st *store.Store
	if _, err := os.Stat(a.cfg.Storage.Path); err == nil {
		st = a.openStore()
		defer st.Close()
	}

	checker := a.healthChecks(st)
	checker.Check(a.ctx)

	for _, e := range checker.Report() {
		mark := " "
		if e.Critical {
			mark = "*"
		}
		fmt.Printf("%s %-10s %-9s %s", mark, e.Name, e.Result.Status, e.Result.Message)
		if e.Result.Error != "" {
			fmt.Printf(": %s", e.Result.Error)
		}
		fmt.Println()
	}
	fmt.Println()

	if *clearCrashes {
		if err := a.crashHandler().ClearCrashReports(); err != nil {
			a.fatalf("clear crash reports: %v", err)
		}
		fmt.Println("Crash reports cleared.")
	}

	overall := checker.OverallStatus()
	fmt.Printf("Overall: %s\n", overall)
	if overall == health.StatusUnhealthy {
		a.close()
		os.Exit(1)
	}
}

// healthChecks registers the checks for status. st is nil when the store
// has not been created yet.
func (a *app) healthChecks(st *store.Store) *health.Checker {
	c := health.NewChecker()
	cfg := a.cfg

	c.RegisterFunc("config", true, health.CustomCheck(func(context.Context) error {
		err := cfg.Validate()
		var verrs config.ValidationErrors
		if errors.As(err, &verrs) && !verrs.HasErrors() {
			return fmt.Errorf("%w: %s", health.ErrDegraded, verrs.Error())
		}
		return err
	}))

	if path := cfg.Engine.KeymapPath; path != "" {
		c.RegisterFunc("keymap", false, health.CustomCheck(func(context.Context) error {
			if _, err := keymap.LoadTables(path); err != nil {
				return err
			}
			return nil
		}))
	}

	c.RegisterFunc("crashes", false, health.CustomCheck(func(context.Context) error {
		reports, err := a.crashHandler().GetCrashReports()
		if err != nil {
			return err
		}
		if len(reports) == 0 {
			return nil
		}
		last := reports[len(reports)-1]
		return fmt.Errorf("%w: %d crash reports in %s, last at %s: %s", health.ErrDegraded,
			len(reports), a.crashDir, last.Timestamp.Format(time.RFC3339), last.PanicValue)
	}))

	if st == nil {
		c.RegisterFunc("store", true, func(context.Context) health.CheckResult {
			return health.CheckResult{
				Status:  health.StatusDegraded,
				Message: "not created yet; run 'devtype import'",
			}
		})
		return c
	}

	c.RegisterFunc("store", true, health.DatabaseCheck(st.Ping))

	c.RegisterFunc("migrations", true, health.CustomCheck(func(context.Context) error {
		status, err := st.MigrationStatus()
		if err != nil {
			return err
		}
		if len(status.Pending) > 0 {
			return fmt.Errorf("%w: %d pending migrations", health.ErrDegraded, len(status.Pending))
		}
		return nil
	}))

	c.RegisterFunc("labels", false, health.CustomCheck(func(context.Context) error {
		corrupted, err := st.VerifyLabels("")
		if err != nil {
			return err
		}
		if len(corrupted) > 0 {
			keys := make([]string, len(corrupted))
			for i, k := range corrupted {
				keys[i] = k.String()
			}
			return fmt.Errorf("%d labels changed outside devtype: %s", len(corrupted), strings.Join(keys, ", "))
		}
		return nil
	}))

	return c
}

func (a *app) crashHandler() *logging.CrashHandler {
	return logging.NewCrashHandler(&logging.CrashHandlerConfig{
		CrashDir:  a.crashDir,
		Version:   Version,
		Component: "pad",
	})
}
