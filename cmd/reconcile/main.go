// Command reconcile audits stored orders for totals that disagree with their
// line items. With -apply it acts on the findings using the given policy.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/fjod/storefront/internal/config"
	"github.com/fjod/storefront/internal/logger"
	"github.com/fjod/storefront/internal/orders"
	"github.com/fjod/storefront/internal/reconcile"
	"github.com/fjod/storefront/internal/records"
	"go.uber.org/zap"
)

func main() {
	apply := flag.Bool("apply", false, "act on drifts instead of only listing them")
	policyFlag := flag.String("policy", "", "flag or correct (defaults to RECONCILE_POLICY)")
	orderID := flag.String("order", "", "check a single order")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	log, err := logger.New(cfg.Environment, cfg.LogLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to build logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	policyName := cfg.ReconcilePolicy
	if *policyFlag != "" {
		policyName = *policyFlag
	}
	policy, err := reconcile.ParsePolicy(policyName)
	if err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(1)
	}

	ctx := context.Background()
	store, err := records.Open(ctx, cfg.Database.Driver, records.Credentials{
		Host:     cfg.Database.Host,
		Port:     cfg.Database.Port,
		User:     cfg.Database.User,
		Password: cfg.Database.Password,
		DBName:   cfg.Database.DBName,
		SSLMode:  cfg.Database.SSLMode,
	}, cfg.Database.SQLitePath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to open database: %v\n", err)
		os.Exit(1)
	}
	defer store.Close()

	r := reconcile.NewReconciler(orders.NewRepository(store), policy, log)

	var drifts []reconcile.Drift
	if *orderID != "" {
		d, err := r.Check(ctx, *orderID)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to check order: %v\n", err)
			os.Exit(1)
		}
		if d != nil {
			drifts = append(drifts, *d)
		}
	} else {
		drifts, err = r.Audit(ctx)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to audit orders: %v\n", err)
			os.Exit(1)
		}
	}

	if len(drifts) == 0 {
		fmt.Println("No drift found")
		return
	}

	fmt.Printf("Found %d order(s) with drift:\n", len(drifts))
	for i, d := range drifts {
		fmt.Printf("%d. %s\n", i+1, d.OrderID)
		fmt.Printf("   User: %s\n", d.UserID)
		fmt.Printf("   Recorded: %s  Expected: %s  Lines: %d\n", d.Recorded.StringFixed(2), d.Expected.StringFixed(2), d.LineCount)
		if d.Orphaned {
			fmt.Println("   Orphaned: header has no lines")
		}
		fmt.Printf("   Created: %s\n", d.CreatedAt.Format("2006-01-02 15:04:05"))
	}

	if !*apply {
		fmt.Println("\nRun with -apply to act on these drifts")
		return
	}

	res, err := r.Apply(ctx, drifts)
	if err != nil {
		log.Error("apply stopped early", zap.Error(err))
		fmt.Fprintf(os.Stderr, "Failed to apply: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("\nPolicy %s: corrected %d, flagged %d\n", policy, len(res.Corrected), len(res.Flagged))
}
