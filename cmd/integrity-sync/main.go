// integrity-sync runs one reconciliation pass from the command line.
//
// Usage:
//
//	go run ./cmd/integrity-sync                 # full sync, alerts per INTEGRITY_* env
//	go run ./cmd/integrity-sync -vin <VIN>      # single vehicle check
//	go run ./cmd/integrity-sync -publish        # enqueue a sync for the service via Pub/Sub
//
// Exit codes: 0 clean, 1 failure, 2 discrepancies found.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/mmdatafocus/vehicle_integrity/alerting"
	"github.com/mmdatafocus/vehicle_integrity/config"
	"github.com/mmdatafocus/vehicle_integrity/integritysync"
	"github.com/mmdatafocus/vehicle_integrity/ledger"
	"github.com/mmdatafocus/vehicle_integrity/models"
	"github.com/mmdatafocus/vehicle_integrity/utils"
)

func main() {
	vin := flag.String("vin", "", "Optional: check a single vehicle instead of running a full sync")
	concurrency := flag.Int("concurrency", 0, "Optional: override SYNC_CONCURRENCY")
	noAlert := flag.Bool("no-alert", false, "Log discrepancies instead of publishing alerts")
	publish := flag.Bool("publish", false, "Publish a sync trigger to INTEGRITY_SYNC_TOPIC and exit")
	timeout := flag.Duration("timeout", 30*time.Minute, "Overall deadline")
	flag.Parse()

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()
	ctx = utils.SetTriggeredByInContext(ctx, "cli")

	cfg := config.LoadIntegrityConfig()
	if *concurrency > 0 {
		cfg.SyncConcurrency = *concurrency
	}

	if *publish {
		id, err := integritysync.PublishSyncTrigger(ctx, cfg.SyncTopic, "cli")
		if err != nil {
			fmt.Fprintf(os.Stderr, "failed to publish sync trigger: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("Published sync trigger to %s (message_id=%s)\n", cfg.SyncTopic, id)
		return
	}

	config.ConnectDatabaseWithRetry()
	db := config.GetDB()
	if db == nil {
		fmt.Fprintln(os.Stderr, "database not initialized")
		os.Exit(1)
	}
	if cfg.DistributedLock == config.DistributedLockRedis {
		config.ConnectRedisWithRetry(ctx)
	}

	ledgerClient, err := ledger.NewClientFromEnv()
	if err != nil {
		fmt.Fprintf(os.Stderr, "ledger client: %v\n", err)
		os.Exit(1)
	}
	defer ledgerClient.Close()

	logger := config.GetLogger()
	var notifier integritysync.Notifier = alerting.FromConfig(cfg, logger)
	if *noAlert {
		notifier = alerting.NewLogNotifier(logger)
	}

	engine, err := integritysync.NewEngineFromConfig(cfg, db, ledgerClient, notifier, logger)
	if err != nil {
		fmt.Fprintf(os.Stderr, "engine: %v\n", err)
		os.Exit(1)
	}

	if v := strings.TrimSpace(*vin); v != "" {
		res, err := engine.CheckIntegrityByVin(ctx, v)
		if err != nil {
			fmt.Fprintf(os.Stderr, "check %s: %v\n", v, err)
			os.Exit(1)
		}
		printJSON(res)
		if res.Status != models.IntegrityStatusVerified {
			os.Exit(2)
		}
		return
	}

	run, err := engine.RunFullSync(ctx)
	printJSON(run)
	if err != nil {
		fmt.Fprintf(os.Stderr, "sync failed: %v\n", err)
		os.Exit(1)
	}
	if run.HasDiscrepancies {
		os.Exit(2)
	}
}

func printJSON(v any) {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	_ = enc.Encode(v)
}
