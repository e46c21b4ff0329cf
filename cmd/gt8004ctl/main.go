package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/gt8004/gt8004-go/pkg/cache"
	"github.com/gt8004/gt8004-go/pkg/config"
	"github.com/gt8004/gt8004-go/pkg/gt8004"
	"github.com/gt8004/gt8004-go/pkg/storage"
	"github.com/gt8004/gt8004-go/pkg/telemetry"
	"github.com/spf13/pflag"
)

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(1)
	}

	var err error
	switch os.Args[1] {
	case "send":
		err = runSend(os.Args[2:])
	case "logs":
		err = runLogs(os.Args[2:])
	case "stats":
		err = runStats(os.Args[2:])
	default:
		usage()
		os.Exit(1)
	}

	if err != nil && !errors.Is(err, pflag.ErrHelp) {
		fmt.Fprintf(os.Stderr, "gt8004ctl %s: %v\n", os.Args[1], err)
		os.Exit(1)
	}
}

func usage() {
	fmt.Println("gt8004ctl commands:")
	fmt.Println("  send     Deliver a test entry to the ingestion endpoint and report the outcome")
	fmt.Println("     flags: --endpoint --agent-id --api-key --timeout")
	fmt.Println("  logs     List archived entries (requires redis + archive)")
	fmt.Println("     flags: --customer --tool --status --errors --limit")
	fmt.Println("  stats    Show usage statistics from the archive")
	fmt.Println("     flags: --customer --since")
}

// loadConfig reads the config file if there is one; send works from flags
// alone.
func loadConfig() *config.Config {
	cfg, err := config.Load()
	if err != nil {
		return &config.Config{}
	}
	return cfg
}

func runSend(args []string) error {
	cfg := loadConfig()

	fs := pflag.NewFlagSet("send", pflag.ContinueOnError)
	endpoint := fs.String("endpoint", cfg.Agent.Endpoint, "ingestion base URL")
	agentID := fs.String("agent-id", cfg.Agent.AgentID, "agent id")
	apiKey := fs.String("api-key", cfg.Agent.APIKey, "API key")
	timeout := fs.Duration("timeout", 30*time.Second, "give up after this long")
	if err := fs.Parse(args); err != nil {
		return err
	}

	logger, err := gt8004.New(gt8004.Config{
		AgentID:  *agentID,
		APIKey:   *apiKey,
		Endpoint: *endpoint,
		// One attempt is enough to tell whether the endpoint takes the key.
		MaxRetries: 1,
	})
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	ping := telemetry.LogEntry{
		Method:     "POST",
		Path:       "/gt8004ctl/ping",
		StatusCode: 200,
		ToolName:   telemetry.String("ping"),
	}
	logger.LogRequest(ping)

	flushErr := logger.Flush(ctx)
	stats := logger.Stats()
	// The entry is requeued on failure; Close would retry it once more.
	_ = logger.Close(ctx)

	if flushErr != nil {
		return fmt.Errorf("delivery to %s failed: %w", logger.Endpoint(), flushErr)
	}
	if stats.BatchesSent == 0 {
		return fmt.Errorf("test entry not delivered (breaker %s)", stats.BreakerState)
	}
	fmt.Printf("delivered test entry to %s (agent %s)\n", logger.Endpoint(), logger.AgentID())
	return nil
}

func openStore(cfg *config.Config) (*storage.RedisStore, func(), error) {
	if !cfg.Redis.Enabled {
		return nil, nil, errors.New("redis is not enabled in config")
	}
	rdb, err := cache.NewRedis(cfg.Redis.Address, cfg.Redis.Password, cfg.Redis.DB)
	if err != nil {
		return nil, nil, err
	}
	retention := time.Duration(cfg.Archive.RetentionDays) * 24 * time.Hour
	return storage.NewRedisStore(rdb, retention), func() { rdb.Close() }, nil
}

func runLogs(args []string) error {
	fs := pflag.NewFlagSet("logs", pflag.ContinueOnError)
	customer := fs.String("customer", "", "only this customer id")
	tool := fs.String("tool", "", "only this tool")
	status := fs.Int("status", 0, "only this status code")
	errorsOnly := fs.Bool("errors", false, "only entries classified as errors")
	limit := fs.IntP("limit", "n", 20, "maximum entries to show")
	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg, err := config.Load()
	if err != nil {
		return err
	}
	store, closeFn, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer closeFn()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	entries, err := store.ListEntries(ctx, storage.Filters{
		CustomerID: *customer,
		ToolName:   *tool,
		StatusCode: *status,
		ErrorsOnly: *errorsOnly,
		Limit:      *limit,
	})
	if err != nil {
		return err
	}

	if len(entries) == 0 {
		fmt.Println("No entries found")
		return nil
	}
	for _, e := range entries {
		fmt.Println(formatEntry(e))
	}
	return nil
}

func formatEntry(e *telemetry.LogEntry) string {
	line := fmt.Sprintf("%s %s %-6s %-24s %3d %8.1fms tool=%s customer=%s",
		e.Timestamp.Format(time.RFC3339), e.RequestID, e.Method, e.Path,
		e.StatusCode, e.ResponseMs, orDash(e.ToolName), orDash(e.CustomerID))
	if e.ErrorType != nil {
		line += " error=" + *e.ErrorType
	}
	if e.PaymentAmount != nil {
		line += fmt.Sprintf(" paid=%g", *e.PaymentAmount)
	}
	return line
}

func orDash(s *string) string {
	if s == nil {
		return "-"
	}
	return *s
}

func runStats(args []string) error {
	fs := pflag.NewFlagSet("stats", pflag.ContinueOnError)
	customer := fs.String("customer", "", "only this customer id")
	since := fs.Duration("since", 7*24*time.Hour, "window length ending now")
	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg, err := config.Load()
	if err != nil {
		return err
	}
	store, closeFn, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer closeFn()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	to := time.Now()
	stats, err := store.GetUsageStats(ctx, *customer, to.Add(-*since), to)
	if err != nil {
		return err
	}

	b, _ := json.MarshalIndent(stats, "", "  ")
	fmt.Println(string(b))
	return nil
}
