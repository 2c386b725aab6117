package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"dormantwatch/internal/chain"
	"dormantwatch/internal/config"
	"dormantwatch/internal/dispatch"
	"dormantwatch/internal/health"
	"dormantwatch/internal/monitor"
	"dormantwatch/internal/query"
	"dormantwatch/internal/registry"
	"dormantwatch/internal/sink"
	"dormantwatch/internal/source"
	"dormantwatch/internal/storage"
	"dormantwatch/internal/storage/postgres"
)

func main() {
	root := &cobra.Command{
		Use:          "monitor",
		Short:        "Dormant-contract registry monitor",
		SilenceUsage: true,
	}

	root.PersistentFlags().String("config", "", "config file path")

	runCmd := &cobra.Command{
		Use:   "run",
		Short: "Run the event monitor",
		RunE:  runMonitor,
	}

	runCmd.Flags().String("rpc", "", "chain RPC URL (ws:// or wss://)")
	runCmd.Flags().String("contract", "", "registry contract address")
	runCmd.Flags().String("telegram-token", "", "Telegram bot token")
	runCmd.Flags().String("chat-id", "", "Telegram chat for alerts")
	runCmd.Flags().Uint64("from", 0, "start block (0 means latest)")
	runCmd.Flags().Int("dedup-capacity", 4096, "identity keys held in the dedup window")
	runCmd.Flags().Duration("backoff-base", time.Second, "initial reconnect delay")
	runCmd.Flags().Duration("backoff-cap", 60*time.Second, "maximum reconnect delay")
	runCmd.Flags().Int("startup-retries", 3, "immediate retries for the startup check")
	runCmd.Flags().Int("dispatch-concurrency", 4, "in-flight alert limit")
	runCmd.Flags().Duration("send-timeout", 15*time.Second, "per-send sink timeout")
	runCmd.Flags().Duration("health-interval", 5*time.Minute, "liveness probe interval")
	runCmd.Flags().Duration("poll-timeout", 30*time.Second, "command long-poll timeout")
	runCmd.Flags().Duration("call-timeout", 10*time.Second, "read-only call timeout")
	runCmd.Flags().String("audit-out", "", "JSONL delivery audit path (optional)")
	runCmd.Flags().String("pg-dsn", "", "Postgres DSN for the delivery audit (optional)")
	runCmd.Flags().String("log-level", "info", "log level (debug, info, warn, error)")

	root.AddCommand(runCmd)

	queryCmd := &cobra.Command{
		Use:   "query <command> [args]",
		Short: "Run one operator command against the registry",
		Args:  cobra.MinimumNArgs(1),
		RunE:  runQuery,
	}

	queryCmd.Flags().String("rpc", "", "chain RPC URL")
	queryCmd.Flags().String("contract", "", "registry contract address")
	queryCmd.Flags().Duration("call-timeout", 10*time.Second, "read-only call timeout")
	queryCmd.Flags().String("log-level", "info", "log level (debug, info, warn, error)")

	root.AddCommand(queryCmd)

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func runMonitor(cmd *cobra.Command, _ []string) error {
	cfgFile, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(cfgFile, cmd.Flags())
	if err != nil {
		return err
	}

	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		return err
	}
	defer logger.Sync()

	if cfg.RPCURL == "" {
		return fmt.Errorf("rpc url is required")
	}
	if !common.IsHexAddress(cfg.Contract) {
		return fmt.Errorf("valid contract address is required")
	}
	if cfg.TelegramToken == "" || cfg.ChatID == "" {
		return fmt.Errorf("telegram token and chat id are required")
	}
	contractAddr := common.HexToAddress(cfg.Contract)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	chainClient, err := chain.NewClient(ctx, cfg.RPCURL)
	if err != nil {
		return fmt.Errorf("connect rpc: %w", err)
	}
	defer chainClient.Close()

	reg := registry.New(chainClient, contractAddr)

	// Startup connectivity check; exhausting the bounded retries is fatal.
	var monitored uint64
	err = monitor.WithRetry(ctx, cfg.StartupRetries, 500*time.Millisecond, func(ctx context.Context) error {
		callCtx, cancel := context.WithTimeout(ctx, cfg.CallTimeout)
		defer cancel()
		var err error
		monitored, err = reg.MonitoredCount(callCtx)
		return err
	})
	if err != nil {
		return fmt.Errorf("registry unreachable: %w", err)
	}

	adapter, err := source.NewAdapter(chainClient, contractAddr, registry.EventNames(), logger)
	if err != nil {
		return err
	}

	classifier, err := monitor.NewClassifier(cfg.DedupCapacity, logger)
	if err != nil {
		return err
	}

	initial := source.Latest()
	if cfg.FromBlock > 0 {
		initial = source.FromBlock(cfg.FromBlock)
	}

	backoff := monitor.Backoff{Base: cfg.BackoffBase, Cap: cfg.BackoffCap, Jitter: 0.2}
	supervisor := monitor.NewSupervisor(adapter, classifier, backoff, initial, cfg.StartupRetries, logger)

	telegram := sink.NewTelegram(cfg.TelegramToken, cfg.ChatID)

	recorder, closeRecorder, err := newRecorder(ctx, cfg)
	if err != nil {
		return err
	}
	if closeRecorder != nil {
		defer closeRecorder()
	}

	dispatcher := dispatch.New(dispatch.Config{
		Concurrency: cfg.DispatchConcurrency,
		SendTimeout: cfg.SendTimeout,
	}, telegram, recorder, logger)

	responder := query.NewResponder(chainClient, reg, supervisorState{supervisor}, cfg.CallTimeout, logger)
	listener := query.NewListener(telegram, responder, cfg.PollTimeout, logger)
	healthMonitor := health.New(chainClient, reg, telegram, supervisorState{supervisor}, cfg.HealthInterval, logger)

	logger.Info("monitor start",
		zap.String("contract", contractAddr.Hex()),
		zap.Uint64("monitored_contracts", monitored),
		zap.Uint64("from", cfg.FromBlock),
		zap.Int("dedup_capacity", cfg.DedupCapacity),
		zap.Int("dispatch_concurrency", cfg.DispatchConcurrency),
		zap.Duration("health_interval", cfg.HealthInterval),
	)

	pipeline := monitor.NewPipeline(supervisor, dispatcher, 10*time.Second, logger, listener, healthMonitor)
	return pipeline.Run(ctx)
}

func runQuery(cmd *cobra.Command, args []string) error {
	cfgFile, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(cfgFile, cmd.Flags())
	if err != nil {
		return err
	}

	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		return err
	}
	defer logger.Sync()

	if cfg.RPCURL == "" {
		return fmt.Errorf("rpc url is required")
	}
	if !common.IsHexAddress(cfg.Contract) {
		return fmt.Errorf("valid contract address is required")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	chainClient, err := chain.NewClient(ctx, cfg.RPCURL)
	if err != nil {
		return fmt.Errorf("connect rpc: %w", err)
	}
	defer chainClient.Close()

	reg := registry.New(chainClient, common.HexToAddress(cfg.Contract))
	responder := query.NewResponder(chainClient, reg, nil, cfg.CallTimeout, logger)

	response, ok := responder.Respond(ctx, strings.Join(args, " "))
	if !ok {
		return fmt.Errorf("unrecognized command: %s", args[0])
	}

	fmt.Println(response)
	return nil
}

func newRecorder(ctx context.Context, cfg config.Config) (dispatch.Recorder, func(), error) {
	if cfg.PGDSN != "" {
		store, err := postgres.NewStore(ctx, cfg.PGDSN)
		if err != nil {
			return nil, nil, fmt.Errorf("connect audit store: %w", err)
		}
		return store, store.Close, nil
	}
	if cfg.AuditOut != "" {
		return storage.NewJsonlStorage(cfg.AuditOut), nil, nil
	}
	return nil, nil, nil
}

// supervisorState adapts the supervisor for read-only state consumers.
type supervisorState struct {
	supervisor *monitor.Supervisor
}

func (s supervisorState) State() string         { return string(s.supervisor.State()) }
func (s supervisorState) LastConfirmed() uint64 { return s.supervisor.LastConfirmed() }

func newLogger(level string) (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevel()
	if err := cfg.Level.UnmarshalText([]byte(level)); err != nil {
		return nil, err
	}

	cfg.EncoderConfig.TimeKey = "ts"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	return cfg.Build()
}
