package main

import (
	"context"
	"errors"
	"log/slog"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"storyqa/internal/config"
	"storyqa/internal/logging"
	"storyqa/internal/runlog"
	"storyqa/internal/services"
)

type commandContext struct {
	configFlag  *string
	jsonFlag    *bool
	timeoutFlag *time.Duration

	configOnce sync.Once
	config     *config.Config
	configErr  error

	loggerOnce sync.Once
	logger     *slog.Logger
	loggerErr  error

	runLog *runlog.Store
}

func newCommandContext(configFlag *string, jsonFlag *bool, timeoutFlag *time.Duration) *commandContext {
	return &commandContext{
		configFlag:  configFlag,
		jsonFlag:    jsonFlag,
		timeoutFlag: timeoutFlag,
	}
}

func (c *commandContext) ensureConfig() (*config.Config, error) {
	c.configOnce.Do(func() {
		var path string
		if c.configFlag != nil {
			path = strings.TrimSpace(*c.configFlag)
		}
		cfg, _, _, err := config.Load(path)
		if err != nil {
			c.configErr = err
			return
		}
		if err := cfg.EnsureDirectories(); err != nil {
			c.configErr = err
			return
		}
		c.config = cfg
	})
	return c.config, c.configErr
}

func (c *commandContext) configValue() *config.Config {
	cfg, _ := c.ensureConfig()
	return cfg
}

func (c *commandContext) jsonOutput() bool {
	return c.jsonFlag != nil && *c.jsonFlag
}

func (c *commandContext) ensureLogger() (*slog.Logger, error) {
	c.loggerOnce.Do(func() {
		cfg, err := c.ensureConfig()
		if err != nil {
			c.loggerErr = err
			return
		}
		c.logger, c.loggerErr = logging.NewFromConfig(cfg)
	})
	return c.logger, c.loggerErr
}

// openRunLog lazily opens the run ledger; it is closed after the command.
func (c *commandContext) openRunLog(ctx context.Context) (*runlog.Store, error) {
	if c.runLog != nil {
		return c.runLog, nil
	}
	cfg, err := c.ensureConfig()
	if err != nil {
		return nil, err
	}
	store, err := runlog.Open(ctx, cfg.Paths.RunLogPath)
	if err != nil {
		return nil, err
	}
	c.runLog = store
	return store, nil
}

// recordRun appends to the ledger. Ledger failures are logged, never fatal:
// the command's own output is the primary result.
func (c *commandContext) recordRun(ctx context.Context, run runlog.Run) {
	logger, _ := c.ensureLogger()
	if logger == nil {
		logger = logging.NewNop()
	}
	store, err := c.openRunLog(ctx)
	if err == nil {
		_, err = store.Record(ctx, run)
	}
	if err != nil {
		logging.WarnWithContext(logger, "run not recorded", "runlog_write_failed",
			logging.String("kind", string(run.Kind)),
			logging.Error(err),
			logging.String(logging.FieldImpact, "run missing from history"),
			logging.String(logging.FieldErrorHint, "check run_log_path permissions"),
		)
	}
}

func (c *commandContext) close() error {
	if c.runLog == nil {
		return nil
	}
	err := c.runLog.Close()
	c.runLog = nil
	return err
}

// runContext derives the per-command context. It is interrupt-aware,
// carries a fresh correlation ID, and honors the optional --timeout deadline.
func (c *commandContext) runContext(cmd *cobra.Command) (context.Context, context.CancelFunc) {
	base := cmd.Context()
	if base == nil {
		base = context.Background()
	}
	base = services.WithRequestID(base, uuid.NewString())
	ctx, stop := signal.NotifyContext(base, syscall.SIGINT, syscall.SIGTERM)
	if c.timeoutFlag == nil || *c.timeoutFlag <= 0 {
		return ctx, stop
	}
	timed, cancel := context.WithTimeout(ctx, *c.timeoutFlag)
	return timed, func() {
		cancel()
		stop()
	}
}

func shouldSkipConfig(cmd *cobra.Command) bool {
	for c := cmd; c != nil; c = c.Parent() {
		if c.Annotations != nil && c.Annotations["skipConfigLoad"] == "true" {
			return true
		}
	}
	return false
}

// outcomeFor maps a command error to the ledger outcome, treating the
// --timeout deadline like any other timeout.
func outcomeFor(err error, degraded bool) services.Outcome {
	if err == nil {
		if degraded {
			return services.OutcomeDegraded
		}
		return services.OutcomeOK
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return services.OutcomeUnavailable
	}
	return services.Classify(err)
}

func yesNo(value bool) string {
	if value {
		return "yes"
	}
	return "no"
}
