package cmd

import (
	"encoding/json"
	"os"
	"time"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"golang.org/x/sync/errgroup"

	"github.com/labfleet/labfleet/internal/common/app"
	"github.com/labfleet/labfleet/internal/common/fleeterrors"
	"github.com/labfleet/labfleet/internal/common/util"
	"github.com/labfleet/labfleet/internal/suite"
	"github.com/labfleet/labfleet/internal/taskqueue"
)

const (
	defaultPollInterval = 30 * time.Second
	defaultSuiteTimeout = 90 * time.Minute
	requestTimeout      = 30 * time.Second
)

func runCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run a test suite and wait for its results.",
		RunE:  runSuite,
	}
	cmd.Flags().String("name", "", "Suite name, used in the final report.")
	cmd.Flags().String("specs-file", "", "Path of the JSON file listing the suite's child tests.")
	cmd.Flags().String("build", "", "Default build for specs that do not set one.")
	cmd.Flags().String("board", "", "Default board for specs that do not set one.")
	cmd.Flags().String("model", "", "Default model for specs that do not set one.")
	cmd.Flags().String("pool", "", "Default pool for specs that do not set one.")
	cmd.Flags().String("suite-id", "", "Resume the existing suite with this id instead of starting a new one.")
	cmd.Flags().Int("max-retries", 5, "Shared suite-level retry budget across all child tests.")
	cmd.Flags().Bool("test-retry", true, "Enable retrying of failed child tests.")
	cmd.Flags().Bool("dry-run", false, "Substitute an echo payload for every test.")
	cmd.Flags().Bool("provision", false, "Run as a provision suite: succeed once enough devices provisioned.")
	cmd.Flags().Int("required-count", 0, "Provision mode: finish once more than this many devices succeeded.")
	if err := cmd.MarkFlagRequired("name"); err != nil {
		panic(err)
	}
	if err := cmd.MarkFlagRequired("specs-file"); err != nil {
		panic(err)
	}
	return cmd
}

// specEntry is the on-disk form of a TestSpec; timeouts are given in seconds.
type specEntry struct {
	Name                 string   `json:"name"`
	Build                string   `json:"build,omitempty"`
	Board                string   `json:"board,omitempty"`
	Model                string   `json:"model,omitempty"`
	Pool                 string   `json:"pool,omitempty"`
	BotId                string   `json:"bot_id,omitempty"`
	Command              []string `json:"command"`
	Priority             int      `json:"priority"`
	MaxAttempts          int      `json:"max_attempts"`
	ExecutionTimeoutSecs int      `json:"execution_timeout_secs"`
	IoTimeoutSecs        int      `json:"io_timeout_secs"`
	ExpirationSecs       int      `json:"expiration_secs"`
}

func runSuite(cmd *cobra.Command, args []string) error {
	flags := cmd.Flags()
	queueUrl, _ := flags.GetString("queue-url")
	pollInterval, _ := flags.GetDuration("poll-interval")
	timeout, _ := flags.GetDuration("timeout")
	suiteName, _ := flags.GetString("name")
	specsFile, _ := flags.GetString("specs-file")
	suiteID, _ := flags.GetString("suite-id")
	maxRetries, _ := flags.GetInt("max-retries")
	testRetry, _ := flags.GetBool("test-retry")
	dryRun, _ := flags.GetBool("dry-run")
	provision, _ := flags.GetBool("provision")
	requiredCount, _ := flags.GetInt("required-count")

	specs, err := loadSpecs(specsFile, flags)
	if err != nil {
		return err
	}

	var policy suite.CompletionPolicy = suite.WaitAllPolicy{}
	if provision {
		policy = suite.ProvisionPolicy{Threshold: requiredCount}
	}

	orchestrator := suite.NewOrchestrator(taskqueue.NewHttpClient(queueUrl, requestTimeout))
	orchestrator.DryRun = dryRun

	ctx := app.CreateContextWithShutdown()

	var run *suite.SuiteRun
	if suiteID != "" {
		log.Infof("Resuming suite %s (%s)", suiteName, suiteID)
		run, err = orchestrator.Resume(ctx, suiteID, specs, policy, maxRetries, testRetry)
	} else {
		suiteID = util.NewULID()
		log.Infof("Starting suite %s (%s)", suiteName, suiteID)
		run, err = orchestrator.Start(ctx, suiteID, specs, policy, maxRetries, testRetry)
	}
	if err != nil {
		log.Errorf("Failed to schedule suite %s: %s", suiteName, err)
		os.Exit(suite.SuiteInfraFailure.ReturnCode())
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return orchestrator.RunToCompletion(ctx, run, pollInterval, timeout)
	})
	err = g.Wait()

	timedOut := fleeterrors.IsSuiteTimeout(err)
	if err != nil && !timedOut {
		log.Errorf("Suite %s hit an infrastructure error: %s", suiteName, err)
		os.Exit(suite.SuiteInfraFailure.ReturnCode())
	}
	if timedOut {
		log.Errorf("Timed out waiting for child tests: %s", err)
	}

	state := suite.LogResults(suiteName, run, timedOut)
	os.Exit(state.ReturnCode())
	return nil
}

func loadSpecs(path string, flags *pflag.FlagSet) ([]*suite.TestSpec, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	entries := []specEntry{}
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, errors.WithMessagef(err, "failed to parse specs file %s", path)
	}
	if len(entries) == 0 {
		return nil, errors.WithStack(&fleeterrors.ErrInvalidArgument{
			Name:    "specs-file",
			Value:   path,
			Message: "no test specs found",
		})
	}

	defaultBuild, _ := flags.GetString("build")
	defaultBoard, _ := flags.GetString("board")
	defaultModel, _ := flags.GetString("model")
	defaultPool, _ := flags.GetString("pool")

	specs := make([]*suite.TestSpec, 0, len(entries))
	for _, entry := range entries {
		spec := &suite.TestSpec{
			Name:             entry.Name,
			Build:            withDefault(entry.Build, defaultBuild),
			Board:            withDefault(entry.Board, defaultBoard),
			Model:            withDefault(entry.Model, defaultModel),
			Pool:             withDefault(entry.Pool, defaultPool),
			BotID:            entry.BotId,
			Command:          entry.Command,
			Priority:         entry.Priority,
			MaxAttempts:      entry.MaxAttempts,
			ExecutionTimeout: time.Duration(entry.ExecutionTimeoutSecs) * time.Second,
			IOTimeout:        time.Duration(entry.IoTimeoutSecs) * time.Second,
			Expiration:       time.Duration(entry.ExpirationSecs) * time.Second,
		}
		specs = append(specs, spec)
	}
	return specs, nil
}

func withDefault(value string, fallback string) string {
	if value == "" {
		return fallback
	}
	return value
}
