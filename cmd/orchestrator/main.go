// Command adflow runs the multi-platform social-advertising ETL orchestrator:
// it loads the orchestrator and platform table YAML documents, builds one
// Pipeline per enabled platform, and drives them to completion under the
// configured dependency-aware parallel schedule.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	flag "github.com/spf13/pflag"
	"golang.org/x/time/rate"

	"github.com/adflow-io/adflow/internal/config"
	"github.com/adflow-io/adflow/pkg/errkind"
	"github.com/adflow-io/adflow/pkg/logger"
	"github.com/adflow-io/adflow/pkg/metastore"
	"github.com/adflow-io/adflow/pkg/orchestrator"
	"github.com/adflow-io/adflow/pkg/platform"
	"github.com/adflow-io/adflow/pkg/warehouse"
)

func main() {
	code := run()
	os.Exit(code)
}

func run() int {
	// Load a local .env file if present so ADFLOW_* credentials can be kept
	// out of the shell environment during development; a missing file is
	// not an error, only a malformed one is.
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		slog.Default().Warn("failed to load .env file", "error", err)
	}

	configFlag := flag.String("config", "orchestrator.yaml", "path to the orchestrator YAML document")
	tablesConfigFlag := flag.String("tables-config", "platforms.yaml", "path to the platform table YAML document")
	platformFlag := flag.String("platform", "", "run a single platform by name, ignoring its declared dependencies")
	tablesFlag := flag.String("tables", "", "comma-separated list of table names to restrict a single-platform run to")
	dryRunFlag := flag.Bool("dry-run", false, "run extract and transform but skip all warehouse writes")
	testModeFlag := flag.Bool("test-mode", false, "append the test suffix to every target table name")
	startDateFlag := flag.String("start-date", "", "override the extraction window start date (YYYY-MM-DD)")
	endDateFlag := flag.String("end-date", "", "override the extraction window end date (YYYY-MM-DD)")
	verboseFlag := flag.Bool("verbose", false, "enable verbose (debug) logging")
	reportPathFlag := flag.String("report", "", "local path or s3://bucket/key to write the run's report (format set by --report-format)")
	reportFormatFlag := flag.String("report-format", "json", "report format: json or csv")

	clickhouseAddrFlag := flag.String("clickhouse-addr", "", "warehouse address (host:port) (or set ADFLOW_CLICKHOUSE_ADDR)")
	clickhouseDatabaseFlag := flag.String("clickhouse-database", "default", "warehouse database (or set ADFLOW_CLICKHOUSE_DATABASE)")
	clickhouseUsernameFlag := flag.String("clickhouse-username", "default", "warehouse username (or set ADFLOW_CLICKHOUSE_USERNAME)")
	clickhousePasswordFlag := flag.String("clickhouse-password", "", "warehouse password (or set ADFLOW_CLICKHOUSE_PASSWORD)")
	clickhouseSecureFlag := flag.Bool("clickhouse-secure", false, "enable TLS for the warehouse connection (or set ADFLOW_CLICKHOUSE_SECURE=true)")

	metastoreDSNFlag := flag.String("metastore-dsn", "", "optional Postgres DSN for persisting run history (or set ADFLOW_METASTORE_DSN)")
	slackTokenFlag := flag.String("slack-token", "", "optional Slack bot token for run notifications (or set ADFLOW_SLACK_TOKEN)")
	slackChannelFlag := flag.String("slack-channel", "", "Slack channel to notify (or set ADFLOW_SLACK_CHANNEL)")

	flag.Parse()

	if env := os.Getenv("ADFLOW_CLICKHOUSE_ADDR"); env != "" {
		*clickhouseAddrFlag = env
	}
	if env := os.Getenv("ADFLOW_CLICKHOUSE_DATABASE"); env != "" {
		*clickhouseDatabaseFlag = env
	}
	if env := os.Getenv("ADFLOW_CLICKHOUSE_USERNAME"); env != "" {
		*clickhouseUsernameFlag = env
	}
	if env := os.Getenv("ADFLOW_CLICKHOUSE_PASSWORD"); env != "" {
		*clickhousePasswordFlag = env
	}
	if os.Getenv("ADFLOW_CLICKHOUSE_SECURE") == "true" {
		*clickhouseSecureFlag = true
	}
	if env := os.Getenv("ADFLOW_METASTORE_DSN"); env != "" {
		*metastoreDSNFlag = env
	}
	if env := os.Getenv("ADFLOW_SLACK_TOKEN"); env != "" {
		*slackTokenFlag = env
	}
	if env := os.Getenv("ADFLOW_SLACK_CHANNEL"); env != "" {
		*slackChannelFlag = env
	}
	if os.Getenv("TEST_MODE") == "true" {
		*testModeFlag = true
	}
	if os.Getenv("DRY_RUN") == "true" {
		*dryRunFlag = true
	}

	log := logger.New(*verboseFlag)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	exitCode, err := execute(ctx, log, options{
		configPath:       *configFlag,
		tablesConfigPath: *tablesConfigFlag,
		platform:         *platformFlag,
		tables:           splitCSV(*tablesFlag),
		dryRun:           *dryRunFlag,
		testMode:         *testModeFlag,
		startDate:        *startDateFlag,
		endDate:          *endDateFlag,
		reportPath:       *reportPathFlag,
		reportFormat:     *reportFormatFlag,
		clickhouse: warehouse.ClientConfig{
			Addr:     *clickhouseAddrFlag,
			Database: *clickhouseDatabaseFlag,
			Username: *clickhouseUsernameFlag,
			Password: *clickhousePasswordFlag,
			Secure:   *clickhouseSecureFlag,
		},
		metastoreDSN: *metastoreDSNFlag,
		slackToken:   *slackTokenFlag,
		slackChannel: *slackChannelFlag,
	})
	if err != nil {
		log.Error("run failed", "error", err)
	}
	if ctx.Err() != nil {
		return 130
	}
	return exitCode
}

type options struct {
	configPath       string
	tablesConfigPath string
	platform         string
	tables           []string
	dryRun           bool
	testMode         bool
	startDate        string
	endDate          string
	reportPath       string
	reportFormat     string
	clickhouse       warehouse.ClientConfig
	metastoreDSN     string
	slackToken       string
	slackChannel     string
}

func splitCSV(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// execute runs one full orchestrator invocation and returns the process
// exit code: 1 for a config error detected before any platform runs,
// otherwise whatever orchestrator.ExitCode derives from the run's outcomes.
func execute(ctx context.Context, log *slog.Logger, opt options) (int, error) {
	orchDoc, err := config.LoadOrchestrator(opt.configPath)
	if err != nil {
		return 1, err
	}
	tablesDoc, err := config.LoadTables(opt.tablesConfigPath)
	if err != nil {
		return 1, err
	}
	if err := config.Validate(orchDoc, tablesDoc); err != nil {
		return 1, err
	}

	if opt.clickhouse.Addr == "" {
		return 1, errkind.New(errkind.Config, "", fmt.Errorf("--clickhouse-addr is required"))
	}
	client, err := warehouse.NewClient(ctx, log, opt.clickhouse)
	if err != nil {
		return 1, fmt.Errorf("connect warehouse: %w", err)
	}
	defer client.Close()
	sink := warehouse.NewSink(client, opt.clickhouse.Database, log)

	dateRange, err := resolveDateRange(opt.startDate, opt.endDate)
	if err != nil {
		return 1, err
	}

	pipelines, err := buildPipelines(orchDoc, tablesDoc, sink, log, opt)
	if err != nil {
		return 1, err
	}

	orchCfg := config.ToOrchestratorConfig(orchDoc, pipelines)
	orch, err := orchestrator.New(orchCfg, nil, log)
	if err != nil {
		return 1, err
	}

	var store *metastore.Store
	if opt.metastoreDSN != "" {
		store, err = metastore.New(ctx, log, metastore.Config{DSN: opt.metastoreDSN})
		if err != nil {
			log.Warn("metastore unavailable, continuing without run history", "error", err)
			store = nil
		} else {
			defer store.Close()
			if err := store.Migrate(ctx); err != nil {
				log.Warn("metastore migration failed, continuing without run history", "error", err)
			}
		}
	}

	var (
		summary  orchestrator.Summary
		outcomes []orchestrator.PlatformOutcome
		exitCode int
	)
	if opt.platform != "" {
		outcome, err := orch.RunOne(ctx, opt.platform, dateRange)
		if err != nil {
			return 1, err
		}
		outcomes = []orchestrator.PlatformOutcome{outcome}
		summary = orchestrator.Summary{TotalPlatforms: 1}
		if outcome.Status == orchestrator.StatusCompleted {
			summary.Completed = 1
			summary.SuccessRate = 1
		} else {
			summary.Failed = 1
		}
		exitCode = orchestrator.ExitCode(summary)
	} else {
		result, err := orch.RunAll(ctx, dateRange)
		if err != nil {
			return 1, err
		}
		summary = result.Summary
		outcomes = result.Outcomes
		exitCode = result.ExitCode
	}

	report := orchestrator.BuildReport(summary, outcomes)

	if opt.reportPath != "" {
		format := orchestrator.FormatJSON
		if strings.EqualFold(opt.reportFormat, "csv") {
			format = orchestrator.FormatCSV
		}
		if err := orchestrator.ExportReport(ctx, report, format, opt.reportPath); err != nil {
			log.Error("export report failed", "error", err)
		}
	}

	if opt.slackToken != "" {
		notifier := orchestrator.NewNotifier(opt.slackToken, opt.slackChannel)
		if err := notifier.NotifyRunComplete(ctx, report); err != nil {
			log.Error("slack notification failed", "error", err)
		}
	}

	if store != nil {
		triggeredBy := "cli-run-all"
		if opt.platform != "" {
			triggeredBy = "cli-run-one"
		}
		if _, err := store.RecordRun(ctx, report, exitCode, triggeredBy); err != nil {
			log.Error("record run history failed", "error", err)
		}
	}

	return exitCode, nil
}

func resolveDateRange(startDate, endDate string) (platform.DateRange, error) {
	if startDate == "" && endDate == "" {
		end := time.Now().UTC().Truncate(24 * time.Hour)
		return platform.DateRange{Start: end.AddDate(0, 0, -1), End: end}, nil
	}
	start, err := time.Parse("2006-01-02", startDate)
	if err != nil {
		return platform.DateRange{}, fmt.Errorf("parse --start-date: %w", err)
	}
	end, err := time.Parse("2006-01-02", endDate)
	if err != nil {
		return platform.DateRange{}, fmt.Errorf("parse --end-date: %w", err)
	}
	return platform.DateRange{Start: start, End: end}, nil
}

// buildPipelines constructs one *platform.Pipeline per enabled platform in
// orchDoc, pairing the platform's reference Extractor with either its
// default table set or the tables document's override, when present.
func buildPipelines(orchDoc *config.OrchestratorYAML, tablesDoc *config.TablesYAML, sink *warehouse.Sink, log *slog.Logger, opt options) (map[string]*platform.Pipeline, error) {
	pipelines := make(map[string]*platform.Pipeline, len(orchDoc.Platforms))

	for _, p := range orchDoc.Platforms {
		if !p.Enabled {
			continue
		}

		extractor, defaultTables, ok := newExtractor(p.Name)
		if !ok {
			log.Warn("no extractor registered for platform, it will fail at run time", "platform", p.Name)
			continue
		}

		tables := defaultTables
		if declared, found := tablesDoc.Platforms[p.Name]; found {
			tables = config.ToTableConfigs(declared)
		}

		if opt.platform == p.Name && len(opt.tables) > 0 {
			tables = filterTables(tables, opt.tables)
		}

		pipelines[p.Name] = &platform.Pipeline{
			Platform:    p.Name,
			Tables:      tables,
			Extractor:   extractor,
			Sink:        sink,
			TestMode:    opt.testMode,
			TestSuffix:  "_test",
			DryRun:      opt.dryRun,
			RateLimiter: newRateLimiter(p.RateLimit),
			Log:         log,
		}
	}

	return pipelines, nil
}

func filterTables(tables []platform.TableConfig, keep []string) []platform.TableConfig {
	wanted := make(map[string]bool, len(keep))
	for _, name := range keep {
		wanted[name] = true
	}
	out := make([]platform.TableConfig, 0, len(tables))
	for _, t := range tables {
		if wanted[t.Name] {
			out = append(out, t)
		}
	}
	return out
}

// newRateLimiter builds a token-bucket limiter from a platform's declared
// rate_limit. A non-positive requests_per_second means unlimited.
func newRateLimiter(cfg config.RateLimitYAML) *rate.Limiter {
	if cfg.RequestsPerSecond <= 0 {
		return nil
	}
	burst := cfg.Burst
	if burst <= 0 {
		burst = 1
	}
	return rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), burst)
}

// newExtractor returns the reference Extractor and default table set for a
// known platform name. Real per-platform API clients live outside this
// core; these reference adapters exist to exercise the pipeline contract
// end to end.
func newExtractor(name string) (platform.Extractor, []platform.TableConfig, bool) {
	switch strings.ToLower(name) {
	case "linkedin":
		e := &platform.LinkedInExtractor{}
		return e, platform.NewLinkedInPipeline(e), true
	case "facebook":
		e := &platform.FacebookExtractor{}
		return e, platform.NewFacebookPipeline(e), true
	case "google":
		e := &platform.GoogleExtractor{}
		return e, platform.NewGooglePipeline(e), true
	case "microsoft":
		e := &platform.MicrosoftExtractor{}
		return e, platform.NewMicrosoftPipeline(e), true
	default:
		return nil, nil, false
	}
}
