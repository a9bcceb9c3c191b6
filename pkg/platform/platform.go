// Package platform drives one platform's table-by-table extract, transform,
// load cycle: for each logical table, in dependency order, it pulls driver
// keys from the sink if the table needs them, extracts rows from the
// platform's Extractor, runs the configured processing pipeline, then hands
// the result to the warehouse sink under the table's load mode.
package platform

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/time/rate"

	"github.com/adflow-io/adflow/pkg/errkind"
	"github.com/adflow-io/adflow/pkg/processing"
	"github.com/adflow-io/adflow/pkg/scheduler"
	"github.com/adflow-io/adflow/pkg/tabular"
	"github.com/adflow-io/adflow/pkg/warehouse"
)

// DateRange bounds an extraction window, inclusive on both ends.
type DateRange struct {
	Start time.Time
	End   time.Time
}

// Extractor is the external collaborator contract every platform adapter
// implements: given a date range and an optional set of driver keys
// (e.g. campaign ids fetched from a dependency table), produce a tabular
// payload.
type Extractor interface {
	Extract(ctx context.Context, table string, dateRange DateRange, driverKeys []string) (*tabular.Payload, error)
}

// StepConfig is one entry in a table's declared processing chain.
type StepConfig struct {
	Name   string
	Params map[string]any
}

// TableConfig declares how one logical table is extracted, transformed and
// loaded.
type TableConfig struct {
	Name             string
	DependsOn        []string // table-level dependencies within this platform
	Processing       []StepConfig
	LoadMode         warehouse.LoadMode
	PKColumns        []string
	IncrementColumns []string
	TestModeSuffix   bool
	StopOnFailure    bool

	// DriverKeyTable and DriverKeyColumn, when set, tell the pipeline to
	// query that column from that table (already loaded earlier in this
	// run) before calling Extract, the "value-level dependency" case from
	// the Platform Pipeline contract (LinkedIn insights driven by campaign
	// urns).
	DriverKeyTable    string
	DriverKeyColumn   string
	RequireDriverKeys bool
}

// TableResult is one table's outcome within a platform run.
type TableResult struct {
	Table       string
	RowsWritten int
	RowsSkipped int
	Err         error
}

// Result is what Pipeline.Run returns: a platform's per-table outcomes.
type Result struct {
	Platform     string
	TablesLoaded []string
	RowsPerTable map[string]int
	Errors       map[string]error
}

// Pipeline is one platform's extract -> transform -> load driver.
type Pipeline struct {
	Platform   string
	Tables     []TableConfig
	Extractor  Extractor
	Sink       *warehouse.Sink
	Registry   *processing.Registry
	TestMode   bool
	TestSuffix string
	DryRun     bool

	// RateLimiter, when set, is waited on before every Extract call so a
	// platform's declared requests-per-second budget is honored even
	// though table extraction otherwise runs without inter-call delay.
	RateLimiter *rate.Limiter
	Log         *slog.Logger
}

// GetAllTableNames returns every table this platform declares.
func (p *Pipeline) GetAllTableNames() []string {
	names := make([]string, len(p.Tables))
	for i, t := range p.Tables {
		names[i] = t.Name
	}
	return names
}

// GetTableDependencies returns the declared dependencies for table.
func (p *Pipeline) GetTableDependencies(table string) []string {
	for _, t := range p.Tables {
		if t.Name == table {
			return t.DependsOn
		}
	}
	return nil
}

func (p *Pipeline) tableOrder() ([]string, error) {
	nodes := make([]scheduler.PlatformNode, len(p.Tables))
	for i, t := range p.Tables {
		nodes[i] = scheduler.PlatformNode{Name: t.Name, DependsOn: t.DependsOn}
	}
	sched, err := scheduler.New(scheduler.Config{Platforms: nodes})
	if err != nil {
		return nil, err
	}
	groups, err := sched.Schedule()
	if err != nil {
		return nil, err
	}
	order := make([]string, 0, len(p.Tables))
	for _, g := range groups {
		order = append(order, g...)
	}
	return order, nil
}

func (p *Pipeline) config(name string) TableConfig {
	for _, t := range p.Tables {
		if t.Name == name {
			return t
		}
	}
	return TableConfig{}
}

// targetTableName qualifies a logical table name with its platform, the
// "<platform>_<table>" convention every fixture table in the warehouse
// schema follows (e.g. "linkedin_campaign"), plus the configured test
// suffix when running in test mode.
func (p *Pipeline) targetTableName(cfg TableConfig) string {
	name := p.Platform + "_" + cfg.Name
	if p.TestMode && cfg.TestModeSuffix {
		suffix := p.TestSuffix
		if suffix == "" {
			suffix = "_test"
		}
		name += suffix
	}
	return name
}

// driverKeys queries DriverKeyColumn from DriverKeyTable, the mechanism
// behind a dependent table's value-level dependency (e.g. insights needs
// the campaign urns campaign already loaded).
func (p *Pipeline) driverKeys(ctx context.Context, cfg TableConfig) ([]string, error) {
	if cfg.DriverKeyTable == "" {
		return nil, nil
	}
	result, err := p.Sink.Query(ctx, fmt.Sprintf("SELECT DISTINCT %s FROM %s", cfg.DriverKeyColumn, p.targetTableName(p.config(cfg.DriverKeyTable))))
	if err != nil {
		return nil, errkind.New(errkind.Dependency, p.Platform, fmt.Errorf("platform: driver keys for %s: %w", cfg.Name, err))
	}
	keys := make([]string, 0, result.Count)
	for _, row := range result.Rows {
		if v, ok := row[cfg.DriverKeyColumn].(string); ok {
			keys = append(keys, v)
		}
	}
	if len(keys) == 0 && cfg.RequireDriverKeys {
		return nil, errkind.New(errkind.Dependency, p.Platform, fmt.Errorf("platform: %s has no driver keys from %s", cfg.Name, cfg.DriverKeyTable))
	}
	return keys, nil
}

// Run drives every table to completion in dependency order, continuing past
// a table failure unless that table declares StopOnFailure.
func (p *Pipeline) Run(ctx context.Context, dateRange DateRange) (*Result, error) {
	order, err := p.tableOrder()
	if err != nil {
		return nil, err
	}

	result := &Result{Platform: p.Platform, RowsPerTable: make(map[string]int), Errors: make(map[string]error)}

	for _, name := range order {
		cfg := p.config(name)
		tr := p.runTable(ctx, cfg, dateRange)
		if tr.Err != nil {
			result.Errors[name] = tr.Err
			if p.Log != nil {
				p.Log.Error("table load failed", "platform", p.Platform, "table", name, "error", tr.Err)
			}
			if cfg.StopOnFailure {
				return result, fmt.Errorf("platform: %s: table %s failed and is critical: %w", p.Platform, name, tr.Err)
			}
			continue
		}
		result.TablesLoaded = append(result.TablesLoaded, name)
		result.RowsPerTable[name] = tr.RowsWritten
	}
	return result, nil
}

func (p *Pipeline) runTable(ctx context.Context, cfg TableConfig, dateRange DateRange) TableResult {
	driverKeys, err := p.driverKeys(ctx, cfg)
	if err != nil {
		return TableResult{Table: cfg.Name, Err: err}
	}

	if p.RateLimiter != nil {
		if err := p.RateLimiter.Wait(ctx); err != nil {
			return TableResult{Table: cfg.Name, Err: fmt.Errorf("platform: rate limit wait for %s: %w", cfg.Name, err)}
		}
	}

	payload, err := p.Extractor.Extract(ctx, cfg.Name, dateRange, driverKeys)
	if err != nil {
		return TableResult{Table: cfg.Name, Err: fmt.Errorf("platform: extract %s: %w", cfg.Name, err)}
	}

	pipeline := processing.NewPipeline(p.Registry)
	for _, step := range cfg.Processing {
		pipeline = pipeline.AddStep(step.Name, step.Params)
	}
	transformed, err := pipeline.Process(ctx, payload)
	if err != nil {
		return TableResult{Table: cfg.Name, Err: errkind.New(errkind.Data, p.Platform, fmt.Errorf("platform: process %s: %w", cfg.Name, err))}
	}

	if p.DryRun {
		if p.Log != nil {
			p.Log.Info("dry run: skipping warehouse write", "platform", p.Platform, "table", cfg.Name, "rows", transformed.RowCount())
		}
		return TableResult{Table: cfg.Name, RowsWritten: transformed.RowCount()}
	}

	req := warehouse.LoadRequest{
		Table:            p.targetTableName(cfg),
		Mode:             cfg.LoadMode,
		Payload:          transformed,
		PKColumns:        cfg.PKColumns,
		IncrementColumns: cfg.IncrementColumns,
	}
	loadResult, err := p.Sink.Load(ctx, req)
	if err != nil {
		return TableResult{Table: cfg.Name, Err: fmt.Errorf("platform: load %s: %w", cfg.Name, err)}
	}
	return TableResult{Table: cfg.Name, RowsWritten: loadResult.RowsWritten, RowsSkipped: loadResult.RowsSkipped}
}
