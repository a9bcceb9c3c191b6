// Package config loads and validates the two YAML documents an adflow run
// needs: the orchestrator document (parallelism, retry, dependency graph)
// and the platform table document (per-platform extraction/processing/load
// declarations), the way tarsy's pkg/config loads and validates its YAML
// configuration tree.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/adflow-io/adflow/pkg/errkind"
	"github.com/adflow-io/adflow/pkg/orchestrator"
	"github.com/adflow-io/adflow/pkg/platform"
	"github.com/adflow-io/adflow/pkg/processing"
	"github.com/adflow-io/adflow/pkg/retry"
	"github.com/adflow-io/adflow/pkg/warehouse"
)

// RetryYAML mirrors retry.Config's fields as they appear under a platform's
// `retry:` key.
type RetryYAML struct {
	MaxAttempts       int     `yaml:"max_attempts"`
	BackoffSeconds    float64 `yaml:"backoff_seconds"`
	BackoffMultiplier float64 `yaml:"backoff_multiplier"`
	MaxBackoffSeconds float64 `yaml:"max_backoff_seconds"`
}

func (r RetryYAML) toRetryConfig() retry.Config {
	cfg := retry.Config{
		MaxAttempts:       r.MaxAttempts,
		BackoffMultiplier: r.BackoffMultiplier,
	}
	if r.BackoffSeconds > 0 {
		cfg.BaseBackoff = time.Duration(r.BackoffSeconds * float64(time.Second))
	}
	if r.MaxBackoffSeconds > 0 {
		cfg.MaxBackoff = time.Duration(r.MaxBackoffSeconds * float64(time.Second))
	}
	return cfg
}

// PlatformYAML is one entry in the orchestrator document's `platforms:` list.
type PlatformYAML struct {
	Name          string        `yaml:"name"`
	Enabled       bool          `yaml:"enabled"`
	Priority      int           `yaml:"priority"`
	TimeoutSecond float64       `yaml:"timeout"`
	DependsOn     []string      `yaml:"depends_on"`
	Retry         RetryYAML     `yaml:"retry"`
	RateLimit     RateLimitYAML `yaml:"rate_limit"`
}

// RateLimitYAML bounds how fast a platform's Extractor may be called.
// RequestsPerSecond <= 0 means unlimited.
type RateLimitYAML struct {
	RequestsPerSecond float64 `yaml:"requests_per_second"`
	Burst             int     `yaml:"burst"`
}

// OrchestratorYAML is the root of the orchestrator.yaml document.
type OrchestratorYAML struct {
	Orchestrator struct {
		ParallelExecution bool    `yaml:"parallel_execution"`
		MaxParallel       int     `yaml:"max_parallel"`
		ContinueOnFailure bool    `yaml:"continue_on_failure"`
		GlobalTimeout     float64 `yaml:"global_timeout"`
	} `yaml:"orchestrator"`
	Platforms      []PlatformYAML `yaml:"platforms"`
	ParallelGroups [][]string     `yaml:"parallel_groups"`
}

// StepYAML is one `{step_name: params}` entry in a table's processing list.
// YAML naturally decodes a one-key mapping into a map, which loseTheOrder;
// to preserve ordering (processing is an ordered pipeline) the document
// instead uses a two-field form: `{name: step_name, params: {...}}`.
type StepYAML struct {
	Name   string         `yaml:"name"`
	Params map[string]any `yaml:"params"`
}

// TableYAML is one logical table under a platform in the tables document.
type TableYAML struct {
	Request          string         `yaml:"request"`
	Type             string         `yaml:"type"`
	PageSize         int            `yaml:"page_size"`
	Fields           []string   `yaml:"fields"`
	DependsOn        []string   `yaml:"depends_on"`
	Processing       []StepYAML `yaml:"processing"`
	LoadMode         string     `yaml:"load_mode"`
	PKColumns        []string   `yaml:"pk_columns"`
	IncrementColumns []string   `yaml:"increment_columns"`
	Day              int        `yaml:"day"`
	DriverKeyTable   string     `yaml:"driver_key_table"`
	DriverKeyColumn  string     `yaml:"driver_key_column"`
	RequireDriverKey bool       `yaml:"require_driver_keys"`
	StopOnFailure    bool       `yaml:"stop_on_failure"`
	TestModeSuffix   bool       `yaml:"test_mode_suffix"`
}

// TablesYAML is the root of the platforms.yaml document: platform name to
// its ordered list of logical tables.
type TablesYAML struct {
	Platforms map[string][]struct {
		Name string `yaml:"name"`
		TableYAML
	} `yaml:"platforms"`
}

// LoadOrchestrator reads and parses the orchestrator document. It does not
// validate the dependency graph; that happens once both documents are
// available, in Validate.
func LoadOrchestrator(path string) (*OrchestratorYAML, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errkind.New(errkind.Config, "", fmt.Errorf("config: read %s: %w", path, err))
	}
	var doc OrchestratorYAML
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, errkind.New(errkind.Config, "", fmt.Errorf("config: parse %s: %w", path, err))
	}
	return &doc, nil
}

// LoadTables reads and parses the platform table document.
func LoadTables(path string) (*TablesYAML, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errkind.New(errkind.Config, "", fmt.Errorf("config: read %s: %w", path, err))
	}
	var doc TablesYAML
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, errkind.New(errkind.Config, "", fmt.Errorf("config: parse %s: %w", path, err))
	}
	return &doc, nil
}

// Validate cross-checks the two documents: every platform referenced by a
// dependency must be declared, every table's load_mode must be a known
// warehouse.LoadMode, and every processing step name must be registered in
// pkg/processing. It never inspects the dependency graph for cycles itself;
// orchestrator.New does that via pkg/scheduler and returns the same
// ConfigError kind.
func Validate(orch *OrchestratorYAML, tables *TablesYAML) error {
	declared := make(map[string]bool, len(orch.Platforms))
	for _, p := range orch.Platforms {
		if p.Name == "" {
			return errkind.New(errkind.Config, "", fmt.Errorf("config: platform entry missing name"))
		}
		declared[p.Name] = true
	}
	for _, p := range orch.Platforms {
		for _, dep := range p.DependsOn {
			if !declared[dep] {
				return errkind.New(errkind.Config, p.Name, fmt.Errorf("config: depends on undeclared platform %q", dep))
			}
		}
	}

	for name, tableList := range tables.Platforms {
		if !declared[name] {
			return errkind.New(errkind.Config, name, fmt.Errorf("config: tables declared for unknown platform %q", name))
		}
		for _, tbl := range tableList {
			if tbl.Name == "" {
				return errkind.New(errkind.Config, name, fmt.Errorf("config: table entry missing name"))
			}
			if tbl.LoadMode != "" && !isKnownLoadMode(tbl.LoadMode) {
				return errkind.New(errkind.Config, name, fmt.Errorf("config: table %q has unknown load_mode %q", tbl.Name, tbl.LoadMode))
			}
			for _, step := range tbl.Processing {
				if _, ok := processing.DefaultRegistry().Lookup(step.Name); !ok {
					return errkind.New(errkind.Config, name, fmt.Errorf("config: table %q references undeclared step %q", tbl.Name, step.Name))
				}
			}
		}
	}
	return nil
}

func isKnownLoadMode(mode string) bool {
	switch warehouse.LoadMode(mode) {
	case warehouse.Append, warehouse.Replace, warehouse.Upsert, warehouse.Increment:
		return true
	default:
		return false
	}
}

// ToOrchestratorConfig projects the orchestrator document into
// orchestrator.Config. pipelines maps platform name to its already-built
// *platform.Pipeline (constructed by the caller, since pipeline
// construction requires wiring concrete extractors per platform).
func ToOrchestratorConfig(doc *OrchestratorYAML, pipelines map[string]*platform.Pipeline) orchestrator.Config {
	cfg := orchestrator.Config{
		ParallelExecution: doc.Orchestrator.ParallelExecution,
		MaxParallel:       doc.Orchestrator.MaxParallel,
		ContinueOnFailure: doc.Orchestrator.ContinueOnFailure,
		ParallelGroups:    doc.ParallelGroups,
	}
	if doc.Orchestrator.GlobalTimeout > 0 {
		cfg.GlobalTimeout = time.Duration(doc.Orchestrator.GlobalTimeout * float64(time.Second))
	}
	for _, p := range doc.Platforms {
		entry := orchestrator.PlatformEntry{
			Name:      p.Name,
			Enabled:   p.Enabled,
			Priority:  p.Priority,
			DependsOn: p.DependsOn,
			Retry:     p.Retry.toRetryConfig(),
			Pipeline:  pipelines[p.Name],
		}
		if p.TimeoutSecond > 0 {
			entry.Timeout = time.Duration(p.TimeoutSecond * float64(time.Second))
		}
		cfg.Platforms = append(cfg.Platforms, entry)
	}
	return cfg
}

// ToTableConfigs projects one platform's table list into
// []platform.TableConfig, ready to pair with an Extractor inside a
// platform.Pipeline.
func ToTableConfigs(tables []struct {
	Name string `yaml:"name"`
	TableYAML
}) []platform.TableConfig {
	out := make([]platform.TableConfig, 0, len(tables))
	for _, t := range tables {
		steps := make([]platform.StepConfig, 0, len(t.Processing))
		for _, s := range t.Processing {
			steps = append(steps, platform.StepConfig{Name: s.Name, Params: s.Params})
		}
		out = append(out, platform.TableConfig{
			Name:              t.Name,
			DependsOn:         t.DependsOn,
			Processing:        steps,
			LoadMode:          warehouse.LoadMode(t.LoadMode),
			PKColumns:         t.PKColumns,
			IncrementColumns:  t.IncrementColumns,
			TestModeSuffix:    t.TestModeSuffix,
			StopOnFailure:     t.StopOnFailure,
			DriverKeyTable:    t.DriverKeyTable,
			DriverKeyColumn:   t.DriverKeyColumn,
			RequireDriverKeys: t.RequireDriverKey,
		})
	}
	return out
}
