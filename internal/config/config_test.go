package config_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/adflow-io/adflow/internal/config"
)

const orchestratorYAML = `
orchestrator:
  parallel_execution: true
  max_parallel: 4
  continue_on_failure: true
  global_timeout: 3600
platforms:
  - name: linkedin
    enabled: true
    priority: 1
    timeout: 600
    retry:
      max_attempts: 3
      backoff_seconds: 1
      backoff_multiplier: 2
      max_backoff_seconds: 30
  - name: google
    enabled: true
    depends_on: [linkedin]
`

const tablesYAML = `
platforms:
  linkedin:
    - name: campaign
      request: campaigns
      type: report
      load_mode: replace
      processing:
        - name: build_date_field
        - name: add_row_loaded_date
`

func writeTemp(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadOrchestrator_ParsesPlatformsAndRetry(t *testing.T) {
	path := writeTemp(t, "orchestrator.yaml", orchestratorYAML)

	doc, err := config.LoadOrchestrator(path)
	require.NoError(t, err)
	require.True(t, doc.Orchestrator.ParallelExecution)
	require.Equal(t, 4, doc.Orchestrator.MaxParallel)
	require.Len(t, doc.Platforms, 2)
	require.Equal(t, "linkedin", doc.Platforms[0].Name)
	require.Equal(t, 3, doc.Platforms[0].Retry.MaxAttempts)
	require.Equal(t, []string{"linkedin"}, doc.Platforms[1].DependsOn)
}

func TestLoadTables_ParsesProcessingChain(t *testing.T) {
	path := writeTemp(t, "platforms.yaml", tablesYAML)

	doc, err := config.LoadTables(path)
	require.NoError(t, err)
	tables := doc.Platforms["linkedin"]
	require.Len(t, tables, 1)
	require.Equal(t, "campaign", tables[0].Name)
	require.Equal(t, "replace", tables[0].LoadMode)
	require.Len(t, tables[0].Processing, 2)
	require.Equal(t, "build_date_field", tables[0].Processing[0].Name)
}

func TestValidate_AcceptsWellFormedDocuments(t *testing.T) {
	orchPath := writeTemp(t, "orchestrator.yaml", orchestratorYAML)
	tablesPath := writeTemp(t, "platforms.yaml", tablesYAML)

	orch, err := config.LoadOrchestrator(orchPath)
	require.NoError(t, err)
	tables, err := config.LoadTables(tablesPath)
	require.NoError(t, err)

	require.NoError(t, config.Validate(orch, tables))
}

func TestValidate_RejectsUndeclaredDependency(t *testing.T) {
	orch := &config.OrchestratorYAML{
		Platforms: []config.PlatformYAML{
			{Name: "google", Enabled: true, DependsOn: []string{"missing"}},
		},
	}
	tables := &config.TablesYAML{}

	err := config.Validate(orch, tables)
	require.Error(t, err)
}

func TestValidate_RejectsUnknownLoadMode(t *testing.T) {
	orch := &config.OrchestratorYAML{
		Platforms: []config.PlatformYAML{{Name: "linkedin", Enabled: true}},
	}
	tablesPath := writeTemp(t, "platforms.yaml", `
platforms:
  linkedin:
    - name: campaign
      load_mode: bogus-mode
`)
	tables, err := config.LoadTables(tablesPath)
	require.NoError(t, err)

	err = config.Validate(orch, tables)
	require.Error(t, err)
}

func TestValidate_RejectsUndeclaredProcessingStep(t *testing.T) {
	orch := &config.OrchestratorYAML{
		Platforms: []config.PlatformYAML{{Name: "linkedin", Enabled: true}},
	}
	tablesPath := writeTemp(t, "platforms.yaml", `
platforms:
  linkedin:
    - name: campaign
      load_mode: replace
      processing:
        - name: does_not_exist
`)
	tables, err := config.LoadTables(tablesPath)
	require.NoError(t, err)

	err = config.Validate(orch, tables)
	require.Error(t, err)
}

func TestToOrchestratorConfig_ProjectsRetryAndTimeout(t *testing.T) {
	path := writeTemp(t, "orchestrator.yaml", orchestratorYAML)
	doc, err := config.LoadOrchestrator(path)
	require.NoError(t, err)

	cfg := config.ToOrchestratorConfig(doc, nil)
	require.True(t, cfg.ParallelExecution)
	require.Equal(t, 4, cfg.MaxParallel)
	require.Len(t, cfg.Platforms, 2)
	require.Equal(t, 3, cfg.Platforms[0].Retry.MaxAttempts)
	require.Equal(t, "google", cfg.Platforms[1].Name)
	require.Equal(t, []string{"linkedin"}, cfg.Platforms[1].DependsOn)
}
