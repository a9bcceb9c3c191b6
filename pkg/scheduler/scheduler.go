// Package scheduler turns a declared platform dependency graph into ordered
// execution groups via Kahn's algorithm, the way the orchestrator decides
// which platforms may run concurrently.
package scheduler

import (
	"fmt"
	"sort"

	"github.com/adflow-io/adflow/pkg/errkind"
)

// PlatformNode is one platform's position in the dependency graph.
type PlatformNode struct {
	Name      string
	DependsOn []string
}

// Config describes the full dependency graph plus an optional manual
// partition into execution groups.
type Config struct {
	Platforms      []PlatformNode
	ParallelGroups [][]string
}

// CircularDependencyError reports the platforms left over once Kahn's
// algorithm can no longer find a zero-in-degree node: every node still
// outstanding is on some cycle.
type CircularDependencyError struct {
	Cycle []string
}

func (e *CircularDependencyError) Error() string {
	return fmt.Sprintf("scheduler: circular dependency among platforms %v", e.Cycle)
}

// Scheduler computes execution groups for a validated Config.
type Scheduler struct {
	cfg      Config
	adjacent map[string][]string // platform -> its dependents
	indegree map[string]int
}

// New validates cfg and builds a Scheduler, or returns a ConfigError-kind
// error (undeclared dependency, or a parallel_groups partition that
// conflicts with depends_on) per the "reject at config-load time" decision.
func New(cfg Config) (*Scheduler, error) {
	known := make(map[string]bool, len(cfg.Platforms))
	for _, p := range cfg.Platforms {
		known[p.Name] = true
	}
	for _, p := range cfg.Platforms {
		for _, dep := range p.DependsOn {
			if !known[dep] {
				return nil, errkind.New(errkind.Config, p.Name, fmt.Errorf("scheduler: platform %q depends on undeclared platform %q", p.Name, dep))
			}
		}
	}

	s := &Scheduler{
		cfg:      cfg,
		adjacent: make(map[string][]string, len(cfg.Platforms)),
		indegree: make(map[string]int, len(cfg.Platforms)),
	}
	for _, p := range cfg.Platforms {
		if _, ok := s.indegree[p.Name]; !ok {
			s.indegree[p.Name] = 0
		}
		for _, dep := range p.DependsOn {
			s.adjacent[dep] = append(s.adjacent[dep], p.Name)
			s.indegree[p.Name]++
		}
	}

	if len(cfg.ParallelGroups) > 0 {
		if err := validateManualGroups(cfg); err != nil {
			return nil, errkind.New(errkind.Config, "", err)
		}
	}

	return s, nil
}

// validateManualGroups checks that a manually supplied parallel_groups
// partition is a valid refinement of the dependency order: every platform's
// group index must be strictly after every one of its dependencies' group
// indices.
func validateManualGroups(cfg Config) error {
	groupOf := make(map[string]int, len(cfg.Platforms))
	for gi, group := range cfg.ParallelGroups {
		for _, name := range group {
			if _, dup := groupOf[name]; dup {
				return fmt.Errorf("scheduler: platform %q listed in more than one parallel_groups entry", name)
			}
			groupOf[name] = gi
		}
	}
	deps := make(map[string][]string, len(cfg.Platforms))
	for _, p := range cfg.Platforms {
		deps[p.Name] = p.DependsOn
		if _, ok := groupOf[p.Name]; !ok {
			return fmt.Errorf("scheduler: platform %q is missing from parallel_groups", p.Name)
		}
	}
	for name, gi := range groupOf {
		for _, dep := range deps[name] {
			depGi, ok := groupOf[dep]
			if !ok || depGi >= gi {
				return fmt.Errorf("scheduler: parallel_groups conflicts with depends_on: %q (group %d) must follow its dependency %q (group %d)", name, gi, dep, depGi)
			}
		}
	}
	return nil
}

// Schedule returns the ordered execution groups: either the caller's
// validated manual partition, or the natural Kahn frontier groups with each
// group's members sorted alphabetically for deterministic output.
func (s *Scheduler) Schedule() ([][]string, error) {
	if len(s.cfg.ParallelGroups) > 0 {
		groups := make([][]string, len(s.cfg.ParallelGroups))
		for i, g := range s.cfg.ParallelGroups {
			groups[i] = append([]string{}, g...)
			sort.Strings(groups[i])
		}
		return groups, nil
	}

	indegree := make(map[string]int, len(s.indegree))
	for k, v := range s.indegree {
		indegree[k] = v
	}

	var groups [][]string
	processed := 0
	total := len(indegree)
	for processed < total {
		var frontier []string
		for name, deg := range indegree {
			if deg == 0 {
				frontier = append(frontier, name)
			}
		}
		if len(frontier) == 0 {
			remaining := make([]string, 0, len(indegree))
			for name := range indegree {
				remaining = append(remaining, name)
			}
			sort.Strings(remaining)
			return nil, &CircularDependencyError{Cycle: remaining}
		}
		sort.Strings(frontier)
		groups = append(groups, frontier)

		for _, name := range frontier {
			delete(indegree, name)
			for _, dependent := range s.adjacent[name] {
				indegree[dependent]--
			}
		}
		processed += len(frontier)
	}
	return groups, nil
}

// CanExecute reports whether platform's declared dependencies are all
// present in completed, supporting event-driven scheduling outside the
// batch Schedule() path.
func (s *Scheduler) CanExecute(platform string, completed map[string]bool) bool {
	for _, p := range s.cfg.Platforms {
		if p.Name != platform {
			continue
		}
		for _, dep := range p.DependsOn {
			if !completed[dep] {
				return false
			}
		}
		return true
	}
	return false
}
