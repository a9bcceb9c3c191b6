package scheduler_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/adflow-io/adflow/pkg/scheduler"
)

func TestSchedule_IndependentPlatforms_OneGroup(t *testing.T) {
	s, err := scheduler.New(scheduler.Config{Platforms: []scheduler.PlatformNode{
		{Name: "linkedin"}, {Name: "facebook"}, {Name: "google"},
	}})
	require.NoError(t, err)

	groups, err := s.Schedule()
	require.NoError(t, err)
	require.Len(t, groups, 1)
	assert.Equal(t, []string{"facebook", "google", "linkedin"}, groups[0])
}

func TestSchedule_DependencyOrdersGroups(t *testing.T) {
	// M,L,F run independently; G depends on M and trails it by a group.
	s, err := scheduler.New(scheduler.Config{Platforms: []scheduler.PlatformNode{
		{Name: "M"}, {Name: "L"}, {Name: "F"}, {Name: "G", DependsOn: []string{"M"}},
	}})
	require.NoError(t, err)

	groups, err := s.Schedule()
	require.NoError(t, err)
	require.Len(t, groups, 2)
	assert.ElementsMatch(t, []string{"M", "L"}, groups[0])
	assert.ElementsMatch(t, []string{"F", "G"}, groups[1])
}

func TestSchedule_DeterministicAlphabeticalTieBreak(t *testing.T) {
	s, err := scheduler.New(scheduler.Config{Platforms: []scheduler.PlatformNode{
		{Name: "zeta"}, {Name: "alpha"}, {Name: "mid"},
	}})
	require.NoError(t, err)

	groups, err := s.Schedule()
	require.NoError(t, err)
	require.Len(t, groups, 1)
	assert.Equal(t, []string{"alpha", "mid", "zeta"}, groups[0])
}

func TestSchedule_CircularDependency_Errors(t *testing.T) {
	s, err := scheduler.New(scheduler.Config{Platforms: []scheduler.PlatformNode{
		{Name: "A", DependsOn: []string{"B"}},
		{Name: "B", DependsOn: []string{"A"}},
	}})
	require.NoError(t, err)

	_, err = s.Schedule()
	require.Error(t, err)
	var cycle *scheduler.CircularDependencyError
	require.ErrorAs(t, err, &cycle)
}

func TestNew_RejectsUndeclaredDependency(t *testing.T) {
	_, err := scheduler.New(scheduler.Config{Platforms: []scheduler.PlatformNode{
		{Name: "A", DependsOn: []string{"ghost"}},
	}})
	require.Error(t, err)
}

func TestNew_RejectsConflictingParallelGroupsAndDependsOn(t *testing.T) {
	_, err := scheduler.New(scheduler.Config{
		Platforms: []scheduler.PlatformNode{
			{Name: "A"},
			{Name: "B", DependsOn: []string{"A"}},
		},
		ParallelGroups: [][]string{{"A", "B"}}, // B must not share A's group
	})
	require.Error(t, err)
}

func TestNew_AcceptsValidParallelGroupsRefinement(t *testing.T) {
	s, err := scheduler.New(scheduler.Config{
		Platforms: []scheduler.PlatformNode{
			{Name: "A"},
			{Name: "B", DependsOn: []string{"A"}},
		},
		ParallelGroups: [][]string{{"A"}, {"B"}},
	})
	require.NoError(t, err)

	groups, err := s.Schedule()
	require.NoError(t, err)
	assert.Equal(t, [][]string{{"A"}, {"B"}}, groups)
}

func TestCanExecute(t *testing.T) {
	s, err := scheduler.New(scheduler.Config{Platforms: []scheduler.PlatformNode{
		{Name: "A"},
		{Name: "B", DependsOn: []string{"A"}},
	}})
	require.NoError(t, err)

	assert.True(t, s.CanExecute("A", map[string]bool{}))
	assert.False(t, s.CanExecute("B", map[string]bool{}))
	assert.True(t, s.CanExecute("B", map[string]bool{"A": true}))
}
