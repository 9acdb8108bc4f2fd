package services

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	model "github.com/visaeagle/VisaEagle-backend/models"
)

func taskIDs(tasks []model.GeneratedTask) []string {
	ids := make([]string, len(tasks))
	for i, task := range tasks {
		ids[i] = task.RuleID
	}
	return ids
}

func TestResolveOrdersPrerequisitesFirst(t *testing.T) {
	resolver := NewDependencyResolver()

	tasks := []model.GeneratedTask{
		{RuleID: "opt-application", Title: "File the OPT application", Description: "File form I-765", Priority: 90, Prerequisites: []string{"opt-advising-session"}},
		{RuleID: "opt-advising-session", Title: "Attend an OPT advising session", Description: "Book with the DSO", Priority: 60},
	}

	ordered, err := resolver.Resolve(tasks)
	require.NoError(t, err)
	assert.Equal(t, []string{"opt-advising-session", "opt-application"}, taskIDs(ordered))

	// The dependent is blocked until its prerequisite completes.
	blocked := ordered[1]
	assert.True(t, blocked.Blocked)
	assert.Equal(t, blockedTaskPriority, blocked.Priority)
	assert.Equal(t, "File form I-765 (waiting on: Attend an OPT advising session)", blocked.Description)

	prereq := ordered[0]
	assert.False(t, prereq.Blocked)
	assert.Equal(t, 60, prereq.Priority)
}

func TestResolveIgnoresExternalPrerequisites(t *testing.T) {
	resolver := NewDependencyResolver()

	tasks := []model.GeneratedTask{
		{RuleID: "stem-extension", Title: "Apply for the STEM extension", Priority: 80, Prerequisites: []string{"rule-not-in-batch"}},
		{RuleID: "passport-renewal", Title: "Renew your passport", Priority: 40},
	}

	ordered, err := resolver.Resolve(tasks)
	require.NoError(t, err)
	assert.Equal(t, []string{"stem-extension", "passport-renewal"}, taskIDs(ordered))
	assert.False(t, ordered[0].Blocked)
	assert.Equal(t, 80, ordered[0].Priority)
}

func TestResolveCompletedPrerequisiteDoesNotBlock(t *testing.T) {
	resolver := NewDependencyResolver()

	tasks := []model.GeneratedTask{
		{RuleID: "dependent", Title: "Dependent", Description: "Second step", Priority: 50, Prerequisites: []string{"prereq"}},
		{RuleID: "prereq", Title: "Prerequisite", Priority: 70, Completed: true},
	}

	ordered, err := resolver.Resolve(tasks)
	require.NoError(t, err)
	assert.Equal(t, []string{"prereq", "dependent"}, taskIDs(ordered))
	assert.False(t, ordered[1].Blocked)
	assert.Equal(t, "Second step", ordered[1].Description)
	assert.Equal(t, 50, ordered[1].Priority)
}

func TestResolveDetectsCycle(t *testing.T) {
	resolver := NewDependencyResolver()

	tasks := []model.GeneratedTask{
		{RuleID: "a", Title: "A", Prerequisites: []string{"b"}},
		{RuleID: "b", Title: "B", Prerequisites: []string{"a"}},
	}

	_, err := resolver.Resolve(tasks)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrDependencyCycle)
	assert.Contains(t, err.Error(), " -> ")
}

func TestResolveFrontierOrdering(t *testing.T) {
	resolver := NewDependencyResolver()

	// No edges at all: order is by descending priority, rule ID breaking ties.
	tasks := []model.GeneratedTask{
		{RuleID: "charlie", Priority: 50},
		{RuleID: "alpha", Priority: 90},
		{RuleID: "bravo", Priority: 90},
		{RuleID: "delta", Priority: 10},
	}

	ordered, err := resolver.Resolve(tasks)
	require.NoError(t, err)
	assert.Equal(t, []string{"alpha", "bravo", "charlie", "delta"}, taskIDs(ordered))
}

func TestResolveDiamondDependency(t *testing.T) {
	resolver := NewDependencyResolver()

	tasks := []model.GeneratedTask{
		{RuleID: "final", Title: "Final", Priority: 100, Prerequisites: []string{"left", "right"}},
		{RuleID: "left", Title: "Left", Priority: 60, Prerequisites: []string{"root"}},
		{RuleID: "right", Title: "Right", Priority: 70, Prerequisites: []string{"root"}},
		{RuleID: "root", Title: "Root", Priority: 20},
	}

	ordered, err := resolver.Resolve(tasks)
	require.NoError(t, err)
	ids := taskIDs(ordered)
	assert.Equal(t, "root", ids[0])
	assert.Equal(t, "final", ids[3])
	assert.ElementsMatch(t, []string{"left", "right"}, ids[1:3])
}

func TestResolveEmptyAndSingleton(t *testing.T) {
	resolver := NewDependencyResolver()

	ordered, err := resolver.Resolve(nil)
	require.NoError(t, err)
	assert.Empty(t, ordered)

	single := []model.GeneratedTask{{RuleID: "only"}}
	ordered, err = resolver.Resolve(single)
	require.NoError(t, err)
	assert.Equal(t, []string{"only"}, taskIDs(ordered))
}
