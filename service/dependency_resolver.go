package services

import (
	"fmt"
	"sort"
	"strings"

	model "github.com/visaeagle/VisaEagle-backend/models"
)

// Priority floor applied to tasks whose prerequisites are unmet.
const blockedTaskPriority = 10

// DependencyResolver orders one evaluation batch so prerequisites come
// before dependents, and annotates tasks that are still blocked.
type DependencyResolver struct{}

func NewDependencyResolver() *DependencyResolver {
	return &DependencyResolver{}
}

// Resolve topologically orders the batch by rule ID. Only edges pointing at
// rules present in the same batch count; a prerequisite satisfied in an
// earlier evaluation simply produces no edge. A cycle is a hard error the
// caller must handle by falling back to the unordered batch.
func (r *DependencyResolver) Resolve(tasks []model.GeneratedTask) ([]model.GeneratedTask, error) {
	if len(tasks) <= 1 {
		return tasks, nil
	}

	byRule := make(map[string]*model.GeneratedTask, len(tasks))
	for i := range tasks {
		byRule[tasks[i].RuleID] = &tasks[i]
	}

	// Adjacency: prerequisite -> dependents, restricted to in-batch edges.
	edges := make(map[string][]string)
	inDegree := make(map[string]int, len(tasks))
	for i := range tasks {
		inDegree[tasks[i].RuleID] = 0
	}
	for i := range tasks {
		for _, prereq := range tasks[i].Prerequisites {
			if _, present := byRule[prereq]; !present {
				continue
			}
			edges[prereq] = append(edges[prereq], tasks[i].RuleID)
			inDegree[tasks[i].RuleID]++
		}
	}

	if cycle := findCycle(byRule, edges); cycle != "" {
		return nil, fmt.Errorf("%w: %s", ErrDependencyCycle, cycle)
	}

	ordered, err := kahnOrder(tasks, edges, inDegree)
	if err != nil {
		return nil, err
	}

	annotateBlocked(ordered, byRule)
	return ordered, nil
}

// findCycle runs a depth-first search with a recursion stack and returns a
// readable description of the first cycle found, or "".
func findCycle(byRule map[string]*model.GeneratedTask, edges map[string][]string) string {
	const (
		unvisited = 0
		inStack   = 1
		done      = 2
	)
	state := make(map[string]int, len(byRule))

	ids := make([]string, 0, len(byRule))
	for id := range byRule {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	var cycle string
	var visit func(id string, trail []string) bool
	visit = func(id string, trail []string) bool {
		state[id] = inStack
		trail = append(trail, id)
		for _, next := range edges[id] {
			switch state[next] {
			case inStack:
				cycle = strings.Join(append(trail, next), " -> ")
				return true
			case unvisited:
				if visit(next, trail) {
					return true
				}
			}
		}
		state[id] = done
		return false
	}

	for _, id := range ids {
		if state[id] == unvisited && visit(id, nil) {
			return cycle
		}
	}
	return ""
}

// kahnOrder produces a stable topological order: the zero-in-degree frontier
// is processed highest-priority first so independent tasks keep their rank.
func kahnOrder(tasks []model.GeneratedTask, edges map[string][]string, inDegree map[string]int) ([]model.GeneratedTask, error) {
	byRule := make(map[string]model.GeneratedTask, len(tasks))
	for _, task := range tasks {
		byRule[task.RuleID] = task
	}

	queue := make([]string, 0, len(tasks))
	for _, task := range tasks {
		if inDegree[task.RuleID] == 0 {
			queue = append(queue, task.RuleID)
		}
	}
	sortFrontier(queue, byRule)

	ordered := make([]model.GeneratedTask, 0, len(tasks))
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		ordered = append(ordered, byRule[id])

		released := make([]string, 0)
		for _, next := range edges[id] {
			inDegree[next]--
			if inDegree[next] == 0 {
				released = append(released, next)
			}
		}
		sortFrontier(released, byRule)
		queue = append(queue, released...)
	}

	// The DFS above should have caught every cycle; a count mismatch here
	// means it did not.
	if len(ordered) != len(tasks) {
		return nil, fmt.Errorf("%w: topological sort produced %d of %d tasks", ErrDependencyCycle, len(ordered), len(tasks))
	}
	return ordered, nil
}

func sortFrontier(ids []string, byRule map[string]model.GeneratedTask) {
	sort.SliceStable(ids, func(i, j int) bool {
		a, b := byRule[ids[i]], byRule[ids[j]]
		if a.Priority != b.Priority {
			return a.Priority > b.Priority
		}
		return a.RuleID < b.RuleID
	})
}

// annotateBlocked marks tasks whose in-batch prerequisites are not completed,
// appending a waiting-on note and flooring their priority.
func annotateBlocked(ordered []model.GeneratedTask, byRule map[string]*model.GeneratedTask) {
	for i := range ordered {
		var unmet []string
		for _, prereq := range ordered[i].Prerequisites {
			dep, present := byRule[prereq]
			if !present || dep.Completed {
				continue
			}
			unmet = append(unmet, dep.Title)
		}
		if len(unmet) == 0 {
			continue
		}
		ordered[i].Blocked = true
		ordered[i].Description = fmt.Sprintf("%s (waiting on: %s)", ordered[i].Description, strings.Join(unmet, ", "))
		if ordered[i].Priority > blockedTaskPriority {
			ordered[i].Priority = blockedTaskPriority
		}
	}
}
