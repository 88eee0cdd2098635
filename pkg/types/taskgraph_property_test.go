// Property: for any graph built in code (no recorded payload key order)
// with n USER_INPUT placeholders spread over its subtasks, FindPlaceholders
// returns exactly n triples, ordered by subtask index first and field name
// second.
package types

import (
	"fmt"
	"sort"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
)

func TestFindPlaceholdersOrderProperty(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100

	properties := gopter.NewProperties(parameters)

	// counts[i] is the number of USER_INPUT placeholders in subtask i.
	properties.Property("count and order", prop.ForAll(
		func(counts []int) bool {
			g := &TaskGraph{Query: "q"}
			total := 0
			for i, n := range counts {
				if n < 0 {
					n = -n
				}
				n = n % 4
				sub := &Subtask{
					Name:     fmt.Sprintf("step %d", i),
					Function: fmt.Sprintf("fn_%d", i),
					Backend:  BackendNone,
					Payload:  map[string]Value{"fixed": Concrete("v")},
				}
				for j := 0; j < n; j++ {
					sub.Payload[fmt.Sprintf("p%d", j)] = UserInput(fmt.Sprintf("param_%d_%d", i, j))
				}
				g.Subtasks = append(g.Subtasks, sub)
				total += n
			}

			found := g.FindPlaceholders(ValueUserInput)
			if len(found) != total {
				return false
			}

			// Subtask order, then lexicographic field order within one subtask.
			for k := 1; k < len(found); k++ {
				prev, cur := found[k-1], found[k]
				if cur.SubtaskIndex < prev.SubtaskIndex {
					return false
				}
				if cur.SubtaskIndex == prev.SubtaskIndex && cur.Field < prev.Field {
					return false
				}
			}

			// Fields within one subtask must be sorted.
			perSub := map[int][]string{}
			for _, ph := range found {
				perSub[ph.SubtaskIndex] = append(perSub[ph.SubtaskIndex], ph.Field)
			}
			for _, fields := range perSub {
				if !sort.StringsAreSorted(fields) {
					return false
				}
			}
			return true
		},
		gen.SliceOf(gen.IntRange(0, 3)),
	))

	properties.TestingRun(t)
}
