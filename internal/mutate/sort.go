package mutate

import "sort"

// stableSortByPriority is the stable sort behind SortByPriority: operations
// of equal priority keep their relative input order.
func stableSortByPriority(ops []Operation) {
	sort.SliceStable(ops, func(i, j int) bool {
		return Priority(ops[i].Verb) < Priority(ops[j].Verb)
	})
}
