package mutate

import (
	"context"
	"fmt"
)

// ApplyBatch validates and priority-sorts ops, then applies them against the
// slide at index through client in one call. It returns the count of
// operations actually applied — callers (the Validation Loop) use this count
// toward the loop's operations-executed total; an empty batch gets back 0,
// and a batch containing any invalid operation is rejected whole (0 and an
// error) before the client is called.
func ApplyBatch(ctx context.Context, client Client, index int, ops []Operation) (int, error) {
	if len(ops) == 0 {
		return 0, nil
	}
	valid := make([]Operation, 0, len(ops))
	for _, op := range ops {
		if err := op.Validate(); err != nil {
			return 0, fmt.Errorf("mutate: invalid operation in batch for slide %d: %w", index, err)
		}
		valid = append(valid, op)
	}
	SortByPriority(valid)
	if err := client.Apply(ctx, index, valid); err != nil {
		return 0, fmt.Errorf("mutate: applying %d operations to slide %d: %w", len(valid), index, err)
	}
	return len(valid), nil
}
