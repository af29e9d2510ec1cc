package resilience

import (
	"context"
	"fmt"
	"hash/fnv"
	"sort"
)

// Args carries keyword-style arguments for a cached operation.
type Args map[string]any

// OpKey derives a deterministic cache key from an operation name and its
// arguments. Argument keys are sorted before hashing, so equivalent calls
// collide on the same key regardless of how the arguments were presented.
func OpKey(name string, args Args) string {
	keys := make([]string, 0, len(args))
	for k := range args {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	h := fnv.New64a()
	h.Write([]byte(name))
	for _, k := range keys {
		fmt.Fprintf(h, "|%s=%v", k, args[k])
	}

	return fmt.Sprintf("%s:%x", name, h.Sum64())
}

// CachedOp wraps an operation so its result is cached under a key derived
// from name and the call's arguments. Only successful results are stored;
// failures always reach the underlying operation again.
func CachedOp[T any](cache Cache, name string, fn func(ctx context.Context, args Args) (T, error)) func(ctx context.Context, args Args) (T, error) {
	return func(ctx context.Context, args Args) (T, error) {
		key := OpKey(name, args)

		if v, ok := cache.Get(key); ok {
			if result, ok := v.(T); ok {
				return result, nil
			}
		}

		result, err := fn(ctx, args)
		if err != nil {
			return result, err
		}

		cache.Set(key, result)
		return result, nil
	}
}
