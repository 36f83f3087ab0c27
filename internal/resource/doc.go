// Package resource implements process-wide limits shared by index builders.
//
//   - Memory: a fail-fast budget for the capacity of backing regions, so
//     concurrent builders cannot map more than the configured total.
//   - IO: a token bucket for snapshot export and import.
//
// # Memory Management
//
//	rc := resource.NewController(resource.Config{
//	    MemoryLimitBytes: 1 << 30,
//	})
//
//	if err := rc.AcquireMemory(capacity); err != nil {
//	    // ErrMemoryLimitExceeded - caller decides retry/backoff
//	}
//	defer rc.ReleaseMemory(capacity)
//
// # IO Rate Limiting
//
//	w := resource.NewRateLimitedWriter(ctx, file, rc)
//
// # Nil Safety
//
// All methods handle a nil Controller gracefully; they become no-ops.
package resource
