// Package resource implements the Controller for shared limits and governance.
//
// One Controller is shared by every volume of a registry and covers three
// resource types:
//
//   - Memory: descriptor tables, open-file records and cached flash blocks
//     (non-blocking, fail-fast)
//   - Concurrency: long-running flash jobs such as whole-partition erase
//   - IO: token-bucket throttling of flash reads, programs and erases
//
// # Memory Management
//
// Memory tracking uses a weighted semaphore for hard limits and atomic counters
// for usage tracking. TryAcquireMemory is non-blocking and reports false
// immediately if the limit would be exceeded:
//
//	rc := resource.NewController(resource.Config{
//	    MemoryLimitBytes: 64 << 10,
//	})
//
//	if !rc.TryAcquireMemory(512) {
//	    // over the limit, caller rolls back
//	}
//	defer rc.ReleaseMemory(512)
//
// # Background Worker Limits
//
//	if err := rc.AcquireBackground(ctx); err != nil {
//	    return err
//	}
//	defer rc.ReleaseBackground()
//
// # IO Rate Limiting
//
//	if err := rc.AcquireIO(ctx, 4096); err != nil {
//	    return err
//	}
//
// # Nil Safety
//
// All methods handle nil Controller gracefully - they become no-ops.
// This allows optional resource limiting without nil checks everywhere.
package resource
