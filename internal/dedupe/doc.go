// Package dedupe drops events the bridge has already handled.
//
// Matrix sync can deliver the same event more than once (reconnects, gappy
// syncs, a restart before the next_batch token was saved). The bridge passes
// every event id through Filter.FirstSeen and ignores ids it has seen inside
// the TTL window.
package dedupe
