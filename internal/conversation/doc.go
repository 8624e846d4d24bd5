// Package conversation turns the remote assistants service into a synchronous
// chat turn.
//
// # Overview
//
// The remote service is asynchronous: a reply is produced by starting a run
// on a thread and polling it until it finishes. This package hides that model
// behind three calls used by the chat bridge:
//
//   - Service.SendMessage(ctx, userID, text): one user turn
//   - Service.ExplainLast(ctx, userID): ask the assistant to explain its last reply
//   - Service.Restart(ctx, userID): drop the session and start a new thread
//
// # Components
//
// Leaf first:
//
//   - ExtractReply / ExtractContent: reads the assistant's text out of a
//     loosely structured message body, trying a fixed list of shapes in order
//   - Runner: starts a run and polls it to a terminal state (bounded by PollPolicy)
//   - Poster: appends a message to a thread
//   - Provisioner: creates a thread, or synthesizes a fallback handle
//   - SessionStore: one Session per user, created lazily, sharded by user id
//   - Service: composes the above
//   - RunFeed: fans run records out to live subscribers next to the ledger
//
// # Fallback Handles
//
// When a thread cannot be created the session gets a fallback handle
// ("fallback_<user>_<unix>"). Handle.IsFallback recognizes it without a
// network call. Poster and Runner never contact the service for a fallback
// handle: posts are recorded locally and runs return DegradedReply. A session
// keeps its fallback handle until Restart.
//
// # Run State Machine
//
//	Created ──CreateRun──▶ Polling ──completed──────────▶ Succeeded
//	                          │    ──failed/expired/cancelled─▶ Failed
//	                          │    ──attempts exhausted──▶ TimedOut
//	                          └── any other status: wait Interval, poll again
//
// Unknown statuses count as "keep polling" and still consume an attempt, so
// every run reaches a terminal state within MaxAttempts polls.
//
// # Errors
//
// Per-request failures are returned as values: ErrTransport,
// ErrMalformedResponse (ErrRunNotCreated), *RunFailureError, ErrTimeout and
// ErrNoAssistantMessage. UserMessage renders any of them for the chat user.
// A failed turn is not appended to the session history.
//
// # History
//
// Session history is in memory only and append-only. A successful SendMessage
// appends the user message and the assistant reply together.
package conversation
