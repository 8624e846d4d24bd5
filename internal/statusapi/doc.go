// Package statusapi serves the bridge's operational HTTP API.
//
// /health is open. /api/sessions, /api/runs, /api/runs/stats and the
// /api/runs/stream SSE feed require a bearer JWT issued by the token command.
package statusapi
