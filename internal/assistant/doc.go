// Package assistant is the client for the remote assistants service.
//
// # Overview
//
// The remote service exposes an asynchronous "thread + run" model over
// REST/JSON. A thread is a durable conversation context, messages are appended
// to it, and a run is one processing pass that may add an assistant message.
//
// Client wraps github.com/sashabaranov/go-openai for the typed endpoints:
//
//   - CreateThread:  POST /threads
//   - GetThread:     GET  /threads/{id}
//   - CreateMessage: POST /threads/{id}/messages
//   - CreateRun:     POST /threads/{id}/runs
//   - GetRun:        GET  /threads/{id}/runs/{run_id}
//   - VerifyCredentials: GET /models
//
// ListMessages (GET /threads/{id}/messages) is fetched without the typed
// decoder. Message content is returned as json.RawMessage because its shape is
// not stable across service versions; the conversation package decides how to
// read it.
//
// Every request carries the bearer credential and the OpenAI-Beta
// "assistants=v2" version header.
//
// # Errors
//
// Non-2xx responses surface as *APIError. Responses that cannot be decoded
// wrap ErrMalformedPayload. Anything else is a transport failure and is
// returned as-is.
//
// # Usage
//
//	client := assistant.NewClient(assistant.Config{
//	    APIKey:  os.Getenv("OPENAI_API_KEY"),
//	    Timeout: 30 * time.Second,
//	}, logger)
//
//	thread, err := client.CreateThread(ctx)
package assistant
