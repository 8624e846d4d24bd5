// Package auth protects the status API with bearer tokens.
//
// # Tokens
//
// Tokens are HS256 JWTs signed with status.jwt_secret. Every token carries
// iss "coven-assistant", aud "coven-assistant-status", a subject naming the
// operator or tool it was issued to, and an expiry. Verify rejects tokens
// missing any of these.
//
// Tokens are issued from the command line:
//
//	coven-assistant token --subject grafana --ttl 720h
//
// # HTTP Middleware
//
//	mux.Handle("/api/", auth.HTTPAuthMiddleware(verifier)(apiHandler))
//
// Requests without "Authorization: Bearer <token>", or with an invalid or
// expired token, get 401 and a JSON error body. Accepted requests carry the
// subject in their context (SubjectFromContext).
package auth
