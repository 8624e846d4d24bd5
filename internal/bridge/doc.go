// Package bridge connects Matrix rooms to the conversation service.
//
// Bridge owns the mautrix client and sync loop and turns messages, keyboard
// reactions and invites into Inbound values. Dispatcher maps each Inbound to
// a conversation.Service call and answers through a Transport, which on
// Matrix renders markdown to HTML and seeds keyboard buttons as reactions.
package bridge
