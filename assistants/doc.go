// Package assistants implements the chat orchestrator: a bounded state machine
// that asks the model, runs the requested tools and asks the model again
// with the tool results.
package assistants
