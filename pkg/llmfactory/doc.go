// Package llmfactory selects the chat provider for a request and builds its model.
// The selection order is the request value, the persisted ai_provider setting,
// the AI_PROVIDER environment variable, the config file, then ollama.
package llmfactory
