// Package llms provides a uniform chat interface over the supported model providers.
//
// The `llms.go` file contains the provider types and the Model interface.
// Each subpackage adapts one backend to that interface: `ollama` for the
// self-hosted model server and `openai` for the cloud API.
//
// The `options.go` file provides the per call options, including the tool definitions.
package llms
