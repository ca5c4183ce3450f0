// Package tools defines the tools the assistant can call: the ITool interface,
// typed tools bound from the model arguments, the registry shared by all providers,
// and the executor running a batch of tool calls.
package tools
