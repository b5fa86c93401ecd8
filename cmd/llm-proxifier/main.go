// llm-proxifier is an on-demand lifecycle scheduler for locally-spawned
// large-language-model server processes, fronted by an OpenAI-compatible
// HTTP gateway.
//
// Usage:
//
//	# Start the proxy with the default configuration file
//	llm-proxifier run
//
//	# Start with a custom configuration file
//	llm-proxifier run --config /path/to/config.yaml
//
//	# Show version information
//	llm-proxifier version
//
// For complete documentation, see: https://github.com/fluffypony/llm-proxifier
package main

func main() {
	Execute()
}
