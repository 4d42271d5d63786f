package main

// Exit codes used by all docf commands.
const (
	ExitSuccess        = 0 // Success
	ExitError          = 1 // General error (invalid arguments, runtime failure)
	ExitConfigError    = 2 // Not in a corpus, or invalid configuration
	ExitOllamaError    = 3 // Ollama not available
	ExitModelNotFound  = 4 // Embedding model not found
	ExitConfigMismatch = 5 // Stored embedding config conflicts with the active one
)
