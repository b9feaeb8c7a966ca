package main

// Exit codes
const (
	ExitSuccess     = 0 // Success
	ExitError       = 1 // General error (invalid arguments, runtime failure)
	ExitConfigError = 2 // Configuration error (missing settings, invalid values)
	ExitDataError   = 3 // Data error (malformed input, unknown record)
	ExitPartial     = 4 // Harvest finished with at least one failed source
)
