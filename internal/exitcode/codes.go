package exitcode

// Exit codes for the retrieval CLI.
// Pipeline orchestration can use these to decide retry strategy.
const (
	// Success - request completed, possibly with per-unit warnings
	Success = 0

	// ConfigError - bad environment or request config
	// Don't retry: fix the config first
	ConfigError = 1

	// NetworkError - transient upstream or storage connectivity failure
	// Retry with backoff
	NetworkError = 2

	// DataError - request referenced unknown variables/sources or produced
	// nothing but failures
	// Don't retry: investigate the request
	DataError = 3
)
