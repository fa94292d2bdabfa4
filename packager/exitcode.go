package packager

import "github.com/nullstream/packager/status"

// Exit codes returned by cmd/packager, per spec.md §6.
const (
	ExitSuccess            = 0
	ExitArgumentValidation = 1
	ExitPackagingFailed    = 2
	ExitInternalError      = 3
)

// ExitCode maps the error Run returns to the process exit code cmd/packager
// reports: nil succeeds, an InvalidArgument status fails argument
// validation, an Internal or Unknown status (including any non-status
// error, which CodeOf reports as Unknown) is internal, and every other
// status code is an in-flight packaging failure.
func ExitCode(err error) int {
	if err == nil {
		return ExitSuccess
	}
	switch status.CodeOf(err) {
	case status.InvalidArgument:
		return ExitArgumentValidation
	case status.Internal, status.Unknown:
		return ExitInternalError
	default:
		return ExitPackagingFailed
	}
}
