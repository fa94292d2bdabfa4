package packager

import (
	"errors"
	"testing"

	"github.com/nullstream/packager/status"
)

func TestExitCode(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want int
	}{
		{"nil", nil, ExitSuccess},
		{"invalid argument", status.New(status.InvalidArgument, "bad flag"), ExitArgumentValidation},
		{"internal", status.New(status.Internal, "bug"), ExitInternalError},
		{"plain error is unknown", errors.New("boom"), ExitInternalError},
		{"cancelled falls to packaging failure", status.New(status.Cancelled, "ctx done"), ExitPackagingFailed},
	}
	for _, c := range cases {
		if got := ExitCode(c.err); got != c.want {
			t.Errorf("%s: ExitCode() = %d, want %d", c.name, got, c.want)
		}
	}
}
