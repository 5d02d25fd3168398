package blehci

import (
	"os"
)

var exit = os.Exit

// DefaultErrorHandler is installed wherever no error handler was configured. Errors reaching
// it are unrecoverable (transport loss, framing violations, controller desync): the
// diagnostic is logged and the process terminates so a supervisor can restart it.
func DefaultErrorHandler(err error) {
	GetLogger().Errorf("fatal: %+v", err)
	exit(1)
}
