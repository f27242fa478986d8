package cli

import (
	"fmt"
	"io"
)

// IO bundles the output streams for a command invocation so tests can
// capture them.
type IO struct {
	Out io.Writer
	Err io.Writer
}

// Println writes a line to standard output.
func (o *IO) Println(args ...any) {
	_, _ = fmt.Fprintln(o.Out, args...)
}

// Printf writes formatted text to standard output.
func (o *IO) Printf(format string, args ...any) {
	_, _ = fmt.Fprintf(o.Out, format, args...)
}

// Errorln writes a line to standard error.
func (o *IO) Errorln(args ...any) {
	_, _ = fmt.Fprintln(o.Err, args...)
}
