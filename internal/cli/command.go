package cli

import (
	"fmt"
	"strings"

	flag "github.com/spf13/pflag"
)

// Command defines a CLI command with unified help generation.
type Command struct {
	// Flags defines command-specific flags, may be nil.
	Flags *flag.FlagSet

	// Usage is the freeform usage string shown after "pcapstore" in help.
	// Includes the command name and arguments.
	// Examples: "info <dataset>", "cat <dataset> [flags]"
	Usage string

	// Short is a one-line description for the global help listing.
	Short string

	// Exec runs the command after flags are parsed.
	Exec func(o *IO, cfg Config, args []string) error
}

// Name returns the command name (first word of Usage).
func (c *Command) Name() string {
	name, _, _ := strings.Cut(c.Usage, " ")
	return name
}

// HelpLine returns the short help line for the main usage display.
func (c *Command) HelpLine() string {
	return fmt.Sprintf("  %-24s %s", c.Usage, c.Short)
}

// Run parses flags and executes the command. Returns an exit code.
func (c *Command) Run(o *IO, cfg Config, args []string) int {
	if c.Flags != nil {
		c.Flags.Usage = func() {}

		if err := c.Flags.Parse(args); err != nil {
			o.Errorln("error:", err)
			return 1
		}

		args = c.Flags.Args()
	}

	if err := c.Exec(o, cfg, args); err != nil {
		o.Errorln("error:", err)
		return 1
	}

	return 0
}
