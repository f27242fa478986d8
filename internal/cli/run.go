// Package cli implements the pcapstore command-line tool on top of the
// pkg/pcapstore library.
package cli

import (
	"io"
	"strings"

	flag "github.com/spf13/pflag"

	"github.com/calvinalkan/pcapstore/pkg/pcapstore"
)

// readerConfig derives the library reader config from the CLI config.
func readerConfig(cfg Config) pcapstore.ReaderConfig {
	rcfg := pcapstore.DefaultReaderConfig()

	if cfg.BufferSize != 0 {
		rcfg.BufferSize = cfg.BufferSize
	}

	if cfg.MaxPacketSize != 0 {
		rcfg.MaxPacketSize = cfg.MaxPacketSize
	}

	return rcfg
}

// Run is the main entry point. Returns an exit code.
func Run(out, errOut io.Writer, args []string, env map[string]string) int {
	o := &IO{Out: out, Err: errOut}

	globalFlags := flag.NewFlagSet("pcapstore", flag.ContinueOnError)
	globalFlags.SetInterspersed(false)
	globalFlags.Usage = func() {}
	globalFlags.SetOutput(&strings.Builder{})
	flagHelp := globalFlags.BoolP("help", "h", false, "Show help")
	flagCwd := globalFlags.StringP("cwd", "C", "", "Run as if started in `dir`")
	flagConfig := globalFlags.StringP("config", "c", "", "Use specified config `file`")
	flagBaseDir := globalFlags.String("base-dir", "", "Override the datasets base `directory`")

	if err := globalFlags.Parse(args[1:]); err != nil {
		o.Errorln("error:", err)
		printGlobalOptions(o)

		return 1
	}

	cfg, err := LoadConfig(LoadConfigInput{
		WorkDirOverride: *flagCwd,
		ConfigPath:      *flagConfig,
		BaseDirOverride: *flagBaseDir,
		Env:             env,
	})
	if err != nil {
		o.Errorln("error:", err)
		printGlobalOptions(o)

		return 1
	}

	commands := allCommands()

	commandAndArgs := globalFlags.Args()

	if *flagHelp || len(commandAndArgs) == 0 {
		printUsage(o, commands)

		if *flagHelp {
			return 0
		}

		return 1
	}

	name := commandAndArgs[0]

	for _, cmd := range commands {
		if cmd.Name() == name {
			return cmd.Run(o, cfg, commandAndArgs[1:])
		}
	}

	o.Errorln("error: unknown command:", name)
	printUsage(o, commands)

	return 1
}

func allCommands() []*Command {
	return []*Command{
		newInfoCommand(),
		newCatCommand(),
		newRebuildCommand(),
		newInitCommand(),
	}
}

func printGlobalOptions(o *IO) {
	o.Errorln("Global options:")
	o.Errorln("  -h, --help            Show help")
	o.Errorln("  -C, --cwd dir         Run as if started in dir")
	o.Errorln("  -c, --config file     Use specified config file")
	o.Errorln("      --base-dir dir    Override the datasets base directory")
}

func printUsage(o *IO, commands []*Command) {
	o.Println("Usage: pcapstore [global options] <command> [args]")
	o.Println()
	o.Println("Commands:")

	for _, cmd := range commands {
		o.Println(cmd.HelpLine())
	}
}
