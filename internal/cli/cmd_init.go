package cli

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/natefinch/atomic"
)

func newInitCommand() *Command {
	cmd := &Command{
		Usage: "init",
		Short: "Write a default " + ConfigFileName + " in the working directory",
	}

	cmd.Exec = func(o *IO, cfg Config, args []string) error {
		if len(args) != 0 {
			return fmt.Errorf("usage: pcapstore init")
		}

		path := filepath.Join(cfg.EffectiveCwd, ConfigFileName)

		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("%s already exists", path)
		}

		data, err := json.MarshalIndent(DefaultConfig(), "", "  ")
		if err != nil {
			return err
		}

		data = append(data, '\n')

		if err := atomic.WriteFile(path, bytes.NewReader(data)); err != nil {
			return fmt.Errorf("writing config: %w", err)
		}

		o.Println("wrote", path)

		return nil
	}

	return cmd
}
