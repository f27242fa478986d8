package cli

import (
	"fmt"

	"github.com/calvinalkan/pcapstore/pkg/fs"
	"github.com/calvinalkan/pcapstore/pkg/pcapstore"
)

func newRebuildCommand() *Command {
	cmd := &Command{
		Usage: "rebuild <dataset>",
		Short: "Force regeneration of the sidecar index",
	}

	cmd.Exec = func(o *IO, cfg Config, args []string) error {
		if len(args) != 1 {
			return fmt.Errorf("usage: pcapstore rebuild <dataset>")
		}

		r, err := pcapstore.OpenReader(fs.NewReal(), cfg.BaseDirAbs, args[0], readerConfig(cfg), nil)
		if err != nil {
			return err
		}

		defer func() { _ = r.Close() }()

		if err := r.RebuildIndex(); err != nil {
			return err
		}

		o.Printf("rebuilt index for %s: %d packets in %d files\n",
			args[0], r.TotalPackets(), r.FileCount())

		return nil
	}

	return cmd
}
