package cli

import (
	"fmt"

	"github.com/calvinalkan/pcapstore/pkg/fs"
	"github.com/calvinalkan/pcapstore/pkg/pcapstore"
)

func newInfoCommand() *Command {
	cmd := &Command{
		Usage: "info <dataset>",
		Short: "Show index summary for a dataset",
	}

	cmd.Exec = func(o *IO, cfg Config, args []string) error {
		if len(args) != 1 {
			return fmt.Errorf("usage: pcapstore info <dataset>")
		}

		r, err := pcapstore.OpenReader(fs.NewReal(), cfg.BaseDirAbs, args[0], readerConfig(cfg), nil)
		if err != nil {
			return err
		}

		defer func() { _ = r.Close() }()

		ix := r.Index()

		o.Printf("dataset:       %s\n", args[0])
		o.Printf("files:         %d\n", r.FileCount())
		o.Printf("packets:       %d\n", ix.TotalPackets)
		o.Printf("start:         %d\n", ix.StartTimestamp)
		o.Printf("end:           %d\n", ix.EndTimestamp)
		o.Printf("duration (ns): %d\n", ix.TotalDuration)
		o.Printf("created:       %s\n", ix.CreatedTime)

		for _, f := range ix.Files {
			o.Printf("  %s  %d packets  %d bytes\n", f.FileName, f.PacketCount, f.FileSize)
		}

		return nil
	}

	return cmd
}
