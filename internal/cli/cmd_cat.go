package cli

import (
	"fmt"
	"io"
	"time"

	flag "github.com/spf13/pflag"

	"github.com/calvinalkan/pcapstore/pkg/fs"
	"github.com/calvinalkan/pcapstore/pkg/pcapstore"
)

func newCatCommand() *Command {
	flags := flag.NewFlagSet("cat", flag.ContinueOnError)
	limit := flags.IntP("limit", "n", 0, "Stop after `count` packets (0 = all)")
	from := flags.Uint64("from", 0, "Start at global packet `index`")

	cmd := &Command{
		Flags: flags,
		Usage: "cat <dataset> [flags]",
		Short: "Dump packet times, sizes and CRC verdicts",
	}

	cmd.Exec = func(o *IO, cfg Config, args []string) error {
		if len(args) != 1 {
			return fmt.Errorf("usage: pcapstore cat <dataset> [flags]")
		}

		r, err := pcapstore.OpenReader(fs.NewReal(), cfg.BaseDirAbs, args[0], readerConfig(cfg), nil)
		if err != nil {
			return err
		}

		defer func() { _ = r.Close() }()

		if *from > 0 {
			if err := r.SeekToPacket(*from); err != nil {
				return err
			}
		}

		printed := 0

		for {
			if *limit > 0 && printed >= *limit {
				return nil
			}

			idx := r.CurrentPacketIndex()

			pkt, err := r.ReadPacket()
			if err == io.EOF {
				return nil
			}

			if err != nil {
				return err
			}

			verdict := "ok"
			if !pkt.IsValid {
				verdict = "BAD-CRC"
			}

			o.Printf("%8d  %s  %6d bytes  %s\n",
				idx, pkt.Packet.Time.Format(time.RFC3339Nano), len(pkt.Packet.Payload), verdict)

			printed++
		}
	}

	return cmd
}
