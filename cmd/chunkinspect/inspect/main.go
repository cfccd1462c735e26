package inspect

import (
	"fmt"
	"os"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/flowbroker/chunkstore/chunk/format"
)

const (
	usage = "inspect <path>"
	short = "Print a chunk file's header, footer and utilization"
	long  = "This command decodes a chunk file's header, and its footer when present, " +
		"and prints the chunk number, data-region capacity, committed size and utilization."
	example = "chunkinspect inspect /data/chunks/chunk-000042"
)

// Cmd is the inspect command.
var Cmd = &cobra.Command{
	Use:     usage,
	Short:   short,
	Long:    long,
	Example: example,
	Args:    cobra.ExactArgs(1),
	RunE:    executeInspect,
}

func executeInspect(_ *cobra.Command, args []string) error {
	path := args[0]
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	fi, err := f.Stat()
	if err != nil {
		return err
	}
	size := fi.Size()
	if size < format.HeaderSize {
		return fmt.Errorf("%s: file length %d is shorter than the %d-byte header", path, size, format.HeaderSize)
	}

	buf := make([]byte, format.HeaderSize)
	if _, err := f.ReadAt(buf, 0); err != nil {
		return fmt.Errorf("read header: %w", err)
	}
	header, err := format.DecodeHeader(buf)
	if err != nil {
		return fmt.Errorf("%s: %w", path, err)
	}

	fmt.Printf("path:              %s\n", path)
	fmt.Printf("file length:       %s (%d bytes)\n", humanize.IBytes(uint64(size)), size)
	fmt.Printf("chunk number:      %d\n", header.ChunkNumber)
	fmt.Printf("data capacity:     %s (%d bytes)\n",
		humanize.IBytes(uint64(header.ChunkDataTotalSize)), header.ChunkDataTotalSize)
	fmt.Printf("global data range: [%d, %d)\n", header.DataStartPosition(), header.DataEndPosition())

	footer, ok := tryReadFooter(f, size)
	if !ok {
		fmt.Printf("state:             ongoing (no footer)\n")
		return nil
	}
	fmt.Printf("state:             completed\n")
	fmt.Printf("committed data:    %s (%d bytes)\n",
		humanize.IBytes(uint64(footer.ChunkDataTotalSize)), footer.ChunkDataTotalSize)
	if header.ChunkDataTotalSize > 0 {
		fmt.Printf("utilization:       %.1f%%\n",
			100*float64(footer.ChunkDataTotalSize)/float64(header.ChunkDataTotalSize))
	}
	if want := int64(format.HeaderSize) + footer.ChunkDataTotalSize + int64(format.FooterSize); size != want {
		fmt.Printf("WARNING: file length %d does not match footer (want %d)\n", size, want)
	}
	return nil
}

// tryReadFooter distinguishes a completed chunk from an ongoing one by
// whether the file's trailing bytes decode as a footer.
func tryReadFooter(f *os.File, size int64) (format.Footer, bool) {
	if size < format.HeaderSize+format.FooterSize {
		return format.Footer{}, false
	}
	buf := make([]byte, format.FooterSize)
	if _, err := f.ReadAt(buf, size-int64(format.FooterSize)); err != nil {
		return format.Footer{}, false
	}
	footer, err := format.DecodeFooter(buf)
	if err != nil {
		return format.Footer{}, false
	}
	return footer, true
}
