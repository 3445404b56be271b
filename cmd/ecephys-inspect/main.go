// Package main provides a command-line utility to inspect recording
// session files. It summarizes the session metadata, acquisitions,
// tables and units, prints the object tree, and can dump raw bytes
// from an offset for low-level debugging.
package main

import (
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/lmittmann/tint"
	"github.com/mattn/go-colorable"
	"github.com/mattn/go-isatty"
	"github.com/scigolib/ecephys"
)

func main() {
	if err := mainImpl(); err != nil {
		fmt.Fprintf(os.Stderr, "ecephys-inspect: %v\n", err)
		os.Exit(1)
	}
}

func mainImpl() error {
	logLevel := flag.String("log-level", "info", "Log level (debug, info, warn, error)")
	tree := flag.Bool("tree", false, "Print the object tree instead of the summary")
	preview := flag.Int("preview", 0, "Print the first N samples of every series")
	dumpOffset := flag.Int64("dump", -1, "Dump raw bytes starting at this offset")
	dumpLength := flag.Int("length", 128, "Number of bytes to dump with -dump")
	flag.Parse()

	if len(flag.Args()) != 1 {
		fmt.Fprintln(os.Stderr, "Usage: ecephys-inspect [flags] <session file>")
		flag.PrintDefaults()
		return errors.New("exactly one session file is required")
	}
	path := flag.Arg(0)

	level := slog.LevelInfo
	switch *logLevel {
	case "debug":
		level = slog.LevelDebug
	case "info":
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		return fmt.Errorf("unknown log level: %q", *logLevel)
	}
	logger := slog.New(tint.NewHandler(colorable.NewColorable(os.Stderr), &tint.Options{
		Level:      level,
		TimeFormat: "15:04:05.000",
		NoColor:    !isatty.IsTerminal(os.Stderr.Fd()),
	}))
	slog.SetDefault(logger)

	if *dumpOffset >= 0 {
		return dumpBytes(path, *dumpOffset, *dumpLength)
	}

	sess, err := ecephys.Open(path)
	if err != nil {
		return err
	}
	defer func() {
		if err := sess.Close(); err != nil {
			slog.Warn("closing session failed", "err", err)
		}
	}()
	slog.Debug("session opened", "path", path)

	if *tree {
		return printTree(sess)
	}
	return printSummary(sess, *preview)
}

func printTree(sess *ecephys.Session) error {
	return sess.Walk(func(path string, kind ecephys.ObjectKind) error {
		depth := strings.Count(path, "/")
		if path == "/" {
			depth = 0
		}
		name := path[strings.LastIndex(path, "/")+1:]
		if path == "/" {
			name = "/"
		}
		fmt.Printf("%s%s  [%s]\n", strings.Repeat("  ", depth), name, kind)
		return nil
	})
}

func printSummary(sess *ecephys.Session, preview int) error {
	if id, err := sess.Identifier(); err == nil {
		fmt.Printf("identifier:  %s\n", id)
	}
	if desc, err := sess.Description(); err == nil {
		fmt.Printf("description: %s\n", desc)
	}
	if start, err := sess.StartTime(); err == nil {
		fmt.Printf("started:     %s\n", start)
	}

	names, err := sess.Acquisitions()
	if err != nil && !errors.Is(err, ecephys.ErrNotFound) {
		return err
	}
	for _, name := range names {
		if err := printSeries(sess, name, preview); err != nil {
			return err
		}
	}

	modules, err := sess.ProcessingModules()
	if err == nil && len(modules) > 0 {
		fmt.Printf("processing:  %s\n", strings.Join(modules, ", "))
	}

	if trials, err := sess.Trials(); err == nil {
		fmt.Printf("trials:      %d rows, columns %s\n",
			trials.Len(), strings.Join(trials.ColumnNames(), ", "))
	}
	if electrodes, err := sess.Electrodes(); err == nil {
		fmt.Printf("electrodes:  %d rows\n", electrodes.Len())
	}
	if units, err := sess.Units(); err == nil {
		fmt.Printf("units:       %d\n", units.Count())
	}
	return nil
}

func printSeries(sess *ecephys.Session, name string, preview int) error {
	series, err := sess.Acquisition(name)
	if err != nil {
		return err
	}
	shape := fmt.Sprintf("%d x %d", series.SampleCount(), series.ChannelCount())
	timing := "timestamps"
	if rate, ok := series.Rate(); ok {
		timing = fmt.Sprintf("%g Hz", rate)
	}
	fmt.Printf("acquisition: %s  %s %s, %s\n", name, shape, series.Unit(), timing)

	if preview <= 0 {
		return nil
	}
	count := uint64(preview)
	if n := series.SampleCount(); count > n {
		count = n
	}
	if count == 0 {
		return nil
	}
	start := []uint64{0}
	block := []uint64{count}
	if series.Data().Rank() == 2 {
		start = []uint64{0, 0}
		block = []uint64{count, series.ChannelCount()}
	}
	arr, err := series.Data().MaterializeSlice(start, block)
	if err != nil {
		return err
	}
	values, err := arr.Float64s()
	if err != nil {
		return err
	}
	fmt.Printf("  first %d samples: %v\n", count, values)
	return nil
}

// dumpBytes prints a hex and ASCII dump of the file region, 16 bytes
// per line.
func dumpBytes(path string, offset int64, length int) error {
	if length < 1 {
		return fmt.Errorf("invalid length: %d", length)
	}
	//nolint:gosec // G304: inspecting a caller-provided file is the point
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer func() {
		if err := f.Close(); err != nil {
			slog.Warn("closing file failed", "err", err)
		}
	}()

	info, err := f.Stat()
	if err != nil {
		return err
	}
	if offset >= info.Size() {
		return fmt.Errorf("offset %d past end of %d byte file", offset, info.Size())
	}
	if remaining := info.Size() - offset; int64(length) > remaining {
		length = int(remaining)
	}

	buf := make([]byte, length)
	n, err := f.ReadAt(buf, offset)
	if err != nil {
		return fmt.Errorf("read at %d: %w", offset, err)
	}

	for i := 0; i < n; i += 16 {
		end := i + 16
		if end > n {
			end = n
		}
		chunk := buf[i:end]

		fmt.Printf("%08x: ", offset+int64(i))
		for j := 0; j < 16; j++ {
			if j < len(chunk) {
				fmt.Printf("%02x ", chunk[j])
			} else {
				fmt.Print("   ")
			}
			if j == 7 {
				fmt.Print(" ")
			}
		}
		fmt.Print(" |")
		for _, b := range chunk {
			if b >= 32 && b <= 126 {
				fmt.Printf("%c", b)
			} else {
				fmt.Print(".")
			}
		}
		fmt.Println("|")
	}
	return nil
}
