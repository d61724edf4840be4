// This tool concatenates the samples of a folder into an Octatrack sample
// chain: one .wav file plus the .ot slice metadata file next to it.
package main

import (
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sort"
	"strings"

	otutils "github.com/icaroferre/ot-utils"
)

func main() {
	err := run(os.Args[1:])
	if err != nil {
		log.Fatal(err)
	}
}

var errNoSources = errors.New("no source samples found")

func run(args []string) error {
	flagSet := flag.NewFlagSet("otchain", flag.ContinueOnError)

	input := flagSet.String("input", ".", "folder containing the source samples")
	output := flagSet.String("output", ".", "folder to write the chain to")
	name := flagSet.String("name", "chain", "base name of the output .wav/.ot pair")
	tempo := flagSet.Uint("tempo", otutils.DefaultTempo, "chain tempo in BPM")
	overwrite := flagSet.Bool("overwrite", false, "replace existing output files")

	err := flagSet.Parse(args)
	if err != nil {
		return err
	}

	paths, err := collectSources(*input)
	if err != nil {
		return err
	}

	if len(paths) == 0 {
		return fmt.Errorf("%w in %s", errNoSources, *input)
	}

	slicer := otutils.NewSlicer(*output, *name)
	slicer.Tempo = uint32(*tempo)

	defer slicer.Close()

	for _, path := range paths {
		slice, err := slicer.AddFile(path)
		if err != nil {
			if isFormatError(err) {
				log.Printf("skipping %s: %v", path, err)
				continue
			}

			return err
		}

		log.Printf("added %s: frames %d-%d", filepath.Base(path), slice.StartFrame, slice.EndFrame)
	}

	err = slicer.GenerateOTFile(otutils.GenerateOptions{Overwrite: *overwrite})
	if err != nil {
		return err
	}

	log.Printf("wrote %s.wav and %s.ot to %s", *name, *name, *output)

	return nil
}

// collectSources returns the chainable files of folder in name order.
func collectSources(folder string) ([]string, error) {
	entries, err := os.ReadDir(folder)
	if err != nil {
		return nil, fmt.Errorf("failed to list %s: %w", folder, err)
	}

	paths := make([]string, 0, len(entries))

	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}

		switch strings.ToLower(filepath.Ext(entry.Name())) {
		case ".wav", ".aif", ".aiff":
			paths = append(paths, filepath.Join(folder, entry.Name()))
		}
	}

	sort.Strings(paths)

	return paths, nil
}

// isFormatError reports whether err is a per-file rejection rather than a
// chain-level failure. Rejected files are skipped, everything else aborts.
func isFormatError(err error) bool {
	return errors.Is(err, otutils.ErrMalformed) ||
		errors.Is(err, otutils.ErrUnsupportedChannels) ||
		errors.Is(err, otutils.ErrUnsupportedBitDepth) ||
		errors.Is(err, otutils.ErrInconsistentFormat)
}
