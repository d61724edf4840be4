package otutils

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-audio/audio"
)

// MaxSlices is the number of slice slots in an Octatrack slice table.
const MaxSlices = 64

// DefaultTempo is the chain tempo in BPM used unless the caller overrides
// Slicer.Tempo.
const DefaultTempo = 124

var (
	// ErrCapacityExceeded is returned by AddFile once all slice slots are
	// taken.
	ErrCapacityExceeded = errors.New("no free slice slots")
	// ErrEmptyChain is returned by GenerateOTFile when no file was added.
	ErrEmptyChain = errors.New("chain has no slices")
	// ErrDestinationExists is returned by GenerateOTFile when overwriting
	// is disabled and an output file is already in place.
	ErrDestinationExists = errors.New("destination file already exists")
	// ErrFinalized is returned for any operation on a finalized Slicer.
	ErrFinalized = errors.New("slicer already finalized")
)

// Slice is one source sample's region within the chain, in sample frames.
// EndFrame is exclusive. LoopPoint equals StartFrame, the table's loop
// disabled encoding.
type Slice struct {
	StartFrame uint32
	EndFrame   uint32
	LoopPoint  uint32
}

// Slicer accumulates source samples into a chain and writes the final
// .wav/.ot pair. A Slicer processes one chain end to end and is not
// reusable after GenerateOTFile; create a new instance per chain.
type Slicer struct {
	// OutputFolder is the folder the final .wav and .ot files are
	// written to. The scratch stream lives there too.
	OutputFolder string
	// OutputFilename is the shared base name of both output files,
	// without extension.
	OutputFilename string
	// Tempo is the chain tempo in BPM stored in the .ot file.
	Tempo uint32

	slices    []Slice
	app       chainAppender
	finalized bool
}

// GenerateOptions configures GenerateOTFile.
type GenerateOptions struct {
	// Overwrite replaces existing files at the output paths. When false,
	// GenerateOTFile fails with ErrDestinationExists instead.
	Overwrite bool
}

// NewSlicer returns an empty Slicer writing its chain to
// folder/filename.wav and folder/filename.ot.
func NewSlicer(folder, filename string) *Slicer {
	return &Slicer{
		OutputFolder:   folder,
		OutputFilename: filename,
		Tempo:          DefaultTempo,
		app: chainAppender{
			scratchPath: filepath.Join(folder, filename+".wav.tmp"),
		},
	}
}

// Slices returns a copy of the recorded slices in chain order.
func (s *Slicer) Slices() []Slice {
	out := make([]Slice, len(s.slices))
	copy(out, s.slices)

	return out
}

// TotalFrames returns the number of sample frames appended so far.
func (s *Slicer) TotalFrames() uint32 {
	return s.app.frames
}

// Format returns the pinned chain format, or nil before the first
// accepted file.
func (s *Slicer) Format() *audio.Format {
	if s.app.format == nil {
		return nil
	}

	format := *s.app.format

	return &format
}

// AddFile appends the sample at path to the chain and records a slice
// covering it. Sources must be mono 16-bit PCM .wav or .aif/.aiff files
// matching the pinned chain format. A rejected file leaves the chain
// stream, the frame cursor and the slice table untouched.
func (s *Slicer) AddFile(path string) (Slice, error) {
	if s.finalized {
		return Slice{}, ErrFinalized
	}

	if len(s.slices) >= MaxSlices {
		return Slice{}, fmt.Errorf("%w: chain already holds %d slices", ErrCapacityExceeded, MaxSlices)
	}

	var (
		start, end uint32
		err        error
	)

	switch strings.ToLower(filepath.Ext(path)) {
	case ".aif", ".aiff":
		start, end, err = s.app.appendAIFF(path)
	default:
		start, end, err = s.app.appendWAV(path)
	}

	if err != nil {
		return Slice{}, err
	}

	slice := Slice{StartFrame: start, EndFrame: end, LoopPoint: start}
	s.slices = append(s.slices, slice)

	return slice, nil
}

// GenerateOTFile finalizes the chain: it patches the chain .wav header,
// writes the .ot metadata file and moves both files to their final paths.
// The audio file is moved first and the metadata file renamed into place
// after it, so an interruption never leaves a mismatched pair. The Slicer
// rejects further use afterwards.
func (s *Slicer) GenerateOTFile(opts GenerateOptions) error {
	if s.finalized {
		return ErrFinalized
	}

	if len(s.slices) == 0 {
		return ErrEmptyChain
	}

	wavPath := filepath.Join(s.OutputFolder, s.OutputFilename+".wav")
	otPath := filepath.Join(s.OutputFolder, s.OutputFilename+".ot")

	if !opts.Overwrite {
		for _, path := range []string{wavPath, otPath} {
			if _, err := os.Stat(path); err == nil {
				return fmt.Errorf("%w: %s", ErrDestinationExists, path)
			} else if !os.IsNotExist(err) {
				return fmt.Errorf("failed to check destination %s: %w", path, err)
			}
		}
	}

	if err := s.app.stream.finalize(); err != nil {
		return err
	}

	s.finalized = true

	data := encodeOTFile(s.slices, s.TotalFrames(), s.Tempo, uint32(s.app.format.SampleRate))

	otScratch := otPath + ".tmp"
	if err := os.WriteFile(otScratch, data, 0o644); err != nil {
		return fmt.Errorf("failed to write metadata scratch file: %w", err)
	}

	if err := os.Rename(s.app.stream.path, wavPath); err != nil {
		os.Remove(otScratch)

		return fmt.Errorf("failed to move chain audio into place: %w", err)
	}

	if err := os.Rename(otScratch, otPath); err != nil {
		return fmt.Errorf("failed to move chain metadata into place: %w", err)
	}

	return nil
}

// Close releases the scratch stream. If the chain was never finalized the
// scratch file is removed. Close is safe to call after GenerateOTFile and
// should be deferred as soon as the Slicer is created.
func (s *Slicer) Close() error {
	if s.app.stream == nil {
		return nil
	}

	return s.app.stream.discard()
}
