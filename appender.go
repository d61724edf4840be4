package otutils

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/go-audio/aiff"
	"github.com/go-audio/audio"
	"github.com/go-audio/riff"
)

var (
	// ErrMalformed is returned when a source file is not a readable
	// canonical-layout PCM container.
	ErrMalformed = errors.New("malformed audio container")
	// ErrUnsupportedChannels is returned for sources that are not mono.
	ErrUnsupportedChannels = errors.New("unsupported channel layout, chains are mono")
	// ErrUnsupportedBitDepth is returned for sources that are not 16-bit.
	ErrUnsupportedBitDepth = errors.New("unsupported bit depth, chains are 16-bit")
	// ErrInconsistentFormat is returned when a source does not match the
	// format pinned by the first file in the chain.
	ErrInconsistentFormat = errors.New("sample format differs from the chain format")
)

// chainAppender validates source files and appends their PCM payload to the
// chain stream, tracking the sample frame cursor. The stream is opened
// lazily on the first accepted file, which also pins the chain format.
type chainAppender struct {
	scratchPath string

	stream *chainStream
	format *audio.Format
	frames uint32
}

// sourceInfo holds the fmt chunk fields and data chunk of a parsed source.
type sourceInfo struct {
	formatTag  uint16
	numChans   uint16
	sampleRate uint32
	bitDepth   uint16
	data       *riff.Chunk
}

// appendWAV validates path as a mono 16-bit PCM wav file and appends its
// data chunk bytes to the chain stream. It returns the appended
// [start, end) frame range. Nothing is written on a rejected file.
func (a *chainAppender) appendWAV(path string) (uint32, uint32, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, 0, fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer f.Close()

	info, err := readSourceInfo(f)
	if err != nil {
		return 0, 0, err
	}

	if err := a.validate(info.numChans, info.bitDepth, info.sampleRate); err != nil {
		return 0, 0, err
	}

	payloadBytes := int64(info.data.Size)
	if payloadBytes%2 != 0 {
		return 0, 0, fmt.Errorf("%w: data chunk size %d is not frame aligned", ErrMalformed, payloadBytes)
	}

	if err := a.ensureStream(int(info.sampleRate)); err != nil {
		return 0, 0, err
	}

	if err := a.stream.append(info.data.R, payloadBytes); err != nil {
		return 0, 0, err
	}

	frames := uint32(payloadBytes / 2)
	start := a.frames
	a.frames += frames

	return start, a.frames, nil
}

// appendAIFF validates path as a mono 16-bit PCM aiff file, converts its
// samples to little-endian PCM and appends them to the chain stream.
func (a *chainAppender) appendAIFF(path string) (uint32, uint32, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, 0, fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer f.Close()

	dec := aiff.NewDecoder(f)

	buf, err := dec.FullPCMBuffer()
	if err != nil {
		return 0, 0, fmt.Errorf("%w: %s", ErrMalformed, err)
	}

	if err := a.validate(dec.NumChans, dec.BitDepth, uint32(dec.SampleRate)); err != nil {
		return 0, 0, err
	}

	payload := make([]byte, 2*len(buf.Data))
	for i, sample := range buf.Data {
		binary.LittleEndian.PutUint16(payload[2*i:], uint16(int16(sample)))
	}

	if err := a.ensureStream(dec.SampleRate); err != nil {
		return 0, 0, err
	}

	if err := a.stream.append(bytes.NewReader(payload), int64(len(payload))); err != nil {
		return 0, 0, err
	}

	start := a.frames
	a.frames += uint32(len(buf.Data))

	return start, a.frames, nil
}

// validate runs the format checks in order: channel layout, bit depth, then
// consistency against the pinned chain format.
func (a *chainAppender) validate(numChans, bitDepth uint16, sampleRate uint32) error {
	if numChans != 1 {
		return fmt.Errorf("%w: got %d channels", ErrUnsupportedChannels, numChans)
	}

	if bitDepth != 16 {
		return fmt.Errorf("%w: got %d bits per sample", ErrUnsupportedBitDepth, bitDepth)
	}

	if a.format != nil && int(sampleRate) != a.format.SampleRate {
		return fmt.Errorf("%w: chain is %d Hz, sample is %d Hz",
			ErrInconsistentFormat, a.format.SampleRate, sampleRate)
	}

	return nil
}

// ensureStream opens the scratch stream on the first accepted file and pins
// the chain format.
func (a *chainAppender) ensureStream(sampleRate int) error {
	if a.stream != nil {
		return nil
	}

	stream, err := createChainStream(a.scratchPath, sampleRate, 16, 1)
	if err != nil {
		return err
	}

	a.stream = stream
	a.format = &audio.Format{NumChannels: 1, SampleRate: sampleRate}

	return nil
}

// readSourceInfo walks the RIFF chunks of r up to the data chunk and
// returns the fmt fields along with the still-unread data chunk.
func readSourceInfo(r io.Reader) (*sourceInfo, error) {
	parser := riff.New(r)

	id, size, err := parser.IDnSize()
	if err != nil {
		return nil, fmt.Errorf("%w: failed to read container header: %s", ErrMalformed, err)
	}

	if id != riff.RiffID {
		return nil, fmt.Errorf("%w: %q is not a RIFF container", ErrMalformed, string(id[:]))
	}

	parser.ID = id
	parser.Size = size

	if err := binary.Read(r, binary.BigEndian, &parser.Format); err != nil {
		return nil, fmt.Errorf("%w: failed to read container format: %s", ErrMalformed, err)
	}

	if parser.Format != riff.WavFormatID {
		return nil, fmt.Errorf("%w: %q is not a WAVE container", ErrMalformed, string(parser.Format[:]))
	}

	info := &sourceInfo{}

	var sawFmt bool

	for {
		chunk, err := parser.NextChunk()
		if err != nil {
			return nil, fmt.Errorf("%w: no data chunk found: %s", ErrMalformed, err)
		}

		switch chunk.ID {
		case riff.FmtID:
			if err := readFmtChunk(chunk, info); err != nil {
				return nil, err
			}

			sawFmt = true
		case riff.DataFormatID:
			if !sawFmt {
				return nil, fmt.Errorf("%w: data chunk precedes fmt chunk", ErrMalformed)
			}

			info.data = chunk

			return info, nil
		default:
			// non-core chunk ahead of the data chunk, skip it
			chunk.Drain()
		}
	}
}

func readFmtChunk(chunk *riff.Chunk, info *sourceInfo) error {
	err := chunk.ReadLE(&info.formatTag)
	if err != nil {
		return fmt.Errorf("%w: failed to read wav format: %s", ErrMalformed, err)
	}

	err = chunk.ReadLE(&info.numChans)
	if err != nil {
		return fmt.Errorf("%w: failed to read channels: %s", ErrMalformed, err)
	}

	err = chunk.ReadLE(&info.sampleRate)
	if err != nil {
		return fmt.Errorf("%w: failed to read sample rate: %s", ErrMalformed, err)
	}

	var avgBytesPerSec uint32

	err = chunk.ReadLE(&avgBytesPerSec)
	if err != nil {
		return fmt.Errorf("%w: failed to read avg bytes/sec: %s", ErrMalformed, err)
	}

	var blockAlign uint16

	err = chunk.ReadLE(&blockAlign)
	if err != nil {
		return fmt.Errorf("%w: failed to read block align: %s", ErrMalformed, err)
	}

	err = chunk.ReadLE(&info.bitDepth)
	if err != nil {
		return fmt.Errorf("%w: failed to read bit depth: %s", ErrMalformed, err)
	}

	if info.formatTag != 1 {
		return fmt.Errorf("%w: audio format tag %d is not integer PCM", ErrMalformed, info.formatTag)
	}

	chunk.Drain()

	return nil
}
