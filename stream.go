package otutils

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/go-audio/riff"
)

var errStreamFinalized = errors.New("chain stream already finalized")

const (
	// byte offsets of the two size fields patched on finalize
	riffSizePos = 4
	dataSizePos = 40

	chainHeaderSize = 44
)

// chainStream is the growing chain .wav file bound to a scratch path. The
// header is written once with placeholder size fields; finalize seeks back
// and patches them when the total payload length is known.
type chainStream struct {
	f    *os.File
	path string

	sampleRate int
	bitDepth   int
	numChans   int

	dataBytes int64
	finalized bool
}

// createChainStream creates the scratch file and writes the RIFF/WAVE/fmt
// header followed by the data chunk header. Size fields are placeholders.
func createChainStream(path string, sampleRate, bitDepth, numChans int) (*chainStream, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("failed to create chain stream %s: %w", path, err)
	}

	cs := &chainStream{
		f:          f,
		path:       path,
		sampleRate: sampleRate,
		bitDepth:   bitDepth,
		numChans:   numChans,
	}

	if err := cs.writeHeader(); err != nil {
		f.Close()
		os.Remove(path)

		return nil, err
	}

	return cs, nil
}

// addLE serializes and adds the passed value using little endian.
func (cs *chainStream) addLE(src any) error {
	err := binary.Write(cs.f, binary.LittleEndian, src)
	if err != nil {
		return fmt.Errorf("failed to write little endian: %w", err)
	}

	return nil
}

func (cs *chainStream) writeHeader() error {
	blockAlign := cs.numChans * (cs.bitDepth / 8)

	err := cs.addLE(riff.RiffID)
	if err != nil {
		return err
	}
	// file size, patched on finalize
	err = cs.addLE(uint32(4294967295))
	if err != nil {
		return err
	}

	err = cs.addLE(riff.WavFormatID)
	if err != nil {
		return err
	}

	err = cs.addLE(riff.FmtID)
	if err != nil {
		return err
	}

	err = cs.addLE(uint32(16))
	if err != nil {
		return err
	}

	err = cs.addLE(uint16(1)) // integer PCM
	if err != nil {
		return err
	}

	err = cs.addLE(uint16(cs.numChans))
	if err != nil {
		return fmt.Errorf("error encoding the number of channels - %w", err)
	}

	err = cs.addLE(uint32(cs.sampleRate))
	if err != nil {
		return fmt.Errorf("error encoding the sample rate - %w", err)
	}

	err = cs.addLE(uint32(cs.sampleRate * blockAlign))
	if err != nil {
		return fmt.Errorf("error encoding the avg bytes per sec - %w", err)
	}

	err = cs.addLE(uint16(blockAlign))
	if err != nil {
		return err
	}

	err = cs.addLE(uint16(cs.bitDepth))
	if err != nil {
		return fmt.Errorf("error encoding bits per sample - %w", err)
	}

	err = cs.addLE(riff.DataFormatID)
	if err != nil {
		return fmt.Errorf("error encoding sound header %w", err)
	}

	// data chunk size, patched on finalize
	return cs.addLE(uint32(4294967295))
}

// len returns the number of payload bytes appended so far.
func (cs *chainStream) len() int64 {
	return cs.dataBytes
}

// append copies n payload bytes from r to the end of the stream. A short or
// failed copy truncates the file back to its previous length so the stream
// never holds a partial sample.
func (cs *chainStream) append(r io.Reader, n int64) error {
	if cs.finalized {
		return errStreamFinalized
	}

	written, err := io.CopyN(cs.f, r, n)
	if err != nil {
		if truncErr := cs.truncateTo(cs.dataBytes); truncErr != nil {
			return fmt.Errorf("failed to roll back after short append: %w", truncErr)
		}

		return fmt.Errorf("failed to append %d payload bytes (wrote %d): %w", n, written, err)
	}

	cs.dataBytes += n

	return nil
}

func (cs *chainStream) truncateTo(dataBytes int64) error {
	if err := cs.f.Truncate(chainHeaderSize + dataBytes); err != nil {
		return err
	}

	_, err := cs.f.Seek(0, io.SeekEnd)

	return err
}

// finalize patches the RIFF and data chunk sizes, flushes the file to disk
// and closes it. The scratch file is left in place for the caller to rename.
func (cs *chainStream) finalize() error {
	if cs.finalized {
		return errStreamFinalized
	}

	if _, err := cs.f.Seek(riffSizePos, io.SeekStart); err != nil {
		return fmt.Errorf("failed to seek to file size position: %w", err)
	}

	if err := cs.addLE(uint32(chainHeaderSize - 8 + cs.dataBytes)); err != nil {
		return fmt.Errorf("%w when writing the total file size", err)
	}

	if _, err := cs.f.Seek(dataSizePos, io.SeekStart); err != nil {
		return fmt.Errorf("failed to seek to PCM chunk size position: %w", err)
	}

	if err := cs.addLE(uint32(cs.dataBytes)); err != nil {
		return fmt.Errorf("%w when writing wav data chunk size header", err)
	}

	if err := cs.f.Sync(); err != nil {
		return fmt.Errorf("failed to sync chain stream: %w", err)
	}

	cs.finalized = true

	if err := cs.f.Close(); err != nil {
		return fmt.Errorf("failed to close chain stream: %w", err)
	}

	return nil
}

// discard closes the stream and removes the scratch file if it is still at
// the scratch path. Safe to call after finalize, once the file has been
// renamed away.
func (cs *chainStream) discard() error {
	if !cs.finalized {
		cs.finalized = true
		cs.f.Close()
	}

	if err := os.Remove(cs.path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove chain stream %s: %w", cs.path, err)
	}

	return nil
}
