package otutils

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/go-audio/aiff"
	"github.com/go-audio/audio"
)

// pcmSamples returns a deterministic, per-seed recognizable sample pattern.
func pcmSamples(n int, seed int16) []int16 {
	out := make([]int16, n)
	for i := range out {
		out[i] = seed + int16(i%113)
	}

	return out
}

func pcmPayload(samples []int16) []byte {
	out := make([]byte, 2*len(samples))
	for i, s := range samples {
		binary.LittleEndian.PutUint16(out[2*i:], uint16(s))
	}

	return out
}

// wavBytes builds a canonical-layout wav file in memory.
func wavBytes(sampleRate uint32, numChans, bitDepth uint16, payload []byte) []byte {
	blockAlign := numChans * bitDepth / 8

	buf := &bytes.Buffer{}
	buf.WriteString("RIFF")
	binary.Write(buf, binary.LittleEndian, uint32(36+len(payload)))
	buf.WriteString("WAVE")
	buf.WriteString("fmt ")
	binary.Write(buf, binary.LittleEndian, uint32(16))
	binary.Write(buf, binary.LittleEndian, uint16(1))
	binary.Write(buf, binary.LittleEndian, numChans)
	binary.Write(buf, binary.LittleEndian, sampleRate)
	binary.Write(buf, binary.LittleEndian, sampleRate*uint32(blockAlign))
	binary.Write(buf, binary.LittleEndian, blockAlign)
	binary.Write(buf, binary.LittleEndian, bitDepth)
	buf.WriteString("data")
	binary.Write(buf, binary.LittleEndian, uint32(len(payload)))
	buf.Write(payload)

	return buf.Bytes()
}

func writeFixture(t *testing.T, dir, name string, data []byte) string {
	t.Helper()

	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("failed to write fixture %s: %v", name, err)
	}

	return path
}

func writeMonoWav(t *testing.T, dir, name string, sampleRate uint32, samples []int16) string {
	t.Helper()

	return writeFixture(t, dir, name, wavBytes(sampleRate, 1, 16, pcmPayload(samples)))
}

func writeMonoAiff(t *testing.T, dir, name string, sampleRate int, samples []int16) string {
	t.Helper()

	path := filepath.Join(dir, name)

	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("failed to create fixture %s: %v", name, err)
	}
	defer f.Close()

	enc := aiff.NewEncoder(f, sampleRate, 16, 1)

	buf := &audio.IntBuffer{
		Format:         &audio.Format{NumChannels: 1, SampleRate: sampleRate},
		SourceBitDepth: 16,
		Data:           make([]int, len(samples)),
	}
	for i, s := range samples {
		buf.Data[i] = int(s)
	}

	if err := enc.Write(buf); err != nil {
		t.Fatalf("failed to encode aiff fixture %s: %v", name, err)
	}

	if err := enc.Close(); err != nil {
		t.Fatalf("failed to close aiff fixture %s: %v", name, err)
	}

	return path
}

type testChunk struct {
	id   string
	size uint32
	data []byte
}

var (
	errFileTooSmall         = errors.New("file too small")
	errInvalidRiffWaveHdr   = errors.New("invalid riff/wave header")
	errChunkExceedsFileSize = errors.New("chunk exceeds file size")
)

func parseWavChunks(data []byte) ([]testChunk, error) {
	if len(data) < 12 {
		return nil, errFileTooSmall
	}

	if string(data[0:4]) != "RIFF" || string(data[8:12]) != "WAVE" {
		return nil, errInvalidRiffWaveHdr
	}

	chunks := make([]testChunk, 0)

	offset := 12
	for offset+8 <= len(data) {
		id := string(data[offset : offset+4])
		size := binary.LittleEndian.Uint32(data[offset+4 : offset+8])
		offset += 8

		end := offset + int(size)
		if end > len(data) {
			return nil, fmt.Errorf("%w: %q", errChunkExceedsFileSize, id)
		}

		payload := append([]byte(nil), data[offset:end]...)
		chunks = append(chunks, testChunk{id: id, size: size, data: payload})

		offset = end
		if size%2 == 1 {
			offset++
		}
	}

	return chunks, nil
}

func findChunk(t *testing.T, chunks []testChunk, id string) testChunk {
	t.Helper()

	for _, ch := range chunks {
		if ch.id == id {
			return ch
		}
	}

	t.Fatalf("chunk %q not found", id)

	return testChunk{}
}
