package otutils

import "encoding/binary"

// The .ot layout is the reverse-engineered Octatrack sample attributes
// format: a 23-byte header, trim/loop attributes, a fixed 64-slot slice
// table, the active slice count and a 16-bit checksum. Every multi-byte
// integer is big-endian and the file is always 832 bytes, no matter how
// many slices are in use.

const otFileSize = 832

// header: "FORM", zero size, "DPS1", "SMPA", then reserved/version bytes.
var otHeader = []byte{
	0x46, 0x4F, 0x52, 0x4D, 0x00, 0x00, 0x00, 0x00,
	0x44, 0x50, 0x53, 0x31, 0x53, 0x4D, 0x50, 0x41,
	0x00, 0x00, 0x00, 0x00, 0x00, 0x02, 0x00,
}

// checksum covers everything after the first 16 header bytes.
const otChecksumStart = 16

const (
	defaultGain     = 48   // 0 dB
	defaultQuantize = 0xFF // direct slice trig
)

// encodeOTFile serializes the chain attributes and slice table. Unused
// table slots are zero-filled; the sampler reads only the first
// len(slices) entries per the trailing count field.
func encodeOTFile(slices []Slice, totalFrames, tempo, sampleRate uint32) []byte {
	data := make([]byte, 0, otFileSize)
	data = append(data, otHeader...)

	bars := barLength(totalFrames, tempo, sampleRate)

	data = binary.BigEndian.AppendUint32(data, tempo*24)
	data = binary.BigEndian.AppendUint32(data, bars) // trim length
	data = binary.BigEndian.AppendUint32(data, bars) // loop length
	data = binary.BigEndian.AppendUint32(data, 0)    // timestretch off
	data = binary.BigEndian.AppendUint32(data, 0)    // loop off
	data = binary.BigEndian.AppendUint16(data, defaultGain)
	data = append(data, defaultQuantize)
	data = binary.BigEndian.AppendUint32(data, 0)           // trim start
	data = binary.BigEndian.AppendUint32(data, totalFrames) // trim end
	data = binary.BigEndian.AppendUint32(data, 0)           // loop point

	for i := 0; i < MaxSlices; i++ {
		var slice Slice
		if i < len(slices) {
			slice = slices[i]
		}

		data = binary.BigEndian.AppendUint32(data, slice.StartFrame)
		data = binary.BigEndian.AppendUint32(data, slice.EndFrame)
		data = binary.BigEndian.AppendUint32(data, slice.LoopPoint)
	}

	data = binary.BigEndian.AppendUint32(data, uint32(len(slices)))

	var checksum uint16
	for _, b := range data[otChecksumStart:] {
		checksum += uint16(b)
	}

	return binary.BigEndian.AppendUint16(data, checksum)
}

// barLength converts the chain length to the .ot bar unit (quarter bars
// times 25) at the given tempo.
func barLength(totalFrames, tempo, sampleRate uint32) uint32 {
	if sampleRate == 0 {
		return 0
	}

	beats := float64(tempo) * float64(totalFrames) / (float64(sampleRate) * 60.0)

	return uint32(beats+0.5) * 25
}
