package audioio

import (
	"bytes"
	"encoding/binary"
	"fmt"
)

const wavHeaderSize = 44

// EncodeWAV wraps PCM16 samples in a canonical RIFF/WAVE container.
func EncodeWAV(samples []int16, sampleRate, channels int) []byte {
	dataSize := uint32(len(samples) * 2)
	blockAlign := uint16(channels * 2)

	var buf bytes.Buffer
	buf.Grow(wavHeaderSize + int(dataSize))

	buf.WriteString("RIFF")
	_ = binary.Write(&buf, binary.LittleEndian, 36+dataSize)
	buf.WriteString("WAVE")

	buf.WriteString("fmt ")
	_ = binary.Write(&buf, binary.LittleEndian, uint32(16))
	_ = binary.Write(&buf, binary.LittleEndian, uint16(1)) // PCM
	_ = binary.Write(&buf, binary.LittleEndian, uint16(channels))
	_ = binary.Write(&buf, binary.LittleEndian, uint32(sampleRate))
	_ = binary.Write(&buf, binary.LittleEndian, uint32(sampleRate)*uint32(blockAlign))
	_ = binary.Write(&buf, binary.LittleEndian, blockAlign)
	_ = binary.Write(&buf, binary.LittleEndian, uint16(16))

	buf.WriteString("data")
	_ = binary.Write(&buf, binary.LittleEndian, dataSize)
	buf.Write(SamplesToBytes(samples))
	return buf.Bytes()
}

// WAV is a decoded PCM16 WAV file.
type WAV struct {
	Samples    []int16
	SampleRate int
	Channels   int
}

// DecodeWAV parses a PCM16 WAV file, skipping unknown chunks.
func DecodeWAV(data []byte) (*WAV, error) {
	if len(data) < 12 || string(data[0:4]) != "RIFF" || string(data[8:12]) != "WAVE" {
		return nil, fmt.Errorf("%w: missing RIFF/WAVE header", ErrInvalidWAV)
	}

	var out WAV
	var haveFmt bool
	pos := 12
	for pos+8 <= len(data) {
		id := string(data[pos : pos+4])
		size := int(binary.LittleEndian.Uint32(data[pos+4 : pos+8]))
		body := pos + 8
		if size < 0 || body+size > len(data) {
			size = len(data) - body
		}

		switch id {
		case "fmt ":
			if size < 16 {
				return nil, fmt.Errorf("%w: short fmt chunk", ErrInvalidWAV)
			}
			format := binary.LittleEndian.Uint16(data[body:])
			bits := binary.LittleEndian.Uint16(data[body+14:])
			if format != 1 || bits != 16 {
				return nil, fmt.Errorf("%w: only 16-bit PCM is supported (format %d, %d bits)", ErrInvalidWAV, format, bits)
			}
			out.Channels = int(binary.LittleEndian.Uint16(data[body+2:]))
			out.SampleRate = int(binary.LittleEndian.Uint32(data[body+4:]))
			haveFmt = true
		case "data":
			if !haveFmt {
				return nil, fmt.Errorf("%w: data before fmt", ErrInvalidWAV)
			}
			out.Samples = BytesToSamples(data[body : body+size])
			return &out, nil
		}

		pos = body + size + size%2
	}
	return nil, fmt.Errorf("%w: no data chunk", ErrInvalidWAV)
}
