package audio

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
)

// DefaultSampleRate is the rate Piper voices emit and the overlay plays back.
const DefaultSampleRate = 22050

var ErrNotWAV = errors.New("audio: not a RIFF/WAVE stream")

// wavHeader is the canonical 44-byte PCM header: RIFF chunk, fmt chunk, data
// chunk declaration. Field order matches the wire layout exactly.
type wavHeader struct {
	RIFF          [4]byte
	RIFFSize      uint32
	WAVE          [4]byte
	Fmt           [4]byte
	FmtSize       uint32
	AudioFormat   uint16
	NumChannels   uint16
	SampleRate    uint32
	ByteRate      uint32
	BlockAlign    uint16
	BitsPerSample uint16
	Data          [4]byte
	DataSize      uint32
}

// EncodeWAVPCM16LE wraps raw PCM16LE audio bytes in a WAV container.
func EncodeWAVPCM16LE(pcm []byte, sampleRate, channels int) ([]byte, error) {
	const bitsPerSample = 16
	if sampleRate <= 0 {
		sampleRate = DefaultSampleRate
	}
	if channels <= 0 {
		channels = 1
	}

	dataSize := uint32(len(pcm))
	h := wavHeader{
		RIFF:          [4]byte{'R', 'I', 'F', 'F'},
		RIFFSize:      36 + dataSize,
		WAVE:          [4]byte{'W', 'A', 'V', 'E'},
		Fmt:           [4]byte{'f', 'm', 't', ' '},
		FmtSize:       16,
		AudioFormat:   1, // PCM
		NumChannels:   uint16(channels),
		SampleRate:    uint32(sampleRate),
		ByteRate:      uint32(sampleRate * channels * bitsPerSample / 8),
		BlockAlign:    uint16(channels * bitsPerSample / 8),
		BitsPerSample: bitsPerSample,
		Data:          [4]byte{'d', 'a', 't', 'a'},
		DataSize:      dataSize,
	}

	var buf bytes.Buffer
	buf.Grow(44 + len(pcm))
	if err := binary.Write(&buf, binary.LittleEndian, h); err != nil {
		return nil, err
	}
	buf.Write(pcm)
	return buf.Bytes(), nil
}

// IsWAV reports whether b already starts with a RIFF/WAVE header.
func IsWAV(b []byte) bool {
	return len(b) >= 12 && bytes.Equal(b[0:4], []byte("RIFF")) && bytes.Equal(b[8:12], []byte("WAVE"))
}

// ExtractPCM16LE walks the chunks of a WAV stream and returns the PCM payload
// together with the declared sample rate and channel count. Chunks other than
// fmt and data are skipped.
func ExtractPCM16LE(b []byte) (pcm []byte, sampleRate, channels int, err error) {
	if !IsWAV(b) {
		return nil, 0, 0, ErrNotWAV
	}

	rest := b[12:]
	var haveFmt, havePCM bool
	for len(rest) >= 8 {
		id := string(rest[0:4])
		size := binary.LittleEndian.Uint32(rest[4:8])
		body := rest[8:]
		if uint32(len(body)) < size {
			return nil, 0, 0, fmt.Errorf("audio: truncated %q chunk: have %d bytes, header says %d", id, len(body), size)
		}

		switch id {
		case "fmt ":
			if size < 16 {
				return nil, 0, 0, fmt.Errorf("audio: fmt chunk too small: %d bytes", size)
			}
			if format := binary.LittleEndian.Uint16(body[0:2]); format != 1 {
				return nil, 0, 0, fmt.Errorf("audio: unsupported format code %d, want PCM", format)
			}
			if bits := binary.LittleEndian.Uint16(body[14:16]); bits != 16 {
				return nil, 0, 0, fmt.Errorf("audio: unsupported bit depth %d, want 16", bits)
			}
			channels = int(binary.LittleEndian.Uint16(body[2:4]))
			sampleRate = int(binary.LittleEndian.Uint32(body[4:8]))
			haveFmt = true
		case "data":
			pcm = body[:size]
			havePCM = true
		}

		// Chunks are word-aligned.
		advance := size + size%2
		if uint32(len(body)) < advance {
			break
		}
		rest = body[advance:]
	}

	if !haveFmt || !havePCM {
		return nil, 0, 0, fmt.Errorf("audio: missing fmt or data chunk")
	}
	return pcm, sampleRate, channels, nil
}
