package audio

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
)

// ErrUnsupportedWAV is returned for WAV files this package cannot decode
// directly. Callers fall back to ffmpeg.
var ErrUnsupportedWAV = errors.New("unsupported wav format")

const (
	wavFormatPCM        = 1
	wavFormatFloat      = 3
	wavFormatExtensible = 0xFFFE
)

// WAVInfo describes the fmt chunk of a WAV stream.
type WAVInfo struct {
	Format        uint16
	Channels      int
	SampleRate    int
	BitsPerSample int
}

// DecodeWAV reads a RIFF/WAVE stream holding 16-bit PCM or 32-bit float
// samples and returns a mono buffer. Multi-channel input is downmixed by
// averaging the channels of each frame.
func DecodeWAV(r io.Reader) (Buffer, WAVInfo, error) {
	br := bufio.NewReader(r)

	var riff [12]byte
	if _, err := io.ReadFull(br, riff[:]); err != nil {
		return Buffer{}, WAVInfo{}, fmt.Errorf("read riff header: %w", err)
	}
	if string(riff[0:4]) != "RIFF" || string(riff[8:12]) != "WAVE" {
		return Buffer{}, WAVInfo{}, fmt.Errorf("%w: missing RIFF/WAVE header", ErrUnsupportedWAV)
	}

	var info WAVInfo
	haveFmt := false
	for {
		var hdr [8]byte
		if _, err := io.ReadFull(br, hdr[:]); err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
				return Buffer{}, info, fmt.Errorf("%w: no data chunk", ErrUnsupportedWAV)
			}
			return Buffer{}, info, fmt.Errorf("read chunk header: %w", err)
		}
		id := string(hdr[0:4])
		size := int64(binary.LittleEndian.Uint32(hdr[4:8]))

		switch id {
		case "fmt ":
			parsed, err := readFmtChunk(br, size)
			if err != nil {
				return Buffer{}, info, err
			}
			info = parsed
			haveFmt = true
		case "data":
			if !haveFmt {
				return Buffer{}, info, fmt.Errorf("%w: data chunk before fmt chunk", ErrUnsupportedWAV)
			}
			// ffmpeg writes 0xFFFFFFFF sizes when streaming; read to EOF then.
			var data io.Reader = br
			if size != 0xFFFFFFFF {
				data = io.LimitReader(br, size)
			}
			buf, err := decodeSamples(data, info)
			return buf, info, err
		default:
			if _, err := io.CopyN(io.Discard, br, size+size%2); err != nil {
				return Buffer{}, info, fmt.Errorf("skip %q chunk: %w", id, err)
			}
		}
	}
}

func readFmtChunk(r io.Reader, size int64) (WAVInfo, error) {
	if size < 16 {
		return WAVInfo{}, fmt.Errorf("%w: fmt chunk too short (%d bytes)", ErrUnsupportedWAV, size)
	}
	raw := make([]byte, size+size%2)
	if _, err := io.ReadFull(r, raw); err != nil {
		return WAVInfo{}, fmt.Errorf("read fmt chunk: %w", err)
	}

	info := WAVInfo{
		Format:        binary.LittleEndian.Uint16(raw[0:2]),
		Channels:      int(binary.LittleEndian.Uint16(raw[2:4])),
		SampleRate:    int(binary.LittleEndian.Uint32(raw[4:8])),
		BitsPerSample: int(binary.LittleEndian.Uint16(raw[14:16])),
	}
	if info.Format == wavFormatExtensible && size >= 26 {
		// The first two bytes of the sub-format GUID carry the real format tag.
		info.Format = binary.LittleEndian.Uint16(raw[24:26])
	}

	switch {
	case info.Channels <= 0:
		return info, fmt.Errorf("%w: %d channels", ErrUnsupportedWAV, info.Channels)
	case info.SampleRate <= 0:
		return info, fmt.Errorf("%w: sample rate %d", ErrUnsupportedWAV, info.SampleRate)
	case info.Format == wavFormatPCM && info.BitsPerSample == 16:
	case info.Format == wavFormatFloat && info.BitsPerSample == 32:
	default:
		return info, fmt.Errorf("%w: format %d with %d bits per sample", ErrUnsupportedWAV, info.Format, info.BitsPerSample)
	}
	return info, nil
}

func decodeSamples(r io.Reader, info WAVInfo) (Buffer, error) {
	raw, err := io.ReadAll(r)
	if err != nil {
		return Buffer{}, fmt.Errorf("read data chunk: %w", err)
	}

	bytesPerSample := info.BitsPerSample / 8
	frameSize := bytesPerSample * info.Channels
	frames := len(raw) / frameSize
	samples := make([]float32, frames)

	for i := 0; i < frames; i++ {
		var sum float32
		frame := raw[i*frameSize : (i+1)*frameSize]
		for ch := 0; ch < info.Channels; ch++ {
			at := frame[ch*bytesPerSample:]
			if info.Format == wavFormatFloat {
				sum += math.Float32frombits(binary.LittleEndian.Uint32(at))
			} else {
				sum += float32(int16(binary.LittleEndian.Uint16(at))) / 32768.0
			}
		}
		samples[i] = sum / float32(info.Channels)
	}

	return Buffer{Samples: samples, SampleRate: info.SampleRate}, nil
}

// EncodeWAV writes buf as a mono 16-bit PCM WAV stream. Samples outside
// [-1, 1] are clipped.
func EncodeWAV(w io.Writer, buf Buffer) error {
	dataSize := len(buf.Samples) * 2

	var hdr bytes.Buffer
	hdr.Grow(44)
	hdr.WriteString("RIFF")
	_ = binary.Write(&hdr, binary.LittleEndian, uint32(36+dataSize))
	hdr.WriteString("WAVE")
	hdr.WriteString("fmt ")
	_ = binary.Write(&hdr, binary.LittleEndian, uint32(16))
	_ = binary.Write(&hdr, binary.LittleEndian, uint16(wavFormatPCM))
	_ = binary.Write(&hdr, binary.LittleEndian, uint16(1))
	_ = binary.Write(&hdr, binary.LittleEndian, uint32(buf.SampleRate))
	_ = binary.Write(&hdr, binary.LittleEndian, uint32(buf.SampleRate*2))
	_ = binary.Write(&hdr, binary.LittleEndian, uint16(2))
	_ = binary.Write(&hdr, binary.LittleEndian, uint16(16))
	hdr.WriteString("data")
	_ = binary.Write(&hdr, binary.LittleEndian, uint32(dataSize))

	if _, err := w.Write(hdr.Bytes()); err != nil {
		return fmt.Errorf("write wav header: %w", err)
	}

	pcm := make([]byte, dataSize)
	for i, s := range buf.Samples {
		binary.LittleEndian.PutUint16(pcm[i*2:], uint16(floatToPCM16(s)))
	}
	if _, err := w.Write(pcm); err != nil {
		return fmt.Errorf("write wav data: %w", err)
	}
	return nil
}

// EncodeWAVBytes is EncodeWAV into memory.
func EncodeWAVBytes(buf Buffer) ([]byte, error) {
	var out bytes.Buffer
	out.Grow(44 + len(buf.Samples)*2)
	if err := EncodeWAV(&out, buf); err != nil {
		return nil, err
	}
	return out.Bytes(), nil
}

func floatToPCM16(s float32) int16 {
	switch {
	case s >= 1:
		return math.MaxInt16
	case s <= -1:
		return math.MinInt16
	default:
		return int16(s * 32767)
	}
}
