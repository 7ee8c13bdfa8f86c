// Package audioconv decodes wav, mp3 and ogg (vorbis or opus) audio into
// 16 kHz mono float32 PCM, the input format of whisper.
package audioconv

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-audio/wav"
	"github.com/hajimehoshi/go-mp3"
	"github.com/jfreymuth/oggvorbis"
	popus "github.com/pekim/opus"
)

// TargetRate is the sample rate of every decoded buffer.
const TargetRate = 16000

type Options struct {
	// MaxSamples truncates the output. 0 keeps everything.
	MaxSamples int
}

// ErrUnsupported is returned when the format is neither given nor
// recognisable from the stream header.
var ErrUnsupported = errors.New("unsupported audio format")

// DecodeFile decodes the file at path, choosing the decoder by extension.
func DecodeFile(path string, opt Options) ([]float32, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return Decode(f, filepath.Ext(path), opt)
}

// Decode converts r to 16 kHz mono PCM. format is an extension such as
// "wav" or ".ogg"; when empty or unknown the header is sniffed.
func Decode(r io.ReadSeeker, format string, opt Options) ([]float32, error) {
	var (
		x   []float32
		err error
	)
	switch normalizeFormat(format) {
	case "wav":
		x, err = decodeWAV(r)
	case "mp3":
		x, err = decodeMP3(r)
	case "ogg", "oga", "opus":
		x, err = decodeOgg(r)
	default:
		x, err = decodeSniffed(r, format)
	}
	if err != nil {
		return nil, err
	}
	if opt.MaxSamples > 0 && len(x) > opt.MaxSamples {
		x = x[:opt.MaxSamples]
	}
	return x, nil
}

func normalizeFormat(format string) string {
	return strings.TrimPrefix(strings.ToLower(strings.TrimSpace(format)), ".")
}

func decodeSniffed(r io.ReadSeeker, format string) ([]float32, error) {
	magic, _ := bufio.NewReader(r).Peek(4)
	if _, err := r.Seek(0, io.SeekStart); err != nil {
		return nil, err
	}
	switch string(magic) {
	case "RIFF":
		return decodeWAV(r)
	case "OggS":
		return decodeOgg(r)
	}
	if len(magic) >= 3 && string(magic[:3]) == "ID3" {
		return decodeMP3(r)
	}
	return nil, fmt.Errorf("%w: %q", ErrUnsupported, format)
}

func decodeWAV(r io.ReadSeeker) ([]float32, error) {
	dec := wav.NewDecoder(r)
	if !dec.IsValidFile() {
		return nil, errors.New("invalid wav")
	}
	pb, err := dec.FullPCMBuffer()
	if err != nil {
		return nil, fmt.Errorf("read wav: %w", err)
	}
	if pb == nil || len(pb.Data) == 0 {
		return nil, errors.New("empty wav")
	}

	bd := int(dec.BitDepth)
	if bd == 0 {
		bd = 16
	}
	ch, sr := 1, 44100
	if pb.Format != nil {
		if pb.Format.NumChannels > 0 {
			ch = pb.Format.NumChannels
		}
		if pb.Format.SampleRate > 0 {
			sr = pb.Format.SampleRate
		}
	}
	return toMono16k(intsToFloat32(pb.Data, bd), ch, sr), nil
}

func decodeMP3(r io.Reader) ([]float32, error) {
	dec, err := mp3.NewDecoder(r)
	if err != nil {
		return nil, fmt.Errorf("read mp3: %w", err)
	}
	var raw bytes.Buffer
	if _, err := io.Copy(&raw, dec); err != nil {
		return nil, fmt.Errorf("read mp3: %w", err)
	}
	ints := make([]int16, raw.Len()/2)
	if err := binary.Read(&raw, binary.LittleEndian, ints); err != nil {
		return nil, err
	}

	sr := dec.SampleRate()
	if sr <= 0 {
		sr = 44100
	}
	// go-mp3 always produces interleaved stereo
	return toMono16k(int16sToFloat32(ints), 2, sr), nil
}

// decodeOgg tries vorbis first and falls back to opus.
func decodeOgg(r io.ReadSeeker) ([]float32, error) {
	x, vorbisErr := decodeVorbis(r)
	if vorbisErr == nil {
		return x, nil
	}
	if _, err := r.Seek(0, io.SeekStart); err != nil {
		return nil, err
	}
	x, opusErr := decodeOpus(r)
	if opusErr != nil {
		return nil, fmt.Errorf("decode ogg: vorbis: %v; opus: %w", vorbisErr, opusErr)
	}
	return x, nil
}

func decodeVorbis(r io.Reader) ([]float32, error) {
	pcm, format, err := oggvorbis.ReadAll(r)
	if err != nil {
		return nil, err
	}
	if format == nil || format.Channels <= 0 || format.SampleRate <= 0 {
		return nil, errors.New("invalid ogg/vorbis stream")
	}
	return toMono16k(pcm, format.Channels, format.SampleRate), nil
}

const opusRate = 48000

func decodeOpus(r io.ReadSeeker) ([]float32, error) {
	dec, err := popus.NewDecoder(r)
	if err != nil {
		return nil, err
	}
	defer dec.Destroy()

	ch := max(dec.ChannelCount(), 1)

	var (
		pcm []float32
		buf = make([]int16, opusRate*ch/2)
	)
	for {
		n, err := dec.Read(buf)
		if n > 0 {
			pcm = append(pcm, int16sToFloat32(buf[:n*ch])...)
		}
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
	}
	if len(pcm) == 0 {
		return nil, errors.New("empty opus stream")
	}
	return toMono16k(pcm, ch, opusRate), nil
}

func toMono16k(x []float32, channels, rate int) []float32 {
	return resampleLinear(downmix(x, channels), rate, TargetRate)
}
