package audioconv

import (
	"bytes"
	"errors"
	"math"
	"os"
	"path/filepath"
	"testing"

	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

func writeWAV(t *testing.T, path string, rate, channels int, data []int) {
	t.Helper()
	f, err := os.Create(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()

	enc := wav.NewEncoder(f, rate, 16, channels, 1)
	buf := &goaudio.IntBuffer{
		Format:         &goaudio.Format{NumChannels: channels, SampleRate: rate},
		Data:           data,
		SourceBitDepth: 16,
	}
	if err := enc.Write(buf); err != nil {
		t.Fatal(err)
	}
	if err := enc.Close(); err != nil {
		t.Fatal(err)
	}
}

func TestDecodeFile_WAVStereo8k(t *testing.T) {
	path := filepath.Join(t.TempDir(), "in.wav")
	frames := 100
	data := make([]int, 0, frames*2)
	for range frames {
		data = append(data, 16384, 16384)
	}
	writeWAV(t, path, 8000, 2, data)

	got, err := DecodeFile(path, Options{})
	if err != nil {
		t.Fatalf("DecodeFile() error: %v", err)
	}
	if len(got) != 200 {
		t.Errorf("len = %d, want 200 (100 frames upsampled 2x)", len(got))
	}
	for i, v := range got {
		if math.Abs(float64(v)-0.5) > 1e-3 {
			t.Fatalf("sample %d = %v, want 0.5", i, v)
		}
	}
}

func TestDecode_SniffsWithoutFormat(t *testing.T) {
	path := filepath.Join(t.TempDir(), "noext")
	writeWAV(t, path, 16000, 1, []int{0, 100, 200, 300})

	raw, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	got, err := Decode(bytes.NewReader(raw), "", Options{MaxSamples: 3})
	if err != nil {
		t.Fatalf("Decode() error: %v", err)
	}
	if len(got) != 3 {
		t.Errorf("len = %d, want 3 (MaxSamples)", len(got))
	}
}

func TestDecode_Unsupported(t *testing.T) {
	_, err := Decode(bytes.NewReader([]byte("definitely not audio")), "xyz", Options{})
	if !errors.Is(err, ErrUnsupported) {
		t.Errorf("error = %v, want ErrUnsupported", err)
	}
}

func TestDownmix(t *testing.T) {
	got := downmix([]float32{1, 0, 0.5, 0.5, -1, 1}, 2)
	want := []float32{0.5, 0.5, 0}
	if len(got) != len(want) {
		t.Fatalf("len = %d, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("frame %d = %v, want %v", i, got[i], want[i])
		}
	}
}

func TestResampleLinear(t *testing.T) {
	in := []float32{0, 1, 2, 3}
	if got := resampleLinear(in, 16000, 16000); len(got) != 4 {
		t.Errorf("same rate should pass through, got len %d", len(got))
	}

	up := resampleLinear(in, 8000, 16000)
	want := []float32{0, 0.5, 1, 1.5, 2, 2.5, 3, 3}
	if len(up) != len(want) {
		t.Fatalf("len = %d, want %d", len(up), len(want))
	}
	for i := range want {
		if math.Abs(float64(up[i]-want[i])) > 1e-6 {
			t.Errorf("up[%d] = %v, want %v", i, up[i], want[i])
		}
	}

	down := resampleLinear([]float32{0, 1, 2, 3, 4, 5}, 48000, 16000)
	if len(down) != 2 || down[0] != 0 || down[1] != 3 {
		t.Errorf("down = %v, want [0 3]", down)
	}
}

func TestIntsToFloat32(t *testing.T) {
	got := intsToFloat32([]int{-32768, 0, 16384}, 16)
	want := []float32{-1, 0, 0.5}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("sample %d = %v, want %v", i, got[i], want[i])
		}
	}
}

func TestNormalizeFormat(t *testing.T) {
	for in, want := range map[string]string{".WAV": "wav", "ogg": "ogg", " .mp3 ": "mp3", "": ""} {
		if got := normalizeFormat(in); got != want {
			t.Errorf("normalizeFormat(%q) = %q, want %q", in, got, want)
		}
	}
}
