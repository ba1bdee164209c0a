package audio_test

import (
	"encoding/binary"
	"strings"
	"testing"

	"github.com/voxhall/telesuite/pkg/audio"
)

// samplesToBytes converts a slice of int16 samples to little-endian byte representation.
func samplesToBytes(samples []int16) []byte {
	buf := make([]byte, len(samples)*2)
	for i, s := range samples {
		binary.LittleEndian.PutUint16(buf[i*2:], uint16(s))
	}
	return buf
}

// bytesToSamples converts a little-endian byte slice to int16 samples.
func bytesToSamples(b []byte) []int16 {
	samples := make([]int16, len(b)/2)
	for i := range samples {
		samples[i] = int16(binary.LittleEndian.Uint16(b[i*2:]))
	}
	return samples
}

func TestMonoToStereo(t *testing.T) {
	mono := samplesToBytes([]int16{100, 200, 300})
	stereo := audio.MonoToStereo(mono)
	got := bytesToSamples(stereo)
	want := []int16{100, 100, 200, 200, 300, 300}
	if len(got) != len(want) {
		t.Fatalf("length mismatch: got %d, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("sample %d: got %d, want %d", i, got[i], want[i])
		}
	}
}

func TestStereoToMono(t *testing.T) {
	// Two stereo frames: L=100,R=200 and L=-100,R=-200
	stereo := samplesToBytes([]int16{100, 200, -100, -200})
	mono := audio.StereoToMono(stereo)
	got := bytesToSamples(mono)
	want := []int16{150, -150}
	if len(got) != len(want) {
		t.Fatalf("length mismatch: got %d, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("sample %d: got %d, want %d", i, got[i], want[i])
		}
	}
}

func TestStereoToMono_Clamping(t *testing.T) {
	// Two max-positive samples should clamp to 32767 (not overflow).
	stereo := samplesToBytes([]int16{32767, 32767})
	mono := audio.StereoToMono(stereo)
	got := bytesToSamples(mono)
	if len(got) != 1 {
		t.Fatalf("length mismatch: got %d, want 1", len(got))
	}
	if got[0] != 32767 {
		t.Errorf("got %d, want 32767", got[0])
	}
}

func TestResampleMono16_Halving(t *testing.T) {
	pcm := samplesToBytes([]int16{0, 100, 200, 300, 400, 500, 600, 700})
	out := audio.ResampleMono16(pcm, 48000, 24000)
	got := bytesToSamples(out)
	if len(got) != 4 {
		t.Fatalf("length mismatch: got %d samples, want 4", len(got))
	}
}

func TestResampleMono16_SameRate(t *testing.T) {
	pcm := samplesToBytes([]int16{100, 200, 300})
	out := audio.ResampleMono16(pcm, 48000, 48000)
	if len(out) != len(pcm) {
		t.Fatalf("length mismatch: got %d, want %d", len(out), len(pcm))
	}
}

func TestConverter_FastPath(t *testing.T) {
	conv := audio.Converter{Target: audio.Format{SampleRate: 16000, Channels: 1}}
	frame := audio.Frame{Data: samplesToBytes([]int16{1, 2, 3}), SampleRate: 16000, Channels: 1}
	out := conv.Convert(frame)
	if &out.Data[0] != &frame.Data[0] {
		t.Error("matching format should return the frame data unchanged")
	}
}

func TestConverter_DropsTornFrames(t *testing.T) {
	conv := audio.Converter{Target: audio.Format{SampleRate: 16000, Channels: 1}}
	out := conv.Convert(audio.Frame{Data: []byte{1, 2, 3}, SampleRate: 16000, Channels: 1})
	if len(out.Data) != 0 {
		t.Errorf("odd byte count should drop the frame, got %d bytes", len(out.Data))
	}
}

func TestEncodeDecodeWAV_Roundtrip(t *testing.T) {
	pcm := samplesToBytes([]int16{0, 1000, -1000, 32767, -32768})
	wav := audio.EncodeWAV(pcm, 16000, 1)

	gotPCM, rate, channels, err := audio.DecodeWAV(wav)
	if err != nil {
		t.Fatalf("DecodeWAV: %v", err)
	}
	if rate != 16000 || channels != 1 {
		t.Errorf("got %dHz %dch, want 16000Hz 1ch", rate, channels)
	}
	if len(gotPCM) != len(pcm) {
		t.Fatalf("pcm length mismatch: got %d, want %d", len(gotPCM), len(pcm))
	}
	for i := range pcm {
		if gotPCM[i] != pcm[i] {
			t.Fatalf("byte %d: got %d, want %d", i, gotPCM[i], pcm[i])
		}
	}
}

func TestDecodeWAV_RejectsGarbage(t *testing.T) {
	if _, _, _, err := audio.DecodeWAV([]byte("definitely not a wav file, far too short?")); err == nil {
		t.Error("expected error for non-WAV input")
	}
}

func TestWAVDataURI_Prefix(t *testing.T) {
	uri := audio.WAVDataURI(samplesToBytes([]int16{1, 2}), 16000, 1)
	if !strings.HasPrefix(uri, "data:audio/wav;base64,") {
		t.Errorf("unexpected data URI prefix: %.40s", uri)
	}
}

func TestRecorder_AssemblesSegments(t *testing.T) {
	rec := audio.NewRecorder(16000)
	rec.Append(samplesToBytes([]int16{1, 2, 3}), 16000, 1)
	rec.AppendSilence(1) // 16 samples
	rec.Append(samplesToBytes([]int16{4, 5}), 16000, 1)

	wantBytes := (3 + 16 + 2) * 2
	if rec.Len() != wantBytes {
		t.Errorf("Len: got %d, want %d", rec.Len(), wantBytes)
	}

	wav, err := rec.WAV()
	if err != nil {
		t.Fatalf("WAV: %v", err)
	}
	pcm, rate, channels, err := audio.DecodeWAV(wav)
	if err != nil {
		t.Fatalf("DecodeWAV: %v", err)
	}
	if rate != 16000 || channels != 1 {
		t.Errorf("got %dHz %dch, want 16000Hz 1ch", rate, channels)
	}
	if len(pcm) != wantBytes {
		t.Errorf("assembled pcm: got %d bytes, want %d", len(pcm), wantBytes)
	}
}

func TestRecorder_NormalizesSampleRate(t *testing.T) {
	rec := audio.NewRecorder(16000)
	// One 48 kHz segment of 48 samples should land as ~16 samples.
	rec.Append(make([]byte, 48*2), 48000, 1)
	if got := rec.Len(); got != 16*2 {
		t.Errorf("Len: got %d, want %d", got, 16*2)
	}
}

func TestRecorder_EmptyErrors(t *testing.T) {
	rec := audio.NewRecorder(16000)
	if _, err := rec.WAV(); err == nil {
		t.Error("expected error for empty recorder")
	}
	if _, err := rec.DataURI(); err == nil {
		t.Error("expected error for empty recorder")
	}
}
