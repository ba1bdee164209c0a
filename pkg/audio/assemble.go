package audio

import (
	"bytes"
	"errors"
	"sync"
)

// Recorder accumulates the PCM audio of a whole call, turn by turn, and
// assembles it into a single WAV payload when the call ends. Segments may
// arrive at different sample rates (browser capture vs. TTS output); each is
// normalized to the recorder's target format on append so assembly is a plain
// concatenation.
type Recorder struct {
	mu       sync.Mutex
	target   Format
	segments [][]byte
	total    int
}

// NewRecorder creates a Recorder normalizing all segments to the given sample
// rate, mono.
func NewRecorder(sampleRate int) *Recorder {
	return &Recorder{target: Format{SampleRate: sampleRate, Channels: 1}}
}

// Append adds one audio segment to the recording. The segment is converted to
// the recorder's target format; empty segments are ignored.
func (r *Recorder) Append(pcm []byte, sampleRate, channels int) {
	if len(pcm) == 0 {
		return
	}
	if channels == 2 {
		pcm = StereoToMono(pcm)
	}
	if sampleRate != r.target.SampleRate {
		pcm = ResampleMono16(pcm, sampleRate, r.target.SampleRate)
	}
	r.mu.Lock()
	r.segments = append(r.segments, pcm)
	r.total += len(pcm)
	r.mu.Unlock()
}

// AppendSilence inserts ms milliseconds of silence, preserving the natural
// pauses between turns in the assembled recording.
func (r *Recorder) AppendSilence(ms int) {
	if ms <= 0 {
		return
	}
	samples := r.target.SampleRate * ms / 1000
	r.mu.Lock()
	r.segments = append(r.segments, make([]byte, samples*2))
	r.total += samples * 2
	r.mu.Unlock()
}

// Len reports the total PCM byte count recorded so far.
func (r *Recorder) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.total
}

// Reset discards all recorded segments, keeping the target format.
func (r *Recorder) Reset() {
	r.mu.Lock()
	r.segments = nil
	r.total = 0
	r.mu.Unlock()
}

// WAV assembles the recorded segments into a single WAV file. Returns an
// error when nothing was recorded.
func (r *Recorder) WAV() ([]byte, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.total == 0 {
		return nil, errors.New("audio: recorder is empty")
	}
	var buf bytes.Buffer
	buf.Grow(r.total)
	for _, seg := range r.segments {
		buf.Write(seg)
	}
	return EncodeWAV(buf.Bytes(), r.target.SampleRate, r.target.Channels), nil
}

// DataURI assembles the recording as a base64 WAV data URI.
func (r *Recorder) DataURI() (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.total == 0 {
		return "", errors.New("audio: recorder is empty")
	}
	var buf bytes.Buffer
	buf.Grow(r.total)
	for _, seg := range r.segments {
		buf.Write(seg)
	}
	return WAVDataURI(buf.Bytes(), r.target.SampleRate, r.target.Channels), nil
}
