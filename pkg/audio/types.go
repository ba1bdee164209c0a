package audio

import "time"

// Frame represents a single frame of PCM audio flowing through the call
// pipeline. Frames are the atomic transport unit: decoded from the browser's
// Opus stream, normalized for STT, and emitted by TTS synthesis.
type Frame struct {
	// PCM audio data, little-endian int16 samples.
	Data []byte

	// SampleRate in Hz (e.g., 48000 for browser capture, 16000 for STT).
	SampleRate int

	// Channels: 1 for mono (STT input), 2 for stereo (browser playback).
	Channels int

	// Timestamp marks when this frame was captured, relative to call start.
	Timestamp time.Duration
}

// Format describes the sample rate and channel count of an audio stream.
type Format struct {
	SampleRate int
	Channels   int
}
