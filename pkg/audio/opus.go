package audio

import (
	"fmt"

	"layeh.com/gopus"
)

// Browser capture streams 48 kHz mono Opus at 20 ms frame size.
const (
	opusSampleRate  = 48000
	opusChannels    = 1
	opusFrameSizeMs = 20
	// opusFrameSize is the number of samples per channel per 20 ms frame.
	opusFrameSize = opusSampleRate * opusFrameSizeMs / 1000 // 960
)

// OpusDecoder wraps a gopus Opus decoder for a single call's inbound audio
// stream. Each call gets its own decoder to maintain decoder state correctly
// across consecutive frames.
type OpusDecoder struct {
	dec *gopus.Decoder
}

// NewOpusDecoder creates a new Opus decoder configured for browser capture.
func NewOpusDecoder() (*OpusDecoder, error) {
	dec, err := gopus.NewDecoder(opusSampleRate, opusChannels)
	if err != nil {
		return nil, fmt.Errorf("audio: create opus decoder: %w", err)
	}
	return &OpusDecoder{dec: dec}, nil
}

// Decode decodes an Opus packet into PCM int16 samples and returns the result
// as little-endian bytes at 48 kHz mono.
func (d *OpusDecoder) Decode(opus []byte) ([]byte, error) {
	pcm, err := d.dec.Decode(opus, opusFrameSize, false)
	if err != nil {
		return nil, fmt.Errorf("audio: opus decode: %w", err)
	}
	return Int16sToBytes(pcm), nil
}

// SampleRate reports the decoder's output sample rate.
func (d *OpusDecoder) SampleRate() int { return opusSampleRate }

// Channels reports the decoder's output channel count.
func (d *OpusDecoder) Channels() int { return opusChannels }

// OpusEncoder wraps a gopus Opus encoder for the outbound playback stream.
type OpusEncoder struct {
	enc *gopus.Encoder
}

// NewOpusEncoder creates a new Opus encoder for browser playback.
func NewOpusEncoder() (*OpusEncoder, error) {
	enc, err := gopus.NewEncoder(opusSampleRate, opusChannels, gopus.Audio)
	if err != nil {
		return nil, fmt.Errorf("audio: create opus encoder: %w", err)
	}
	return &OpusEncoder{enc: enc}, nil
}

// Encode encodes one 20 ms frame of PCM int16 data (as little-endian bytes at
// 48 kHz mono) into an Opus packet.
func (e *OpusEncoder) Encode(pcmBytes []byte) ([]byte, error) {
	pcm := BytesToInt16s(pcmBytes)
	opus, err := e.enc.Encode(pcm, opusFrameSize, len(pcmBytes))
	if err != nil {
		return nil, fmt.Errorf("audio: opus encode: %w", err)
	}
	return opus, nil
}
