package app

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/voxhall/telesuite/pkg/audio"
	"github.com/voxhall/telesuite/pkg/provider/stt"
)

// maxTranscribeBody caps uploaded call recordings at 64 MiB.
const maxTranscribeBody = 64 << 20

// Transcriber is the optional batch interface the whisper providers
// implement alongside streaming. Used by the upload-transcription endpoint.
type Transcriber interface {
	Transcribe(ctx context.Context, pcm []byte, sampleRate int) (stt.Transcript, error)
}

// transcribeHandler serves POST /transcribe: upload a WAV recording, get the
// transcript back. Available when the configured STT provider supports batch
// transcription.
func transcribeHandler(t Transcriber) http.HandlerFunc {
	logger := slog.Default().With("component", "transcribe")

	return func(w http.ResponseWriter, r *http.Request) {
		body, err := io.ReadAll(io.LimitReader(r.Body, maxTranscribeBody+1))
		if err != nil {
			http.Error(w, "read body: "+err.Error(), http.StatusBadRequest)
			return
		}
		if len(body) > maxTranscribeBody {
			http.Error(w, "recording too large", http.StatusRequestEntityTooLarge)
			return
		}

		pcm, sampleRate, channels, err := audio.DecodeWAV(body)
		if err != nil {
			http.Error(w, "decode wav: "+err.Error(), http.StatusBadRequest)
			return
		}
		switch channels {
		case 1:
		case 2:
			pcm = audio.StereoToMono(pcm)
		default:
			http.Error(w, "unsupported channel count", http.StatusBadRequest)
			return
		}

		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Minute)
		defer cancel()

		transcript, err := t.Transcribe(ctx, pcm, sampleRate)
		if err != nil {
			logger.Warn("transcription failed", "error", err)
			http.Error(w, "transcription failed", http.StatusBadGateway)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(struct {
			Text       string  `json:"text"`
			Confidence float64 `json:"confidence,omitempty"`
		}{Text: transcript.Text, Confidence: transcript.Confidence})
	}
}
