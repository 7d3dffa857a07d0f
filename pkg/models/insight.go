package models

import "time"

// Insight is a generated text analysis for one symbol. It has no identity
// beyond the request that produced it and is never persisted.
type Insight struct {
	Symbol      string    `json:"symbol"`
	Text        string    `json:"text"`
	Model       string    `json:"model,omitempty"`
	GeneratedAt time.Time `json:"generated_at"`
}

// SpeechRequest asks the text-to-speech vendor to synthesize audio
type SpeechRequest struct {
	Text  string `json:"text"`
	Voice string `json:"voice,omitempty"`
}

// AudioClip is a synthesized audio artifact, consumed once and discarded
type AudioClip struct {
	ContentType string `json:"content_type"`
	Data        []byte `json:"-"`
}
