package services

import (
	"context"
	"encoding/base64"
	"fmt"
	"log"
	"strings"

	"google.golang.org/api/option"
	texttospeech "google.golang.org/api/texttospeech/v1"
)

// SpeechService synthesizes assistant replies into MP3 audio with Google
// Cloud Text-to-Speech. Unconfigured synthesis is a soft failure: voice
// turns still succeed with a text-only reply.
type SpeechService struct {
	svc   *texttospeech.Service
	voice string
}

func NewSpeechService(apiKey, voice string) (*SpeechService, error) {
	if apiKey == "" {
		log.Println("⚠ Speech service not configured (no API key)")
		return &SpeechService{voice: voice}, nil
	}

	svc, err := texttospeech.NewService(context.Background(), option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("failed to create text-to-speech client: %w", err)
	}

	return &SpeechService{svc: svc, voice: voice}, nil
}

func (s *SpeechService) Configured() bool { return s.svc != nil }

// Synthesize renders text as MP3 bytes.
func (s *SpeechService) Synthesize(ctx context.Context, text string) ([]byte, error) {
	if s.svc == nil {
		return nil, fmt.Errorf("speech service is not configured")
	}
	if strings.TrimSpace(text) == "" {
		return nil, fmt.Errorf("cannot synthesize empty text")
	}

	req := &texttospeech.SynthesizeSpeechRequest{
		Input: &texttospeech.SynthesisInput{Text: text},
		Voice: &texttospeech.VoiceSelectionParams{
			LanguageCode: languageCodeOf(s.voice),
			Name:         s.voice,
		},
		AudioConfig: &texttospeech.AudioConfig{AudioEncoding: "MP3"},
	}

	resp, err := s.svc.Text.Synthesize(req).Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("text-to-speech API error: %w", err)
	}

	audio, err := base64.StdEncoding.DecodeString(resp.AudioContent)
	if err != nil {
		return nil, fmt.Errorf("failed to decode synthesized audio: %w", err)
	}
	if len(audio) == 0 {
		return nil, fmt.Errorf("text-to-speech returned empty audio")
	}

	return audio, nil
}

// languageCodeOf derives the language code from a voice name like
// "en-US-Neural2-F".
func languageCodeOf(voice string) string {
	parts := strings.SplitN(voice, "-", 3)
	if len(parts) >= 2 {
		return parts[0] + "-" + parts[1]
	}
	return "en-US"
}
