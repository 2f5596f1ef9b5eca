// Package speech proxies text-to-speech and speech-to-text through the OpenAI
// audio endpoints. Audio is streamed through and never stored; the session
// transcript only ever holds text.
package speech

import (
	"context"
	"fmt"
	"io"
	"unicode/utf8"

	openai "github.com/sashabaranov/go-openai"
)

const (
	// MaxTextChars is the longest text accepted for synthesis (the OpenAI
	// speech endpoint caps input at 4096 characters).
	MaxTextChars = 4096

	// MaxAudioBytes is the largest audio upload accepted for
	// transcription (25 MB, matching the provider limit).
	MaxAudioBytes = 25 << 20
)

// Config holds speech proxy settings.
type Config struct {
	APIKey   string
	TTSModel string // default "tts-1"
	STTModel string // default "whisper-1"
	Voice    string // default "alloy"
}

// DefaultConfig returns the standard models and voice.
func DefaultConfig() Config {
	return Config{
		TTSModel: string(openai.TTSModel1),
		STTModel: openai.Whisper1,
		Voice:    string(openai.VoiceAlloy),
	}
}

// Service performs speech synthesis and transcription.
type Service struct {
	client   *openai.Client
	ttsModel openai.SpeechModel
	sttModel string
	voice    openai.SpeechVoice
}

// NewService creates a speech service from the given config, filling in
// defaults for any unset model or voice.
func NewService(config Config) *Service {
	defaults := DefaultConfig()
	if config.TTSModel == "" {
		config.TTSModel = defaults.TTSModel
	}
	if config.STTModel == "" {
		config.STTModel = defaults.STTModel
	}
	if config.Voice == "" {
		config.Voice = defaults.Voice
	}
	return &Service{
		client:   openai.NewClient(config.APIKey),
		ttsModel: openai.SpeechModel(config.TTSModel),
		sttModel: config.STTModel,
		voice:    openai.SpeechVoice(config.Voice),
	}
}

// ValidateText checks that text is acceptable for synthesis.
func ValidateText(text string) error {
	if text == "" {
		return fmt.Errorf("speech: text is empty")
	}
	if utf8.RuneCountInString(text) > MaxTextChars {
		return fmt.Errorf("speech: text exceeds %d character limit", MaxTextChars)
	}
	if !utf8.ValidString(text) {
		return fmt.Errorf("speech: text contains invalid UTF-8")
	}
	return nil
}

// Synthesize converts text to MP3 audio and returns the audio stream. The
// caller must close the returned reader.
func (s *Service) Synthesize(ctx context.Context, text string) (io.ReadCloser, error) {
	if err := ValidateText(text); err != nil {
		return nil, err
	}

	resp, err := s.client.CreateSpeech(ctx, openai.CreateSpeechRequest{
		Model:          s.ttsModel,
		Input:          text,
		Voice:          s.voice,
		ResponseFormat: openai.SpeechResponseFormatMp3,
	})
	if err != nil {
		return nil, fmt.Errorf("speech: synthesize: %w", err)
	}
	return resp, nil
}

// Transcribe converts uploaded audio to text. filename carries the original
// upload name so the provider can infer the container format; language is an
// optional ISO code hint from the session's preferences.
func (s *Service) Transcribe(ctx context.Context, filename string, audio io.Reader, language string) (string, error) {
	resp, err := s.client.CreateTranscription(ctx, openai.AudioRequest{
		Model:    s.sttModel,
		FilePath: filename,
		Reader:   audio,
		Language: language,
	})
	if err != nil {
		return "", fmt.Errorf("speech: transcribe: %w", err)
	}
	return resp.Text, nil
}
