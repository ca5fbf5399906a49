package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"

	"github.com/tarawell/tara-companion/backend/internal/config"
	"github.com/tarawell/tara-companion/backend/internal/service/speech"
)

// speechtester exercises the speech provider directly: feed it a raw 16kHz
// 16-bit mono PCM file for transcription, or a line of text for synthesis.
func main() {
	log := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).With().Timestamp().Logger()

	if err := godotenv.Load(); err != nil {
		log.Warn().Err(err).Msg("no .env file, using system environment")
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load configuration")
	}

	if !cfg.Speech.Enabled {
		log.Fatal().Msg("speech is not configured; set SPEECH_APP_ID and SPEECH_ACCESS_TOKEN")
	}

	mode := flag.String("mode", "", "test mode: asr or tts")
	audioPath := flag.String("audio", "", "ASR input audio file (raw PCM, 16kHz 16-bit mono)")
	text := flag.String("text", "", "TTS input text")
	outputPath := flag.String("out", "", "TTS output file (defaults to tts-output-<unix>.mp3)")
	language := flag.String("lang", "", "language code, defaults to the configured language")
	voice := flag.String("voice", "", "TTS voice id, defaults to the configured TTSVoice")
	timeout := flag.Duration("timeout", 45*time.Second, "request timeout")

	flag.Parse()

	if *mode != "asr" && *mode != "tts" {
		flag.Usage()
		log.Fatal().Msg("specify -mode=asr or -mode=tts")
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	switch *mode {
	case "asr":
		runASR(ctx, cfg, *audioPath, *language, log)
	case "tts":
		runTTS(ctx, cfg, *text, *voice, *outputPath, log)
	}
}

func runASR(ctx context.Context, cfg *config.Config, audioPath, language string, log zerolog.Logger) {
	if audioPath == "" {
		log.Fatal().Msg("ASR mode needs -audio")
	}

	audio, err := os.ReadFile(audioPath)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to read audio file")
	}

	if language == "" {
		language = cfg.Speech.ASRLanguage
	}

	recognizer := speech.NewVolcengineRecognizer(&cfg.Speech, log)
	sessionID := fmt.Sprintf("manual-%d", time.Now().UnixNano())

	stream, err := recognizer.Open(ctx, sessionID, language)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to open recognition stream")
	}

	// 200ms of 16kHz 16-bit mono audio per chunk.
	const chunkSize = 6400

	done := make(chan struct{})
	go func() {
		defer close(done)
		for ev := range stream.Results() {
			marker := "interim"
			if ev.Final {
				marker = "final"
			}
			log.Info().Str("kind", marker).Str("text", ev.Text).Msg("transcript")
		}
	}()

	for i := 0; i < len(audio); i += chunkSize {
		end := i + chunkSize
		if end > len(audio) {
			end = len(audio)
		}
		if err := stream.Write(audio[i:end]); err != nil {
			log.Fatal().Err(err).Msg("failed to write audio chunk")
		}
		time.Sleep(200 * time.Millisecond)
	}

	if err := stream.Close(); err != nil {
		log.Warn().Err(err).Msg("stream close failed")
	}
	<-done

	log.Info().Msg("recognition finished")
}

func runTTS(ctx context.Context, cfg *config.Config, text, voice, outputPath string, log zerolog.Logger) {
	if text == "" {
		log.Fatal().Msg("TTS mode needs -text")
	}

	if voice == "" {
		voice = cfg.Speech.TTSVoice
	}

	if outputPath == "" {
		outputPath = fmt.Sprintf("tts-output-%d.mp3", time.Now().Unix())
	}

	synth := speech.NewVolcengineSynthesizer(&cfg.Speech, log)

	result, err := synth.Synthesize(ctx, text, voice)
	if err != nil {
		log.Fatal().Err(err).Msg("synthesis failed")
	}

	if err := os.WriteFile(outputPath, result.Audio, 0o644); err != nil {
		log.Fatal().Err(err).Msg("failed to write audio file")
	}

	log.Info().Str("file", outputPath).Int64("duration_ms", result.DurationMS).Msg("synthesis succeeded")
}
