package speech

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/tarawell/tara-companion/backend/internal/config"
	"github.com/tarawell/tara-companion/backend/internal/service/recording"
)

const asrStreamURL = "wss://openspeech.bytedance.com/api/v3/sauc/bigmodel_async"

// VolcengineRecognizer opens live speech-to-text streams against the
// Volcengine bigmodel ASR endpoint.
type VolcengineRecognizer struct {
	config *config.SpeechConfig
	dialer *websocket.Dialer
	log    zerolog.Logger
}

// NewVolcengineRecognizer creates a streaming recognizer.
func NewVolcengineRecognizer(cfg *config.SpeechConfig, log zerolog.Logger) *VolcengineRecognizer {
	return &VolcengineRecognizer{
		config: cfg,
		dialer: &websocket.Dialer{
			HandshakeTimeout: 30 * time.Second,
		},
		log: log.With().Str("component", "asr").Logger(),
	}
}

type asrRequest struct {
	User struct {
		UID string `json:"uid,omitempty"`
	} `json:"user,omitempty"`
	Audio struct {
		Language string `json:"language,omitempty"`
		Format   string `json:"format"`
		Codec    string `json:"codec,omitempty"`
		Rate     int    `json:"rate,omitempty"`
		Bits     int    `json:"bits,omitempty"`
		Channel  int    `json:"channel,omitempty"`
	} `json:"audio"`
	Request struct {
		ModelName      string `json:"model_name"`
		EnableITN      bool   `json:"enable_itn,omitempty"`
		EnablePunc     bool   `json:"enable_punc,omitempty"`
		ShowUtterances bool   `json:"show_utterances,omitempty"`
		ResultType     string `json:"result_type,omitempty"`
		EndWindowSize  int    `json:"end_window_size,omitempty"`
	} `json:"request"`
}

type asrServerMessage struct {
	Code     int    `json:"code"`
	Message  string `json:"message"`
	Sequence int    `json:"sequence"`
	Result   struct {
		Text       string `json:"text"`
		Utterances []struct {
			Text      string `json:"text"`
			StartTime int64  `json:"start_time"`
			EndTime   int64  `json:"end_time"`
			Definite  bool   `json:"definite"`
		} `json:"utterances,omitempty"`
	} `json:"result,omitempty"`
}

// Open dials the ASR endpoint and starts a recognition session. The returned
// stream accepts 16kHz 16-bit mono PCM chunks.
func (r *VolcengineRecognizer) Open(ctx context.Context, sessionID, language string) (recording.RecognizerStream, error) {
	appID, token, err := resolveCredentials(r.config)
	if err != nil {
		return nil, err
	}

	header := http.Header{}
	header.Set("X-Api-App-Key", appID)
	header.Set("X-Api-Access-Key", token)
	header.Set("X-Api-Resource-Id", "volc.bigasr.sauc.duration")
	header.Set("X-Api-Connect-Id", sessionID)

	conn, resp, err := r.dialer.DialContext(ctx, asrStreamURL, header)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to ASR WebSocket: %w", err)
	}

	if resp != nil {
		if logid := resp.Header.Get("X-Tt-Logid"); logid != "" {
			r.log.Debug().Str("logid", logid).Msg("ASR connected")
		}
	}

	req := buildASRRequest(sessionID, language)
	payloadData, err := json.Marshal(req)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to marshal ASR request: %w", err)
	}

	compressed, err := CompressPayload(payloadData, GzipCompression)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to compress payload: %w", err)
	}

	frame, err := EncodeMessage(CreateFullClientRequest(compressed, GzipCompression))
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to encode message: %w", err)
	}

	if err := conn.WriteMessage(websocket.BinaryMessage, frame); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to send ASR request: %w", err)
	}

	stream := &recognizerStream{
		conn:    conn,
		results: make(chan recording.TranscriptEvent, 16),
		// FullClientRequest takes sequence 1, audio starts at 2.
		sequence: 2,
		log:      r.log.With().Str("session", sessionID).Logger(),
	}
	go stream.receive()

	return stream, nil
}

func buildASRRequest(sessionID, language string) *asrRequest {
	req := &asrRequest{}

	req.User.UID = sessionID

	req.Audio.Format = "wav"
	req.Audio.Language = language
	if req.Audio.Language == "" {
		req.Audio.Language = "en-US"
	}
	req.Audio.Codec = "raw"
	req.Audio.Rate = 16000
	req.Audio.Bits = 16
	req.Audio.Channel = 1

	req.Request.ModelName = "bigmodel"
	req.Request.EnableITN = true
	req.Request.EnablePunc = true
	req.Request.ShowUtterances = true
	req.Request.ResultType = "full"
	req.Request.EndWindowSize = 800

	return req
}

// recognizerStream is one live recognition session. Write is called from the
// capture path; receive runs on its own goroutine and owns the results
// channel.
type recognizerStream struct {
	conn     *websocket.Conn
	results  chan recording.TranscriptEvent
	log      zerolog.Logger
	mu       sync.Mutex
	sequence int32
	closed   bool
}

// Write forwards one audio chunk to the recognizer.
func (s *recognizerStream) Write(chunk []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return fmt.Errorf("recognizer stream is closed")
	}

	compressed, err := CompressPayload(chunk, GzipCompression)
	if err != nil {
		return fmt.Errorf("failed to compress audio chunk: %w", err)
	}

	frame, err := EncodeMessage(CreateAudioOnlyRequest(compressed, s.sequence, false, GzipCompression))
	if err != nil {
		return fmt.Errorf("failed to encode audio message: %w", err)
	}

	if err := s.conn.WriteMessage(websocket.BinaryMessage, frame); err != nil {
		return fmt.Errorf("failed to send audio chunk: %w", err)
	}

	s.sequence++
	return nil
}

// Results streams recognition events until the session ends.
func (s *recognizerStream) Results() <-chan recording.TranscriptEvent {
	return s.results
}

// Close signals end of audio. The server flushes its final result, after
// which receive closes the results channel and the connection.
func (s *recognizerStream) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true

	compressed, err := CompressPayload(nil, GzipCompression)
	if err != nil {
		s.conn.Close()
		return fmt.Errorf("failed to compress final chunk: %w", err)
	}

	frame, err := EncodeMessage(CreateAudioOnlyRequest(compressed, s.sequence, true, GzipCompression))
	if err != nil {
		s.conn.Close()
		return fmt.Errorf("failed to encode final message: %w", err)
	}

	if err := s.conn.WriteMessage(websocket.BinaryMessage, frame); err != nil {
		s.conn.Close()
		return fmt.Errorf("failed to send final chunk: %w", err)
	}

	// Give the server a bounded window to flush the final transcript.
	deadline := time.Now().Add(10 * time.Second)
	return s.conn.SetReadDeadline(deadline)
}

// receive drains server frames, turning utterances into transcript events.
// Utterances marked definite become final segments exactly once.
func (s *recognizerStream) receive() {
	defer close(s.results)
	defer s.conn.Close()

	var (
		committed int
		lastText  string
	)

	for {
		_, data, err := s.conn.ReadMessage()
		if err != nil {
			s.log.Debug().Err(err).Msg("ASR read ended")
			return
		}

		msg, err := DecodeMessage(bytes.NewReader(data))
		if err != nil {
			s.log.Warn().Err(err).Msg("failed to decode ASR message")
			return
		}

		switch msg.Header.MessageType {
		case ErrorMessage:
			payload, derr := DecompressPayload(msg.Payload, msg.Header.CompressionMethod)
			if derr != nil {
				s.log.Warn().Err(derr).Msg("ASR error frame decode failed")
			} else {
				s.log.Warn().Str("detail", string(payload)).Uint32("code", msg.ErrorCode).Msg("ASR error")
			}
			return

		case FullServerResponse:
			payload, derr := DecompressPayload(msg.Payload, msg.Header.CompressionMethod)
			if derr != nil {
				s.log.Warn().Err(derr).Msg("failed to decompress ASR payload")
				return
			}

			var serverResp asrServerMessage
			if err := json.Unmarshal(payload, &serverResp); err != nil {
				s.log.Warn().Err(err).Msg("failed to unmarshal ASR response")
				continue
			}

			if serverResp.Code != 0 && serverResp.Code != 20000000 {
				s.log.Warn().Int("code", serverResp.Code).Str("detail", serverResp.Message).Msg("ASR API error")
				return
			}

			for i, u := range serverResp.Result.Utterances {
				text := strings.TrimSpace(u.Text)
				if text == "" {
					continue
				}
				if u.Definite {
					if i >= committed {
						s.results <- recording.TranscriptEvent{Text: text, Final: true}
						committed = i + 1
					}
				} else {
					s.results <- recording.TranscriptEvent{Text: text, Final: false}
				}
			}

			if text := strings.TrimSpace(serverResp.Result.Text); text != "" {
				lastText = text
				if len(serverResp.Result.Utterances) == 0 {
					s.results <- recording.TranscriptEvent{Text: text, Final: false}
				}
			}

			if msg.IsLastPacket() || serverResp.Sequence < 0 {
				// No utterance was ever marked definite; commit the
				// cumulative text so the capture is not lost.
				if committed == 0 && lastText != "" {
					s.results <- recording.TranscriptEvent{Text: lastText, Final: true}
				}
				return
			}

		default:
			// Audio ACKs and other frames are ignored.
		}
	}
}
