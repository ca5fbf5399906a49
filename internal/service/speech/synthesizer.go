package speech

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/tarawell/tara-companion/backend/internal/config"
)

const ttsStreamURL = "wss://openspeech.bytedance.com/api/v3/tts/unidirectional/stream"

// Synthesis is the result of one text-to-speech request.
type Synthesis struct {
	Audio      []byte
	Format     string
	DurationMS int64
	RequestID  string
}

// VolcengineSynthesizer converts reply text to audio over the Volcengine
// unidirectional TTS stream.
type VolcengineSynthesizer struct {
	config *config.SpeechConfig
	dialer *websocket.Dialer
	log    zerolog.Logger
}

// NewVolcengineSynthesizer creates a TTS client.
func NewVolcengineSynthesizer(cfg *config.SpeechConfig, log zerolog.Logger) *VolcengineSynthesizer {
	return &VolcengineSynthesizer{
		config: cfg,
		dialer: &websocket.Dialer{
			HandshakeTimeout: 30 * time.Second,
		},
		log: log.With().Str("component", "tts").Logger(),
	}
}

type ttsRequest struct {
	User struct {
		UID string `json:"uid"`
	} `json:"user"`
	ReqParams struct {
		Speaker     string         `json:"speaker"`
		Text        string         `json:"text"`
		AudioParams ttsAudioParams `json:"audio_params"`
		Additions   string         `json:"additions,omitempty"`
		Language    string         `json:"language,omitempty"`
	} `json:"req_params"`
}

type ttsAudioParams struct {
	Format          string  `json:"format"`
	SampleRate      int     `json:"sample_rate"`
	EnableTimestamp bool    `json:"enable_timestamp"`
	SpeedRatio      float32 `json:"speed_ratio,omitempty"`
	VolumeRatio     float32 `json:"volume_ratio,omitempty"`
}

type ttsServerMessage struct {
	ReqID    string `json:"reqid"`
	Code     int    `json:"code"`
	Message  string `json:"message"`
	Sequence int    `json:"sequence"`
	Data     string `json:"data"`
	Addition struct {
		Duration string `json:"duration,omitempty"`
	} `json:"addition,omitempty"`
}

// Synthesize renders the given text in the given voice. Known speaker
// aliases are expanded, and resource ids are retried on speaker/resource
// mismatch.
func (c *VolcengineSynthesizer) Synthesize(ctx context.Context, text, voice string) (*Synthesis, error) {
	if strings.TrimSpace(text) == "" {
		return nil, fmt.Errorf("TTS text is empty")
	}

	appKey, accessKey, err := resolveCredentials(c.config)
	if err != nil {
		return nil, err
	}

	speakers := resolveSpeakerCandidates(strings.TrimSpace(voice), strings.TrimSpace(c.config.TTSVoice))
	var lastMismatch error

	for speakerIdx, speaker := range speakers {
		resourceCandidates := resolveResourceCandidates(speaker)
		var mismatchErr error

		for resourceIdx, resourceID := range resourceCandidates {
			result, attemptErr := c.synthesizeWithResource(ctx, text, appKey, accessKey, speaker, resourceID)
			if attemptErr == nil {
				if resourceIdx > 0 {
					c.log.Info().Str("voice", speaker).Str("resource", resourceID).Msg("fallback resource succeeded")
				}
				if speakerIdx > 0 {
					c.log.Info().Str("voice", speaker).Msg("fallback voice succeeded")
				}
				return result, nil
			}

			if isResourceMismatchError(attemptErr) {
				c.log.Debug().Err(attemptErr).Str("voice", speaker).Str("resource", resourceID).Msg("resource mismatch")
				mismatchErr = attemptErr
				continue
			}

			return nil, attemptErr
		}

		if mismatchErr != nil {
			lastMismatch = mismatchErr
			continue
		}
	}

	if lastMismatch != nil {
		return nil, lastMismatch
	}

	return nil, fmt.Errorf("TTS synthesis failed: no compatible resource id or speaker for voice candidates %v", speakers)
}

func (c *VolcengineSynthesizer) synthesizeWithResource(ctx context.Context, text, appKey, accessKey, speaker, resourceID string) (*Synthesis, error) {
	connectID := uuid.New().String()

	header := http.Header{}
	header.Set("X-Api-App-Key", appKey)
	header.Set("X-Api-Access-Key", accessKey)
	header.Set("X-Api-Resource-Id", resourceID)
	header.Set("X-Api-Connect-Id", connectID)

	conn, resp, err := c.dialer.DialContext(ctx, ttsStreamURL, header)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to TTS WebSocket: %w", err)
	}
	defer conn.Close()

	if resp != nil {
		if logid := resp.Header.Get("X-Tt-Logid"); logid != "" {
			c.log.Debug().Str("logid", logid).Msg("TTS connected")
		}
	}

	req := c.buildTTSRequest(text, speaker, connectID)

	payloadData, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal TTS request: %w", err)
	}

	frame, err := EncodeMessage(CreateFullClientRequest(payloadData, NoCompression))
	if err != nil {
		return nil, fmt.Errorf("failed to encode message: %w", err)
	}

	if err := conn.WriteMessage(websocket.BinaryMessage, frame); err != nil {
		return nil, fmt.Errorf("failed to send TTS request: %w", err)
	}

	var (
		audioBuffer bytes.Buffer
		reqID       string
		duration    int64
	)

	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
			_, data, err := conn.ReadMessage()
			if err != nil {
				return nil, fmt.Errorf("failed to read TTS response: %w", err)
			}

			msg, err := DecodeMessage(bytes.NewReader(data))
			if err != nil {
				return nil, fmt.Errorf("failed to decode TTS message: %w", err)
			}

			switch msg.Header.MessageType {
			case ErrorMessage:
				payload, derr := DecompressPayload(msg.Payload, msg.Header.CompressionMethod)
				if derr != nil {
					return nil, fmt.Errorf("TTS error message decode failed: %w", derr)
				}
				return nil, fmt.Errorf("TTS error: %s", string(payload))

			case AudioOnlyServerResponse:
				chunk, derr := DecompressPayload(msg.Payload, msg.Header.CompressionMethod)
				if derr != nil {
					return nil, fmt.Errorf("failed to decompress audio chunk: %w", derr)
				}
				audioBuffer.Write(chunk)

			case FullServerResponse:
				payload, derr := DecompressPayload(msg.Payload, msg.Header.CompressionMethod)
				if derr != nil {
					return nil, fmt.Errorf("failed to decompress TTS response payload: %w", derr)
				}

				var serverResp ttsServerMessage
				if len(payload) > 0 {
					if err := json.Unmarshal(payload, &serverResp); err != nil {
						c.log.Warn().Err(err).Msg("failed to unmarshal TTS response payload")
					} else {
						if serverResp.Code != 0 && serverResp.Code != 3000 {
							return nil, fmt.Errorf("TTS API error %d: %s", serverResp.Code, serverResp.Message)
						}

						if serverResp.ReqID != "" {
							reqID = serverResp.ReqID
						}

						if serverResp.Addition.Duration != "" {
							if parsed, perr := strconv.ParseInt(serverResp.Addition.Duration, 10, 64); perr == nil {
								duration = parsed
							}
						}

						if serverResp.Data != "" {
							chunk, derr := base64.StdEncoding.DecodeString(serverResp.Data)
							if derr != nil {
								return nil, fmt.Errorf("failed to decode base64 audio chunk: %w", derr)
							}
							audioBuffer.Write(chunk)
						}
					}
				}

				finalizedByEvent := msg.Header.MessageFlags == WithEvent && msg.EventType == EventTypeSessionFinished
				finalizedBySequence := msg.IsLastPacket() || serverResp.Sequence < 0

				if finalizedByEvent || finalizedBySequence {
					if audioBuffer.Len() == 0 {
						return nil, fmt.Errorf("TTS audio is empty")
					}
					if reqID == "" {
						reqID = connectID
					}
					return &Synthesis{
						Audio:      audioBuffer.Bytes(),
						Format:     "mp3",
						DurationMS: duration,
						RequestID:  reqID,
					}, nil
				}

			default:
				c.log.Debug().Uint8("type", uint8(msg.Header.MessageType)).Msg("unexpected TTS message type")
			}
		}
	}
}

func (c *VolcengineSynthesizer) buildTTSRequest(text, speaker, connectID string) *ttsRequest {
	req := &ttsRequest{}

	req.User.UID = connectID

	req.ReqParams.Speaker = speaker
	if req.ReqParams.Speaker == "" {
		req.ReqParams.Speaker = strings.TrimSpace(c.config.TTSVoice)
	}

	req.ReqParams.Text = text
	req.ReqParams.AudioParams.Format = "mp3"
	req.ReqParams.AudioParams.SampleRate = 24000
	req.ReqParams.AudioParams.EnableTimestamp = true

	if c.config.TTSSpeed > 0 && c.config.TTSSpeed != 1.0 {
		req.ReqParams.AudioParams.SpeedRatio = c.config.TTSSpeed
	}
	if c.config.TTSVolume > 0 && c.config.TTSVolume != 1.0 {
		req.ReqParams.AudioParams.VolumeRatio = c.config.TTSVolume
	}

	if language := strings.TrimSpace(c.config.TTSLanguage); language != "" {
		req.ReqParams.Language = language
	}

	req.ReqParams.Additions = buildAdditionsPayload()

	return req
}

func buildAdditionsPayload() string {
	additions := map[string]any{
		"disable_markdown_filter": false,
	}

	data, err := json.Marshal(additions)
	if err != nil {
		return "{}"
	}

	return string(data)
}

func isResourceMismatchError(err error) bool {
	if err == nil {
		return false
	}
	return strings.Contains(err.Error(), "resource ID is mismatched with speaker related resource")
}
