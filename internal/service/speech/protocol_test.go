package speech

import (
	"bytes"
	"testing"
)

func TestHeaderEncodeDecode(t *testing.T) {
	header := NewHeader(FullClientRequest, NoSequenceNumber, JSONSerialization, GzipCompression)

	decoded, err := DecodeHeader(header.Encode())
	if err != nil {
		t.Fatalf("DecodeHeader err: %v", err)
	}

	if decoded.MessageType != FullClientRequest {
		t.Fatalf("message type mismatch: %d", decoded.MessageType)
	}
	if decoded.SerializationMethod != JSONSerialization {
		t.Fatalf("serialization mismatch: %d", decoded.SerializationMethod)
	}
	if decoded.CompressionMethod != GzipCompression {
		t.Fatalf("compression mismatch: %d", decoded.CompressionMethod)
	}
}

func TestDecodeHeaderRejectsShortInput(t *testing.T) {
	if _, err := DecodeHeader([]byte{0x11}); err == nil {
		t.Fatal("expected error for truncated header")
	}
}

func TestEncodeDecodeMessageRoundTrip(t *testing.T) {
	payload := []byte(`{"hello":"world"}`)
	msg := CreateFullClientRequest(payload, NoCompression)

	encoded, err := EncodeMessage(msg)
	if err != nil {
		t.Fatalf("EncodeMessage err: %v", err)
	}

	decoded, err := DecodeMessage(bytes.NewReader(encoded))
	if err != nil {
		t.Fatalf("DecodeMessage err: %v", err)
	}

	if decoded.Header.MessageType != FullClientRequest {
		t.Fatalf("message type mismatch: %d", decoded.Header.MessageType)
	}
	if !bytes.Equal(decoded.Payload, payload) {
		t.Fatalf("payload mismatch: %q", decoded.Payload)
	}
}

func TestAudioRequestSequenceFlags(t *testing.T) {
	mid := CreateAudioOnlyRequest([]byte{0x01}, 5, false, NoCompression)
	if mid.IsLastPacket() {
		t.Fatal("mid-stream packet flagged as last")
	}
	if mid.Sequence != 5 {
		t.Fatalf("sequence mangled: %d", mid.Sequence)
	}

	last := CreateAudioOnlyRequest([]byte{0x01}, 5, true, NoCompression)
	if !last.IsLastPacket() {
		t.Fatal("final packet not flagged as last")
	}
	if last.Sequence != -5 {
		t.Fatalf("final packet must carry a negative sequence: %d", last.Sequence)
	}

	encoded, err := EncodeMessage(last)
	if err != nil {
		t.Fatalf("EncodeMessage err: %v", err)
	}
	decoded, err := DecodeMessage(bytes.NewReader(encoded))
	if err != nil {
		t.Fatalf("DecodeMessage err: %v", err)
	}
	if !decoded.IsLastPacket() {
		t.Fatal("last-packet flag lost on the wire")
	}
	if decoded.Sequence != -5 {
		t.Fatalf("sequence lost on the wire: %d", decoded.Sequence)
	}
}

func TestCompressionRoundTrip(t *testing.T) {
	data := bytes.Repeat([]byte("companion"), 100)

	compressed, err := CompressPayload(data, GzipCompression)
	if err != nil {
		t.Fatalf("CompressPayload err: %v", err)
	}
	if len(compressed) >= len(data) {
		t.Fatalf("repetitive payload did not shrink: %d >= %d", len(compressed), len(data))
	}

	restored, err := DecompressPayload(compressed, GzipCompression)
	if err != nil {
		t.Fatalf("DecompressPayload err: %v", err)
	}
	if !bytes.Equal(restored, data) {
		t.Fatal("payload corrupted by compression round trip")
	}
}

func TestResolveSpeakerCandidates(t *testing.T) {
	got := resolveSpeakerCandidates("stoic-mentor", "en_female_amy_jupiter_bigtts")
	if len(got) != 2 {
		t.Fatalf("expected alias plus fallback, got %v", got)
	}
	if got[0] != "en_male_glen_emo_v2_mars_bigtts" {
		t.Fatalf("alias not expanded: %s", got[0])
	}

	// Requesting the fallback itself must not duplicate it.
	got = resolveSpeakerCandidates("en_female_amy_jupiter_bigtts", "en_female_amy_jupiter_bigtts")
	if len(got) != 1 {
		t.Fatalf("fallback duplicated: %v", got)
	}
}

func TestResolveResourceCandidates(t *testing.T) {
	if got := resolveResourceCandidates("S_custom_clone"); len(got) != 1 || got[0] != "volc.megatts.default" {
		t.Fatalf("cloned voice must use the megatts resource: %v", got)
	}

	got := resolveResourceCandidates("en_female_amy_jupiter_bigtts")
	if got[0] != "seed-tts-2.0" {
		t.Fatalf("bigtts voice must prefer the seed resource: %v", got)
	}
}
