package speech

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
)

// ProtocolVersion is the binary WebSocket protocol version.
const ProtocolVersion = 0b0001

// MessageType identifies the kind of frame on the wire.
type MessageType uint8

const (
	// FullClientRequest carries the full request parameters.
	FullClientRequest MessageType = 0b0001
	// AudioOnlyRequest carries raw audio data only.
	AudioOnlyRequest MessageType = 0b0010
	// FullServerResponse is a complete server response.
	FullServerResponse MessageType = 0b1001
	// AudioOnlyServerResponse carries synthesized audio only.
	AudioOnlyServerResponse MessageType = 0b1011
	// ErrorMessage is a server-side error frame.
	ErrorMessage MessageType = 0b1111
)

// MessageFlags are message-specific flag bits.
type MessageFlags uint8

const (
	// NoSequenceNumber: the 4 bytes after the header are not a sequence number.
	NoSequenceNumber MessageFlags = 0b0000
	// PositiveSequenceNumber: the 4 bytes after the header are a positive sequence number.
	PositiveSequenceNumber MessageFlags = 0b0001
	// LastPacketNoSequence: final packet, no sequence number follows the header.
	LastPacketNoSequence MessageFlags = 0b0010
	// NegativeSequenceNumber: final packet with a negative sequence number.
	NegativeSequenceNumber MessageFlags = 0b0011
	// WithEvent: the message carries event metadata.
	WithEvent MessageFlags = 0b0100
)

// EventType identifies server-side event metadata.
type EventType int32

const (
	EventTypeNone               EventType = 0
	EventTypeStartConnection    EventType = 1
	EventTypeFinishConnection   EventType = 2
	EventTypeConnectionStarted  EventType = 50
	EventTypeConnectionFailed   EventType = 51
	EventTypeConnectionFinished EventType = 52
	EventTypeSessionStarted     EventType = 150
	EventTypeSessionFinished    EventType = 152
	EventTypeSessionFailed      EventType = 153
)

// SerializationMethod describes how the payload is serialized.
type SerializationMethod uint8

const (
	NoSerialization     SerializationMethod = 0b0000
	JSONSerialization   SerializationMethod = 0b0001
	CustomSerialization SerializationMethod = 0b1111
)

// CompressionMethod describes how the payload is compressed.
type CompressionMethod uint8

const (
	NoCompression     CompressionMethod = 0b0000
	GzipCompression   CompressionMethod = 0b0001
	CustomCompression CompressionMethod = 0b1111
)

// Header is the 4-byte message header.
type Header struct {
	ProtocolVersion     uint8               // 4 bits
	HeaderSize          uint8               // 4 bits
	MessageType         MessageType         // 4 bits
	MessageFlags        MessageFlags        // 4 bits
	SerializationMethod SerializationMethod // 4 bits
	CompressionMethod   CompressionMethod   // 4 bits
	Reserved            uint8               // 8 bits
}

// Message is one framed WebSocket message.
type Message struct {
	Header      Header
	Sequence    int32 // optional, depends on MessageFlags
	EventType   EventType
	SessionID   string
	ConnectID   string
	ErrorCode   uint32
	PayloadSize uint32
	Payload     []byte
}

// NewHeader builds a header for the given frame parameters.
func NewHeader(msgType MessageType, flags MessageFlags, serialization SerializationMethod, compression CompressionMethod) Header {
	return Header{
		ProtocolVersion:     ProtocolVersion,
		HeaderSize:          0b0001, // 4-byte header
		MessageType:         msgType,
		MessageFlags:        flags,
		SerializationMethod: serialization,
		CompressionMethod:   compression,
		Reserved:            0x00,
	}
}

// Encode packs the header into its 4-byte wire form.
func (h *Header) Encode() []byte {
	buf := make([]byte, 4)
	buf[0] = (h.ProtocolVersion << 4) | h.HeaderSize
	buf[1] = (uint8(h.MessageType) << 4) | uint8(h.MessageFlags)
	buf[2] = (uint8(h.SerializationMethod) << 4) | uint8(h.CompressionMethod)
	buf[3] = h.Reserved
	return buf
}

// DecodeHeader parses a header from its 4-byte wire form.
func DecodeHeader(data []byte) (*Header, error) {
	if len(data) < 4 {
		return nil, fmt.Errorf("header data too short: got %d, need 4", len(data))
	}

	header := &Header{
		ProtocolVersion:     (data[0] >> 4) & 0x0F,
		HeaderSize:          data[0] & 0x0F,
		MessageType:         MessageType((data[1] >> 4) & 0x0F),
		MessageFlags:        MessageFlags(data[1] & 0x0F),
		SerializationMethod: SerializationMethod((data[2] >> 4) & 0x0F),
		CompressionMethod:   CompressionMethod(data[2] & 0x0F),
		Reserved:            data[3],
	}

	if header.ProtocolVersion != ProtocolVersion {
		return nil, fmt.Errorf("unsupported protocol version: %d", header.ProtocolVersion)
	}

	return header, nil
}

// EncodeMessage serializes a complete message.
func EncodeMessage(msg *Message) ([]byte, error) {
	buf := bytes.NewBuffer(nil)
	buf.Write(msg.Header.Encode())

	switch msg.Header.MessageFlags & 0b0011 {
	case PositiveSequenceNumber, NegativeSequenceNumber:
		seqBytes := make([]byte, 4)
		binary.BigEndian.PutUint32(seqBytes, uint32(msg.Sequence))
		buf.Write(seqBytes)
	}

	if msg.Header.MessageFlags&WithEvent == WithEvent {
		eventBytes := make([]byte, 4)
		binary.BigEndian.PutUint32(eventBytes, uint32(msg.EventType))
		buf.Write(eventBytes)

		if !eventSkipsSessionID(msg.EventType) {
			session := []byte(msg.SessionID)
			sizeBytes := make([]byte, 4)
			binary.BigEndian.PutUint32(sizeBytes, uint32(len(session)))
			buf.Write(sizeBytes)
			if len(session) > 0 {
				buf.Write(session)
			}
		}

		if eventHasConnectID(msg.EventType) {
			connect := []byte(msg.ConnectID)
			sizeBytes := make([]byte, 4)
			binary.BigEndian.PutUint32(sizeBytes, uint32(len(connect)))
			buf.Write(sizeBytes)
			if len(connect) > 0 {
				buf.Write(connect)
			}
		}
	}

	sizeBytes := make([]byte, 4)
	binary.BigEndian.PutUint32(sizeBytes, msg.PayloadSize)
	buf.Write(sizeBytes)

	if len(msg.Payload) > 0 {
		buf.Write(msg.Payload)
	}

	return buf.Bytes(), nil
}

// DecodeMessage parses a complete message from the reader.
func DecodeMessage(reader io.Reader) (*Message, error) {
	headerBytes := make([]byte, 4)
	if _, err := io.ReadFull(reader, headerBytes); err != nil {
		return nil, fmt.Errorf("failed to read header: %w", err)
	}

	header, err := DecodeHeader(headerBytes)
	if err != nil {
		return nil, fmt.Errorf("failed to decode header: %w", err)
	}

	msg := &Message{Header: *header}

	// Optional extended header, padded to HeaderSize*4 bytes.
	extraHeaderBytes := int(header.HeaderSize)*4 - 4
	if extraHeaderBytes > 0 {
		extra := make([]byte, extraHeaderBytes)
		if _, err := io.ReadFull(reader, extra); err != nil {
			return nil, fmt.Errorf("failed to read extended header: %w", err)
		}
	}

	switch header.MessageFlags & 0b0011 {
	case PositiveSequenceNumber, NegativeSequenceNumber:
		seqBytes := make([]byte, 4)
		if _, err := io.ReadFull(reader, seqBytes); err != nil {
			return nil, fmt.Errorf("failed to read sequence: %w", err)
		}
		msg.Sequence = int32(binary.BigEndian.Uint32(seqBytes))
	}

	if header.MessageFlags&WithEvent == WithEvent {
		var eventRaw int32
		if err := binary.Read(reader, binary.BigEndian, &eventRaw); err != nil {
			return nil, fmt.Errorf("failed to read event type: %w", err)
		}
		msg.EventType = EventType(eventRaw)

		if !eventSkipsSessionID(msg.EventType) {
			var size uint32
			if err := binary.Read(reader, binary.BigEndian, &size); err != nil {
				return nil, fmt.Errorf("failed to read session id size: %w", err)
			}
			if size > 0 {
				session := make([]byte, size)
				if _, err := io.ReadFull(reader, session); err != nil {
					return nil, fmt.Errorf("failed to read session id: %w", err)
				}
				msg.SessionID = string(session)
			}
		}

		if eventHasConnectID(msg.EventType) {
			var size uint32
			if err := binary.Read(reader, binary.BigEndian, &size); err != nil {
				return nil, fmt.Errorf("failed to read connect id size: %w", err)
			}
			if size > 0 {
				connect := make([]byte, size)
				if _, err := io.ReadFull(reader, connect); err != nil {
					return nil, fmt.Errorf("failed to read connect id: %w", err)
				}
				msg.ConnectID = string(connect)
			}
		}
	}

	switch header.MessageType {
	case ErrorMessage:
		codeBytes := make([]byte, 4)
		if _, err := io.ReadFull(reader, codeBytes); err != nil {
			return nil, fmt.Errorf("failed to read error code: %w", err)
		}
		msg.ErrorCode = binary.BigEndian.Uint32(codeBytes)

		sizeBytes := make([]byte, 4)
		if _, err := io.ReadFull(reader, sizeBytes); err != nil {
			return nil, fmt.Errorf("failed to read error payload size: %w", err)
		}
		msg.PayloadSize = binary.BigEndian.Uint32(sizeBytes)

	default:
		sizeBytes := make([]byte, 4)
		if _, err := io.ReadFull(reader, sizeBytes); err != nil {
			return nil, fmt.Errorf("failed to read payload size: %w", err)
		}
		msg.PayloadSize = binary.BigEndian.Uint32(sizeBytes)
	}

	if msg.PayloadSize > 0 {
		msg.Payload = make([]byte, msg.PayloadSize)
		if _, err := io.ReadFull(reader, msg.Payload); err != nil {
			return nil, fmt.Errorf("failed to read payload (expected %d bytes): %w", msg.PayloadSize, err)
		}
	}

	return msg, nil
}

// CreateFullClientRequest builds a full client request frame.
func CreateFullClientRequest(payload []byte, compression CompressionMethod) *Message {
	header := NewHeader(FullClientRequest, NoSequenceNumber, JSONSerialization, compression)
	return &Message{
		Header:      header,
		PayloadSize: uint32(len(payload)),
		Payload:     payload,
	}
}

// CreateAudioOnlyRequest builds an audio frame. The final packet is flagged
// with a negative sequence number.
func CreateAudioOnlyRequest(audioData []byte, sequence int32, isLast bool, compression CompressionMethod) *Message {
	var flags MessageFlags
	if isLast {
		if sequence != 0 {
			flags = NegativeSequenceNumber
			sequence = -sequence
		} else {
			flags = LastPacketNoSequence
		}
	} else {
		if sequence > 0 {
			flags = PositiveSequenceNumber
		} else {
			flags = NoSequenceNumber
		}
	}

	header := NewHeader(AudioOnlyRequest, flags, NoSerialization, compression)
	return &Message{
		Header:      header,
		Sequence:    sequence,
		PayloadSize: uint32(len(audioData)),
		Payload:     audioData,
	}
}

func eventSkipsSessionID(event EventType) bool {
	switch event {
	case EventTypeStartConnection, EventTypeFinishConnection,
		EventTypeConnectionStarted, EventTypeConnectionFailed,
		EventTypeConnectionFinished:
		return true
	default:
		return false
	}
}

func eventHasConnectID(event EventType) bool {
	switch event {
	case EventTypeConnectionStarted, EventTypeConnectionFailed, EventTypeConnectionFinished:
		return true
	default:
		return false
	}
}

// IsLastPacket reports whether this frame ends the stream.
func (m *Message) IsLastPacket() bool {
	switch m.Header.MessageFlags & 0b0011 {
	case LastPacketNoSequence, NegativeSequenceNumber:
		return true
	default:
		return false
	}
}

// IsErrorMessage reports whether this frame is a server error.
func (m *Message) IsErrorMessage() bool {
	return m.Header.MessageType == ErrorMessage
}
