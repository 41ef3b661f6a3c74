// Package frame defines the csync wire frame.
//
// A frame is a 2-byte big-endian kind code followed by the raw payload.
// There is no length prefix; the payload is the remainder of the message.
//
//	[ kind (2) ][ payload ... ]
package frame

import (
	"encoding/binary"
	"errors"
	"fmt"
)

// Kind identifies the clipboard representation carried by a frame.
type Kind uint16

const (
	KindImage Kind = 1
	KindText  Kind = 2
)

// kindSize is the width of the kind field.
const kindSize = 2

var (
	ErrFrameTooSmall    = errors.New("frame too small")
	ErrInvalidFrameType = errors.New("invalid frame type")
	ErrEmptyImage       = errors.New("image frame has no payload")
)

func (k Kind) String() string {
	switch k {
	case KindImage:
		return "image"
	case KindText:
		return "text"
	default:
		return fmt.Sprintf("kind(%d)", uint16(k))
	}
}

// Valid reports whether k is a known kind.
func (k Kind) Valid() bool {
	return k == KindImage || k == KindText
}

// Frame is one clipboard payload plus its kind.
// Origin is set only on frames received from the transport.
type Frame struct {
	Kind    Kind
	Origin  string
	Payload []byte
}

// NewText returns an outbound text frame.
func NewText(text []byte) *Frame {
	return &Frame{Kind: KindText, Payload: text}
}

// NewImage returns an outbound image frame. data is expected to be PNG.
func NewImage(data []byte) *Frame {
	return &Frame{Kind: KindImage, Payload: data}
}

// Encode serialises f. Origin is not part of the wire format.
func Encode(f *Frame) []byte {
	buf := make([]byte, kindSize, kindSize+len(f.Payload))
	binary.BigEndian.PutUint16(buf, uint16(f.Kind))
	return append(buf, f.Payload...)
}

// Decode parses data into a Frame attributed to origin.
func Decode(data []byte, origin string) (*Frame, error) {
	if len(data) < kindSize {
		return nil, fmt.Errorf("%w: %d bytes", ErrFrameTooSmall, len(data))
	}
	kind := Kind(binary.BigEndian.Uint16(data[:kindSize]))
	if !kind.Valid() {
		return nil, fmt.Errorf("%w: %d", ErrInvalidFrameType, uint16(kind))
	}
	payload := data[kindSize:]
	if kind == KindImage && len(payload) == 0 {
		return nil, ErrEmptyImage
	}
	return &Frame{
		Kind:    kind,
		Origin:  origin,
		Payload: payload,
	}, nil
}
