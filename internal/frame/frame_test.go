package frame

import (
	"encoding/hex"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRoundTrip(t *testing.T) {
	frames := []Frame{
		{Kind: KindImage, Origin: "user-01", Payload: []byte{2, 3, 4, 12, 43, 54, 12}},
		{Kind: KindText, Origin: "user-02", Payload: []byte("Test hello world!")},
		{Kind: KindText, Origin: "user-03", Payload: []byte{}},
		{Kind: KindText, Origin: "user-03", Payload: []byte("a")},
		{Kind: KindImage, Origin: "user-04", Payload: []byte{6}},
	}

	for _, f := range frames {
		t.Run(f.Kind.String()+"/"+f.Origin, func(t *testing.T) {
			got, err := Decode(Encode(&f), f.Origin)
			require.NoError(t, err)
			assert.Equal(t, f.Kind, got.Kind)
			assert.Equal(t, f.Origin, got.Origin)
			assert.Equal(t, f.Payload, got.Payload)
		})
	}
}

func TestEncodeTextHello(t *testing.T) {
	data := Encode(NewText([]byte("hello")))
	assert.Equal(t, []byte{0x00, 0x02, 0x68, 0x65, 0x6c, 0x6c, 0x6f}, data)
	assert.Equal(t, "000268656c6c6f", hex.EncodeToString(data))
}

func TestEncodeDoesNotCarryOrigin(t *testing.T) {
	a := Encode(&Frame{Kind: KindText, Origin: "laptop", Payload: []byte("x")})
	b := Encode(&Frame{Kind: KindText, Payload: []byte("x")})
	assert.Equal(t, a, b)
}

func TestDecodeErrors(t *testing.T) {
	tests := []struct {
		name string
		data []byte
		want error
	}{
		{"empty", nil, ErrFrameTooSmall},
		{"one byte", []byte{0x02}, ErrFrameTooSmall},
		{"zero kind", []byte{0x00, 0x00, 'a'}, ErrInvalidFrameType},
		{"unknown kind", []byte{0x00, 0x03, 'a'}, ErrInvalidFrameType},
		{"high byte", []byte{0x01, 0x02}, ErrInvalidFrameType},
		{"empty image", []byte{0x00, 0x01}, ErrEmptyImage},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f, err := Decode(tt.data, "peer")
			assert.Nil(t, f)
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestDecodeEmptyText(t *testing.T) {
	f, err := Decode([]byte{0x00, 0x02}, "peer")
	require.NoError(t, err)
	assert.Equal(t, KindText, f.Kind)
	assert.Empty(t, f.Payload)
}

func TestKindString(t *testing.T) {
	assert.Equal(t, "image", KindImage.String())
	assert.Equal(t, "text", KindText.String())
	assert.Equal(t, "kind(9)", Kind(9).String())
}
