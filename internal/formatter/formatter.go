// Package formatter converts encoded frames to and from the text messages
// carried by the relay.
//
// Two variants exist. Transparent is plain lowercase hex of the frame bytes.
// Keyed encrypts with an AEAD whose 32-byte key is SHA-256(password); every
// message carries a fresh random 12-byte nonce:
//
//	hex( [ 12-byte nonce ][ ciphertext ][ 16-byte tag ] )
//
// Keyed.Decode returns ErrAuthenticationFailed for every cryptographic
// failure, whether the password is wrong or the message was altered.
package formatter

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"

	"golang.org/x/crypto/chacha20poly1305"
)

// Cipher names accepted by New.
const (
	CipherAESGCM           = "aes-256-gcm"
	CipherChaCha20Poly1305 = "chacha20-poly1305"
)

var (
	ErrMalformedEncoding    = errors.New("message is not valid hex")
	ErrAuthenticationFailed = errors.New("message authentication failed")
	ErrUnknownCipher        = errors.New("unknown cipher")
)

// Formatter is the capability shared by both variants.
type Formatter interface {
	Encode(data []byte) (string, error)
	Decode(message string) ([]byte, error)
}

// New returns Transparent when password is empty and a Keyed formatter
// otherwise. An empty cipher name selects AES-256-GCM.
func New(password, cipherName string) (Formatter, error) {
	if password == "" {
		return Transparent{}, nil
	}
	return NewKeyed(password, cipherName)
}

// Transparent is a reversible encoding with no confidentiality.
type Transparent struct{}

func (Transparent) Encode(data []byte) (string, error) {
	return hex.EncodeToString(data), nil
}

func (Transparent) Decode(message string) ([]byte, error) {
	data, err := hex.DecodeString(message)
	if err != nil {
		return nil, ErrMalformedEncoding
	}
	return data, nil
}

// Keyed is the password-derived authenticated-encryption formatter.
// The AEAD is built once and never modified.
type Keyed struct {
	aead   cipher.AEAD
	cipher string
}

// DeriveKey hashes password to a 32-byte symmetric key.
func DeriveKey(password string) [32]byte {
	return sha256.Sum256([]byte(password))
}

// NewKeyed builds a Keyed formatter for password using the named cipher.
func NewKeyed(password, cipherName string) (*Keyed, error) {
	if cipherName == "" {
		cipherName = CipherAESGCM
	}
	key := DeriveKey(password)

	var (
		aead cipher.AEAD
		err  error
	)
	switch cipherName {
	case CipherAESGCM:
		var block cipher.Block
		block, err = aes.NewCipher(key[:])
		if err != nil {
			return nil, fmt.Errorf("aes cipher: %w", err)
		}
		aead, err = cipher.NewGCM(block)
		if err != nil {
			return nil, fmt.Errorf("gcm: %w", err)
		}
	case CipherChaCha20Poly1305:
		aead, err = chacha20poly1305.New(key[:])
		if err != nil {
			return nil, fmt.Errorf("chacha20-poly1305: %w", err)
		}
	default:
		return nil, fmt.Errorf("%w %q", ErrUnknownCipher, cipherName)
	}
	return &Keyed{aead: aead, cipher: cipherName}, nil
}

// Cipher returns the cipher name in use.
func (f *Keyed) Cipher() string { return f.cipher }

// Encode seals data under a fresh random nonce and hex-encodes the result.
func (f *Keyed) Encode(data []byte) (string, error) {
	nonce := make([]byte, f.aead.NonceSize(), f.aead.NonceSize()+len(data)+f.aead.Overhead())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", fmt.Errorf("nonce generation: %w", err)
	}
	sealed := f.aead.Seal(nonce, nonce, data, nil)
	return hex.EncodeToString(sealed), nil
}

// Decode reverses Encode. Hex is checked before any cryptographic step.
func (f *Keyed) Decode(message string) ([]byte, error) {
	data, err := hex.DecodeString(message)
	if err != nil {
		return nil, ErrMalformedEncoding
	}
	nonceSize := f.aead.NonceSize()
	if len(data) < nonceSize+f.aead.Overhead() {
		return nil, ErrAuthenticationFailed
	}
	nonce, ct := data[:nonceSize], data[nonceSize:]
	plain, err := f.aead.Open(nil, nonce, ct, nil)
	if err != nil {
		return nil, ErrAuthenticationFailed
	}
	return plain, nil
}
