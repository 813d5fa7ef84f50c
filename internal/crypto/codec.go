// Package crypto is the client-side hybrid codec for direct messages. Each
// message gets a fresh AES-256-GCM key; the key is wrapped with RSA-OAEP
// twice, once for the receiver and once for the sender, so both parties can
// read history with only their own private key. The server stores and relays
// envelopes without ever being able to open them.
package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
)

const (
	symmetricKeySize = 32
	nonceSize        = 12
)

// ErrDecryption marks a client-local, non-fatal decryption failure: absent or
// mismatched private key, or malformed ciphertext. Callers render a
// placeholder instead of crashing the conversation view.
var ErrDecryption = errors.New("decryption failed")

// Envelope is the wire form of an encrypted direct message payload. The four
// fields are always present together; a partially filled envelope is invalid.
type Envelope struct {
	Ciphertext     string `json:"ciphertext"`
	IV             string `json:"iv"`
	KeyForReceiver string `json:"keyForReceiver"`
	KeyForSender   string `json:"keyForSender"`
}

// Complete reports whether all four envelope fields are present.
func (e *Envelope) Complete() bool {
	return e.Ciphertext != "" && e.IV != "" && e.KeyForReceiver != "" && e.KeyForSender != ""
}

// Encrypt seals plaintext for a direct message. A one-time symmetric key is
// generated per call and wrapped under both parties' public keys.
func Encrypt(plaintext []byte, receiverPub, senderPub *rsa.PublicKey) (*Envelope, error) {
	if len(plaintext) == 0 {
		return nil, errors.New("plaintext is required")
	}
	if receiverPub == nil || senderPub == nil {
		return nil, errors.New("both public keys are required")
	}

	key := make([]byte, symmetricKeySize)
	if _, err := rand.Read(key); err != nil {
		return nil, fmt.Errorf("generate symmetric key: %w", err)
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("create AES cipher: %w", err)
	}
	aead, err := cipher.NewGCMWithNonceSize(block, nonceSize)
	if err != nil {
		return nil, fmt.Errorf("create GCM: %w", err)
	}

	iv := make([]byte, nonceSize)
	if _, err := rand.Read(iv); err != nil {
		return nil, fmt.Errorf("generate nonce: %w", err)
	}

	ciphertext := aead.Seal(nil, iv, plaintext, nil)

	forReceiver, err := wrapKey(key, receiverPub)
	if err != nil {
		return nil, fmt.Errorf("wrap key for receiver: %w", err)
	}
	forSender, err := wrapKey(key, senderPub)
	if err != nil {
		return nil, fmt.Errorf("wrap key for sender: %w", err)
	}

	return &Envelope{
		Ciphertext:     base64.StdEncoding.EncodeToString(ciphertext),
		IV:             base64.StdEncoding.EncodeToString(iv),
		KeyForReceiver: forReceiver,
		KeyForSender:   forSender,
	}, nil
}

// Decrypt opens a direct message payload with the caller's own wrapped key.
// All failure paths wrap ErrDecryption so callers can degrade to a
// placeholder without inspecting the cause.
func Decrypt(ciphertext, iv, wrappedKey string, priv *rsa.PrivateKey) ([]byte, error) {
	if priv == nil {
		return nil, fmt.Errorf("%w: private key unavailable", ErrDecryption)
	}

	key, err := unwrapKey(wrappedKey, priv)
	if err != nil {
		return nil, fmt.Errorf("%w: unwrap key: %v", ErrDecryption, err)
	}

	rawCiphertext, err := base64.StdEncoding.DecodeString(ciphertext)
	if err != nil {
		return nil, fmt.Errorf("%w: decode ciphertext: %v", ErrDecryption, err)
	}
	rawIV, err := base64.StdEncoding.DecodeString(iv)
	if err != nil {
		return nil, fmt.Errorf("%w: decode nonce: %v", ErrDecryption, err)
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("%w: create AES cipher: %v", ErrDecryption, err)
	}
	aead, err := cipher.NewGCMWithNonceSize(block, nonceSize)
	if err != nil {
		return nil, fmt.Errorf("%w: create GCM: %v", ErrDecryption, err)
	}
	if len(rawIV) != aead.NonceSize() {
		return nil, fmt.Errorf("%w: invalid nonce length %d", ErrDecryption, len(rawIV))
	}

	plaintext, err := aead.Open(nil, rawIV, rawCiphertext, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: open ciphertext: %v", ErrDecryption, err)
	}

	return plaintext, nil
}

func wrapKey(key []byte, pub *rsa.PublicKey) (string, error) {
	wrapped, err := rsa.EncryptOAEP(sha256.New(), rand.Reader, pub, key, nil)
	if err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(wrapped), nil
}

func unwrapKey(wrapped string, priv *rsa.PrivateKey) ([]byte, error) {
	raw, err := base64.StdEncoding.DecodeString(wrapped)
	if err != nil {
		return nil, err
	}
	key, err := rsa.DecryptOAEP(sha256.New(), rand.Reader, priv, raw, nil)
	if err != nil {
		return nil, err
	}
	if len(key) != symmetricKeySize {
		return nil, fmt.Errorf("unwrapped key length %d, want %d", len(key), symmetricKeySize)
	}
	return key, nil
}
