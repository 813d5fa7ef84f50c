package crypto

import (
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
)

// insecureTag marks passthrough "ciphertext" so it can never be mistaken for
// a real envelope.
const insecureTag = "insecure:"

// InsecureEncrypt is a clearly-marked passthrough for platforms without
// cryptographic primitives. It does not encrypt anything: the payload is only
// base64 behind an "insecure:" tag. For offline test harnesses only; the
// server and handlers never reference it.
func InsecureEncrypt(plaintext []byte) *Envelope {
	encoded := insecureTag + base64.StdEncoding.EncodeToString(plaintext)
	return &Envelope{
		Ciphertext:     encoded,
		IV:             insecureTag,
		KeyForReceiver: insecureTag,
		KeyForSender:   insecureTag,
	}
}

// InsecureDecrypt reverses InsecureEncrypt. It refuses anything that is not
// explicitly tagged, so real ciphertext cannot silently fall through here.
func InsecureDecrypt(ciphertext string) ([]byte, error) {
	if !strings.HasPrefix(ciphertext, insecureTag) {
		return nil, errors.New("payload is not tagged insecure passthrough")
	}
	plaintext, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(ciphertext, insecureTag))
	if err != nil {
		return nil, fmt.Errorf("decode passthrough payload: %w", err)
	}
	return plaintext, nil
}
