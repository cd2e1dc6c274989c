// Package audit signs persisted event records so tampering is detectable.
package audit

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"hash"
	"time"
)

// Signer produces HMAC-SHA256 signatures over record fields.
type Signer struct {
	secretKey []byte
}

func NewSigner(secretKey string) *Signer {
	return &Signer{
		secretKey: []byte(secretKey),
	}
}

// Sign covers the record key, its event type, the creation time and the
// serialized payload. Fields are length-prefixed so adjacent values cannot
// be shifted into each other.
func (s *Signer) Sign(pk, sk, eventType string, createdAt time.Time, data []byte) string {
	h := hmac.New(sha256.New, s.secretKey)
	for _, part := range [][]byte{
		[]byte(pk),
		[]byte(sk),
		[]byte(eventType),
		[]byte(createdAt.UTC().Format(time.RFC3339Nano)),
		data,
	} {
		writeField(h, part)
	}
	return hex.EncodeToString(h.Sum(nil))
}

func (s *Signer) Verify(pk, sk, eventType string, createdAt time.Time, data []byte, signature string) bool {
	expected := s.Sign(pk, sk, eventType, createdAt, data)
	return hmac.Equal([]byte(expected), []byte(signature))
}

func writeField(h hash.Hash, b []byte) {
	var n [8]byte
	binary.BigEndian.PutUint64(n[:], uint64(len(b)))
	h.Write(n[:])
	h.Write(b)
}
