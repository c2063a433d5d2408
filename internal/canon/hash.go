package canon

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// Domain prefixes keep fingerprints of different payload kinds disjoint.
const (
	DomainInstruction = "tradeledger/instruction/v1"
	DomainPayload     = "tradeledger/payload/v1"
)

// hashWithDomain computes SHA256(domain + 0x00 + data).
func hashWithDomain(domain string, data []byte) string {
	h := sha256.New()
	h.Write([]byte(domain))
	h.Write([]byte{0x00})
	h.Write(data)
	return hex.EncodeToString(h.Sum(nil))
}

// Hash returns the hex SHA-256 of v's canonical JSON under domain.
func Hash(domain string, v any) (string, error) {
	data, err := Marshal(v)
	if err != nil {
		return "", fmt.Errorf("canonical hash: %w", err)
	}
	return hashWithDomain(domain, data), nil
}

// PayloadHash fingerprints an arbitrary message body.
func PayloadHash(payload map[string]any) (string, error) {
	return Hash(DomainPayload, payload)
}

// MustPayloadHash is like PayloadHash but panics on error.
// Use only in tests or when inputs are known to be valid.
func MustPayloadHash(payload map[string]any) string {
	h, err := PayloadHash(payload)
	if err != nil {
		panic(err)
	}
	return h
}
