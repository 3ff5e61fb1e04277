package canon

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// Domain prefixes for content hashes.
// Version suffix enables future algorithm migration.
const (
	DomainRequest = "tableside/request/v1"
)

// hashWithDomain computes SHA-256 hash with domain separation.
// Format: SHA256(domain + 0x00 + data)
// The null byte separator prevents domain/data boundary ambiguity.
func hashWithDomain(domain string, data []byte) string {
	h := sha256.New()
	h.Write([]byte(domain))
	h.Write([]byte{0x00})
	h.Write(data)
	return hex.EncodeToString(h.Sum(nil))
}

// Hash returns the domain-separated hex digest of v's canonical form.
func Hash(domain string, v any) (string, error) {
	data, err := Value(v)
	if err != nil {
		return "", fmt.Errorf("hash: %w", err)
	}
	return hashWithDomain(domain, data), nil
}

// RequestHash fingerprints a request body for the idempotency guard.
// Two bodies that differ only in key order or Unicode normalization
// produce the same hash.
func RequestHash(body any) (string, error) {
	return Hash(DomainRequest, body)
}
