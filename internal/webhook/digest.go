package webhook

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// DomainPayload separates payload digests from any other hash the journal
// might carry. The version suffix allows the algorithm to change.
const DomainPayload = "tablehook/payload/v1"

// Digest returns "sha256:<hex>" over the canonical JSON of payload, so the
// same logical payload always produces the same digest regardless of map
// order or Unicode normalisation form.
func Digest(payload any) (string, error) {
	canonical, err := MarshalCanonical(payload)
	if err != nil {
		return "", fmt.Errorf("digest payload: %w", err)
	}
	return "sha256:" + hashWithDomain(DomainPayload, canonical), nil
}

// hashWithDomain computes SHA-256 hash with domain separation.
// Format: SHA256(domain + 0x00 + data)
func hashWithDomain(domain string, data []byte) string {
	h := sha256.New()
	h.Write([]byte(domain))
	h.Write([]byte{0x00})
	h.Write(data)
	return hex.EncodeToString(h.Sum(nil))
}
