package event

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// DomainBundle is the domain prefix for event bundle fingerprints.
// The version suffix enables future algorithm migration.
const DomainBundle = "koi-net/github-event/v1"

// Fingerprint computes the content fingerprint of an event payload:
// SHA-256 with domain separation over the canonical JSON encoding.
//
// Format: SHA256(domain + 0x00 + canonical). The null byte prevents
// domain/data boundary ambiguity.
//
// The fingerprint exists purely for change detection between deliveries
// of the same event; it is never a semantic field of the event.
func Fingerprint(payload map[string]any) (string, error) {
	canonical, err := MarshalCanonical(payload)
	if err != nil {
		return "", fmt.Errorf("fingerprint: %w", err)
	}

	h := sha256.New()
	h.Write([]byte(DomainBundle))
	h.Write([]byte{0x00})
	h.Write(canonical)
	return hex.EncodeToString(h.Sum(nil)), nil
}
