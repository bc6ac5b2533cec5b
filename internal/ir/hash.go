package ir

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// DomainBatch prefixes batch digests. The version suffix leaves room for
// changing the canonical form later.
const DomainBatch = "basicio/batch/v1"

// hashWithDomain computes SHA256(domain + 0x00 + data).
// The null byte keeps the domain/data boundary unambiguous.
func hashWithDomain(domain string, data []byte) string {
	h := sha256.New()
	h.Write([]byte(domain))
	h.Write([]byte{0x00})
	h.Write(data)
	return hex.EncodeToString(h.Sum(nil))
}

// BatchDigest computes the content digest of the submitted entries.
// Entry order is significant: the scheduler tie-break depends on it.
func BatchDigest(entries []map[string]any) (string, error) {
	arr := make([]any, len(entries))
	for i, e := range entries {
		arr[i] = e
	}
	canonical, err := MarshalCanonical(arr)
	if err != nil {
		return "", fmt.Errorf("BatchDigest: failed to marshal: %w", err)
	}
	return hashWithDomain(DomainBatch, canonical), nil
}

// MustBatchDigest is like BatchDigest but panics on error.
// Use only in tests or when inputs are known to be valid.
func MustBatchDigest(entries []map[string]any) string {
	d, err := BatchDigest(entries)
	if err != nil {
		panic(err)
	}
	return d
}
