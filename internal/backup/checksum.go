package backup

import (
	"crypto/sha256"
	"encoding/json"
	"fmt"
)

// Checksum returns the SHA-256 of the payload's canonical JSON encoding as a
// hex string. The envelope metadata (exportDate, dataUpdatedAt) is excluded,
// so two exports of identical data hash identically regardless of when they
// were serialized. encoding/json writes map keys in sorted order, which
// makes the encoding canonical without extra work.
func Checksum(p Payload) (string, error) {
	raw, err := json.Marshal(p)
	if err != nil {
		return "", fmt.Errorf("failed to encode payload for checksum: %w", err)
	}
	sum := sha256.Sum256(raw)
	return fmt.Sprintf("%x", sum), nil
}

// SnapshotChecksum parses an exported envelope and returns its payload
// checksum.
func SnapshotChecksum(jsonText string) (string, error) {
	var envelope Envelope
	if err := json.Unmarshal([]byte(jsonText), &envelope); err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidFormat, err)
	}
	if envelope.Data == nil {
		return "", fmt.Errorf("%w: missing data", ErrInvalidFormat)
	}
	return Checksum(*envelope.Data)
}
