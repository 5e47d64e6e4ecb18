package ir

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
)

// DomainSchema separates schema fingerprints from any other hash of the
// same bytes. The version suffix allows the algorithm to change later.
const DomainSchema = "lexcache/schema/v1"

// hashWithDomain computes SHA256(domain + 0x00 + data).
// The null byte keeps the domain/data boundary unambiguous.
func hashWithDomain(domain string, data []byte) string {
	h := sha256.New()
	h.Write([]byte(domain))
	h.Write([]byte{0x00})
	h.Write(data)
	return hex.EncodeToString(h.Sum(nil))
}

// SchemaHash fingerprints a compiled schema.
// Two schemas hash equal exactly when their canonical JSON is identical,
// so declaration order matters but formatting and key order do not.
func SchemaHash(s *Schema) (string, error) {
	data, err := json.Marshal(s)
	if err != nil {
		return "", fmt.Errorf("SchemaHash: failed to marshal: %w", err)
	}
	v, err := unmarshalIRValue(data)
	if err != nil {
		return "", fmt.Errorf("SchemaHash: %w", err)
	}
	canonical, err := MarshalCanonical(v)
	if err != nil {
		return "", fmt.Errorf("SchemaHash: failed to canonicalize: %w", err)
	}
	return hashWithDomain(DomainSchema, canonical), nil
}
