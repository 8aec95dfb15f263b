package store

import (
	"encoding/json"

	"github.com/pkg/errors"
)

// metadataVersion is the current version of the metadata envelope.
// Bump only when the envelope shape changes; decoders reject versions
// they do not know.
const metadataVersion = 1

// metadataEnvelope is the persisted form of a document metadata map.
// The version tag pins the encoding so stored rows stay readable when
// the map shape evolves.
type metadataEnvelope struct {
	V  int               `json:"v"`
	KV map[string]string `json:"kv,omitempty"`
}

// EncodeMetadata serializes a string-keyed metadata map into its
// versioned storage form. A nil or empty map encodes to an envelope
// with no entries, never to the empty string.
func EncodeMetadata(m map[string]string) (string, error) {
	raw, err := json.Marshal(metadataEnvelope{V: metadataVersion, KV: m})
	if err != nil {
		return "", errors.Wrap(err, "failed to encode metadata")
	}
	return string(raw), nil
}

// DecodeMetadata parses the versioned storage form back into a map.
// The empty string decodes to nil for rows written before any metadata
// was attached.
func DecodeMetadata(s string) (map[string]string, error) {
	if s == "" {
		return nil, nil
	}
	var envelope metadataEnvelope
	if err := json.Unmarshal([]byte(s), &envelope); err != nil {
		return nil, errors.Wrap(err, "failed to decode metadata")
	}
	if envelope.V != metadataVersion {
		return nil, errors.Errorf("unsupported metadata version: %d", envelope.V)
	}
	return envelope.KV, nil
}
