package trigram

import (
	"fmt"

	"github.com/bytedance/sonic"
)

// descriptorJSON mirrors Config but adds the registry "type" tag.
type descriptorJSON struct {
	Type                 string `json:"type"`
	CharacterSet         string `json:"character_set"`
	NgramSize            int    `json:"ngram_size"`
	Normalize            bool   `json:"normalize"`
	StorePositions       bool   `json:"store_positions"`
	DeltaEncodeRecordIDs bool   `json:"delta_encode_record_ids"`
}

func encodeDescriptor(c *Config) ([]byte, error) {
	return sonic.Marshal(descriptorJSON{
		Type:                 ConfigTypeTag,
		CharacterSet:         c.CharacterSet,
		NgramSize:            c.NgramSize,
		Normalize:            c.Normalize,
		StorePositions:       c.StorePositions,
		DeltaEncodeRecordIDs: c.DeltaEncodeRecordIDs,
	})
}

// DecodeDescriptor parses a Trigram descriptor JSON payload into a Config.
// The caller is expected to have already checked the "type" tag (see
// indexconfig.ConfigFromJSON).
func DecodeDescriptor(data []byte) (*Config, error) {
	var d descriptorJSON
	if err := sonic.Unmarshal(data, &d); err != nil {
		return nil, fmt.Errorf("trigram: decode descriptor: %w", err)
	}
	return &Config{
		CharacterSet:         d.CharacterSet,
		NgramSize:            d.NgramSize,
		Normalize:            d.Normalize,
		StorePositions:       d.StorePositions,
		DeltaEncodeRecordIDs: d.DeltaEncodeRecordIDs,
	}, nil
}
