package hashbucket

import (
	"fmt"

	"github.com/bytedance/sonic"
)

// descriptorJSON mirrors Config but adds the registry "type" tag, matching
// the reference implementation's to_json() (fields + {"type": tag}).
type descriptorJSON struct {
	Type          string  `json:"type"`
	AvgBucketSize float64 `json:"avg_bucket_size"`
	KeyProtoName  string  `json:"key_proto_name"`
}

func encodeDescriptor(c *Config) ([]byte, error) {
	return sonic.Marshal(descriptorJSON{
		Type:          ConfigTypeTag,
		AvgBucketSize: c.AvgBucketSize,
		KeyProtoName:  c.KeyProtoName,
	})
}

// DecodeDescriptor parses a HashBucket descriptor JSON payload into a
// Config. The caller is expected to have already checked the "type" tag
// (see indexconfig.ConfigFromJSON).
func DecodeDescriptor(data []byte) (*Config, error) {
	var d descriptorJSON
	if err := sonic.Unmarshal(data, &d); err != nil {
		return nil, fmt.Errorf("hashbucket: decode descriptor: %w", err)
	}
	return &Config{AvgBucketSize: d.AvgBucketSize, KeyProtoName: d.KeyProtoName}, nil
}
