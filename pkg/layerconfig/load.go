package layerconfig

import (
	"bytes"
	"encoding/json"
	"os"

	"github.com/pkg/errors"
)

// ParseList decodes either a single configuration object or an array of them.
func ParseList(data []byte) ([]*Config, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return nil, nil
	}
	if trimmed[0] != '[' {
		cfg, err := FromJSON(trimmed)
		if err != nil {
			return nil, err
		}
		return []*Config{cfg}, nil
	}
	var raws []json.RawMessage
	if err := json.Unmarshal(trimmed, &raws); err != nil {
		return nil, errors.Wrap(err, "layerconfig: decode config list")
	}
	out := make([]*Config, 0, len(raws))
	for i, raw := range raws {
		cfg, err := FromJSON(raw)
		if err != nil {
			return nil, errors.Wrapf(err, "config #%d", i)
		}
		out = append(out, cfg)
	}
	return out, nil
}

// LoadFile reads custom provider configurations from a JSON file.
func LoadFile(path string) ([]*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "read layer configs %s", path)
	}
	return ParseList(data)
}
