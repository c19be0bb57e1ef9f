package export

import "encoding/json"

// nativeSerializer emits the canonical dataset as-is: full-fidelity nested
// JSON, one object per participant. This is the round-trip format.
type nativeSerializer struct{}

func (nativeSerializer) Format() Format { return FormatNative }

func (nativeSerializer) Serialize(ds *Dataset) ([]byte, error) {
	return json.MarshalIndent(ds, "", "  ")
}

// ParseNative re-parses a native package back into the canonical shape.
// Partners and round-trip tests use it to verify delivered content.
func ParseNative(data []byte) (*Dataset, error) {
	var ds Dataset
	if err := json.Unmarshal(data, &ds); err != nil {
		return nil, err
	}
	return &ds, nil
}
