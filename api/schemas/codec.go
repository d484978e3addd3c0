package schemas

import (
	"fmt"
	"io"

	jsoniter "github.com/json-iterator/go"
)

// json is configured for drop-in compatibility with encoding/json; scripts
// are interchange data produced by the recording collaborator.
var json = jsoniter.ConfigCompatibleWithStandardLibrary

// DecodeScript reads a script from r and validates it. A script that decodes
// but fails validation is rejected here rather than mid-replay.
func DecodeScript(r io.Reader) (*Script, error) {
	var s Script
	if err := json.NewDecoder(r).Decode(&s); err != nil {
		return nil, fmt.Errorf("decoding script: %w", err)
	}
	if err := s.Validate(); err != nil {
		return nil, fmt.Errorf("validating script: %w", err)
	}
	return &s, nil
}

// EncodeScript writes the script as indented JSON.
func EncodeScript(w io.Writer, s *Script) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(s); err != nil {
		return fmt.Errorf("encoding script: %w", err)
	}
	return nil
}

// MarshalIndent renders any schema value for human consumption (CLI output,
// takeover prompts).
func MarshalIndent(v interface{}) ([]byte, error) {
	return json.MarshalIndent(v, "", "  ")
}
