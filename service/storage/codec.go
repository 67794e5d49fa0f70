package storage

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
)

// EncodeFields turns a JSON-tagged struct (or map) into one encoded value per
// top level field, so each field can be stored and fetched independently.
func EncodeFields(v any) (map[string]string, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encode fields: %w", err)
	}
	var parts map[string]json.RawMessage
	if err := json.Unmarshal(raw, &parts); err != nil {
		return nil, fmt.Errorf("encode fields: value is not an object: %w", err)
	}
	out := make(map[string]string, len(parts))
	for k, p := range parts {
		if bytes.Equal(p, []byte("null")) {
			continue
		}
		out[k] = string(p)
	}
	return out, nil
}

// DecodeFields is the inverse of EncodeFields.
func DecodeFields(fields map[string]string, out any) error {
	keys := make([]string, 0, len(fields))
	for k, v := range fields {
		if v == "" {
			continue
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, k := range keys {
		if i > 0 {
			buf.WriteByte(',')
		}
		kb, _ := json.Marshal(k)
		buf.Write(kb)
		buf.WriteByte(':')
		buf.WriteString(fields[k])
	}
	buf.WriteByte('}')

	if err := json.Unmarshal(buf.Bytes(), out); err != nil {
		return fmt.Errorf("decode fields: %w", err)
	}
	return nil
}

// EncodeValue encodes a single field value.
func EncodeValue(v any) (string, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("encode value: %w", err)
	}
	return string(b), nil
}

// DecodeValue decodes a single field value.
func DecodeValue(s string, out any) error {
	if err := json.Unmarshal([]byte(s), out); err != nil {
		return fmt.Errorf("decode value: %w", err)
	}
	return nil
}
