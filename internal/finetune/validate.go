package finetune

import (
	"bytes"
	"encoding/json"
	"fmt"
)

var allowedRoles = map[string]bool{
	"system":    true,
	"user":      true,
	"assistant": true,
	"tool":      true,
}

// ValidateTrainingFile checks that data is newline-delimited JSON where every
// non-blank line is {"messages": [{"role": ..., "content": ...}, ...]}.
// The first offending line is reported as a validation error with its
// 1-based line number.
func ValidateTrainingFile(data []byte) error {
	examples := 0
	for i, raw := range bytes.Split(data, []byte("\n")) {
		line := bytes.TrimSpace(raw)
		if len(line) == 0 {
			continue
		}
		if err := validateLine(i+1, line); err != nil {
			return err
		}
		examples++
	}
	if examples == 0 {
		return validationErr(0, "training file is empty")
	}
	return nil
}

func validateLine(n int, line []byte) error {
	var obj map[string]json.RawMessage
	if err := json.Unmarshal(line, &obj); err != nil {
		return validationErr(n, "invalid JSON object: %v", err)
	}
	rawMessages, ok := obj["messages"]
	if !ok {
		return validationErr(n, `missing "messages" field`)
	}
	var messages []map[string]json.RawMessage
	if err := json.Unmarshal(rawMessages, &messages); err != nil {
		return validationErr(n, `"messages" must be an array of objects`)
	}
	if len(messages) == 0 {
		return validationErr(n, `"messages" must not be empty`)
	}
	for i, m := range messages {
		role, err := stringField(m, "role")
		if err != nil {
			return validationErr(n, "message %d: %v", i+1, err)
		}
		if !allowedRoles[role] {
			return validationErr(n, "message %d: unknown role %q", i+1, role)
		}
		if _, err := stringField(m, "content"); err != nil {
			return validationErr(n, "message %d: %v", i+1, err)
		}
	}
	return nil
}

func stringField(m map[string]json.RawMessage, key string) (string, error) {
	raw, ok := m[key]
	if !ok {
		return "", fmt.Errorf("missing %q", key)
	}
	var s string
	if bytes.Equal(bytes.TrimSpace(raw), []byte("null")) || json.Unmarshal(raw, &s) != nil {
		return "", fmt.Errorf("%q must be a string", key)
	}
	return s, nil
}

// Preview returns up to n leading lines of a training file and how many
// lines follow them.
func Preview(data []byte, n int) ([]string, int) {
	trimmed := bytes.TrimRight(data, "\r\n")
	if len(trimmed) == 0 {
		return nil, 0
	}
	lines := bytes.Split(trimmed, []byte("\n"))
	head := make([]string, 0, min(n, len(lines)))
	for _, l := range lines[:min(n, len(lines))] {
		head = append(head, string(bytes.TrimRight(l, "\r")))
	}
	return head, len(lines) - len(head)
}
