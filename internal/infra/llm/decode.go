package llm

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// ErrMalformedResponse is returned when a completion does not contain parseable JSON.
var ErrMalformedResponse = errors.New("malformed model response")

const fence = "```"

// StripFence removes at most one Markdown code fence around a completion.
// The opening line (three backticks plus an optional language tag) is
// dropped, and only then a closing line holding just the fence. It is a
// lossy, best-effort unwrap, not a Markdown parser: text outside the fence
// pair is kept and will usually make the JSON parse fail.
func StripFence(text string) string {
	content := strings.TrimSpace(text)
	if !strings.HasPrefix(content, fence) {
		return content
	}

	lines := strings.Split(content, "\n")[1:]
	if n := len(lines); n > 0 && strings.TrimSpace(lines[n-1]) == fence {
		lines = lines[:n-1]
	}

	return strings.Join(lines, "\n")
}

// Decode strips an optional fence from text and parses the rest as JSON into v.
func Decode(text string, v any) error {
	if err := json.Unmarshal([]byte(StripFence(text)), v); err != nil {
		return fmt.Errorf("%w: %w", ErrMalformedResponse, err)
	}
	return nil
}

// DecodeArray decodes a completion holding a JSON array and returns its
// elements undecoded.
func DecodeArray(text string) ([]json.RawMessage, error) {
	var elements []json.RawMessage
	if err := Decode(text, &elements); err != nil {
		return nil, err
	}
	return elements, nil
}
