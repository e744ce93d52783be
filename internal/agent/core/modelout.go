package core

import (
	"encoding/json"
	"fmt"
)

// extractJSONObject pulls the first balanced JSON object out of a model
// response. Models wrap JSON in prose or code fences often enough that a
// direct Unmarshal of the whole response is unreliable.
func extractJSONObject(response string) (string, error) {
	start := -1
	depth := 0
	inString := false
	escaped := false
	for i, ch := range response {
		if inString {
			switch {
			case escaped:
				escaped = false
			case ch == '\\':
				escaped = true
			case ch == '"':
				inString = false
			}
			continue
		}
		switch ch {
		case '"':
			if depth > 0 {
				inString = true
			}
		case '{':
			if depth == 0 {
				start = i
			}
			depth++
		case '}':
			if depth > 0 {
				depth--
			}
			if depth == 0 && start != -1 {
				return response[start : i+1], nil
			}
		}
	}
	return "", fmt.Errorf("no JSON object found in response: %w", ErrInvalidModelOutput)
}

// decodeModelJSON extracts and unmarshals the first JSON object in a model
// response into out. Parse failures surface as ErrInvalidModelOutput so the
// calling stage can take its fallback branch.
func decodeModelJSON(response string, out interface{}) error {
	jsonStr, err := extractJSONObject(response)
	if err != nil {
		return err
	}
	if err := json.Unmarshal([]byte(jsonStr), out); err != nil {
		return fmt.Errorf("parse model JSON: %v: %w", err, ErrInvalidModelOutput)
	}
	return nil
}
