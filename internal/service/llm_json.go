package service

import (
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"
)

var (
	errNoJSONObject = errors.New("no json object found")

	fenceStart = regexp.MustCompile("(?is)^\\s*```(?:json)?\\s*")
	fenceEnd   = regexp.MustCompile("(?is)\\s*```\\s*$")
)

// decodeLLMJSON decodifica la respuesta del modelo en out. Tolera fences de markdown,
// BOM y texto alrededor del objeto.
func decodeLLMJSON(raw string, out any) error {
	cleaned := stripJSONFences(raw)
	if cleaned == "" {
		return errNoJSONObject
	}
	if err := json.Unmarshal([]byte(cleaned), out); err == nil {
		return nil
	}

	obj := firstJSONObject(cleaned)
	if obj == "" {
		return errNoJSONObject
	}
	if err := json.Unmarshal([]byte(obj), out); err != nil {
		return fmt.Errorf("unmarshal json object: %w", err)
	}
	return nil
}

func stripJSONFences(raw string) string {
	s := strings.TrimPrefix(strings.TrimSpace(raw), "\uFEFF")
	s = fenceStart.ReplaceAllString(s, "")
	s = fenceEnd.ReplaceAllString(s, "")
	return strings.TrimSpace(s)
}

// firstJSONObject devuelve el primer objeto balanceado, ignorando llaves dentro de strings.
func firstJSONObject(s string) string {
	start := strings.IndexByte(s, '{')
	if start == -1 {
		return ""
	}

	depth := 0
	inString, escaped := false, false
	for i := start; i < len(s); i++ {
		ch := s[i]
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
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return s[start : i+1]
			}
		}
	}
	return ""
}
