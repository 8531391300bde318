package ai

import (
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"phenodx/domain/core"
)

func mustExtract(t *testing.T, text string) json.RawMessage {
	t.Helper()
	raw, err := ExtractStructured(text)
	if err != nil {
		t.Fatalf("ExtractStructured(%q) failed: %v", text, err)
	}
	return raw
}

func TestExtractStructured_DirectParse(t *testing.T) {
	raw := mustExtract(t, ` {"a": 1} `)
	var got map[string]int
	if err := json.Unmarshal(raw, &got); err != nil || got["a"] != 1 {
		t.Errorf("got %s, err %v", raw, err)
	}
}

func TestExtractStructured_FencedBlock(t *testing.T) {
	raw := mustExtract(t, "```json\n[{\"a\":1}]\n```")
	var got []map[string]int
	if err := json.Unmarshal(raw, &got); err != nil || len(got) != 1 || got[0]["a"] != 1 {
		t.Errorf("got %s, err %v", raw, err)
	}
}

func TestExtractStructured_BareFence(t *testing.T) {
	raw := mustExtract(t, "```\n{\"ok\": true}\n```")
	var got map[string]bool
	if err := json.Unmarshal(raw, &got); err != nil || !got["ok"] {
		t.Errorf("got %s, err %v", raw, err)
	}
}

func TestExtractStructured_EmbeddedInProse(t *testing.T) {
	raw := mustExtract(t, `Here is the result you asked for: {"answer": [1, 2, 3]} — hope that helps!`)
	var got struct {
		Answer []int `json:"answer"`
	}
	if err := json.Unmarshal(raw, &got); err != nil || len(got.Answer) != 3 {
		t.Errorf("got %s, err %v", raw, err)
	}
}

func TestExtractStructured_ArrayPreferredWhenEarliest(t *testing.T) {
	raw := mustExtract(t, `[{"x": 1}, {"x": 2}] trailing text with a stray }`)
	var got []map[string]int
	if err := json.Unmarshal(raw, &got); err != nil || len(got) != 2 {
		t.Errorf("got %s, err %v", raw, err)
	}
}

func TestExtractStructured_TruncatedObject(t *testing.T) {
	raw := mustExtract(t, `prose {"a": {"b": true`)
	var got struct {
		A struct {
			B bool `json:"b"`
		} `json:"a"`
	}
	if err := json.Unmarshal(raw, &got); err != nil || !got.A.B {
		t.Errorf("got %s, err %v", raw, err)
	}
}

func TestExtractStructured_TruncatedArrayOfObjects(t *testing.T) {
	raw := mustExtract(t, `[{"finding": "no seizures", "confidence": "high"}, {"finding": "no card`)
	var got []map[string]string
	if err := json.Unmarshal(raw, &got); err != nil {
		t.Fatalf("got %s, err %v", raw, err)
	}
	if len(got) != 1 || got[0]["finding"] != "no seizures" {
		t.Errorf("repair kept %v, want only the complete first element", got)
	}
}

func TestExtractStructured_TruncatedAfterDanglingKey(t *testing.T) {
	// Output cut off right after a key (with or without its colon) still
	// yields every closed key-value pair before it.
	for _, text := range []string{
		`prose {"a": 1, "b":`,
		`{"a": 1, "b"`,
	} {
		raw := mustExtract(t, text)
		var got map[string]int
		if err := json.Unmarshal(raw, &got); err != nil {
			t.Fatalf("input %q: got %s, err %v", text, raw, err)
		}
		if len(got) != 1 || got["a"] != 1 {
			t.Errorf("input %q: recovered %v, want only the complete pair", text, got)
		}
	}
}

func TestExtractStructured_BracesInsideStringsIgnored(t *testing.T) {
	raw := mustExtract(t, `{"note": "use {braces} and \"quotes\" freely", "n": 1}`)
	var got struct {
		Note string `json:"note"`
		N    int    `json:"n"`
	}
	if err := json.Unmarshal(raw, &got); err != nil || got.N != 1 || !strings.Contains(got.Note, "{braces}") {
		t.Errorf("got %s, err %v", raw, err)
	}
}

func TestExtractStructured_NoStructure(t *testing.T) {
	_, err := ExtractStructured("no structure here")
	var pe *ParseError
	if !errors.As(err, &pe) {
		t.Fatalf("err = %v, want *ParseError", err)
	}
	if !strings.Contains(pe.Prefix, "no structure here") {
		t.Errorf("prefix = %q", pe.Prefix)
	}
	if !errors.Is(err, core.ErrStructuredRecovery) {
		t.Error("parse failures must match the structured-recovery sentinel")
	}
}

func TestExtractStructured_EmptyInput(t *testing.T) {
	if _, err := ExtractStructured("   \n  "); err == nil {
		t.Error("blank input must fail with a typed error")
	}
}

func TestExtractStructured_PrefixIsBounded(t *testing.T) {
	long := strings.Repeat("x", 5000)
	_, err := ExtractStructured(long)
	var pe *ParseError
	if !errors.As(err, &pe) {
		t.Fatalf("err = %v", err)
	}
	if len(pe.Prefix) > parseErrorPrefixLen {
		t.Errorf("prefix length = %d, want <= %d", len(pe.Prefix), parseErrorPrefixLen)
	}
}
