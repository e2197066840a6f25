package research

import (
	"testing"
)

func TestExtractJSONObject(t *testing.T) {
	tests := []struct {
		name    string
		in      string
		want    string
		wantErr bool
	}{
		{
			name: "bare object",
			in:   `{"a": 1}`,
			want: `{"a": 1}`,
		},
		{
			name: "fenced json",
			in:   "```json\n{\"a\": 1}\n```",
			want: `{"a": 1}`,
		},
		{
			name: "fenced without language",
			in:   "```\n{\"a\": 1}\n```",
			want: `{"a": 1}`,
		},
		{
			name: "prose around object",
			in:   `Here is the result: {"a": {"b": 2}} hope that helps`,
			want: `{"a": {"b": 2}}`,
		},
		{
			name: "braces inside strings",
			in:   `{"text": "uses { and } inside"}`,
			want: `{"text": "uses { and } inside"}`,
		},
		{
			name: "escaped quotes",
			in:   `{"text": "she said \"hi\""}`,
			want: `{"text": "she said \"hi\""}`,
		},
		{
			name:    "no object",
			in:      "sorry, I cannot answer that",
			wantErr: true,
		},
		{
			name:    "unbalanced",
			in:      `{"a": 1`,
			wantErr: true,
		},
		{
			name:    "empty",
			in:      "",
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := extractJSONObject(tt.in)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("extractJSONObject(%q) = %q, want error", tt.in, got)
				}
				return
			}
			if err != nil {
				t.Fatalf("extractJSONObject(%q) error: %v", tt.in, err)
			}
			if got != tt.want {
				t.Errorf("extractJSONObject(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestDecodeObject(t *testing.T) {
	var out struct {
		Query string `json:"query"`
	}
	text := "```json\n{\"query\": \"go gc pauses\"}\n```"
	if err := decodeObject(text, &out); err != nil {
		t.Fatalf("decodeObject() error: %v", err)
	}
	if out.Query != "go gc pauses" {
		t.Errorf("Query = %q", out.Query)
	}

	if err := decodeObject("not json at all", &out); err == nil {
		t.Error("decodeObject() should fail on non-JSON text")
	}
}
