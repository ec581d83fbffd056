package cli

import (
	"bytes"
	"encoding/json"
	"fmt"
	"testing"
	"time"
)

func TestFprintJSON(t *testing.T) {
	t.Run("simple struct", func(t *testing.T) {
		var buf bytes.Buffer
		input := map[string]string{"key": "value"}

		if err := fprintJSON(&buf, input); err != nil {
			t.Fatalf("fprintJSON() error = %v", err)
		}

		var got map[string]string
		if err := json.Unmarshal(buf.Bytes(), &got); err != nil {
			t.Fatalf("failed to parse output: %v", err)
		}
		if got["key"] != "value" {
			t.Errorf("got key=%q, want %q", got["key"], "value")
		}
	})

	t.Run("indented output", func(t *testing.T) {
		var buf bytes.Buffer
		input := map[string]int{"a": 1}

		if err := fprintJSON(&buf, input); err != nil {
			t.Fatalf("fprintJSON() error = %v", err)
		}

		output := buf.String()
		if output == `{"a":1}`+"\n" {
			t.Error("expected indented JSON, got compact")
		}
	})

	t.Run("nil value", func(t *testing.T) {
		var buf bytes.Buffer
		if err := fprintJSON(&buf, nil); err != nil {
			t.Fatalf("fprintJSON() error = %v", err)
		}
		if got := buf.String(); got != "null\n" {
			t.Errorf("got %q, want %q", got, "null\n")
		}
	})

	t.Run("empty slice", func(t *testing.T) {
		var buf bytes.Buffer
		if err := fprintJSON(&buf, []string{}); err != nil {
			t.Fatalf("fprintJSON() error = %v", err)
		}
		if got := buf.String(); got != "[]\n" {
			t.Errorf("got %q, want %q", got, "[]\n")
		}
	})
}

func TestTruncate(t *testing.T) {
	tests := []struct {
		in   string
		n    int
		want string
	}{
		{"short", 10, "short"},
		{"exactly10!", 10, "exactly10!"},
		{"this is a long subject", 10, "this is..."},
		{"héllo wörld", 8, "héllo..."},
		{"abcdef", 2, "ab"},
	}
	for _, tt := range tests {
		if got := truncate(tt.in, tt.n); got != tt.want {
			t.Errorf("truncate(%q, %d) = %q, want %q", tt.in, tt.n, got, tt.want)
		}
	}
}

func TestFormatDatePtr(t *testing.T) {
	if got := formatDatePtr(nil); got != "never" {
		t.Errorf("formatDatePtr(nil) = %q, want never", got)
	}
	if got := formatDate(time.Time{}); got != "-" {
		t.Errorf("formatDate(zero) = %q, want -", got)
	}
}

func TestNewTable(t *testing.T) {
	var buf bytes.Buffer
	w := newTable(&buf)
	fmt.Fprintln(w, "ID\tEMAIL")
	fmt.Fprintln(w, "1\ta@example.com")
	if err := w.Flush(); err != nil {
		t.Fatalf("Flush() error = %v", err)
	}
	want := "ID  EMAIL\n1   a@example.com\n"
	if got := buf.String(); got != want {
		t.Errorf("table = %q, want %q", got, want)
	}
}
