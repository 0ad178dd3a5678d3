package format

import (
	"bytes"
	"strings"
	"testing"
)

type sample struct {
	ID        string   `json:"id"`
	CreatedAt string   `json:"createdAt"`
	Count     int      `json:"count"`
	Ratio     float64  `json:"ratio"`
	Done      bool     `json:"done"`
	Tags      []string `json:"tags"`
	Missing   *string  `json:"missing"`
}

func TestWriteEDN(t *testing.T) {
	t.Parallel()

	v := map[string]any{
		"data": sample{ID: "task-1", CreatedAt: "2024-01-02", Count: 3, Ratio: 0.5, Done: true, Tags: []string{"a", "b"}},
		"meta": map[string]any{},
	}
	var buf bytes.Buffer
	if err := Write(&buf, v, "edn", false); err != nil {
		t.Fatalf("Write: %v", err)
	}
	want := `{:data {:count 3 :created-at "2024-01-02" :done true :id "task-1" :missing nil :ratio 0.5 :tags ["a" "b"]} :meta {}}` + "\n"
	if got := buf.String(); got != want {
		t.Fatalf("got  %s\nwant %s", got, want)
	}
}

func TestWriteEDN_Pretty(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	if err := WriteEDN(&buf, map[string]any{"a": []int{1}}, true); err != nil {
		t.Fatalf("WriteEDN: %v", err)
	}
	want := "{\n  :a [\n    1\n  ]\n}\n"
	if buf.String() != want {
		t.Fatalf("got %q, want %q", buf.String(), want)
	}
}

func TestEDNKeyword(t *testing.T) {
	t.Parallel()

	cases := map[string]string{
		"id":            "id",
		"createdAt":     "created-at",
		"executionUnit": "execution-unit",
		"_hints":        "_hints",
		"fileId":        "file-id",
		"two words":     "two-words",
		"URL":           "url",
	}
	for in, want := range cases {
		if got := ednKeyword(in); got != want {
			t.Fatalf("ednKeyword(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestWrite_JSONAndUnknown(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	if err := Write(&buf, map[string]int{"n": 1}, "", false); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if buf.String() != "{\"n\":1}\n" {
		t.Fatalf("json = %q", buf.String())
	}
	err := Write(&buf, 1, "xml", false)
	if err == nil || !strings.Contains(err.Error(), "unknown format") {
		t.Fatalf("expected unknown format error, got %v", err)
	}
}
