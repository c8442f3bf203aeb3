package provider

import (
	"net/http"
	"strings"
	"testing"
	"unicode/utf8"
)

func TestUpstreamErrorTruncatesOnRuneBoundary(t *testing.T) {
	// 511 ASCII bytes then a 2-byte rune straddling the 512 limit
	body := strings.Repeat("a", 511) + "é" + strings.Repeat("b", 100)

	err := UpstreamError("orange", OpPayment, http.StatusBadGateway, body)
	if !utf8.ValidString(err.Message) {
		t.Fatalf("message is not valid UTF-8: %q", err.Message[len(err.Message)-8:])
	}
	if !strings.HasSuffix(err.Message, ": "+strings.Repeat("a", 511)) {
		t.Fatalf("body not truncated at 511 bytes")
	}
	if err.Kind != KindRequestFailure || err.StatusCode != http.StatusBadGateway {
		t.Fatalf("kind=%s status=%d", err.Kind, err.StatusCode)
	}

	short := UpstreamError("wave", OpVerify, http.StatusNotFound, `{"code":"not-found"}`)
	if !strings.HasSuffix(short.Message, `{"code":"not-found"}`) {
		t.Fatalf("short body altered: %s", short.Message)
	}
}

func TestTruncateUTF8(t *testing.T) {
	cases := []struct {
		in   string
		n    int
		want string
	}{
		{"abc", 5, "abc"},
		{"abc", 2, "ab"},
		{"aé", 2, "a"},
		{"aé", 3, "aé"},
		{"日本", 4, "日"},
	}
	for _, c := range cases {
		if got := truncateUTF8(c.in, c.n); got != c.want {
			t.Fatalf("truncateUTF8(%q, %d) = %q, want %q", c.in, c.n, got, c.want)
		}
	}
}
