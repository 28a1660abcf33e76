package sessionhash

import (
	"testing"

	"github.com/codedread/spaces/internal/types"
)

func identity(s string) string { return s }

func TestHash_EmptyIsZero(t *testing.T) {
	if got := Hash(nil, identity); got != 0 {
		t.Errorf("Hash(nil) = %d, want 0", got)
	}
	if got := Hash([]types.Tab{{URL: ""}}, identity); got != 0 {
		t.Errorf("Hash([{url:\"\"}]) = %d, want 0", got)
	}
}

func TestHash_Regression(t *testing.T) {
	tabs := []types.Tab{{URL: "https://example.com"}}
	const want = 632849614
	if got := Hash(tabs, identity); got != want {
		t.Errorf("Hash(%v) = %d, want %d", tabs, got, want)
	}
}

func TestHash_Deterministic(t *testing.T) {
	tabs := []types.Tab{{URL: "https://a.example"}, {URL: "https://b.example"}}
	clone := append([]types.Tab(nil), tabs...)

	h1 := Hash(tabs, identity)
	h2 := Hash(clone, identity)
	if h1 != h2 {
		t.Errorf("hash not deterministic across equal slices: %d != %d", h1, h2)
	}
}

func TestHash_QueryAndFragmentIgnoredViaClean(t *testing.T) {
	clean := func(raw string) string {
		for i, c := range raw {
			if c == '?' || c == '#' {
				return raw[:i]
			}
		}
		return raw
	}

	a := []types.Tab{{URL: "https://example.com/page?x=1"}}
	b := []types.Tab{{URL: "https://example.com/page#frag"}}

	if Hash(a, clean) != Hash(b, clean) {
		t.Errorf("expected equal hashes once clean() strips query/fragment")
	}
}
