package feed

import (
	"testing"

	"github.com/weaverhq/weaver/internal/itch"
)

func TestResolveSymbolsSpecific(t *testing.T) {
	locs, all := ResolveSymbols([]string{"AAPL", "MSFT"})
	if all {
		t.Fatal("should not be all")
	}
	if len(locs) != 2 {
		t.Fatalf("expected 2 locates, got %d", len(locs))
	}
	if locs[0] != itch.Locate("AAPL") || locs[1] != itch.Locate("MSFT") {
		t.Fatalf("locates should match itch.Locate hashes, got %v", locs)
	}
}

func TestResolveSymbolsWildcard(t *testing.T) {
	locs, all := ResolveSymbols([]string{"*"})
	if !all {
		t.Fatal("wildcard should set all=true")
	}
	if locs != nil {
		t.Fatalf("wildcard should return nil locates, got %v", locs)
	}
}

func TestResolveSymbolsWildcardShortCircuits(t *testing.T) {
	locs, all := ResolveSymbols([]string{"AAPL", "*", "MSFT"})
	if !all {
		t.Fatal("wildcard should short-circuit to all=true")
	}
	if locs != nil {
		t.Fatalf("wildcard should return nil locates, got %v", locs)
	}
}

func TestResolveSymbolsStable(t *testing.T) {
	a, _ := ResolveSymbols([]string{"AAPL"})
	b, _ := ResolveSymbols([]string{"AAPL"})
	if a[0] != b[0] {
		t.Fatalf("hash of the same symbol must be stable: %v vs %v", a, b)
	}
}

func TestManagerClientCount(t *testing.T) {
	m := NewManager(100)
	if m.ClientCount() != 0 {
		t.Fatalf("expected 0 clients, got %d", m.ClientCount())
	}
}
