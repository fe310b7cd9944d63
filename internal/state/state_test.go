package state

import (
	"path/filepath"
	"reflect"
	"testing"

	"github.com/Klingon-tech/klingnet-wallet/config"
	"github.com/Klingon-tech/klingnet-wallet/internal/storage"
)

func newState(t *testing.T) *State {
	t.Helper()
	s, err := New(storage.NewPrefixDB(storage.NewMemory(), []byte("state/")))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return s
}

func TestOwnerAndPause(t *testing.T) {
	s := newState(t)
	if s.Owner() != "" || s.Paused() {
		t.Fatal("fresh state must be unowned and running")
	}
	if err := s.InitOwner("alice"); err != nil {
		t.Fatal(err)
	}
	if err := s.InitOwner("bob"); err != nil || s.Owner() != "alice" {
		t.Fatalf("InitOwner overwrote owner: %q", s.Owner())
	}
	prev, err := s.RotateOwner("carol")
	if err != nil || prev != "alice" || s.Owner() != "carol" {
		t.Fatalf("RotateOwner = %q, %v", prev, err)
	}
	if err := s.SetPaused(true); err != nil || !s.Paused() {
		t.Fatal("SetPaused(true)")
	}
}

func TestTokens(t *testing.T) {
	s := newState(t)
	tok := config.Token{Network: "eth", Symbol: "ABC", Address: "0xAbC", Decimals: 18}
	if err := s.UpsertCustomToken(tok); err != nil {
		t.Fatal(err)
	}
	tok.Symbol = "ABC2"
	tok.Address = "0xabc"
	if err := s.UpsertCustomToken(tok); err != nil {
		t.Fatal(err)
	}
	got := s.CustomTokens("eth")
	if len(got) != 1 || got[0].Symbol != "ABC2" {
		t.Fatalf("custom tokens = %+v", got)
	}

	removed, err := s.RemoveToken("eth", "0xABC", false)
	if err != nil || !removed {
		t.Fatalf("RemoveToken = %v, %v", removed, err)
	}
	if len(s.CustomTokens("eth")) != 0 || !s.IsTokenRemoved("eth", "0xabc") {
		t.Fatal("token still visible after removal")
	}
	removed, _ = s.RemoveToken("eth", "0xdef", false)
	if removed {
		t.Fatal("removing an unknown token reported true")
	}
	removed, _ = s.RemoveToken("eth", "0x111", true)
	if !removed {
		t.Fatal("removing a built-in token reported false")
	}
	removed, _ = s.RemoveToken("eth", "0x111", true)
	if removed {
		t.Fatal("second removal of a built-in token reported true")
	}

	// Re-adding clears the removal mark.
	if err := s.UpsertCustomToken(tok); err != nil {
		t.Fatal(err)
	}
	if s.IsTokenRemoved("eth", "0xabc") {
		t.Fatal("upsert did not clear removal")
	}
}

func TestRPC(t *testing.T) {
	s := newState(t)
	if err := s.SetRPC("eth", "https://a"); err != nil {
		t.Fatal(err)
	}
	if err := s.SeedRPCs(map[string]string{"eth": "https://default", "btc": "https://btc"}); err != nil {
		t.Fatal(err)
	}
	if u, _ := s.RPC("eth"); u != "https://a" {
		t.Fatalf("seed overwrote override: %s", u)
	}
	if u, ok := s.RPC("btc"); !ok || u != "https://btc" {
		t.Fatalf("seeded btc = %s, %v", u, ok)
	}
	ok, err := s.RemoveRPC("eth")
	if err != nil || !ok {
		t.Fatalf("RemoveRPC = %v, %v", ok, err)
	}
	if ok, _ := s.RemoveRPC("eth"); ok {
		t.Fatal("second RemoveRPC reported true")
	}
	all := s.RPCs()
	all["sol"] = "mutated"
	if _, ok := s.RPC("sol"); ok {
		t.Fatal("RPCs must return a copy")
	}
}

func TestSnapshotRestore(t *testing.T) {
	s := newState(t)
	s.InitOwner("alice")
	s.SetPaused(true)
	s.SetRPC("eth", "https://a")
	s.UpsertCustomToken(config.Token{Network: "eth", Symbol: "A", Address: "0xa", Decimals: 6})
	s.UpsertCustomToken(config.Token{Network: "sol", Symbol: "B", Address: "Mint111", Decimals: 9})
	s.RemoveToken("eth", "0xdac17f958d2ee523a2206206994597c13d831ec7", true)

	snap := s.Snapshot()

	other := newState(t)
	other.SetRPC("btc", "https://stale")
	other.UpsertCustomToken(config.Token{Network: "eth", Symbol: "OLD", Address: "0xold"})
	if err := other.Restore(snap); err != nil {
		t.Fatalf("Restore: %v", err)
	}
	if !reflect.DeepEqual(other.Snapshot(), snap) {
		t.Fatalf("restored snapshot differs:\n got %+v\nwant %+v", other.Snapshot(), snap)
	}
	if _, ok := other.RPC("btc"); ok {
		t.Fatal("restore kept stale rpc")
	}
	if err := other.Restore(nil); err == nil {
		t.Fatal("nil snapshot accepted")
	}
}

func TestPersistenceAcrossReopen(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "state")
	db, err := storage.NewBadger(dir)
	if err != nil {
		t.Fatalf("NewBadger: %v", err)
	}
	s, err := New(db)
	if err != nil {
		t.Fatal(err)
	}
	s.InitOwner("alice")
	s.SetPaused(true)
	s.SetRPC("eip155:84532", "https://base-sepolia")
	s.UpsertCustomToken(config.Token{Network: "eth", Symbol: "A", Address: "0xa", Decimals: 6})
	s.RemoveToken("eth", "0xb", true)
	want := s.Snapshot()
	db.Close()

	db, err = storage.NewBadger(dir)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer db.Close()
	reopened, err := New(db)
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(reopened.Snapshot(), want) {
		t.Fatalf("reopened snapshot differs:\n got %+v\nwant %+v", reopened.Snapshot(), want)
	}
}
