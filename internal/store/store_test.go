package store

import (
	"context"
	"strings"
	"sync"
	"testing"
)

type sample struct {
	Name  string `json:"name"`
	Count int    `json:"count"`
}

func TestMemoryGetSetRemove(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()

	if _, ok, err := m.Get(ctx, "missing"); ok || err != nil {
		t.Fatalf("expected absent key, got ok=%v err=%v", ok, err)
	}

	if err := m.Set(ctx, "a", []byte(`1`)); err != nil {
		t.Fatalf("set: %v", err)
	}
	if err := m.Set(ctx, "a", []byte(`2`)); err != nil {
		t.Fatalf("set: %v", err)
	}
	v, ok, err := m.Get(ctx, "a")
	if err != nil || !ok || string(v) != "2" {
		t.Fatalf("expected replaced value 2, got %q ok=%v err=%v", v, ok, err)
	}

	if err := m.Remove(ctx, "a"); err != nil {
		t.Fatalf("remove: %v", err)
	}
	if err := m.Remove(ctx, "a"); err != nil {
		t.Fatalf("remove of missing key should not fail: %v", err)
	}
	if m.Len() != 0 {
		t.Fatalf("expected empty store, got %d keys", m.Len())
	}
}

func TestMemoryScanPrefixOrdered(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	for _, k := range []string{"archive:b", "archive:a", "expenses", "archive:c"} {
		_ = m.Set(ctx, k, []byte(`{}`))
	}

	entries, err := m.ScanPrefix(ctx, "archive:")
	if err != nil {
		t.Fatalf("scan: %v", err)
	}
	want := []string{"archive:a", "archive:b", "archive:c"}
	if len(entries) != len(want) {
		t.Fatalf("expected %d entries, got %d", len(want), len(entries))
	}
	for i, e := range entries {
		if e.Key != want[i] {
			t.Errorf("entry %d = %q, want %q", i, e.Key, want[i])
		}
	}
}

func TestLoadIsLenient(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()

	var got sample
	found, err := Load(ctx, m, "missing", &got)
	if found || err != nil {
		t.Fatalf("missing key: found=%v err=%v", found, err)
	}

	_ = m.Set(ctx, "broken", []byte(`{"name": `))
	found, err = Load(ctx, m, "broken", &got)
	if found || err != nil {
		t.Fatalf("malformed value should read as absent: found=%v err=%v", found, err)
	}

	_ = m.Set(ctx, "wrongshape", []byte(`["x"]`))
	found, err = Load(ctx, m, "wrongshape", &got)
	if found || err != nil {
		t.Fatalf("wrong shape should read as absent: found=%v err=%v", found, err)
	}

	if err := Save(ctx, m, "ok", sample{Name: "x", Count: 2}); err != nil {
		t.Fatalf("save: %v", err)
	}
	found, err = Load(ctx, m, "ok", &got)
	if !found || err != nil || got.Name != "x" || got.Count != 2 {
		t.Fatalf("unexpected load: %+v found=%v err=%v", got, found, err)
	}
}

func TestLoadAllSkipsMalformed(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	_ = Save(ctx, m, "p:1", sample{Name: "one"})
	_ = m.Set(ctx, "p:2", []byte(`nope`))
	_ = Save(ctx, m, "p:3", sample{Name: "three"})

	all, err := LoadAll[sample](ctx, m, "p:")
	if err != nil {
		t.Fatalf("load all: %v", err)
	}
	if len(all) != 2 || all[0].Name != "one" || all[1].Name != "three" {
		t.Fatalf("unexpected records: %+v", all)
	}
}

func TestNamespaceIsolatesUsers(t *testing.T) {
	ctx := context.Background()
	base := NewMemory()
	alice := Namespace(base, UserPrefix("alice"))
	bob := Namespace(base, UserPrefix("bob"))

	_ = alice.Set(ctx, "archive:1", []byte(`1`))
	_ = bob.Set(ctx, "archive:1", []byte(`2`))
	_ = bob.Set(ctx, "archive:2", []byte(`3`))

	v, ok, _ := alice.Get(ctx, "archive:1")
	if !ok || string(v) != "1" {
		t.Fatalf("alice sees %q ok=%v", v, ok)
	}

	entries, err := bob.ScanPrefix(ctx, "archive:")
	if err != nil {
		t.Fatalf("scan: %v", err)
	}
	if len(entries) != 2 || entries[0].Key != "archive:1" || entries[1].Key != "archive:2" {
		t.Fatalf("unexpected bob entries: %+v", entries)
	}

	if _, ok, _ := base.Get(ctx, "user:alice:archive:1"); !ok {
		t.Fatal("expected namespaced key in base store")
	}
}

func TestUserPrefixKeepsIDsApart(t *testing.T) {
	ctx := context.Background()
	base := NewMemory()
	alice := Namespace(base, UserPrefix("alice"))
	nested := Namespace(base, UserPrefix("alice:archive:x"))

	_ = nested.Set(ctx, "budget_settings", []byte(`{}`))

	entries, err := alice.ScanPrefix(ctx, "archive:")
	if err != nil {
		t.Fatalf("scan: %v", err)
	}
	if len(entries) != 0 {
		t.Fatalf("alice sees records of another user: %+v", entries)
	}
	if _, ok, _ := nested.Get(ctx, "budget_settings"); !ok {
		t.Fatal("nested user lost its own record")
	}
}

func TestEscapeUserIDRoundTrip(t *testing.T) {
	tests := []struct {
		id      string
		escaped string
	}{
		{"alice", "alice"},
		{"tg-42", "tg-42"},
		{"alice:archive:x", "alice%3Aarchive%3Ax"},
		{"50%", "50%25"},
		{"%3A", "%253A"},
	}
	for _, tt := range tests {
		t.Run(tt.id, func(t *testing.T) {
			got := EscapeUserID(tt.id)
			if got != tt.escaped {
				t.Fatalf("EscapeUserID(%q) = %q, want %q", tt.id, got, tt.escaped)
			}
			if strings.Contains(got, ":") {
				t.Fatalf("escaped id %q contains the separator", got)
			}
			if back := UnescapeUserID(got); back != tt.id {
				t.Fatalf("UnescapeUserID(%q) = %q, want %q", got, back, tt.id)
			}
		})
	}
}

func TestKeyedMutexSerializesPerKey(t *testing.T) {
	k := NewKeyedMutex()
	counter := 0
	var wg sync.WaitGroup

	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock := k.Lock("user-1")
			defer unlock()
			v := counter
			v++
			counter = v
		}()
	}
	wg.Wait()

	if counter != 50 {
		t.Fatalf("expected 50 increments, got %d", counter)
	}
	if k.Size() != 0 {
		t.Fatalf("expected lock entries to be released, got %d", k.Size())
	}
}
