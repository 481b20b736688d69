package storage

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/ElectronicaGitHub/agented-io/model"
)

// storeFactories lets every behavioural test run against both backends.
func storeFactories(t *testing.T, window int) map[string]MessageStore {
	t.Helper()
	sqlite, err := NewSqliteInMemory(window)
	if err != nil {
		t.Fatalf("Failed to create storage: %v", err)
	}
	t.Cleanup(func() { sqlite.Close() })
	return map[string]MessageStore{
		"memory": NewMemoryStore(window),
		"sqlite": sqlite,
	}
}

func msg(text, sender string) model.Message {
	return model.Message{
		Text:       text,
		Sender:     sender,
		SenderRole: model.RoleUser,
		CreatedAt:  time.Now(),
		Type:       model.ResponseText,
	}
}

func TestStoreAppendAndRead(t *testing.T) {
	for name, store := range storeFactories(t, 5) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			if err := store.Append(ctx, "main", "assistant", msg("Hello", "user"), msg("Hi there", "assistant")); err != nil {
				t.Fatalf("Append failed: %v", err)
			}

			loaded, err := store.Read(ctx, "main", "assistant")
			if err != nil {
				t.Fatalf("Read failed: %v", err)
			}
			if len(loaded) != 2 {
				t.Fatalf("expected 2 messages, got %d", len(loaded))
			}
			if loaded[0].Text != "Hello" || loaded[1].Text != "Hi there" {
				t.Errorf("unexpected order: %q, %q", loaded[0].Text, loaded[1].Text)
			}
			if loaded[0].ID == "" {
				t.Error("expected generated message ID")
			}
		})
	}
}

func TestStoreReadEmptyPair(t *testing.T) {
	for name, store := range storeFactories(t, 5) {
		t.Run(name, func(t *testing.T) {
			loaded, err := store.Read(context.Background(), "nobody", "nothing")
			if err != nil {
				t.Fatalf("Read failed: %v", err)
			}
			if loaded == nil || len(loaded) != 0 {
				t.Errorf("expected empty non-nil slice, got %v", loaded)
			}
		})
	}
}

func TestStoreWindowDropsOldest(t *testing.T) {
	for name, store := range storeFactories(t, 3) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			for i := range 5 {
				if err := store.Append(ctx, "p", "c", msg(fmt.Sprintf("m%d", i), "p")); err != nil {
					t.Fatalf("Append failed: %v", err)
				}
			}

			loaded, err := store.Read(ctx, "p", "c")
			if err != nil {
				t.Fatalf("Read failed: %v", err)
			}
			if len(loaded) != 3 {
				t.Fatalf("expected 3 messages, got %d", len(loaded))
			}
			for i, want := range []string{"m2", "m3", "m4"} {
				if loaded[i].Text != want {
					t.Errorf("message %d: expected %q, got %q", i, want, loaded[i].Text)
				}
			}
		})
	}
}

func TestStorePairsAreIsolated(t *testing.T) {
	for name, store := range storeFactories(t, 5) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			_ = store.Append(ctx, "assistant", "weather", msg("forecast?", "assistant"))
			_ = store.Append(ctx, "weather", "assistant", msg("wrong direction", "weather"))

			loaded, _ := store.Read(ctx, "assistant", "weather")
			if len(loaded) != 1 || loaded[0].Text != "forecast?" {
				t.Errorf("unexpected history: %+v", loaded)
			}

			if err := store.Clear(ctx, "assistant", "weather"); err != nil {
				t.Fatalf("Clear failed: %v", err)
			}
			loaded, _ = store.Read(ctx, "assistant", "weather")
			if len(loaded) != 0 {
				t.Errorf("expected cleared history, got %d messages", len(loaded))
			}
			other, _ := store.Read(ctx, "weather", "assistant")
			if len(other) != 1 {
				t.Errorf("clear touched another pair: %d messages", len(other))
			}
		})
	}
}

func TestStorePreservesOrigin(t *testing.T) {
	for name, store := range storeFactories(t, 5) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			created := time.Date(2024, 5, 1, 12, 0, 0, 123000000, time.UTC)
			m := msg("sunny", "weather")
			m.Origin = &model.ReplyKey{Text: "sunny", Sender: "weather", CreatedAt: created}
			m.Commands = []model.Command{{Name: "notify", Payload: map[string]any{"level": "info"}}}

			if err := store.Append(ctx, "main", "assistant", m); err != nil {
				t.Fatalf("Append failed: %v", err)
			}
			loaded, err := store.Read(ctx, "main", "assistant")
			if err != nil {
				t.Fatalf("Read failed: %v", err)
			}
			if len(loaded) != 1 || loaded[0].Origin == nil {
				t.Fatalf("expected origin to survive, got %+v", loaded)
			}
			if !loaded[0].Origin.Matches(*m.Origin) {
				t.Errorf("origin mismatch: %+v", loaded[0].Origin)
			}
			if len(loaded[0].Commands) != 1 || loaded[0].Commands[0].Name != "notify" {
				t.Errorf("commands lost: %+v", loaded[0].Commands)
			}
		})
	}
}

func TestStoreReadReturnsCopy(t *testing.T) {
	store := NewMemoryStore(5)
	ctx := context.Background()
	_ = store.Append(ctx, "p", "c", msg("original", "p"))

	loaded, _ := store.Read(ctx, "p", "c")
	loaded[0].Text = "mutated"

	again, _ := store.Read(ctx, "p", "c")
	if again[0].Text != "original" {
		t.Errorf("store exposed internal slice: %q", again[0].Text)
	}
}

func TestOpenSqlitePersists(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "agents.db")
	ctx := context.Background()

	store, err := OpenSqlite(path, 5)
	if err != nil {
		t.Fatalf("OpenSqlite failed: %v", err)
	}
	if err := store.Append(ctx, "main", "assistant", msg("remember me", "user")); err != nil {
		t.Fatalf("Append failed: %v", err)
	}
	store.Close()

	reopened, err := OpenSqlite(path, 5)
	if err != nil {
		t.Fatalf("reopen failed: %v", err)
	}
	defer reopened.Close()

	loaded, err := reopened.Read(ctx, "main", "assistant")
	if err != nil {
		t.Fatalf("Read failed: %v", err)
	}
	if len(loaded) != 1 || loaded[0].Text != "remember me" {
		t.Errorf("unexpected history after reopen: %+v", loaded)
	}
}
