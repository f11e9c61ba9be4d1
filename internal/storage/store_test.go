package storage

import (
	"bytes"
	"context"
	"path/filepath"
	"reflect"
	"testing"

	logx "totdbot/pkg/logx"
)

func openDrivers(t *testing.T) map[string]Store {
	t.Helper()
	dir := t.TempDir()

	fileSt, err := Open(Config{Driver: "file", Path: filepath.Join(dir, "state.json")}, logx.Nop())
	if err != nil {
		t.Fatalf("open file: %v", err)
	}
	sqlSt, err := Open(Config{Driver: "sqlite", Path: filepath.Join(dir, "state.db")}, logx.Nop())
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	stores := map[string]Store{
		"memory": NewMemory(),
		"file":   fileSt,
		"sqlite": sqlSt,
	}
	t.Cleanup(func() {
		for _, st := range stores {
			_ = st.Close()
		}
	})
	return stores
}

func TestStoreContract(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	for name, st := range openDrivers(t) {
		st := st
		t.Run(name, func(t *testing.T) {
			if _, ok, err := st.Get(ctx, "missing"); err != nil || ok {
				t.Fatalf("Get(missing) = ok %v err %v", ok, err)
			}
			if err := st.Set(ctx, "sub/1", []byte("a")); err != nil {
				t.Fatalf("Set: %v", err)
			}
			if err := st.Set(ctx, "sub/2", []byte("b")); err != nil {
				t.Fatalf("Set: %v", err)
			}
			if err := st.Set(ctx, "rating/current", []byte("c")); err != nil {
				t.Fatalf("Set: %v", err)
			}
			if err := st.Set(ctx, "sub/1", []byte("a2")); err != nil {
				t.Fatalf("Set overwrite: %v", err)
			}

			v, ok, err := st.Get(ctx, "sub/1")
			if err != nil || !ok || !bytes.Equal(v, []byte("a2")) {
				t.Fatalf("Get(sub/1) = %q ok %v err %v", v, ok, err)
			}

			keys, err := st.Keys(ctx, "sub/")
			if err != nil {
				t.Fatalf("Keys: %v", err)
			}
			if want := []string{"sub/1", "sub/2"}; !reflect.DeepEqual(keys, want) {
				t.Fatalf("Keys(sub/) = %v, want %v", keys, want)
			}

			if err := st.Delete(ctx, "sub/1"); err != nil {
				t.Fatalf("Delete: %v", err)
			}
			if err := st.Delete(ctx, "sub/1"); err != nil {
				t.Fatalf("Delete twice: %v", err)
			}
			if _, ok, _ := st.Get(ctx, "sub/1"); ok {
				t.Fatal("sub/1 still present after Delete")
			}
			if err := st.Set(ctx, "", []byte("x")); err == nil {
				t.Fatal("Set with empty key succeeded")
			}
		})
	}
}

func TestFileStoreSurvivesReopen(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "state.json")

	st, err := Open(Config{Driver: "file", Path: path}, logx.Nop())
	if err != nil {
		t.Fatal(err)
	}
	fs := st.(*fileStore)
	fs.compactEvery = 3 // force a compaction mid-run

	for i, k := range []string{"a", "b", "c", "d"} {
		if err := st.Set(ctx, k, []byte{byte(i)}); err != nil {
			t.Fatal(err)
		}
	}
	if err := st.Delete(ctx, "b"); err != nil {
		t.Fatal(err)
	}
	// Reopen without Close to exercise snapshot + journal replay.
	st2, err := Open(Config{Driver: "file", Path: path}, logx.Nop())
	if err != nil {
		t.Fatal(err)
	}
	defer st2.Close()
	keys, _ := st2.Keys(ctx, "")
	if want := []string{"a", "c", "d"}; !reflect.DeepEqual(keys, want) {
		t.Fatalf("keys after reopen = %v, want %v", keys, want)
	}
	_ = st.Close()
}

func TestOpenUnknownDriver(t *testing.T) {
	t.Parallel()
	if _, err := Open(Config{Driver: "etcd"}, logx.Nop()); err == nil {
		t.Fatal("Open(etcd) succeeded")
	}
	if _, err := Open(Config{Driver: "none"}, logx.Nop()); err != ErrDisabled {
		t.Fatalf("Open(none) err = %v, want ErrDisabled", err)
	}
}
