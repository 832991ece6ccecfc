package dbopen

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	_ "modernc.org/sqlite"
)

func TestOpen_FileWithSchema(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "postlink.db")
	db, err := Open(path, WithMkdirAll(), WithSchema(`CREATE TABLE kv (k TEXT PRIMARY KEY, v TEXT)`))
	if err != nil {
		t.Fatal(err)
	}
	defer db.Close()

	var mode string
	if err := db.QueryRow("PRAGMA journal_mode").Scan(&mode); err != nil {
		t.Fatal(err)
	}
	if mode != "wal" {
		t.Errorf("journal_mode = %q, want wal", mode)
	}
	if _, err := Exec(context.Background(), db, `INSERT INTO kv VALUES ('a', 'b')`); err != nil {
		t.Fatal(err)
	}
}

func TestOpen_BadSchema(t *testing.T) {
	if _, err := Open(":memory:", WithSchema("NOT SQL")); err == nil {
		t.Fatal("expected error")
	}
}

func TestOpenMemory_SharedConnection(t *testing.T) {
	db := OpenMemory(t, WithSchema(`CREATE TABLE t (x INTEGER)`))
	if _, err := db.Exec(`INSERT INTO t VALUES (1)`); err != nil {
		t.Fatal(err)
	}
	var n int
	if err := db.QueryRow(`SELECT COUNT(*) FROM t`).Scan(&n); err != nil || n != 1 {
		t.Fatalf("count = %d, %v", n, err)
	}
}

func TestIsBusy(t *testing.T) {
	cases := map[string]bool{
		"database is locked (5) (SQLITE_BUSY)": true,
		"database table is locked":             true,
		"no such table: x":                     false,
	}
	for msg, want := range cases {
		if got := IsBusy(errors.New(msg)); got != want {
			t.Errorf("IsBusy(%q) = %v", msg, got)
		}
	}
	if IsBusy(nil) {
		t.Error("IsBusy(nil) = true")
	}
}
