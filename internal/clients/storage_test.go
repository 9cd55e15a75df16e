package clients

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"paytrack/internal/domain"
)

func TestGetURL_AbsoluteAndRelative(t *testing.T) {
	tmpDir := t.TempDir()

	c, err := NewLocalStorage(tmpDir, "/files", "http://example.com:8060/")
	if err != nil {
		t.Fatalf("failed create storage: %v", err)
	}

	got := c.GetURL("a.xlsx")
	want := "http://example.com:8060/files/a.xlsx"
	if got != want {
		t.Fatalf("expected %s; got %s", want, got)
	}

	c2, _ := NewLocalStorage(tmpDir, "files", "")
	if got2 := c2.GetURL("b.xlsx"); got2 != "/files/b.xlsx" {
		t.Fatalf("expected /files/b.xlsx; got %s", got2)
	}
}

func TestSaveAndServeFileHandler(t *testing.T) {
	tmpDir := t.TempDir()
	c, err := NewLocalStorage(tmpDir, "/files", "")
	if err != nil {
		t.Fatalf("storage init: %v", err)
	}

	content := []byte("hello world")
	saved, err := c.Save(context.Background(), "payments-1.xlsx", content)
	if err != nil {
		t.Fatalf("save: %v", err)
	}

	h := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path, err := c.Path(strings.TrimPrefix(r.URL.Path, "/files/"))
		if err != nil {
			http.NotFound(w, r)
			return
		}
		http.ServeFile(w, r, path)
	})

	ts := httptest.NewServer(h)
	defer ts.Close()

	resp, err := http.Get(ts.URL + c.GetURL(saved))
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("bad status: %d", resp.StatusCode)
	}

	body, _ := io.ReadAll(resp.Body)
	if string(body) != string(content) {
		t.Fatalf("content mismatch: %s", string(body))
	}
}

func TestPutOpenRemove(t *testing.T) {
	c, err := NewLocalStorage(t.TempDir(), "", "")
	if err != nil {
		t.Fatalf("storage init: %v", err)
	}
	ctx := context.Background()

	key, err := c.Put(ctx, "evidence/p-1/receipt.pdf", []byte("%PDF-1.4"), "application/pdf")
	if err != nil {
		t.Fatalf("put: %v", err)
	}

	rc, err := c.Open(ctx, key)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	data, _ := io.ReadAll(rc)
	rc.Close()
	if string(data) != "%PDF-1.4" {
		t.Fatalf("unexpected content %q", data)
	}

	if err := c.Remove(ctx, key); err != nil {
		t.Fatalf("remove: %v", err)
	}
	if err := c.Remove(ctx, key); err != nil {
		t.Fatalf("second remove should be a no-op, got %v", err)
	}

	if _, err := c.Open(ctx, key); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestPut_RejectsEscapingKeys(t *testing.T) {
	c, _ := NewLocalStorage(t.TempDir(), "", "")

	for _, key := range []string{"", "../outside.txt", "a/../../outside.txt", "/etc/passwd"} {
		if _, err := c.Put(context.Background(), key, []byte("x"), ""); !errors.Is(err, ErrInvalidKey) {
			t.Errorf("key %q: expected ErrInvalidKey, got %v", key, err)
		}
	}

	if _, err := c.Path("../x"); !errors.Is(err, ErrInvalidKey) {
		t.Errorf("expected ErrInvalidKey for traversal in Path, got %v", err)
	}
}

func TestCleanupOlderThan(t *testing.T) {
	dir := t.TempDir()
	c, _ := NewLocalStorage(dir, "", "")

	oldName, _ := c.Save(context.Background(), "old.xlsx", []byte("old"))
	newName, _ := c.Save(context.Background(), "new.xlsx", []byte("new"))

	past := time.Now().Add(-2 * time.Hour)
	if err := os.Chtimes(filepath.Join(dir, oldName), past, past); err != nil {
		t.Fatalf("chtimes: %v", err)
	}

	if err := c.CleanupOlderThan(time.Hour); err != nil {
		t.Fatalf("cleanup: %v", err)
	}

	if _, err := os.Stat(filepath.Join(dir, oldName)); !os.IsNotExist(err) {
		t.Fatalf("old file should be removed, stat err=%v", err)
	}
	if _, err := os.Stat(filepath.Join(dir, newName)); err != nil {
		t.Fatalf("new file should remain: %v", err)
	}
}
