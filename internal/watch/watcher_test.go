package watch

import (
	"bytes"
	"context"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/erisprotocol/contracts-tokenfactory/internal/splitter"
	"github.com/erisprotocol/contracts-tokenfactory/kit/colorlog"
	"github.com/fsnotify/fsnotify"
)

// dropFile writes content next to path and renames it into place so the
// watcher never sees a partial document.
func dropFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		t.Fatal(err)
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
	if err := os.Rename(tmp, path); err != nil {
		t.Fatal(err)
	}
}

func waitFor(t *testing.T, path string) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if _, err := os.Stat(path); err == nil {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", path)
}

func startWatcher(t *testing.T, root string) (stop func()) {
	t.Helper()
	logger := colorlog.New("test", colorlog.Options{Output: io.Discard})
	s := splitter.New(splitter.Options{
		Exclusions: splitter.DefaultExclusions(),
		Progress:   &bytes.Buffer{},
		Logger:     logger,
	})
	w, err := New(s, Options{
		Root:       root,
		Exclusions: splitter.DefaultExclusions(),
		Debounce:   20 * time.Millisecond,
		Logger:     logger,
	})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()

	// Give Run time to register the initial watches.
	time.Sleep(50 * time.Millisecond)

	return func() {
		cancel()
		if err := <-done; err != nil {
			t.Errorf("Run() error = %v", err)
		}
		if err := w.Close(); err != nil {
			t.Errorf("Close() error = %v", err)
		}
	}
}

func TestWatcherSplitsNewDocuments(t *testing.T) {
	root := t.TempDir()
	if err := os.MkdirAll(filepath.Join(root, "contracts", "hub", "schema"), 0755); err != nil {
		t.Fatal(err)
	}
	stop := startWatcher(t, root)
	defer stop()

	src := filepath.Join(root, "contracts", "hub", "schema", "eris-hub.json")
	dropFile(t, src, `{"contract_name":"eris-hub","query":{"q":1}}`)

	out := filepath.Join(root, "contracts", "hub", "schema", "eris_hub_query.json")
	waitFor(t, out)

	data, err := os.ReadFile(out)
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != `{"q":1}` {
		t.Errorf("output = %s", data)
	}
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if _, err := os.Stat(src); os.IsNotExist(err) {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Error("consolidated document was not removed")
}

func TestWatcherNewDirectoriesAndExclusions(t *testing.T) {
	root := t.TempDir()
	stop := startWatcher(t, root)
	defer stop()

	excludedDoc := filepath.Join(root, "target", "schema", "stale.json")
	dropFile(t, excludedDoc, `{"contract_name":"stale","query":{}}`)

	doc := filepath.Join(root, "contracts", "arb-vault", "schema", "arb-vault.json")
	dropFile(t, doc, `{"contract_name":"arb-vault","execute":{}}`)
	waitFor(t, filepath.Join(root, "contracts", "arb-vault", "schema", "arb_vault_execute.json"))

	if _, err := os.Stat(excludedDoc); err != nil {
		t.Errorf("document in excluded directory was touched: %v", err)
	}
	if _, err := os.Stat(filepath.Join(root, "target", "schema", "stale_query.json")); err == nil {
		t.Error("document in excluded directory was split")
	}
}

func TestIsChmodOnly(t *testing.T) {
	tests := []struct {
		op   fsnotify.Op
		want bool
	}{
		{fsnotify.Chmod, true},
		{fsnotify.Chmod | fsnotify.Write, false},
		{fsnotify.Create, false},
	}
	for _, tt := range tests {
		if got := isChmodOnly(fsnotify.Event{Name: "a.json", Op: tt.op}); got != tt.want {
			t.Errorf("isChmodOnly(%v) = %v, want %v", tt.op, got, tt.want)
		}
	}
}
