package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/dmitrijs2005/shelfsync/internal/wire"
	"github.com/gofrs/flock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type harness struct {
	t       *testing.T
	dataDir string
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	return &harness{t: t, dataDir: t.TempDir()}
}

// run executes one command line with stdin and returns its stdout.
func (h *harness) run(stdin string, args ...string) (string, error) {
	h.t.Helper()
	cmd := NewRootCommand("test")
	var out, errOut bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	cmd.SetIn(strings.NewReader(stdin))
	cmd.SetArgs(append([]string{"--data-dir", h.dataDir, "--log-level", "error"}, args...))
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func (h *harness) mustRun(stdin string, args ...string) string {
	h.t.Helper()
	out, err := h.run(stdin, args...)
	require.NoError(h.t, err, out)
	return out
}

func (h *harness) writeBook(name, content string) string {
	h.t.Helper()
	path := filepath.Join(h.t.TempDir(), name)
	require.NoError(h.t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestConfigure_StoresAndReports(t *testing.T) {
	h := newHarness(t)

	out := h.mustRun("hunter2\n", "configure", "--server", "https://sync.example", "--user", "reader", "--frequency", "15")
	assert.Contains(t, out, "Configured https://sync.example as reader, sync frequency every 15 min.")

	status := h.mustRun("", "status")
	assert.Contains(t, status, "Server:    https://sync.example")
	assert.Contains(t, status, "User:      reader")
	assert.Contains(t, status, "Frequency: every 15 min")

	// unset flags keep the stored values, --keep-password skips the prompt
	out = h.mustRun("", "configure", "--frequency", "never", "--keep-password")
	assert.Contains(t, out, "Configured https://sync.example as reader, sync frequency never.")
	assert.NotContains(t, out, "No password stored")
}

func TestConfigure_RequiresServerAndUser(t *testing.T) {
	h := newHarness(t)
	_, err := h.run("pw\n", "configure", "--server", "https://sync.example")
	require.Error(t, err)
}

func TestConfigure_InvalidFrequency(t *testing.T) {
	h := newHarness(t)
	_, err := h.run("pw\n", "configure", "--server", "s", "--user", "u", "--frequency", "often")
	require.Error(t, err)
}

func TestConfigure_Clear(t *testing.T) {
	h := newHarness(t)
	h.mustRun("pw\n", "configure", "--server", "https://sync.example", "--user", "reader")
	h.mustRun("", "configure", "--clear")
	assert.Contains(t, h.mustRun("", "status"), "(not configured)")
}

func TestImportBooksAndAnnotations(t *testing.T) {
	h := newHarness(t)
	path := h.writeBook("dune.epub", "spice must flow")

	out := h.mustRun("", "import", path, "--title", "Dune")
	assert.Contains(t, out, `Imported "Dune"`)

	list := h.mustRun("", "books")
	assert.Contains(t, list, "Dune")
	assert.Contains(t, list, path)

	fields := strings.Fields(strings.Split(list, "\n")[1])
	bookID := fields[0]

	h.mustRun("", "books", "progress", bookID, "epubcfi(/6/4)")
	assert.Contains(t, h.mustRun("", "books"), "epubcfi(/6/4)")

	out = h.mustRun("", "books", "annotate", bookID, "--table", "highlight", "--locator", "p1", "--text", "fear is the mind-killer")
	assert.Contains(t, out, "Added highlight 1.")
	anns := h.mustRun("", "books", "annotations", bookID, "--table", "highlight")
	assert.Contains(t, anns, "fear is the mind-killer")

	h.mustRun("", "books", "unannotate", bookID, "1", "--table", "highlight")
	assert.NotContains(t, h.mustRun("", "books", "annotations", bookID, "--table", "highlight"), "mind-killer")

	status := h.mustRun("", "status")
	assert.Contains(t, status, "Books:     1 (0 known to the server)")
	assert.Contains(t, status, "Deletes:   1 awaiting the server")

	h.mustRun("", "books", "rm", bookID)
	assert.Contains(t, h.mustRun("", "books"), "No books.")
}

func TestAnnotate_UnknownTable(t *testing.T) {
	h := newHarness(t)
	path := h.writeBook("a.epub", "a")
	h.mustRun("", "import", path, "--title", "A")
	_, err := h.run("", "books", "annotate", "whatever", "--table", "book_data", "--locator", "x")
	require.Error(t, err)
}

func TestSync_NotConfigured(t *testing.T) {
	h := newHarness(t)
	_, err := h.run("", "sync")
	require.ErrorIs(t, err, errNotConfigured)
}

func TestSync_InvalidTable(t *testing.T) {
	h := newHarness(t)
	_, err := h.run("", "sync", "--table", "chapters")
	require.Error(t, err)
}

func TestSync_QueueForDaemon(t *testing.T) {
	h := newHarness(t)
	assert.Contains(t, h.mustRun("", "sync", "--queue", "--table", "note"), "Sync queued.")
	assert.Contains(t, h.mustRun("", "status"), "Queued:    sync at")
}

func TestSync_RefusesWhileAnotherSyncRuns(t *testing.T) {
	h := newHarness(t)
	h.mustRun("pw\n", "configure", "--server", "https://sync.example", "--user", "reader")

	held := flock.New(filepath.Join(h.dataDir, "sync.lock"))
	locked, err := held.TryLock()
	require.NoError(t, err)
	require.True(t, locked)
	defer held.Unlock()

	_, err = h.run("", "sync")
	require.ErrorIs(t, err, errSyncInProgress)
}

func TestSync_UnreachableServer(t *testing.T) {
	h := newHarness(t)
	srv := httptest.NewServer(http.NotFoundHandler())
	srv.Close()

	h.mustRun("pw\n", "configure", "--server", srv.URL, "--user", "reader")
	_, err := h.run("", "--api-timeout", "1s", "sync")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "cannot reach")
}

// catalogueServer answers /login and /catalogue like a shelfsync server.
func catalogueServer(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("POST "+wire.PathLogin, func(w http.ResponseWriter, r *http.Request) {
		var req wire.LoginRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		resp := wire.LoginResponse{Response: wire.Response{OK: req.Password == "pw"}}
		if resp.OK {
			resp.Token = "tok"
			resp.ExpiresAt = time.Now().Add(time.Hour).UnixMilli()
		} else {
			resp.Error = wire.CodeUnauthorized
		}
		_ = json.NewEncoder(w).Encode(resp)
	})
	mux.HandleFunc("GET "+wire.PathCatalogue, func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer tok" {
			w.WriteHeader(http.StatusUnauthorized)
			_ = json.NewEncoder(w).Encode(wire.Response{Error: wire.CodeUnauthorized})
			return
		}
		_ = json.NewEncoder(w).Encode(wire.CatalogueResponse{
			Response: wire.Response{OK: true},
			Count:    2,
			Rows:     []wire.CatalogueEntry{{FileID: 7, FileName: "dune.epub"}, {FileID: 9, FileName: "emma.epub"}},
		})
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func TestCatalogue_ListsServerBooks(t *testing.T) {
	h := newHarness(t)
	srv := catalogueServer(t)
	h.mustRun("pw\n", "configure", "--server", srv.URL, "--user", "reader")

	out := h.mustRun("", "catalogue")
	assert.Contains(t, out, "dune.epub")
	assert.Contains(t, out, "emma.epub")

	assert.Contains(t, h.mustRun("", "status", "--check"), "Session:   connected")
}

func TestCatalogue_BadPassword(t *testing.T) {
	h := newHarness(t)
	srv := catalogueServer(t)
	h.mustRun("wrong\n", "configure", "--server", srv.URL, "--user", "reader")

	_, err := h.run("", "catalogue")
	require.Error(t, err)
	assert.Contains(t, h.mustRun("", "status", "--check"), "Session:   not syncing")
}

func TestDownload_InvalidFileID(t *testing.T) {
	h := newHarness(t)
	_, err := h.run("", "download", "abc")
	require.Error(t, err)
}
