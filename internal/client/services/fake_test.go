package services

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/dmitrijs2005/shelfsync/internal/client/client"
	"github.com/dmitrijs2005/shelfsync/internal/client/models"
	"github.com/dmitrijs2005/shelfsync/internal/client/store"
	"github.com/dmitrijs2005/shelfsync/internal/client/vault"
	"github.com/dmitrijs2005/shelfsync/internal/cryptox"
	"github.com/dmitrijs2005/shelfsync/internal/logging"
	"github.com/dmitrijs2005/shelfsync/internal/wire"
	"github.com/stretchr/testify/require"
)

type rowKey struct {
	fileID int64
	id     int64
}

type fakeRow struct {
	row wire.Row
	seq int64
}

type fakeFile struct {
	sha     string
	size    int64
	name    string
	content []byte
}

// fakeRemote is an in-memory server implementing client.Client.
type fakeRemote struct {
	mu       sync.Mutex
	seq      int64
	rows     map[wire.Table]map[rowKey]*fakeRow
	files    map[int64]fakeFile
	nextFile int64
	calls    map[string]int

	loginDelay   time.Duration
	loginErr     error
	getSinceErr  error
	resolveErr   error
	beforeUpdate func()
}

func newFakeRemote() *fakeRemote {
	return &fakeRemote{
		rows:  map[wire.Table]map[rowKey]*fakeRow{},
		files: map[int64]fakeFile{},
		calls: map[string]int{},
	}
}

func (f *fakeRemote) count(name string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[name]
}

// mutations counts calls that change server state.
func (f *fakeRemote) mutations() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls["update"] + f.calls["delete"] + f.calls["upload"]
}

func (f *fakeRemote) put(table wire.Table, row wire.Row) {
	if f.rows[table] == nil {
		f.rows[table] = map[rowKey]*fakeRow{}
	}
	f.seq++
	f.rows[table][rowKey{row.FileID, row.ID}] = &fakeRow{row: row, seq: f.seq}
}

// set stores a row as if another device had pushed it.
func (f *fakeRemote) set(table wire.Table, row wire.Row) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.put(table, row)
}

func (f *fakeRemote) row(table wire.Table, fileID, id int64) (wire.Row, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	r, ok := f.rows[table][rowKey{fileID, id}]
	if !ok {
		return wire.Row{}, false
	}
	return r.row, true
}

func (f *fakeRemote) Login(ctx context.Context, req wire.LoginRequest) (*wire.LoginResponse, error) {
	f.mu.Lock()
	f.calls["login"]++
	delay, err := f.loginDelay, f.loginErr
	f.mu.Unlock()
	if delay > 0 {
		time.Sleep(delay)
	}
	if err != nil {
		return nil, err
	}
	return &wire.LoginResponse{
		Response:  wire.Response{OK: true},
		Token:     "token-" + req.Username,
		ExpiresAt: time.Now().Add(time.Hour).UnixMilli(),
	}, nil
}

func (f *fakeRemote) Ping(ctx context.Context, token string) error { return nil }

func (f *fakeRemote) Get(ctx context.Context, req wire.GetRequest) ([]wire.Row, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if r, ok := f.rows[req.Table][rowKey{req.FileID, req.ID}]; ok {
		return []wire.Row{r.row}, nil
	}
	return nil, nil
}

func (f *fakeRemote) GetSince(ctx context.Context, req wire.GetSinceRequest) (*wire.GetSinceResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls["getSince"]++
	if f.getSinceErr != nil {
		return nil, f.getSinceErr
	}
	var all []*fakeRow
	for _, r := range f.rows[req.Table] {
		if r.seq > req.Since {
			all = append(all, r)
		}
	}
	sort.Slice(all, func(i, j int) bool { return all[i].seq < all[j].seq })
	if len(all) > req.Limit {
		all = all[:req.Limit]
	}
	resp := &wire.GetSinceResponse{Response: wire.Response{OK: true}, NextSince: req.Since}
	for _, r := range all {
		resp.Rows = append(resp.Rows, r.row)
		resp.NextSince = r.seq
	}
	return resp, nil
}

func (f *fakeRemote) Update(ctx context.Context, req wire.UpdateRequest) (int64, error) {
	f.mu.Lock()
	hook := f.beforeUpdate
	f.beforeUpdate = nil
	f.mu.Unlock()
	if hook != nil {
		hook()
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls["update"]++
	k := rowKey{req.Row.FileID, req.Row.ID}
	var version int64
	if cur, ok := f.rows[req.Table][k]; ok {
		version = max(cur.row.UpdatedAt, cur.row.DeletedAt)
		if version > req.Row.UpdatedAt && !req.Force {
			return 0, &client.ConflictError{ServerUpdatedAt: cur.row.UpdatedAt}
		}
	}
	row := req.Row
	row.DeletedAt = 0
	row.UpdatedAt = max(time.Now().UnixMilli(), version+1)
	f.put(req.Table, row)
	return row.UpdatedAt, nil
}

func (f *fakeRemote) Delete(ctx context.Context, req wire.DeleteRequest) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls["delete"]++
	at := f.softDelete(req.Table, rowKey{req.FileID, req.ID})
	if req.Table == wire.TableBookData {
		for _, t := range wire.AnnotationTables {
			for k := range f.rows[t] {
				if k.fileID == req.FileID {
					f.softDelete(t, k)
				}
			}
		}
	}
	return at, nil
}

func (f *fakeRemote) softDelete(table wire.Table, k rowKey) int64 {
	row := wire.Row{FileID: k.fileID, ID: k.id}
	var version int64
	if cur, ok := f.rows[table][k]; ok {
		row = cur.row
		version = max(cur.row.UpdatedAt, cur.row.DeletedAt)
	}
	row.DeletedAt = max(time.Now().UnixMilli(), version+1)
	f.put(table, row)
	return row.DeletedAt
}

// remoteDelete deletes a row as if another device had.
func (f *fakeRemote) remoteDelete(table wire.Table, fileID, id int64) {
	_, _ = f.Delete(context.Background(), wire.DeleteRequest{Table: table, FileID: fileID, ID: id})
	f.mu.Lock()
	f.calls["delete"]--
	f.mu.Unlock()
}

func (f *fakeRemote) Resolve(ctx context.Context, sha string, size int64) (int64, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls["resolve"]++
	if f.resolveErr != nil {
		return 0, false, f.resolveErr
	}
	for id, file := range f.files {
		if file.sha == sha && file.size == size {
			return id, true, nil
		}
	}
	return 0, false, nil
}

func (f *fakeRemote) UploadBook(ctx context.Context, u client.Upload) (*wire.UploadResponse, error) {
	content, err := os.ReadFile(u.Path)
	if err != nil {
		return nil, err
	}
	sha, size, err := cryptox.Checksum(bytes.NewReader(content))
	if err != nil {
		return nil, err
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls["upload"]++
	for id, file := range f.files {
		if file.sha == sha && file.size == size {
			return &wire.UploadResponse{Response: wire.Response{OK: true}, FileID: id, Size: size, SHA256: sha, FileName: file.name}, nil
		}
	}
	f.nextFile++
	f.files[f.nextFile] = fakeFile{sha: sha, size: size, name: u.FileName, content: content}
	return &wire.UploadResponse{Response: wire.Response{OK: true}, FileID: f.nextFile, Size: size, SHA256: sha, FileName: u.FileName}, nil
}

func (f *fakeRemote) DownloadBook(ctx context.Context, fileID int64, dest string) (*client.Download, error) {
	f.mu.Lock()
	f.calls["download"]++
	file, ok := f.files[fileID]
	f.mu.Unlock()
	if !ok {
		return nil, client.ErrRejected
	}
	if err := os.WriteFile(dest, file.content, 0o600); err != nil {
		return nil, err
	}
	return &client.Download{FileID: fileID, FileName: file.name, SHA256: file.sha, Size: file.size, Path: dest}, nil
}

func (f *fakeRemote) Catalogue(ctx context.Context) ([]wire.CatalogueEntry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []wire.CatalogueEntry
	for id, file := range f.files {
		out = append(out, wire.CatalogueEntry{FileID: id, FileName: file.name})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].FileID < out[j].FileID })
	return out, nil
}

func (f *fakeRemote) DeleteCatalogue(ctx context.Context, fileID int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.files, fileID)
	return nil
}

// device is one client installation talking to a fakeRemote.
type device struct {
	store    *store.Store
	library  *Library
	settings *Settings
	session  AuthSession
	resolver *IdentityResolver
	sync     *Reconciler
	dir      string
}

func testVault(t *testing.T) *vault.Vault {
	t.Helper()
	v, err := vault.New(bytes.Repeat([]byte{7}, cryptox.KeySize))
	require.NoError(t, err)
	return v
}

func testConfig(t *testing.T, v Sealer) models.ServerConfig {
	t.Helper()
	ct, iv, err := v.Seal([]byte("secret"))
	require.NoError(t, err)
	return models.ServerConfig{
		Server:             "https://shelf.example",
		User:               "ann",
		PasswordCiphertext: ct,
		PasswordIV:         iv,
		Frequency:          models.Every(15),
	}
}

func openTestStore(t *testing.T) *store.Store {
	t.Helper()
	st, err := store.Open(context.Background(), ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })
	return st
}

func newDevice(t *testing.T, remote *fakeRemote, opts ReconcilerOptions) *device {
	t.Helper()
	st := openTestStore(t)
	v := testVault(t)
	log := logging.NewNopLogger()
	settings := NewSettings(st, v)
	session := NewSession(testConfig(t, v), func(string) client.Client { return remote }, v, settings, log, SessionOptions{Device: "test"})
	resolver := NewIdentityResolver(st, log)
	return &device{
		store:    st,
		library:  NewLibrary(st),
		settings: settings,
		session:  session,
		resolver: resolver,
		sync:     NewReconciler(st, session, resolver, log, opts),
		dir:      t.TempDir(),
	}
}

// writeBook creates a book file with the given content in the device dir.
func (d *device) writeBook(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(d.dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func (d *device) importBook(t *testing.T, name, content, title string) *models.Book {
	t.Helper()
	b, err := d.library.ImportBook(context.Background(), d.writeBook(t, name, content), BookMeta{Title: title})
	require.NoError(t, err)
	return b
}

// markSynced flags an annotation as acknowledged by the server.
func (d *device) markSynced(t *testing.T, table wire.Table, bookID string, localID int64) {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, d.store.UpdateQuiet(ctx, func(ctx context.Context, tx *store.Tx) error {
		a, err := tx.Annotations(table).Get(ctx, bookID, localID)
		if err != nil {
			return err
		}
		a.Synced = true
		return tx.Annotations(table).Upsert(ctx, *a)
	}))
}

func (d *device) syncAll(t *testing.T) []Result {
	t.Helper()
	res, err := d.sync.SyncAll(context.Background())
	require.NoError(t, err)
	return res
}
