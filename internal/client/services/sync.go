package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/dmitrijs2005/shelfsync/internal/client/client"
	"github.com/dmitrijs2005/shelfsync/internal/client/models"
	"github.com/dmitrijs2005/shelfsync/internal/client/reconcile"
	"github.com/dmitrijs2005/shelfsync/internal/client/store"
	"github.com/dmitrijs2005/shelfsync/internal/common"
	"github.com/dmitrijs2005/shelfsync/internal/logging"
	"github.com/dmitrijs2005/shelfsync/internal/wire"
)

// DefaultPageLimit is the getSince page size.
const DefaultPageLimit = 500

// ErrNotConnected is returned when no token can be obtained.
var ErrNotConnected = errors.New("sync disabled: not connected")

type ReconcilerOptions struct {
	PageLimit int
	// LibraryDir receives books downloaded for unmapped server rows.
	LibraryDir string
	// DownloadMissing pulls book files the device has never seen.
	DownloadMissing bool
}

// Result summarizes one table pass.
type Result struct {
	Table     wire.Table
	Pushed    int
	Pulled    int
	Deleted   int
	Purged    int
	Reclaimed int
	// Moved counts unsynced annotations given a new id because another
	// device already used theirs.
	Moved     int
	Conflicts int
	Skipped   int
	// OK is false when some record was left for a later pass because of an
	// error. Conflicts do not clear it.
	OK bool
}

func (r Result) String() string {
	return fmt.Sprintf("%s: pushed=%d pulled=%d deleted=%d purged=%d reclaimed=%d moved=%d conflicts=%d skipped=%d ok=%t",
		r.Table, r.Pushed, r.Pulled, r.Deleted, r.Purged, r.Reclaimed, r.Moved, r.Conflicts, r.Skipped, r.OK)
}

// Reconciler synchronizes tables between the local store and the server.
// Its own writes use UpdateQuiet so they never schedule another sync.
type Reconciler struct {
	store    *store.Store
	session  AuthSession
	resolver *IdentityResolver
	log      logging.Logger
	opts     ReconcilerOptions
}

func NewReconciler(st *store.Store, session AuthSession, resolver *IdentityResolver, log logging.Logger, opts ReconcilerOptions) *Reconciler {
	if opts.PageLimit <= 0 {
		opts.PageLimit = DefaultPageLimit
	}
	return &Reconciler{
		store:    st,
		session:  session,
		resolver: resolver,
		log:      log.With("component", "reconciler"),
		opts:     opts,
	}
}

// SyncTables runs the given tables in sync order, stopping after a table
// that could not be fetched.
func (r *Reconciler) SyncTables(ctx context.Context, tables []wire.Table) ([]Result, error) {
	var out []Result
	for _, t := range wire.Ordered(tables) {
		res, err := r.SyncTable(ctx, t)
		if err != nil {
			return out, err
		}
		out = append(out, res)
	}
	return out, nil
}

// SyncAll runs every table.
func (r *Reconciler) SyncAll(ctx context.Context) ([]Result, error) {
	return r.SyncTables(ctx, wire.SyncOrder)
}

// SyncTable performs one full pass over table.
func (r *Reconciler) SyncTable(ctx context.Context, table wire.Table) (Result, error) {
	res := Result{Table: table, OK: true}
	if !table.Valid() {
		return res, fmt.Errorf("%w: %s", common.ErrorInvalidTable, table)
	}

	token, ok := r.session.GetToken(ctx)
	wc := r.session.Client()
	if !ok || wc == nil {
		return res, ErrNotConnected
	}
	ctx = client.WithAccessToken(ctx, token)

	rows, err := r.fetchAll(ctx, wc, table)
	if err != nil {
		return res, r.fail(err)
	}

	var ts tableSync
	if table == wire.TableBookData {
		ts = &bookSync{r: r, wc: wc, res: &res, books: map[reconcile.Key]string{}, tombs: map[reconcile.Key]models.Tombstone{}}
	} else {
		ts = &annotationSync{r: r, wc: wc, table: table, res: &res, locals: map[reconcile.Key]localRef{}}
	}

	deletes, updates, err := ts.gather(ctx, rows)
	if err != nil {
		return res, r.fail(err)
	}

	server := make([]reconcile.ServerRow, 0, len(rows))
	byKey := make(map[reconcile.Key]wire.Row, len(rows))
	for _, row := range rows {
		k := keyOf(table, row)
		byKey[k] = row
		server = append(server, reconcile.ServerRow{Key: k, UpdatedAt: row.UpdatedAt, DeletedAt: row.DeletedAt})
	}

	plan := reconcile.Plan(reconcile.Build(server, deletes, updates))
	for _, d := range plan {
		if err := r.apply(ctx, ts, d, byKey[d.Key], &res); err != nil {
			if errors.Is(err, client.ErrUnauthorized) {
				res.OK = false
				return res, r.fail(err)
			}
			r.log.Warn(ctx, "record left for next pass", "table", table, "file_id", d.Key.FileID,
				"id", d.Key.ID, "action", d.Action.String(), "error", err)
			res.Skipped++
			res.OK = false
		}
	}
	return res, nil
}

func (r *Reconciler) apply(ctx context.Context, ts tableSync, d reconcile.Decision, row wire.Row, res *Result) error {
	switch d.Action {
	case reconcile.Push:
		err := ts.push(ctx, d.Key)
		var conflict *client.ConflictError
		if errors.As(err, &conflict) {
			r.log.Info(ctx, "push rejected, server row is newer", "file_id", d.Key.FileID, "id", d.Key.ID,
				"server_updated_at", conflict.ServerUpdatedAt)
			res.Conflicts++
			return nil
		}
		if err == nil {
			res.Pushed++
		}
		return err
	case reconcile.Pull:
		pulled, err := ts.pull(ctx, row)
		if err == nil {
			if pulled {
				res.Pulled++
			} else {
				res.Skipped++
			}
		}
		return err
	case reconcile.PushDelete:
		if err := ts.pushDelete(ctx, d.Key); err != nil {
			return err
		}
		res.Deleted++
		return nil
	case reconcile.ApplyDelete:
		if err := ts.applyDelete(ctx, d.Key); err != nil {
			return err
		}
		res.Deleted++
		return nil
	case reconcile.PurgeTombstone:
		if err := ts.purge(ctx, d.Key); err != nil {
			return err
		}
		res.Purged++
		return nil
	case reconcile.DiscardAndPull:
		pulled, err := ts.discardAndPull(ctx, d.Key, row)
		if err != nil {
			return err
		}
		res.Purged++
		if pulled {
			res.Pulled++
		}
		return nil
	}
	return nil
}

// fetchAll pages through getSince until a short page.
func (r *Reconciler) fetchAll(ctx context.Context, wc client.Client, table wire.Table) ([]wire.Row, error) {
	var (
		rows  []wire.Row
		since int64
	)
	for {
		page, err := wc.GetSince(ctx, wire.GetSinceRequest{Table: table, Since: since, Limit: r.opts.PageLimit})
		if err != nil {
			return nil, fmt.Errorf("getSince %s since %d: %w", table, since, err)
		}
		rows = append(rows, page.Rows...)
		if len(page.Rows) < r.opts.PageLimit {
			return rows, nil
		}
		if page.NextSince <= since {
			return nil, fmt.Errorf("getSince %s: watermark did not advance past %d", table, since)
		}
		since = page.NextSince
	}
}

func (r *Reconciler) fail(err error) error {
	if errors.Is(err, client.ErrUnauthorized) {
		r.session.Invalidate()
	}
	return err
}

func keyOf(table wire.Table, row wire.Row) reconcile.Key {
	if table == wire.TableBookData {
		return reconcile.Key{FileID: row.FileID}
	}
	return reconcile.Key{FileID: row.FileID, ID: row.ID}
}

// tableSync adapts one table shape to the shared decision procedure.
type tableSync interface {
	// gather collects local stamps. rows is the fetched server state.
	gather(ctx context.Context, rows []wire.Row) (deletes, updates []reconcile.Stamp, err error)
	push(ctx context.Context, k reconcile.Key) error
	// pull reports false when the row could not be placed locally.
	pull(ctx context.Context, row wire.Row) (bool, error)
	pushDelete(ctx context.Context, k reconcile.Key) error
	applyDelete(ctx context.Context, k reconcile.Key) error
	purge(ctx context.Context, k reconcile.Key) error
	// discardAndPull drops a stale tombstone and takes the server row.
	discardAndPull(ctx context.Context, k reconcile.Key, row wire.Row) (bool, error)
}
