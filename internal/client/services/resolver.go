package services

import (
	"context"
	"errors"
	"path/filepath"

	"github.com/dmitrijs2005/shelfsync/internal/client/client"
	"github.com/dmitrijs2005/shelfsync/internal/client/store"
	"github.com/dmitrijs2005/shelfsync/internal/common"
	"github.com/dmitrijs2005/shelfsync/internal/filex"
	"github.com/dmitrijs2005/shelfsync/internal/logging"
	"golang.org/x/sync/singleflight"
)

// Resolution is the outcome of an identity lookup.
type Resolution int

const (
	// Resolved: a fileId is known and recorded in the identity map.
	Resolved Resolution = iota
	// Unknown: the server has no record of this content and none was made.
	Unknown
	// Failed: a transient error; try again on a later pass.
	Failed
)

// ResolveRequest describes the local book to map onto a server fileId.
type ResolveRequest struct {
	BookID   string
	SHA256   string
	Filesize int64
	// PubFile and FileName are used when uploading.
	PubFile  string
	FileName string
	// Upload allows creating a server record when none matches.
	Upload bool
}

// IdentityResolver maps local bookIds to server fileIds.
type IdentityResolver struct {
	store *store.Store
	log   logging.Logger
	group singleflight.Group
}

func NewIdentityResolver(st *store.Store, log logging.Logger) *IdentityResolver {
	return &IdentityResolver{store: st, log: log.With("component", "resolver")}
}

type resolved struct {
	fileID int64
	res    Resolution
}

// Resolve looks the book up in the identity map, then by content on the
// server, and finally uploads it if req.Upload is set. Every new mapping is
// stored before Resolve returns. Concurrent calls for one bookId share a
// single lookup. wc must carry the access token in ctx.
func (r *IdentityResolver) Resolve(ctx context.Context, wc client.Client, req ResolveRequest) (int64, Resolution) {
	key := req.BookID
	if req.Upload {
		key += "+upload"
	}
	v, _, _ := r.group.Do(key, func() (any, error) {
		id, res := r.resolve(ctx, wc, req)
		return resolved{fileID: id, res: res}, nil
	})
	out := v.(resolved)
	return out.fileID, out.res
}

// Mapped returns the recorded fileId of bookID without any network call.
func (r *IdentityResolver) Mapped(ctx context.Context, bookID string) (int64, bool, error) {
	id, err := r.store.Read().FileMap.FileIDForBook(ctx, bookID)
	if errors.Is(err, common.ErrorNotFound) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}
	return id, true, nil
}

func (r *IdentityResolver) resolve(ctx context.Context, wc client.Client, req ResolveRequest) (int64, Resolution) {
	id, ok, err := r.Mapped(ctx, req.BookID)
	if err != nil {
		r.log.Error(ctx, "file map lookup failed", "book_id", req.BookID, "error", err)
		return 0, Failed
	}
	if ok {
		return id, Resolved
	}

	if req.SHA256 == "" || req.Filesize <= 0 {
		return 0, Unknown
	}

	fileID, exists, err := wc.Resolve(ctx, req.SHA256, req.Filesize)
	if err != nil {
		r.log.Warn(ctx, "resolve failed", "book_id", req.BookID, "error", err)
		return 0, Failed
	}

	if !exists {
		if !req.Upload || !filex.Exists(req.PubFile) {
			return 0, Unknown
		}
		name := req.FileName
		if name == "" {
			name = filepath.Base(req.PubFile)
		}
		up, err := wc.UploadBook(ctx, client.Upload{Path: req.PubFile, SHA256: req.SHA256, Size: req.Filesize, FileName: name})
		if err != nil {
			r.log.Warn(ctx, "upload failed", "book_id", req.BookID, "error", err)
			return 0, Failed
		}
		fileID = up.FileID
		r.log.Info(ctx, "uploaded book", "book_id", req.BookID, "file_id", fileID)
	}

	if err := r.record(ctx, fileID, req.BookID); err != nil {
		r.log.Error(ctx, "cannot record mapping", "book_id", req.BookID, "file_id", fileID, "error", err)
		return 0, Failed
	}
	return fileID, Resolved
}

func (r *IdentityResolver) record(ctx context.Context, fileID int64, bookID string) error {
	return r.store.UpdateQuiet(ctx, func(ctx context.Context, tx *store.Tx) error {
		return tx.FileMap.Put(ctx, fileID, bookID)
	})
}
