package httpapi

import (
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strconv"

	"github.com/dmitrijs2005/shelfsync/internal/common"
	"github.com/dmitrijs2005/shelfsync/internal/server/services"
	"github.com/dmitrijs2005/shelfsync/internal/wire"
)

// multipartOverhead covers the form fields and part headers around the file.
const multipartOverhead = 64 << 10

func pathFileID(r *http.Request) (int64, error) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("%w: invalid file id %q", common.ErrorBadRequest, r.PathValue("id"))
	}
	return id, nil
}

// handleUpload streams the multipart body. The metadata fields must precede
// the file part so the content can go straight to the blob store.
func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	if s.opts.MaxUploadBytes > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, s.opts.MaxUploadBytes+multipartOverhead)
	}
	mr, err := r.MultipartReader()
	if err != nil {
		s.fail(w, r, fmt.Errorf("%w: %v", common.ErrorBadRequest, err))
		return
	}

	fields := map[string]string{}
	for {
		part, err := mr.NextPart()
		if err == io.EOF {
			s.fail(w, r, fmt.Errorf("%w: missing %s part", common.ErrorBadRequest, wire.FormFile))
			return
		}
		if err != nil {
			s.fail(w, r, fmt.Errorf("%w: %v", common.ErrorBadRequest, err))
			return
		}

		if part.FormName() != wire.FormFile {
			v, err := io.ReadAll(io.LimitReader(part, 4<<10))
			_ = part.Close()
			if err != nil {
				s.fail(w, r, fmt.Errorf("%w: %v", common.ErrorBadRequest, err))
				return
			}
			fields[part.FormName()] = string(v)
			continue
		}

		s.storeUpload(w, r, fields, part)
		_ = part.Close()
		return
	}
}

func (s *Server) storeUpload(w http.ResponseWriter, r *http.Request, fields map[string]string, file *multipart.Part) {
	if id := fields[wire.FormFileID]; id != "" && id != "0" {
		s.fail(w, r, fmt.Errorf("%w: %s must be 0", common.ErrorBadRequest, wire.FormFileID))
		return
	}
	size, err := strconv.ParseInt(fields[wire.FormSize], 10, 64)
	if err != nil || size < 0 {
		s.fail(w, r, fmt.Errorf("%w: invalid %s", common.ErrorBadRequest, wire.FormSize))
		return
	}
	if s.opts.MaxUploadBytes > 0 && size > s.opts.MaxUploadBytes {
		s.fail(w, r, fmt.Errorf("%w: file larger than %d bytes", common.ErrorBadRequest, s.opts.MaxUploadBytes))
		return
	}

	name := fields[wire.FormFileName]
	if name == "" {
		name = file.FileName()
	}

	book, err := s.books.Upload(r.Context(), userID(r.Context()), services.Upload{
		FileName: name,
		SHA256:   fields[wire.FormSHA256],
		Size:     size,
		Body:     file,
	})
	// A deduplicated upload leaves the body unread; drain it so the client
	// finishes sending before it reads the reply.
	_, _ = io.Copy(io.Discard, file)
	if err != nil {
		s.fail(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, wire.UploadResponse{
		Response: ok(),
		FileID:   book.ID,
		Size:     book.Size,
		SHA256:   book.SHA256,
		FileName: book.FileName,
	})
}

func (s *Server) handleDownload(w http.ResponseWriter, r *http.Request) {
	id, err := pathFileID(r)
	if err != nil {
		s.fail(w, r, err)
		return
	}

	book, rc, err := s.books.Open(r.Context(), userID(r.Context()), id)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	defer rc.Close()

	h := w.Header()
	h.Set("Content-Type", "application/octet-stream")
	h.Set("Content-Length", strconv.FormatInt(book.Size, 10))
	h.Set(wire.HeaderChecksum, book.SHA256)
	h.Set(wire.HeaderFilename, book.FileName)
	w.WriteHeader(http.StatusOK)

	if _, err := io.Copy(w, rc); err != nil {
		s.logger.Warn(r.Context(), "download interrupted", "fileId", id, "error", err)
	}
}

func (s *Server) handleCatalogue(w http.ResponseWriter, r *http.Request) {
	books, err := s.books.Catalogue(r.Context(), userID(r.Context()))
	if err != nil {
		s.fail(w, r, err)
		return
	}

	rows := make([]wire.CatalogueEntry, 0, len(books))
	for _, b := range books {
		rows = append(rows, wire.CatalogueEntry{FileID: b.ID, FileName: b.FileName})
	}
	writeJSON(w, http.StatusOK, wire.CatalogueResponse{Response: ok(), Count: len(rows), Rows: rows})
}

func (s *Server) handleCatalogueDelete(w http.ResponseWriter, r *http.Request) {
	id, err := pathFileID(r)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if err := s.books.DeleteBook(r.Context(), userID(r.Context()), id); err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, ok())
}
