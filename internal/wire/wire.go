package wire

import "encoding/json"

// Endpoint paths.
const (
	PathLogin           = "/login"
	PathRUOK            = "/ruOK/"
	PathGet             = "/get"
	PathGetSince        = "/getSince"
	PathUpdate          = "/update"
	PathDelete          = "/delete"
	PathResolve         = "/resolve"
	PathUploadBook      = "/uploadBook"
	PathBook            = "/book/"
	PathCatalogue       = "/catalogue"
	PathCatalogueDelete = "/catalogue/"
)

// Download headers.
const (
	HeaderChecksum = "X-Checksum-SHA256"
	HeaderFilename = "X-Filename"
)

// Error codes carried in Response.Error.
const (
	CodeConflict     = "conflict"
	CodeUnauthorized = "unauthorized"
	CodeNotFound     = "not_found"
	CodeBadRequest   = "bad_request"
	CodeInternal     = "internal"
	CodeIntegrity    = "integrity"
)

// Upload form fields.
const (
	FormFileID   = "fileId"
	FormSize     = "size"
	FormSHA256   = "sha256"
	FormFileName = "fileName"
	FormFile     = "file"
)

type Response struct {
	OK     bool   `json:"ok"`
	Error  string `json:"error,omitempty"`
	Reason string `json:"reason,omitempty"`
}

// Row is one synchronized record. ID is the per-book local id of an
// annotation and is ignored for book_data.
type Row struct {
	FileID    int64           `json:"fileId"`
	ID        int64           `json:"id,omitempty"`
	UpdatedAt int64           `json:"updatedAt"`
	DeletedAt int64           `json:"deletedAt,omitempty"`
	Data      json.RawMessage `json:"data,omitempty"`
}

// BookData is the payload of a book_data row.
type BookData struct {
	Progress  string `json:"progress,omitempty"`
	MediaType string `json:"mediaType,omitempty"`
}

// AnnotationData is the payload of a bookmark, highlight or note row.
type AnnotationData struct {
	Locator string `json:"locator"`
	Text    string `json:"text,omitempty"`
	Style   string `json:"style,omitempty"`
}

type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
	Version  string `json:"version"`
	Device   string `json:"device"`
}

type LoginResponse struct {
	Response
	Token     string `json:"token,omitempty"`
	ExpiresAt int64  `json:"expiresAt,omitempty"`
}

type GetRequest struct {
	Table  Table `json:"table"`
	FileID int64 `json:"fileId"`
	ID     int64 `json:"id,omitempty"`
}

type GetResponse struct {
	Response
	Rows []Row `json:"rows"`
}

type GetSinceRequest struct {
	Table Table `json:"table"`
	Since int64 `json:"since"`
	Limit int   `json:"limit"`
}

type GetSinceResponse struct {
	Response
	NextSince int64 `json:"nextSince"`
	Rows      []Row `json:"rows"`
}

type UpdateRequest struct {
	Table Table `json:"table"`
	Force bool  `json:"force"`
	Row   Row   `json:"row"`
}

type UpdateResponse struct {
	Response
	UpdatedAt       int64 `json:"updatedAt,omitempty"`
	ServerUpdatedAt int64 `json:"serverUpdatedAt,omitempty"`
}

type DeleteRequest struct {
	Table  Table `json:"table"`
	FileID int64 `json:"fileId"`
	ID     int64 `json:"id,omitempty"`
}

type DeleteResponse struct {
	Response
	DeletedAt int64 `json:"deletedAt,omitempty"`
}

type ResolveRequest struct {
	SHA256   string `json:"sha256"`
	Filesize int64  `json:"filesize"`
}

type ResolveResponse struct {
	Response
	Exists bool  `json:"exists"`
	FileID int64 `json:"fileId,omitempty"`
}

type UploadResponse struct {
	Response
	FileID   int64  `json:"fileId,omitempty"`
	Size     int64  `json:"size,omitempty"`
	SHA256   string `json:"sha256,omitempty"`
	FileName string `json:"fileName,omitempty"`
}

type CatalogueEntry struct {
	FileID   int64  `json:"fileId"`
	FileName string `json:"fileName"`
}

type CatalogueResponse struct {
	Response
	Count int              `json:"count"`
	Rows  []CatalogueEntry `json:"rows"`
}
