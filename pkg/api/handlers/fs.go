package handlers

import (
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/driftfs/driftfs/internal/logger"
	"github.com/driftfs/driftfs/pkg/metrics"
	"github.com/driftfs/driftfs/pkg/vfs"
)

const (
	// multipartFormMemory caps the in-memory portion of a form upload;
	// larger bodies spill to temp files.
	multipartFormMemory = 32 << 20

	// defaultMultipartThreshold is the declared size at which the upload
	// endpoint steers the client to the multipart protocol.
	defaultMultipartThreshold = 100 << 20

	// corsExposedHeaders lists the download response headers cross-origin
	// callers may read.
	corsExposedHeaders = "Content-Type, Content-Length, Content-Disposition, ETag, Last-Modified"
)

// FSHandler serves the /api/fs surface: every filesystem operation the engine
// facade exposes. Authentication and permission gating happen in middleware;
// handlers only translate HTTP to engine calls and engine errors to problem
// responses.
type FSHandler struct {
	fs                 *vfs.FileSystem
	metrics            *metrics.Metrics
	multipartThreshold int64
}

// NewFSHandler creates a new FSHandler. metrics may be nil.
func NewFSHandler(fs *vfs.FileSystem, m *metrics.Metrics) *FSHandler {
	return &FSHandler{
		fs:                 fs,
		metrics:            m,
		multipartThreshold: defaultMultipartThreshold,
	}
}

// observe records one engine operation on the metrics registry.
func (h *FSHandler) observe(op string, start time.Time, err error) {
	h.metrics.ObserveOperation(op, err, time.Since(start))
}

// List handles GET /api/fs/list?path=.
func (h *FSHandler) List(w http.ResponseWriter, r *http.Request) {
	principal, ok := principalOrError(w, r)
	if !ok {
		return
	}
	path, ok := requiredQuery(w, r, "path")
	if !ok {
		return
	}

	start := time.Now()
	listing, err := h.fs.ListDirectory(r.Context(), principal, path)
	h.observe("list_directory", start, err)
	if err != nil {
		EngineError(w, err)
		return
	}
	WriteJSONOK(w, listing)
}

// Info handles GET /api/fs/info?path=.
func (h *FSHandler) Info(w http.ResponseWriter, r *http.Request) {
	principal, ok := principalOrError(w, r)
	if !ok {
		return
	}
	path, ok := requiredQuery(w, r, "path")
	if !ok {
		return
	}

	start := time.Now()
	info, err := h.fs.GetFileInfo(r.Context(), principal, path)
	h.observe("get_file_info", start, err)
	if err != nil {
		EngineError(w, err)
		return
	}
	WriteJSONOK(w, info)
}

// Download handles GET /api/fs/download?path=.
func (h *FSHandler) Download(w http.ResponseWriter, r *http.Request) {
	h.stream(w, r, false)
}

// Preview handles GET /api/fs/preview?path=.
// Identical to Download but served inline for in-browser rendering.
func (h *FSHandler) Preview(w http.ResponseWriter, r *http.Request) {
	h.stream(w, r, true)
}

func (h *FSHandler) stream(w http.ResponseWriter, r *http.Request, inline bool) {
	principal, ok := principalOrError(w, r)
	if !ok {
		return
	}
	path, ok := requiredQuery(w, r, "path")
	if !ok {
		return
	}

	start := time.Now()
	result, err := h.fs.Download(r.Context(), principal, path, inline)
	h.observe("download", start, err)
	if err != nil {
		EngineError(w, err)
		return
	}
	defer func() {
		_ = result.Body.Close()
	}()

	// Browser front ends fetch downloads cross-origin.
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.Header().Set("Access-Control-Expose-Headers", corsExposedHeaders)

	if result.ContentType != "" {
		w.Header().Set("Content-Type", result.ContentType)
	}
	if result.ContentLength > 0 {
		w.Header().Set("Content-Length", strconv.FormatInt(result.ContentLength, 10))
	}
	if result.ETag != "" {
		w.Header().Set("ETag", `"`+result.ETag+`"`)
	}
	if !result.LastModified.IsZero() {
		w.Header().Set("Last-Modified", result.LastModified.UTC().Format(http.TimeFormat))
	}
	if result.Disposition != "" {
		w.Header().Set("Content-Disposition", result.Disposition)
	}

	if _, err := io.Copy(w, result.Body); err != nil {
		// Headers are gone; all we can do is log the broken stream.
		logger.DebugCtx(r.Context(), "download stream interrupted", "path", path, "error", err)
	}
}

// uploadResponse is the flat response of POST /api/fs/upload. When
// useMultipart is true the client must drive the multipart protocol with the
// returned session; otherwise the upload is already complete.
type uploadResponse struct {
	UseMultipart bool          `json:"useMultipart"`
	UploadID     string        `json:"uploadId,omitempty"`
	Key          string        `json:"key,omitempty"`
	Path         string        `json:"path,omitempty"`
	Size         int64         `json:"size,omitempty"`
	ETag         string        `json:"etag,omitempty"`
	FileID       string        `json:"fileId,omitempty"`
	Slug         string        `json:"slug,omitempty"`
	PartSize     int64         `json:"partSize,omitempty"`
	PartURLs     []vfs.PartURL `json:"partUrls,omitempty"`
}

// uploadIntent is the JSON body announcing an upload before any bytes move.
type uploadIntent struct {
	Path     string `json:"path"`
	FileName string `json:"fileName"`
	Size     int64  `json:"size"`
}

// Upload handles POST /api/fs/upload.
//
// Two request shapes are accepted:
//   - multipart/form-data with fields "path" and "file": the upload runs
//     immediately and the response carries the stored file's metadata.
//   - application/json with {path, fileName, size}: an upload announcement.
//     Files at or above the multipart threshold get a multipart session with
//     presigned part URLs; smaller files are told to post the form.
func (h *FSHandler) Upload(w http.ResponseWriter, r *http.Request) {
	principal, ok := principalOrError(w, r)
	if !ok {
		return
	}

	contentType := r.Header.Get("Content-Type")
	if strings.HasPrefix(contentType, "application/json") {
		var intent uploadIntent
		if !decodeJSONBody(w, r, &intent) {
			return
		}
		if intent.Path == "" || intent.FileName == "" {
			BadRequest(w, "path and fileName are required")
			return
		}
		if intent.Size < h.multipartThreshold {
			WriteJSONOK(w, uploadResponse{UseMultipart: false})
			return
		}

		start := time.Now()
		init, err := h.fs.InitMultipart(r.Context(), principal, intent.Path, intent.FileName, intent.Size)
		h.observe("multipart_init", start, err)
		if err != nil {
			EngineError(w, err)
			return
		}
		WriteJSONOK(w, uploadResponse{
			UseMultipart: true,
			UploadID:     init.UploadID,
			Key:          init.Key,
			Path:         init.Path,
			PartSize:     init.PartSize,
			PartURLs:     init.PartURLs,
		})
		return
	}

	if err := r.ParseMultipartForm(multipartFormMemory); err != nil {
		BadRequest(w, "expected multipart form or JSON upload announcement")
		return
	}
	path := r.FormValue("path")
	if path == "" {
		BadRequest(w, "form field 'path' is required")
		return
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		BadRequest(w, "form field 'file' is required")
		return
	}
	defer func() {
		_ = file.Close()
	}()

	start := time.Now()
	result, err := h.fs.Upload(r.Context(), principal, path, vfs.UploadInput{
		FileName:    header.Filename,
		Body:        file,
		Size:        header.Size,
		ContentType: header.Header.Get("Content-Type"),
	})
	h.observe("upload", start, err)
	if err != nil {
		EngineError(w, err)
		return
	}
	WriteJSONCreated(w, uploadResponse{
		Path:   result.Path,
		Size:   result.Size,
		ETag:   result.ETag,
		FileID: result.FileID,
		Slug:   result.Slug,
	})
}

// Mkdir handles POST /api/fs/mkdir.
func (h *FSHandler) Mkdir(w http.ResponseWriter, r *http.Request) {
	principal, ok := principalOrError(w, r)
	if !ok {
		return
	}
	var req struct {
		Path string `json:"path"`
	}
	if !decodeJSONBody(w, r, &req) {
		return
	}
	if req.Path == "" {
		BadRequest(w, "path is required")
		return
	}

	start := time.Now()
	err := h.fs.CreateDirectory(r.Context(), principal, req.Path)
	h.observe("create_directory", start, err)
	if err != nil {
		EngineError(w, err)
		return
	}
	WriteJSONCreated(w, map[string]string{"path": req.Path})
}

// Remove handles DELETE /api/fs/rm?path=.
func (h *FSHandler) Remove(w http.ResponseWriter, r *http.Request) {
	principal, ok := principalOrError(w, r)
	if !ok {
		return
	}
	path, ok := requiredQuery(w, r, "path")
	if !ok {
		return
	}

	start := time.Now()
	err := h.fs.Remove(r.Context(), principal, path)
	h.observe("remove", start, err)
	if err != nil {
		EngineError(w, err)
		return
	}
	WriteNoContent(w)
}

// Rename handles POST /api/fs/rename.
func (h *FSHandler) Rename(w http.ResponseWriter, r *http.Request) {
	principal, ok := principalOrError(w, r)
	if !ok {
		return
	}
	var req struct {
		OldPath string `json:"oldPath"`
		NewPath string `json:"newPath"`
	}
	if !decodeJSONBody(w, r, &req) {
		return
	}
	if req.OldPath == "" || req.NewPath == "" {
		BadRequest(w, "oldPath and newPath are required")
		return
	}

	start := time.Now()
	err := h.fs.Rename(r.Context(), principal, req.OldPath, req.NewPath)
	h.observe("rename", start, err)
	if err != nil {
		EngineError(w, err)
		return
	}
	WriteJSONOK(w, map[string]string{"oldPath": req.OldPath, "newPath": req.NewPath})
}

// copyResponse maps the engine's tagged copy result onto the wire.
type copyResponse struct {
	Status        string                    `json:"status"` // copied, skipped, cross-storage
	CopiedObjects int                       `json:"copiedObjects,omitempty"`
	Transfer      *vfs.CrossStorageTransfer `json:"transfer,omitempty"`
}

func toCopyResponse(result *vfs.CopyResult) copyResponse {
	switch result.Outcome {
	case vfs.CopySkipped:
		return copyResponse{Status: "skipped"}
	case vfs.CopyCrossStorage:
		return copyResponse{Status: "cross-storage", Transfer: result.Transfer}
	default:
		return copyResponse{Status: "copied", CopiedObjects: result.CopiedObjects}
	}
}

// Copy handles POST /api/fs/copy.
func (h *FSHandler) Copy(w http.ResponseWriter, r *http.Request) {
	principal, ok := principalOrError(w, r)
	if !ok {
		return
	}
	var req struct {
		Source       string `json:"source"`
		Target       string `json:"target"`
		SkipExisting *bool  `json:"skipExisting"`
	}
	if !decodeJSONBody(w, r, &req) {
		return
	}
	if req.Source == "" || req.Target == "" {
		BadRequest(w, "source and target are required")
		return
	}
	skipExisting := req.SkipExisting == nil || *req.SkipExisting

	start := time.Now()
	result, err := h.fs.Copy(r.Context(), principal, req.Source, req.Target, skipExisting)
	h.observe("copy", start, err)
	if err != nil {
		EngineError(w, err)
		return
	}
	WriteJSONOK(w, toCopyResponse(result))
}

// BatchRemove handles POST /api/fs/batch/remove.
// Per-path failures land in the failed array; the request itself succeeds.
func (h *FSHandler) BatchRemove(w http.ResponseWriter, r *http.Request) {
	principal, ok := principalOrError(w, r)
	if !ok {
		return
	}
	var req struct {
		Paths []string `json:"paths"`
	}
	if !decodeJSONBody(w, r, &req) {
		return
	}

	start := time.Now()
	result := h.fs.BatchRemove(r.Context(), principal, req.Paths)
	h.observe("batch_remove", start, nil)
	WriteJSONOK(w, result)
}

// BatchCopy handles POST /api/fs/batch/copy.
func (h *FSHandler) BatchCopy(w http.ResponseWriter, r *http.Request) {
	principal, ok := principalOrError(w, r)
	if !ok {
		return
	}
	var req struct {
		Items        []vfs.BatchCopyItem `json:"items"`
		SkipExisting *bool               `json:"skipExisting"`
	}
	if !decodeJSONBody(w, r, &req) {
		return
	}
	skipExisting := req.SkipExisting == nil || *req.SkipExisting

	start := time.Now()
	result := h.fs.BatchCopy(r.Context(), principal, req.Items, skipExisting)
	h.observe("batch_copy", start, nil)
	WriteJSONOK(w, result)
}

// Search handles GET /api/fs/search?q=&scope=&target=&limit=&offset=.
func (h *FSHandler) Search(w http.ResponseWriter, r *http.Request) {
	principal, ok := principalOrError(w, r)
	if !ok {
		return
	}
	query, ok := requiredQuery(w, r, "q")
	if !ok {
		return
	}
	limit, ok := intQuery(w, r, "limit", 0)
	if !ok {
		return
	}
	offset, ok := intQuery(w, r, "offset", 0)
	if !ok {
		return
	}

	params := vfs.SearchParams{
		Query:       query,
		Scope:       vfs.SearchScope(r.URL.Query().Get("scope")),
		ScopeTarget: r.URL.Query().Get("target"),
		Limit:       limit,
		Offset:      offset,
	}

	start := time.Now()
	result, err := h.fs.Search(r.Context(), principal, params)
	h.observe("search", start, err)
	if err != nil {
		EngineError(w, err)
		return
	}
	WriteJSONOK(w, result)
}

// Presign handles POST /api/fs/presign?path=&expiresIn=&forceDownload=&method=.
// expiresIn is in seconds.
func (h *FSHandler) Presign(w http.ResponseWriter, r *http.Request) {
	principal, ok := principalOrError(w, r)
	if !ok {
		return
	}
	path, ok := requiredQuery(w, r, "path")
	if !ok {
		return
	}
	expiresIn, ok := intQuery(w, r, "expiresIn", 0)
	if !ok {
		return
	}
	if expiresIn < 0 {
		BadRequest(w, "expiresIn must not be negative")
		return
	}

	opts := vfs.PresignOptions{
		Method:        r.URL.Query().Get("method"),
		ExpiresIn:     time.Duration(expiresIn) * time.Second,
		ForceDownload: boolQuery(r, "forceDownload", false),
	}

	start := time.Now()
	result, err := h.fs.Presign(r.Context(), principal, path, opts)
	h.observe("presign", start, err)
	if err != nil {
		EngineError(w, err)
		return
	}
	WriteJSONOK(w, result)
}

// MpuInit handles POST /api/fs/mpu/init.
func (h *FSHandler) MpuInit(w http.ResponseWriter, r *http.Request) {
	principal, ok := principalOrError(w, r)
	if !ok {
		return
	}
	var req struct {
		Path     string `json:"path"`
		FileName string `json:"fileName"`
		FileSize int64  `json:"fileSize"`
	}
	if !decodeJSONBody(w, r, &req) {
		return
	}
	if req.Path == "" || req.FileName == "" {
		BadRequest(w, "path and fileName are required")
		return
	}
	if req.FileSize <= 0 {
		BadRequest(w, "fileSize must be positive")
		return
	}

	start := time.Now()
	init, err := h.fs.InitMultipart(r.Context(), principal, req.Path, req.FileName, req.FileSize)
	h.observe("multipart_init", start, err)
	if err != nil {
		EngineError(w, err)
		return
	}
	WriteJSONCreated(w, init)
}

// mpuSession identifies an in-progress multipart session in request bodies.
type mpuSession struct {
	Path     string `json:"path"`
	UploadID string `json:"uploadId"`
}

func (s *mpuSession) validate(w http.ResponseWriter) bool {
	if s.Path == "" || s.UploadID == "" {
		BadRequest(w, "path and uploadId are required")
		return false
	}
	return true
}

// MpuPartURLs handles POST /api/fs/mpu/part-urls.
// Signs upload URLs for the requested part numbers of an existing session.
func (h *FSHandler) MpuPartURLs(w http.ResponseWriter, r *http.Request) {
	h.signPartURLs(w, r, "multipart_part_urls")
}

// MpuRefresh handles POST /api/fs/mpu/refresh.
// Re-signs part URLs whose originals expired; same contract as part-urls.
func (h *FSHandler) MpuRefresh(w http.ResponseWriter, r *http.Request) {
	h.signPartURLs(w, r, "multipart_refresh")
}

func (h *FSHandler) signPartURLs(w http.ResponseWriter, r *http.Request, op string) {
	principal, ok := principalOrError(w, r)
	if !ok {
		return
	}
	var req struct {
		mpuSession
		PartNumbers []int32 `json:"partNumbers"`
	}
	if !decodeJSONBody(w, r, &req) {
		return
	}
	if !req.validate(w) {
		return
	}
	if len(req.PartNumbers) == 0 {
		BadRequest(w, "partNumbers is required")
		return
	}

	start := time.Now()
	urls, err := h.fs.RefreshMultipartURLs(r.Context(), principal, req.Path, req.UploadID, req.PartNumbers)
	h.observe(op, start, err)
	if err != nil {
		EngineError(w, err)
		return
	}
	WriteJSONOK(w, map[string]any{"partUrls": urls})
}

// MpuComplete handles POST /api/fs/mpu/complete.
func (h *FSHandler) MpuComplete(w http.ResponseWriter, r *http.Request) {
	principal, ok := principalOrError(w, r)
	if !ok {
		return
	}
	var req struct {
		mpuSession
		Parts []vfs.CompletedPart `json:"parts"`
	}
	if !decodeJSONBody(w, r, &req) {
		return
	}
	if !req.validate(w) {
		return
	}

	start := time.Now()
	result, err := h.fs.CompleteMultipart(r.Context(), principal, req.Path, req.UploadID, req.Parts)
	h.observe("multipart_complete", start, err)
	if err != nil {
		EngineError(w, err)
		return
	}
	WriteJSONCreated(w, uploadResponse{
		Path:   result.Path,
		Size:   result.Size,
		ETag:   result.ETag,
		FileID: result.FileID,
		Slug:   result.Slug,
	})
}

// MpuAbort handles POST /api/fs/mpu/abort.
func (h *FSHandler) MpuAbort(w http.ResponseWriter, r *http.Request) {
	principal, ok := principalOrError(w, r)
	if !ok {
		return
	}
	var req mpuSession
	if !decodeJSONBody(w, r, &req) {
		return
	}
	if !req.validate(w) {
		return
	}

	start := time.Now()
	err := h.fs.AbortMultipart(r.Context(), principal, req.Path, req.UploadID)
	h.observe("multipart_abort", start, err)
	if err != nil {
		EngineError(w, err)
		return
	}
	WriteNoContent(w)
}

// MpuList handles GET /api/fs/mpu?path=.
// Lists in-progress multipart sessions under a logical directory.
func (h *FSHandler) MpuList(w http.ResponseWriter, r *http.Request) {
	principal, ok := principalOrError(w, r)
	if !ok {
		return
	}
	path, ok := requiredQuery(w, r, "path")
	if !ok {
		return
	}

	start := time.Now()
	uploads, err := h.fs.ListMultipartUploads(r.Context(), principal, path)
	h.observe("multipart_list", start, err)
	if err != nil {
		EngineError(w, err)
		return
	}
	if uploads == nil {
		uploads = []vfs.MultipartUploadInfo{}
	}
	WriteJSONOK(w, map[string]any{"uploads": uploads})
}

// MpuParts handles GET /api/fs/mpu/parts?path=&uploadId=.
func (h *FSHandler) MpuParts(w http.ResponseWriter, r *http.Request) {
	principal, ok := principalOrError(w, r)
	if !ok {
		return
	}
	path, ok := requiredQuery(w, r, "path")
	if !ok {
		return
	}
	uploadID, ok := requiredQuery(w, r, "uploadId")
	if !ok {
		return
	}

	start := time.Now()
	parts, err := h.fs.ListMultipartParts(r.Context(), principal, path, uploadID)
	h.observe("multipart_parts", start, err)
	if err != nil {
		EngineError(w, err)
		return
	}
	if parts == nil {
		parts = []vfs.PartInfo{}
	}
	WriteJSONOK(w, map[string]any{"parts": parts})
}
