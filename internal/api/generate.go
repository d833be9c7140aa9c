package api

import (
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/Davygupta47/notebook/internal/artifact"
	"github.com/Davygupta47/notebook/internal/fileutil"
	"github.com/Davygupta47/notebook/internal/jobs"
	"github.com/Davygupta47/notebook/internal/logging"
	"github.com/Davygupta47/notebook/internal/sse"
)

const (
	bytesPerMB = 1024 * 1024
	// uploadSlack covers multipart framing and the small form fields.
	uploadSlack = 1 << 20
)

const (
	msgNotPDF         = "File must be a PDF"
	msgMissingKey     = "API key is required"
	msgInvalidJobID   = "Invalid job ID"
	msgNotFound       = "Notebook not found or expired"
	msgDownloadFailed = "Failed to read notebook"

	// DownloadFilename is the attachment name offered for every notebook.
	DownloadFilename = "generated_notebook.ipynb"
	// NotebookMediaType is the Content-Type of downloads.
	NotebookMediaType = "application/x-ipynb+json"
)

func (s *Server) maxUploadBytes() int64 {
	return int64(s.opts.MaxUploadMB) * bytesPerMB
}

func (s *Server) tooLarge(size int64) string {
	return fmt.Sprintf("PDF too large (%.1fMB). Max is %dMB.", float64(size)/bytesPerMB, s.opts.MaxUploadMB)
}

func (s *Server) generate(c *gin.Context) {
	ctx := c.Request.Context()
	logger := logging.WithContext(ctx, s.logger)

	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, s.maxUploadBytes()+uploadSlack)

	header, err := c.FormFile("file")
	if err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			size := c.Request.ContentLength
			if size <= 0 {
				size = maxErr.Limit
			}
			abortWithError(c, http.StatusRequestEntityTooLarge, s.tooLarge(size))
			return
		}
		abortWithError(c, http.StatusBadRequest, msgNotPDF)
		return
	}
	if !strings.HasSuffix(strings.ToLower(header.Filename), ".pdf") {
		abortWithError(c, http.StatusBadRequest, msgNotPDF)
		return
	}
	apiKey := strings.TrimSpace(c.PostForm("api_key"))
	if apiKey == "" {
		abortWithError(c, http.StatusBadRequest, msgMissingKey)
		return
	}
	if header.Size > s.maxUploadBytes() {
		abortWithError(c, http.StatusRequestEntityTooLarge, s.tooLarge(header.Size))
		return
	}

	data, err := readUpload(header, s.maxUploadBytes())
	if err != nil {
		logger.Warn("read upload failed", logging.Error(err))
		abortWithError(c, http.StatusBadRequest, "Could not read uploaded file")
		return
	}
	if int64(len(data)) > s.maxUploadBytes() {
		abortWithError(c, http.StatusRequestEntityTooLarge, s.tooLarge(int64(len(data))))
		return
	}

	model := strings.TrimSpace(c.PostForm("model"))
	if model == "" {
		model = s.opts.DefaultModel
	}

	job := s.opts.Runner.Start(ctx, jobs.Spec{
		Input:      data,
		Model:      model,
		Credential: apiKey,
	})
	logger.Info("generation accepted",
		logging.String(logging.FieldJobID, job.ID()),
		logging.String("filename", header.Filename),
		logging.Int("size_kb", len(data)/1024),
		logging.String("model", model),
	)

	sse.SetHeaders(c.Writer.Header())
	c.Status(http.StatusOK)
	c.Writer.WriteHeaderNow()
	c.Writer.Flush()

	c.Stream(func(w io.Writer) bool {
		if err := s.opts.Encoder.Stream(ctx, job, sse.NewWriter(w)); err != nil {
			logger.Info("event stream ended early",
				logging.String(logging.FieldJobID, job.ID()),
				logging.Error(err),
			)
		}
		return false
	})
}

// readUpload reads at most limit+1 bytes so an oversized part is detectable
// without buffering all of it.
func readUpload(header *multipart.FileHeader, limit int64) ([]byte, error) {
	f, err := header.Open()
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return io.ReadAll(io.LimitReader(f, limit+1))
}

func (s *Server) download(c *gin.Context) {
	id := c.Param("job_id")
	if !jobs.ValidID(id) {
		abortWithError(c, http.StatusBadRequest, msgInvalidJobID)
		return
	}
	data, err := s.opts.Store.Get(c.Request.Context(), id)
	if errors.Is(err, artifact.ErrNotFound) {
		abortWithError(c, http.StatusNotFound, msgNotFound)
		return
	}
	if err != nil {
		logging.WithContext(c.Request.Context(), s.logger).Error("read artifact failed",
			logging.String(logging.FieldJobID, id),
			logging.Error(err),
		)
		abortWithError(c, http.StatusInternalServerError, msgDownloadFailed)
		return
	}
	// Artifacts are write-once, so the content digest is a stable validator.
	etag := `"` + fileutil.Digest(data) + `"`
	c.Header("ETag", etag)
	c.Header("Cache-Control", "private, max-age=0, must-revalidate")
	if c.GetHeader("If-None-Match") == etag {
		c.Status(http.StatusNotModified)
		return
	}
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", DownloadFilename))
	c.Data(http.StatusOK, NotebookMediaType, data)
}
