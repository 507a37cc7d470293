package api

import (
	"context"
	"errors"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/ignite/bulk-mailer/internal/domain"
	"github.com/ignite/bulk-mailer/internal/metrics"
	"github.com/ignite/bulk-mailer/internal/pkg/httputil"
	"github.com/ignite/bulk-mailer/internal/report"
	"github.com/ignite/bulk-mailer/internal/service/bulksend"
)

// BulkSender is the part of bulksend.Service the handlers use.
type BulkSender interface {
	Start(ctx context.Context, in bulksend.JobInput) (*domain.Job, error)
	Get(ctx context.Context, jobID string) (*bulksend.JobView, error)
	View(job *domain.Job) *bulksend.JobView
	DefaultBatchSize(ctx context.Context) (int, error)
	SetDefaultBatchSize(ctx context.Context, size int) error
}

// ReportResolver maps a requested report name to a readable artifact.
type ReportResolver interface {
	Resolve(ctx context.Context, requested string) (*report.Download, error)
}

// Handlers serves the mass mailer API.
type Handlers struct {
	svc     BulkSender
	reports ReportResolver
}

// NewHandlers creates the API handlers.
func NewHandlers(svc BulkSender, reports ReportResolver) *Handlers {
	return &Handlers{svc: svc, reports: reports}
}

const (
	// maxSendRequest bounds the whole send request: file plus text fields.
	maxSendRequest  = bulksend.MaxRecipientsFileSize + bulksend.MaxRecipientsTextLength + bulksend.MaxBodyLength + 64<<10
	multipartMemory = 8 << 20
	settingsLimit   = 4 << 10

	noRecipientsMessage = "No valid recipient emails found."
)

type sendRequest struct {
	SenderEmail    string `json:"sender_email"`
	Subject        string `json:"subject"`
	Body           string `json:"body"`
	BatchSize      *int   `json:"batch_size"`
	RecipientsText string `json:"recipients_text"`
}

type settingsPayload struct {
	DefaultBatchSize int `json:"default_batch_size"`
}

// Send starts a bulk send job.
//
//	POST /api/mass-mailer/send
//
// Accepts multipart/form-data (with an optional recipients_csv file) or JSON.
func (h *Handlers) Send(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxSendRequest)

	var in bulksend.JobInput
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	switch mediaType {
	case "multipart/form-data", "application/x-www-form-urlencoded":
		file, ok := h.parseForm(w, r, &in)
		if !ok {
			return
		}
		if file != nil {
			defer file.Close()
		}
	default:
		var req sendRequest
		if !httputil.Decode(w, r, &req, 0) {
			return
		}
		in = bulksend.JobInput{
			Sender:         req.SenderEmail,
			Subject:        req.Subject,
			Body:           req.Body,
			RecipientsText: req.RecipientsText,
		}
		if req.BatchSize != nil {
			in.BatchSize = batchSizeOrInvalid(*req.BatchSize)
		}
	}

	job, err := h.svc.Start(r.Context(), in)
	if err != nil {
		h.sendError(w, err)
		return
	}
	httputil.Accepted(w, h.svc.View(job))
}

// parseForm fills in from a form post and returns the uploaded file, if any.
func (h *Handlers) parseForm(w http.ResponseWriter, r *http.Request, in *bulksend.JobInput) (multipart.File, bool) {
	var err error
	if strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/") {
		err = r.ParseMultipartForm(multipartMemory)
	} else {
		err = r.ParseForm()
	}
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			httputil.Error(w, http.StatusRequestEntityTooLarge, "request too large")
			return nil, false
		}
		httputil.BadRequest(w, "invalid form")
		return nil, false
	}

	in.Sender = r.FormValue("sender_email")
	in.Subject = r.FormValue("subject")
	in.Body = r.FormValue("body")
	in.RecipientsText = r.FormValue("recipients_text")
	if raw := strings.TrimSpace(r.FormValue("batch_size")); raw != "" {
		n, convErr := strconv.Atoi(raw)
		if convErr != nil {
			n = -1
		}
		in.BatchSize = batchSizeOrInvalid(n)
	}

	if r.MultipartForm == nil {
		return nil, true
	}
	file, header, err := r.FormFile("recipients_csv")
	if errors.Is(err, http.ErrMissingFile) {
		return nil, true
	}
	if err != nil {
		httputil.BadRequest(w, "invalid recipients file")
		return nil, false
	}
	if header.Size == 0 {
		file.Close()
		return nil, true
	}
	in.RecipientsFile = file
	in.RecipientsFileName = header.Filename
	in.RecipientsFileSize = header.Size
	return file, true
}

// batchSizeOrInvalid keeps an explicit 0 from meaning "use the default".
func batchSizeOrInvalid(n int) int {
	if n == 0 {
		return -1
	}
	return n
}

func (h *Handlers) sendError(w http.ResponseWriter, err error) {
	var verr *bulksend.ValidationError
	switch {
	case errors.As(err, &verr):
		httputil.ErrorWithDetails(w, http.StatusBadRequest, "invalid input", "validation", verr.Fields)
	case errors.Is(err, bulksend.ErrNoRecipients):
		httputil.Error(w, http.StatusUnprocessableEntity, noRecipientsMessage)
	default:
		respondSafeError(w, http.StatusInternalServerError, err, "")
	}
}

// GetJob returns a job's progress and result messages.
//
//	GET /api/mass-mailer/jobs/{jobID}
func (h *Handlers) GetJob(w http.ResponseWriter, r *http.Request) {
	view, err := h.svc.Get(r.Context(), chi.URLParam(r, "jobID"))
	if errors.Is(err, bulksend.ErrNotFound) {
		httputil.NotFound(w, "job not found")
		return
	}
	if err != nil {
		respondSafeError(w, http.StatusInternalServerError, err, "")
		return
	}
	httputil.OK(w, view)
}

// DownloadReport streams a failure report as an attachment.
//
//	GET /api/mass-mailer/reports/{file}
func (h *Handlers) DownloadReport(w http.ResponseWriter, r *http.Request) {
	requested := chi.URLParam(r, "file")
	if unescaped, err := url.PathUnescape(requested); err == nil {
		requested = unescaped
	}

	dl, err := h.reports.Resolve(r.Context(), requested)
	if err != nil {
		metrics.IncReportDownload("not_found")
		httputil.NotFound(w, "not found")
		return
	}
	defer dl.Body.Close()

	hdr := w.Header()
	hdr.Set("Content-Type", report.ContentType)
	hdr.Set("Content-Disposition", `attachment; filename="`+dl.Filename+`"`)
	hdr.Set("X-Content-Type-Options", "nosniff")
	hdr.Set("X-Download-Options", "noopen")
	hdr.Set("Cache-Control", "private, no-store")
	if dl.Size > 0 {
		hdr.Set("Content-Length", strconv.FormatInt(dl.Size, 10))
	}
	w.WriteHeader(http.StatusOK)
	if _, err := io.Copy(w, dl.Body); err != nil {
		metrics.IncReportDownload("error")
		log.Warn("report stream interrupted", "file", dl.Filename, "error", err)
		return
	}
	metrics.IncReportDownload("ok")
}

// GetSettings returns the saved default batch size.
//
//	GET /api/mass-mailer/settings
func (h *Handlers) GetSettings(w http.ResponseWriter, r *http.Request) {
	size, err := h.svc.DefaultBatchSize(r.Context())
	if err != nil {
		respondSafeError(w, http.StatusInternalServerError, err, "")
		return
	}
	httputil.OK(w, settingsPayload{DefaultBatchSize: size})
}

// UpdateSettings saves a new default batch size.
//
//	PUT /api/mass-mailer/settings
func (h *Handlers) UpdateSettings(w http.ResponseWriter, r *http.Request) {
	var p settingsPayload
	if !httputil.Decode(w, r, &p, settingsLimit) {
		return
	}
	if err := h.svc.SetDefaultBatchSize(r.Context(), p.DefaultBatchSize); err != nil {
		if errors.Is(err, bulksend.ErrInvalidBatchSize) {
			httputil.ErrorWithDetails(w, http.StatusBadRequest, "invalid input", "validation",
				map[string]string{"batch_size": "Batch size must be between 1 and 500."})
			return
		}
		respondSafeError(w, http.StatusInternalServerError, err, "")
		return
	}
	httputil.OK(w, p)
}
