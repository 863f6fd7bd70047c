package orders

import (
	"errors"
	"mime/multipart"
	"net/http"
	"net/url"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/gigmarket/gigmarket-backend/api/responses"
	"github.com/gigmarket/gigmarket-backend/api/validators"
	"github.com/gigmarket/gigmarket-backend/internal/deliveries"
	pkgerrors "github.com/gigmarket/gigmarket-backend/pkg/errors"
	"github.com/gigmarket/gigmarket-backend/pkg/logger"
)

const (
	multipartMemory   = 8 << 20
	multipartOverhead = 1 << 20
	filesField        = "files"
	messageField      = "message"
)

// UploadLimits bounds the multipart request before the service validates files.
type UploadLimits struct {
	MaxFileBytes int64
	MaxFiles     int
}

func (l UploadLimits) requestBytes() int64 {
	if l.MaxFileBytes <= 0 || l.MaxFiles <= 0 {
		return 0
	}
	return l.MaxFileBytes*int64(l.MaxFiles) + multipartOverhead
}

// UploadDelivery accepts the seller's multipart delivery: repeated "files"
// parts plus an optional "message".
func UploadDelivery(svc deliveries.Service, limits UploadLimits, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "deliveries service unavailable"))
			return
		}
		userID, orderID, err := orderScope(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		if max := limits.requestBytes(); max > 0 {
			r.Body = http.MaxBytesReader(w, r.Body, max)
		}
		if err := r.ParseMultipartForm(multipartMemory); err != nil {
			responses.WriteError(r.Context(), logg, w, multipartError(err))
			return
		}
		defer func() { _ = r.MultipartForm.RemoveAll() }()

		headers := r.MultipartForm.File[filesField]
		input := deliveries.UploadInput{Message: r.FormValue(messageField)}
		files, closeAll, err := openParts(headers)
		defer closeAll()
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		input.Files = files

		stored, err := svc.Upload(r.Context(), userID, orderID, input)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, map[string]any{"files": stored})
	}
}

// ListDeliveries returns the order's files. Links are included only where the
// caller may download.
func ListDeliveries(svc deliveries.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "deliveries service unavailable"))
			return
		}
		userID, orderID, err := orderScope(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		files, err := svc.List(r.Context(), userID, orderID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, map[string]any{"files": files})
	}
}

// AccessDelivery signs a download link for one file. The buyer's first access
// on a delivered order starts the auto-payment countdown.
func AccessDelivery(svc deliveries.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "deliveries service unavailable"))
			return
		}
		userID, orderID, err := orderScope(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		name, err := filenameParam(r)
		if err != nil || strings.TrimSpace(name) == "" {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeValidation, "invalid filename"))
			return
		}

		result, err := svc.Access(r.Context(), userID, orderID, name)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, result)
	}
}

func DeleteDeliveryFile(svc deliveries.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "deliveries service unavailable"))
			return
		}
		userID, orderID, err := orderScope(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		fileID, err := validators.ParseUUIDParam(r, "fileId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if err := svc.Delete(r.Context(), userID, orderID, fileID); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, map[string]bool{"deleted": true})
	}
}

func openParts(headers []*multipart.FileHeader) ([]deliveries.UploadFile, func(), error) {
	opened := make([]multipart.File, 0, len(headers))
	closeAll := func() {
		for _, f := range opened {
			_ = f.Close()
		}
	}

	files := make([]deliveries.UploadFile, 0, len(headers))
	for _, header := range headers {
		f, err := header.Open()
		if err != nil {
			return nil, closeAll, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "unreadable file part").
				WithDetails(map[string]any{"file": header.Filename})
		}
		opened = append(opened, f)
		files = append(files, deliveries.UploadFile{
			Name:        header.Filename,
			ContentType: header.Header.Get("Content-Type"),
			Size:        header.Size,
			Body:        f,
		})
	}
	return files, closeAll, nil
}

func multipartError(err error) error {
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		return pkgerrors.New(pkgerrors.CodeValidation, "upload exceeds the allowed size").
			WithDetails(map[string]any{"limit_bytes": tooLarge.Limit})
	}
	return pkgerrors.Wrap(pkgerrors.CodeValidation, err, "expected a multipart/form-data body")
}

// filenameParam returns the decoded filename segment. chi matches against
// RawPath when the request carried escapes the default encoding would not
// produce (such as %2F), and against the decoded Path otherwise.
func filenameParam(r *http.Request) (string, error) {
	name := chi.URLParam(r, "filename")
	if r.URL.RawPath == "" {
		return name, nil
	}
	return url.PathUnescape(name)
}
