package deliveries

import (
	"io"
	"time"

	"github.com/gigmarket/gigmarket-backend/pkg/db/models"
)

// UploadFile is one part of a multipart delivery upload.
type UploadFile struct {
	Name        string
	ContentType string
	Size        int64
	Body        io.Reader
}

// UploadInput carries the files of one upload request.
type UploadInput struct {
	Files   []UploadFile
	Message string
}

// FileView is delivery metadata plus a download link when the caller may fetch content.
type FileView struct {
	models.DeliveryFile
	DownloadURL string `json:"download_url,omitempty"`
}

// AccessResult is returned when a party fetches one file.
type AccessResult struct {
	File                FileView   `json:"file"`
	DownloadURL         string     `json:"download_url"`
	ExpiresAt           time.Time  `json:"expires_at"`
	AutoPaymentArmed    bool       `json:"auto_payment_armed"`
	AutoPaymentDeadline *time.Time `json:"auto_payment_deadline,omitempty"`
}
