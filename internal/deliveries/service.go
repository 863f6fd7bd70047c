// Package deliveries stores seller delivery files and decides who may fetch them.
package deliveries

import (
	"context"
	"errors"
	"fmt"
	"mime"
	"path"
	"path/filepath"
	"strings"
	"time"
	"unicode"

	"github.com/gigmarket/gigmarket-backend/pkg/db/models"
	"github.com/gigmarket/gigmarket-backend/pkg/enums"
	pkgerrors "github.com/gigmarket/gigmarket-backend/pkg/errors"
	"github.com/gigmarket/gigmarket-backend/pkg/logger"
	"github.com/gigmarket/gigmarket-backend/pkg/storage"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

const (
	defaultMaxFiles  = 10
	defaultURLExpiry = time.Hour
	maxMessageLength = 2000
)

// orderGate is the slice of the order service that delivery handling needs.
type orderGate interface {
	Party(ctx context.Context, userID, orderID uuid.UUID) (*models.Order, enums.ActorRole, error)
	ArmAutoPayment(ctx context.Context, order *models.Order) (*models.Order, bool, error)
}

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// Service exposes delivery file operations for order parties.
type Service interface {
	Upload(ctx context.Context, userID, orderID uuid.UUID, input UploadInput) ([]models.DeliveryFile, error)
	List(ctx context.Context, userID, orderID uuid.UUID) ([]FileView, error)
	Access(ctx context.Context, userID, orderID uuid.UUID, filename string) (*AccessResult, error)
	Delete(ctx context.Context, userID, orderID, fileID uuid.UUID) error
}

// ServiceParams wires the delivery service.
type ServiceParams struct {
	Repo         *Repository
	Orders       orderGate
	Blobs        storage.BlobStore
	Tx           txRunner
	Logger       *logger.Logger
	MaxFileBytes int64
	MaxFiles     int
	URLExpiry    time.Duration
}

type service struct {
	repo      *Repository
	orders    orderGate
	blobs     storage.BlobStore
	tx        txRunner
	logg      *logger.Logger
	maxBytes  int64
	maxFiles  int
	urlExpiry time.Duration
	now       func() time.Time
}

func NewService(params ServiceParams) (Service, error) {
	if params.Repo == nil {
		return nil, fmt.Errorf("delivery repository required")
	}
	if params.Orders == nil {
		return nil, fmt.Errorf("order service required")
	}
	if params.Blobs == nil {
		return nil, fmt.Errorf("blob store required")
	}
	if params.Tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	maxFiles := params.MaxFiles
	if maxFiles <= 0 {
		maxFiles = defaultMaxFiles
	}
	expiry := params.URLExpiry
	if expiry <= 0 {
		expiry = defaultURLExpiry
	}
	return &service{
		repo:      params.Repo,
		orders:    params.Orders,
		blobs:     params.Blobs,
		tx:        params.Tx,
		logg:      params.Logger,
		maxBytes:  params.MaxFileBytes,
		maxFiles:  maxFiles,
		urlExpiry: expiry,
		now:       time.Now,
	}, nil
}

func (s *service) Upload(ctx context.Context, userID, orderID uuid.UUID, input UploadInput) ([]models.DeliveryFile, error) {
	order, actor, err := s.orders.Party(ctx, userID, orderID)
	if err != nil {
		return nil, err
	}
	if actor != enums.ActorRoleSeller {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "only the seller can upload delivery files")
	}
	if order.Status != enums.OrderStatusInProgress && order.Status != enums.OrderStatusRevisionRequested {
		return nil, pkgerrors.New(pkgerrors.CodeInvalidState, "delivery files can only be uploaded while the order is in progress or under revision").
			WithDetails(map[string]string{"current": string(order.Status)})
	}
	if err := s.validateUpload(input); err != nil {
		return nil, err
	}

	var message *string
	if msg := strings.TrimSpace(input.Message); msg != "" {
		message = &msg
	}

	ctx = s.logg.WithOrderID(ctx, orderID.String())
	rows := make([]models.DeliveryFile, 0, len(input.Files))
	uploaded := make([]string, 0, len(input.Files))
	for _, f := range input.Files {
		id := uuid.New()
		name := strings.TrimSpace(f.Name)
		objectPath := blobPath(orderID, id, name)
		contentType := detectContentType(name, f.ContentType)

		if err := s.blobs.Upload(ctx, objectPath, contentType, f.Body); err != nil {
			s.removeBlobs(ctx, uploaded)
			return nil, pkgerrors.Wrap(pkgerrors.CodeStorage, err, "upload delivery file")
		}
		uploaded = append(uploaded, objectPath)
		rows = append(rows, models.DeliveryFile{
			ID:           id,
			OrderID:      orderID,
			OriginalName: name,
			StoragePath:  objectPath,
			FileSize:     f.Size,
			FileType:     contentType,
			UploadedBy:   userID,
			Message:      message,
		})
	}

	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		return s.repo.WithTx(tx).CreateBatch(ctx, rows)
	})
	if err != nil {
		s.removeBlobs(ctx, uploaded)
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "persist delivery files")
	}

	s.logg.Info(s.logg.WithField(ctx, "file_count", len(rows)), "delivery files uploaded")
	return rows, nil
}

func (s *service) validateUpload(input UploadInput) error {
	if len(input.Files) == 0 {
		return pkgerrors.New(pkgerrors.CodeValidation, "at least one file is required")
	}
	if len(input.Files) > s.maxFiles {
		return pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("at most %d files per upload", s.maxFiles))
	}
	if len(input.Message) > maxMessageLength {
		return pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("message must be at most %d characters", maxMessageLength))
	}
	for _, f := range input.Files {
		if strings.TrimSpace(f.Name) == "" {
			return pkgerrors.New(pkgerrors.CodeValidation, "file name is required")
		}
		if f.Body == nil {
			return pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("file %q has no content", f.Name))
		}
		if f.Size <= 0 {
			return pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("file %q is empty", f.Name))
		}
		if s.maxBytes > 0 && f.Size > s.maxBytes {
			return pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("file %q exceeds %d bytes", f.Name, s.maxBytes)).
				WithDetails(map[string]any{"file": f.Name, "max_bytes": s.maxBytes})
		}
	}
	return nil
}

func (s *service) List(ctx context.Context, userID, orderID uuid.UUID) ([]FileView, error) {
	order, actor, err := s.orders.Party(ctx, userID, orderID)
	if err != nil {
		return nil, err
	}
	rows, err := s.repo.ListByOrder(ctx, order.ID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list delivery files")
	}

	withURL := actor == enums.ActorRoleSeller || order.Status == enums.OrderStatusCompleted
	views := make([]FileView, 0, len(rows))
	for _, row := range rows {
		view := FileView{DeliveryFile: row}
		if withURL {
			url, err := s.blobs.SignedURL(ctx, row.StoragePath, s.urlExpiry)
			if err != nil {
				return nil, pkgerrors.Wrap(pkgerrors.CodeStorage, err, "sign download url")
			}
			view.DownloadURL = url
		}
		views = append(views, view)
	}
	return views, nil
}

// Access returns a download link for one file. A buyer's first access to a
// delivered order starts the auto-payment window.
func (s *service) Access(ctx context.Context, userID, orderID uuid.UUID, filename string) (*AccessResult, error) {
	name := strings.TrimSpace(filename)
	if name == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "filename is required")
	}
	order, actor, err := s.orders.Party(ctx, userID, orderID)
	if err != nil {
		return nil, err
	}
	if actor == enums.ActorRoleBuyer &&
		order.Status != enums.OrderStatusDelivered &&
		order.Status != enums.OrderStatusCompleted {
		return nil, pkgerrors.New(pkgerrors.CodePrecondition, "delivery files are available once the order is delivered").
			WithDetails(map[string]string{"current": string(order.Status)})
	}

	file, err := s.repo.FindByName(ctx, order.ID, name)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "delivery file not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load delivery file")
	}

	url, err := s.blobs.SignedURL(ctx, file.StoragePath, s.urlExpiry)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeStorage, err, "sign download url")
	}

	res := &AccessResult{
		File:        FileView{DeliveryFile: *file, DownloadURL: url},
		DownloadURL: url,
		ExpiresAt:   s.now().UTC().Add(s.urlExpiry),
	}
	if actor == enums.ActorRoleBuyer && order.Status == enums.OrderStatusDelivered {
		current, armed, err := s.orders.ArmAutoPayment(ctx, order)
		if err != nil {
			return nil, err
		}
		res.AutoPaymentArmed = armed
		if current != nil {
			res.AutoPaymentDeadline = current.AutoPaymentDeadline
		}
	}
	return res, nil
}

func (s *service) Delete(ctx context.Context, userID, orderID, fileID uuid.UUID) error {
	order, _, err := s.orders.Party(ctx, userID, orderID)
	if err != nil {
		return err
	}
	if order.Status == enums.OrderStatusCompleted {
		return pkgerrors.New(pkgerrors.CodeInvalidState, "delivery files of a completed order cannot be deleted")
	}

	file, err := s.repo.FindByID(ctx, order.ID, fileID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return pkgerrors.New(pkgerrors.CodeNotFound, "delivery file not found")
		}
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load delivery file")
	}
	deleted, err := s.repo.Delete(ctx, order.ID, file.ID)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "delete delivery file")
	}
	if !deleted {
		return pkgerrors.New(pkgerrors.CodeNotFound, "delivery file not found")
	}

	ctx = s.logg.WithOrderID(ctx, order.ID.String())
	if err := s.blobs.Delete(ctx, file.StoragePath); err != nil {
		s.logg.Error(s.logg.WithField(ctx, "storage_path", file.StoragePath), "failed to remove delivery blob", err)
	}
	s.logg.Info(s.logg.WithField(ctx, "file_id", file.ID.String()), "delivery file deleted")
	return nil
}

func (s *service) removeBlobs(ctx context.Context, paths []string) {
	if len(paths) == 0 {
		return
	}
	if err := s.blobs.Delete(ctx, paths...); err != nil {
		s.logg.Error(s.logg.WithField(ctx, "blob_count", len(paths)), "failed to remove orphaned delivery blobs", err)
	}
}

func blobPath(orderID, fileID uuid.UUID, name string) string {
	clean := sanitizeFileName(name)
	if clean == "" {
		clean = fileID.String()
	}
	return fmt.Sprintf("orders/%s/%s/%s", orderID, fileID, clean)
}

func sanitizeFileName(name string) string {
	clean := path.Base(strings.ReplaceAll(strings.TrimSpace(name), "\\", "/"))
	if clean == "." || clean == "/" {
		return ""
	}
	var b strings.Builder
	b.Grow(len(clean))
	for _, r := range clean {
		switch {
		case unicode.IsControl(r):
			continue
		case unicode.IsSpace(r):
			b.WriteRune('-')
		default:
			b.WriteRune(r)
		}
	}
	return strings.Trim(b.String(), "-_.")
}

func detectContentType(name, declared string) string {
	if ct := strings.TrimSpace(declared); ct != "" {
		if mediaType, _, err := mime.ParseMediaType(ct); err == nil {
			return mediaType
		}
	}
	if ct := mime.TypeByExtension(strings.ToLower(filepath.Ext(name))); ct != "" {
		if mediaType, _, err := mime.ParseMediaType(ct); err == nil {
			return mediaType
		}
	}
	return "application/octet-stream"
}
