// Package imaging stores and serves patient x-ray images.
package imaging

import (
	"context"
	"errors"
	"io"
	"strings"

	"github.com/google/uuid"

	"github.com/dentaldesk/clinic/internal/domain/patient"
	"github.com/dentaldesk/clinic/internal/platform/auth"
	"github.com/dentaldesk/clinic/internal/platform/blobstore"
	"github.com/dentaldesk/clinic/internal/platform/db"
	"github.com/dentaldesk/clinic/internal/platform/websocket"
)

// CategoryXRay tags x-ray blobs in the shared blob store.
const CategoryXRay = "xray"

// AllowedContentTypes are the image formats accepted for upload.
var AllowedContentTypes = map[string]bool{
	"image/png":         true,
	"image/jpeg":        true,
	"application/dicom": true,
}

var ErrNotFound = errors.New("x-ray not found")

type PatientAccess interface {
	Access(ctx context.Context, id uuid.UUID) (*patient.Patient, error)
}

type Service struct {
	blobs    blobstore.BlobStore
	patients PatientAccess
	notifier *websocket.Notifier
}

func NewService(blobs blobstore.BlobStore, patients PatientAccess, notifier *websocket.Notifier) *Service {
	return &Service{blobs: blobs, patients: patients, notifier: notifier}
}

// Upload stores an image for a patient the caller may read.
func (s *Service) Upload(ctx context.Context, patientID uuid.UUID, fileName, contentType, notes string, content io.Reader) (*blobstore.BlobMetadata, error) {
	if _, err := s.patients.Access(ctx, patientID); err != nil {
		return nil, err
	}
	meta, err := s.blobs.Put(ctx, blobstore.BlobMetadata{
		OwnerID:     patientID.String(),
		Category:    CategoryXRay,
		FileName:    fileName,
		ContentType: contentType,
		Notes:       strings.TrimSpace(notes),
		CreatedBy:   auth.UserIDFromContext(ctx),
	}, content)
	if err != nil {
		return nil, err
	}
	s.notifier.Notify(ctx, db.TenantFromContext(ctx), websocket.EventXRayUploaded, meta.ID, meta.OwnerID, meta)
	return meta, nil
}

// List returns a patient's x-rays, newest first.
func (s *Service) List(ctx context.Context, patientID uuid.UUID) ([]*blobstore.BlobMetadata, error) {
	if _, err := s.patients.Access(ctx, patientID); err != nil {
		return nil, err
	}
	return s.blobs.ListByOwner(ctx, patientID.String(), CategoryXRay)
}

// Open returns the content of one x-ray after checking access to its
// patient. The caller closes the reader.
func (s *Service) Open(ctx context.Context, id uuid.UUID) (io.ReadCloser, *blobstore.BlobMetadata, error) {
	meta, err := s.blobs.Stat(ctx, id.String())
	if errors.Is(err, blobstore.ErrBlobNotFound) {
		return nil, nil, ErrNotFound
	}
	if err != nil {
		return nil, nil, err
	}
	if meta.Category != CategoryXRay {
		return nil, nil, ErrNotFound
	}
	owner, err := uuid.Parse(meta.OwnerID)
	if err != nil {
		return nil, nil, ErrNotFound
	}
	if _, err := s.patients.Access(ctx, owner); err != nil {
		return nil, nil, err
	}
	rc, meta, err := s.blobs.Get(ctx, id.String())
	if errors.Is(err, blobstore.ErrBlobNotFound) {
		return nil, nil, ErrNotFound
	}
	return rc, meta, err
}
