package service

import (
	"archive/zip"
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/url"
	"path/filepath"
	"strings"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"

	"github.com/noah-isme/newlearn-go-api/internal/dto"
	"github.com/noah-isme/newlearn-go-api/internal/models"
	"github.com/noah-isme/newlearn-go-api/internal/observability"
	"github.com/noah-isme/newlearn-go-api/internal/repository"
)

var (
	// ErrUploadMissing indicates the request carried no file.
	ErrUploadMissing = errors.New("file is required")
	// ErrUploadTooLarge indicates the payload exceeded the configured limit.
	ErrUploadTooLarge = errors.New("file exceeds maximum allowed size")
	// ErrUploadTypeNotAllowed indicates the MIME type is not permitted.
	ErrUploadTypeNotAllowed = errors.New("file type not allowed")
	// ErrUploadScanFailed indicates validation of the file failed.
	ErrUploadScanFailed = errors.New("file scanning failed")
)

// FileStorage abstracts upload destinations.
type FileStorage interface {
	Upload(ctx context.Context, name string, reader io.Reader) (string, error)
}

// UploadService validates chat attachments and stores them, returning the
// public URL a message references.
type UploadService interface {
	Upload(ctx context.Context, file *multipart.FileHeader, userID string) (dto.UploadResponse, error)
}

type uploadService struct {
	storage FileStorage
	repo    repository.UploadRepository
	logger  zerolog.Logger
	maxSize int64
	tracer  trace.Tracer
}

// NewUploadService constructs an upload service.
func NewUploadService(storage FileStorage, repo repository.UploadRepository, maxSizeMB int, logger zerolog.Logger) UploadService {
	if maxSizeMB <= 0 {
		maxSizeMB = 10
	}
	return &uploadService{
		storage: storage,
		repo:    repo,
		logger:  logger.With().Str("component", "upload_service").Logger(),
		maxSize: int64(maxSizeMB) * 1024 * 1024,
		tracer:  otel.Tracer("github.com/noah-isme/newlearn-go-api/internal/service/upload"),
	}
}

func (s *uploadService) Upload(ctx context.Context, file *multipart.FileHeader, userID string) (dto.UploadResponse, error) {
	ctx, span := s.tracer.Start(ctx, "upload.store")
	defer span.End()

	span.SetAttributes(
		attribute.Int64("upload.max_bytes", s.maxSize),
		attribute.String("upload.user_id", userID),
	)

	start := time.Now()
	defer func() {
		observability.UploadLatency().Observe(time.Since(start).Seconds())
	}()

	if file == nil {
		span.RecordError(ErrUploadMissing)
		span.SetStatus(codes.Error, "validation failed")
		return dto.UploadResponse{}, ErrUploadMissing
	}
	span.SetAttributes(
		attribute.String("upload.original_name", strings.TrimSpace(file.Filename)),
		attribute.Int64("upload.request_size", file.Size),
	)

	if file.Size > s.maxSize {
		return dto.UploadResponse{}, s.reject(span, "size", ErrUploadTooLarge)
	}

	handle, err := file.Open()
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "open failed")
		return dto.UploadResponse{}, err
	}
	defer handle.Close()

	buf := bytes.NewBuffer(nil)
	if _, err := io.Copy(buf, io.LimitReader(handle, s.maxSize+1)); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "read failed")
		return dto.UploadResponse{}, err
	}
	if int64(buf.Len()) > s.maxSize {
		return dto.UploadResponse{}, s.reject(span, "size", ErrUploadTooLarge)
	}

	detected := mimetype.Detect(buf.Bytes())
	fileType := normalizeMime(detected.String())
	span.SetAttributes(attribute.String("upload.detected_mime", fileType))
	if !isAllowedType(fileType) {
		return dto.UploadResponse{}, s.reject(span, "type", ErrUploadTypeNotAllowed)
	}

	if err := s.scan(buf.Bytes(), fileType); err != nil {
		return dto.UploadResponse{}, s.reject(span, "scan", err)
	}

	sum := sha256.Sum256(buf.Bytes())
	checksum := hex.EncodeToString(sum[:])

	if existing, err := s.repo.FindByChecksum(ctx, userID, checksum); err == nil {
		span.SetAttributes(attribute.Bool("upload.reused", true))
		span.SetStatus(codes.Ok, "reused")
		return uploadResponse(existing), nil
	} else if !errors.Is(err, gorm.ErrRecordNotFound) {
		s.logger.Warn().Err(err).Msg("checksum lookup failed")
	}

	sanitizedName := sanitizeFileName(file.Filename)
	span.SetAttributes(
		attribute.String("upload.sanitized_name", sanitizedName),
		attribute.Int64("upload.size_bytes", int64(buf.Len())),
	)

	location, err := s.storage.Upload(ctx, sanitizedName, bytes.NewReader(buf.Bytes()))
	if err != nil {
		return dto.UploadResponse{}, s.reject(span, "storage", err)
	}

	record := models.UploadRecord{
		UserID:    userID,
		FileName:  sanitizedName,
		URL:       stripQuery(location),
		MimeType:  fileType,
		SizeBytes: int64(buf.Len()),
		Checksum:  checksum,
	}
	if err := s.repo.Create(ctx, &record); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "persistence failed")
		return dto.UploadResponse{}, err
	}

	span.SetStatus(codes.Ok, "stored")
	s.logger.Info().Str("user_id", userID).Str("mime", fileType).Int64("size", record.SizeBytes).Msg("chat media stored")

	return uploadResponse(record), nil
}

func (s *uploadService) reject(span trace.Span, reason string, err error) error {
	observability.UploadRejections().WithLabelValues(reason).Inc()
	span.RecordError(err)
	span.SetStatus(codes.Error, reason)
	return err
}

func (s *uploadService) scan(payload []byte, mime string) error {
	if strings.Contains(mime, "zip") {
		reader, err := zip.NewReader(bytes.NewReader(payload), int64(len(payload)))
		if err != nil {
			return ErrUploadScanFailed
		}
		var totalUncompressed uint64
		for _, f := range reader.File {
			totalUncompressed += f.UncompressedSize64
			if totalUncompressed > uint64(s.maxSize*20) {
				return fmt.Errorf("zip archive uncompressed size too large: %w", ErrUploadScanFailed)
			}
		}
	}
	return nil
}

func uploadResponse(record models.UploadRecord) dto.UploadResponse {
	return dto.UploadResponse{
		URL:       record.URL,
		FileName:  record.FileName,
		MimeType:  record.MimeType,
		SizeBytes: record.SizeBytes,
		Checksum:  record.Checksum,
	}
}

// stripQuery drops signing parameters so the stored reference is the public URL.
func stripQuery(raw string) string {
	parsed, err := url.Parse(raw)
	if err != nil {
		if idx := strings.IndexAny(raw, "?#"); idx >= 0 {
			return raw[:idx]
		}
		return raw
	}
	parsed.RawQuery = ""
	parsed.Fragment = ""
	return parsed.String()
}

func sanitizeFileName(name string) string {
	base := strings.TrimSuffix(name, filepath.Ext(name))
	base = strings.ToLower(base)
	base = strings.Map(func(r rune) rune {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			return r
		}
		if r == '-' || r == '_' {
			return r
		}
		return '-'
	}, base)
	base = strings.Trim(base, "-")
	if base == "" {
		base = fmt.Sprintf("upload-%d", time.Now().Unix())
	}
	ext := strings.ToLower(filepath.Ext(name))
	if ext == "" {
		ext = ".bin"
	}
	return base + ext
}

func normalizeMime(m string) string {
	lower := strings.ToLower(strings.TrimSpace(m))
	if idx := strings.Index(lower, ";"); idx >= 0 {
		lower = strings.TrimSpace(lower[:idx])
	}
	switch lower {
	case "application/x-zip-compressed":
		return "application/zip"
	default:
		return lower
	}
}

func isAllowedType(m string) bool {
	switch {
	case strings.HasPrefix(m, "image/"), strings.HasPrefix(m, "audio/"):
		return true
	case m == "application/pdf", m == "application/zip":
		return true
	default:
		return false
	}
}
