package service

import (
	"bytes"
	"context"
	"io"
	"mime/multipart"
	"net/textproto"
	"testing"

	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/noah-isme/newlearn-go-api/internal/models"
)

type storageStub struct {
	uploaded bytes.Buffer
	calls    int
}

func (s *storageStub) Upload(ctx context.Context, name string, reader io.Reader) (string, error) {
	s.calls++
	s.uploaded.Reset()
	_, err := s.uploaded.ReadFrom(reader)
	if err != nil {
		return "", err
	}
	return "https://cdn.example.com/chat/" + name + "?_a=signature", nil
}

type uploadRepoStub struct {
	records []models.UploadRecord
}

func (u *uploadRepoStub) Create(ctx context.Context, record *models.UploadRecord) error {
	record.ID = uint(len(u.records) + 1)
	u.records = append(u.records, *record)
	return nil
}

func (u *uploadRepoStub) FindByChecksum(ctx context.Context, userID, checksum string) (models.UploadRecord, error) {
	for _, record := range u.records {
		if record.UserID == userID && record.Checksum == checksum {
			return record, nil
		}
	}
	return models.UploadRecord{}, gorm.ErrRecordNotFound
}

var pngHeader = []byte{0x89, 0x50, 0x4E, 0x47, 0x0D, 0x0A, 0x1A, 0x0A}

func TestUploadServiceRejectsSize(t *testing.T) {
	svc := NewUploadService(&storageStub{}, &uploadRepoStub{}, 1, testLogger())

	file := buildFileHeader(t, "file.pdf", bytes.Repeat([]byte("a"), 2*1024*1024))

	_, err := svc.Upload(context.Background(), file, "s1")
	require.ErrorIs(t, err, ErrUploadTooLarge)
}

func TestUploadServiceTypeValidation(t *testing.T) {
	svc := NewUploadService(&storageStub{}, &uploadRepoStub{}, 5, testLogger())

	file := buildFileHeader(t, "file.txt", []byte("plain text"))
	_, err := svc.Upload(context.Background(), file, "s1")
	require.ErrorIs(t, err, ErrUploadTypeNotAllowed)

	_, err = svc.Upload(context.Background(), nil, "s1")
	require.ErrorIs(t, err, ErrUploadMissing)
}

func TestUploadServiceStoresPublicURLWithoutQuery(t *testing.T) {
	storage := &storageStub{}
	repo := &uploadRepoStub{}
	svc := NewUploadService(storage, repo, 5, testLogger())

	resp, err := svc.Upload(context.Background(), buildFileHeader(t, "My Photo.PNG", pngHeader), "s1")
	require.NoError(t, err)
	require.Equal(t, "https://cdn.example.com/chat/my-photo.png", resp.URL)
	require.Equal(t, "image/png", resp.MimeType)
	require.Len(t, repo.records, 1)
	require.Equal(t, "s1", repo.records[0].UserID)

	again, err := svc.Upload(context.Background(), buildFileHeader(t, "copy.png", pngHeader), "s1")
	require.NoError(t, err)
	require.Equal(t, resp.URL, again.URL, "identical bytes reuse the stored upload")
	require.Equal(t, 1, storage.calls)

	_, err = svc.Upload(context.Background(), buildFileHeader(t, "copy.png", pngHeader), "s2")
	require.NoError(t, err)
	require.Equal(t, 2, storage.calls)
}

func TestStripQuery(t *testing.T) {
	require.Equal(t, "https://bucket.s3.amazonaws.com/a.png", stripQuery("https://bucket.s3.amazonaws.com/a.png?X-Amz-Signature=abc#frag"))
	require.Equal(t, "https://cdn.example.com/a.png", stripQuery("https://cdn.example.com/a.png"))
}

func buildFileHeader(t *testing.T, filename string, content []byte) *multipart.FileHeader {
	t.Helper()
	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	part, err := writer.CreatePart(textproto.MIMEHeader{
		"Content-Disposition": {"form-data; name=\"file\"; filename=\"" + filename + "\""},
		"Content-Type":        {"application/octet-stream"},
	})
	require.NoError(t, err)
	_, err = part.Write(content)
	require.NoError(t, err)
	writer.Close()

	reader := multipart.NewReader(body, writer.Boundary())
	form, err := reader.ReadForm(int64(len(content) + 1024))
	require.NoError(t, err)
	files := form.File["file"]
	require.Len(t, files, 1)
	return files[0]
}
