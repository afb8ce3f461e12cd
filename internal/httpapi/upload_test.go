package httpapi

import (
	"bytes"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"regexp"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/nullstream/imgrelay/internal/queue"
)

var pngBytes = append([]byte("\x89PNG\r\n\x1a\n"), bytes.Repeat([]byte{0}, 64)...)

func multipartPNGRequest(t *testing.T, contentType string) *http.Request {
	t.Helper()
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)

	h := make(map[string][]string)
	h["Content-Disposition"] = []string{`form-data; name="file"; filename="pic.png"`}
	h["Content-Type"] = []string{contentType}
	part, err := w.CreatePart(h)
	require.NoError(t, err)
	_, err = part.Write(pngBytes)
	require.NoError(t, err)
	require.NoError(t, w.Close())

	req := httptest.NewRequest(http.MethodPost, "/upload", &buf)
	req.Header.Set("Content-Type", w.FormDataContentType())
	return req
}

func TestIngestHandlerAcceptsMatchingImage(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectExec(regexp.QuoteMeta(`INSERT INTO queues (file_uuid, state) VALUES (?, ?)`)).
		WillReturnResult(sqlmock.NewResult(1, 1))

	h := &ingestHandler{
		queues:         &queue.Store{DB: db},
		tempDir:        t.TempDir(),
		maxUploadBytes: 20 << 20,
		log:            zap.NewNop(),
	}

	req := multipartPNGRequest(t, "image/png")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	require.Equal(t, http.StatusAccepted, rec.Code)
	var resp uploadResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	require.NotEmpty(t, resp.FileUUID)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestIngestHandlerRejectsMismatchedDeclaredType(t *testing.T) {
	h := &ingestHandler{
		tempDir:        t.TempDir(),
		maxUploadBytes: 20 << 20,
		log:            zap.NewNop(),
	}

	req := multipartPNGRequest(t, "image/jpeg") // declared jpeg, bytes are png
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	require.Equal(t, http.StatusUnsupportedMediaType, rec.Code)
}

func TestIngestHandlerRejectsDisallowedContentType(t *testing.T) {
	h := &ingestHandler{
		tempDir:        t.TempDir(),
		maxUploadBytes: 20 << 20,
		log:            zap.NewNop(),
	}

	req := multipartPNGRequest(t, "application/pdf")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	require.Equal(t, http.StatusUnsupportedMediaType, rec.Code)
}

func TestIngestHandlerRejectsMissingFileField(t *testing.T) {
	h := &ingestHandler{
		tempDir:        t.TempDir(),
		maxUploadBytes: 20 << 20,
		log:            zap.NewNop(),
	}

	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	require.NoError(t, w.WriteField("not_file", "x"))
	require.NoError(t, w.Close())

	req := httptest.NewRequest(http.MethodPost, "/upload", &buf)
	req.Header.Set("Content-Type", w.FormDataContentType())

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	require.Equal(t, http.StatusBadRequest, rec.Code)
}
