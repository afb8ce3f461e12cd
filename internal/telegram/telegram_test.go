package telegram

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/nullstream/imgrelay/internal/errs"
)

func createTempFile(t *testing.T) (string, error) {
	t.Helper()
	f, err := os.CreateTemp(t.TempDir(), "upload-*")
	if err != nil {
		return "", err
	}
	defer f.Close()
	_, err = f.Write([]byte("fake image bytes"))
	return f.Name(), err
}

func TestParseRetryAfterFallsBackToOneSecond(t *testing.T) {
	resp := &http.Response{Header: http.Header{}}
	require.Equal(t, "1s", parseRetryAfter(resp).String())
}

func TestParseRetryAfterReadsHeader(t *testing.T) {
	resp := &http.Response{Header: http.Header{"Retry-After": []string{"30"}}}
	require.Equal(t, "30s", parseRetryAfter(resp).String())
}

func TestDownloadURLFormat(t *testing.T) {
	got := DownloadURL("123:ABC", "photos/file_0.jpg")
	require.Equal(t, "https://api.telegram.org/file/bot123:ABC/photos/file_0.jpg", got)
}

func TestTokenAccessor(t *testing.T) {
	c := New("my-token", 42)
	require.Equal(t, "my-token", c.Token())
}

func TestGetFileClassifiesApplicationErrorAsPermanent(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"ok":false,"error_code":400,"description":"Bad Request: file not found"}`))
	}))
	defer srv.Close()

	orig := apiBase
	apiBase = srv.URL
	defer func() { apiBase = orig }()

	c := New("tok", 1)
	c.apiHTTP = srv.Client()
	_, err := c.GetFile(context.Background(), "missing")
	require.Error(t, err)
	var perm *errs.Permanent
	require.ErrorAs(t, err, &perm)
}

func TestSendDocumentClassifiesServerErrorAsTransient(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	orig := apiBase
	apiBase = srv.URL
	defer func() { apiBase = orig }()

	f, err := createTempFile(t)
	require.NoError(t, err)

	c := New("tok", 1)
	c.uploadHTTP = srv.Client()
	_, _, err = c.SendDocument(context.Background(), f, "caption")
	require.Error(t, err)
	require.True(t, errs.IsTransient(err))
}
