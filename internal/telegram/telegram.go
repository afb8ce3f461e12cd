// Package telegram implements the thin client for the upstream
// messaging API described in spec §6: sendDocument to upload a file
// into a chat, and getFile to materialize a time-limited download path
// for a previously-uploaded file. Upload calls use a 60s
// read/write/connect timeout to accommodate large payloads; getFile
// calls use a 30s request / 5s connect timeout, per spec §5.
package telegram

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/nullstream/imgrelay/internal/errs"
)

// apiBase is a var, not a const, so tests can point it at an
// httptest.Server instead of the real upstream.
var apiBase = "https://api.telegram.org"

// RateLimited is returned when the upstream asks the caller to back
// off for RetryAfter seconds before retrying the same request.
type RateLimited struct {
	RetryAfter time.Duration
}

func (e *RateLimited) Error() string {
	return fmt.Sprintf("telegram: rate limited, retry after %s", e.RetryAfter)
}

// Client is bound to exactly one credential and one destination chat,
// matching one Worker's ownership.
type Client struct {
	token  string
	chatID int64

	uploadHTTP *http.Client
	apiHTTP    *http.Client
}

// New constructs a Client for token/chatID with the timeout profile
// spec §5 requires: a fast-failing client for getFile/control calls,
// and a generous one for document uploads.
func New(token string, chatID int64) *Client {
	return &Client{
		token:  token,
		chatID: chatID,
		uploadHTTP: &http.Client{
			Timeout: 60 * time.Second,
			Transport: &http.Transport{
				DialContext: (&net.Dialer{Timeout: 60 * time.Second}).DialContext,
			},
		},
		apiHTTP: &http.Client{
			Timeout: 30 * time.Second,
			Transport: &http.Transport{
				DialContext: (&net.Dialer{Timeout: 5 * time.Second}).DialContext,
			},
		},
	}
}

// SendDocument uploads the file at path as a document, with caption,
// to the client's chat. It returns the message_id and the document's
// file_id, as described in spec §6's upstream contract.
func (c *Client) SendDocument(ctx context.Context, path, caption string) (msgID int64, fileID string, err error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, "", fmt.Errorf("telegram: open %s: %w", path, err)
	}
	defer f.Close()

	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	if err := w.WriteField("chat_id", strconv.FormatInt(c.chatID, 10)); err != nil {
		return 0, "", fmt.Errorf("telegram: write chat_id field: %w", err)
	}
	if err := w.WriteField("caption", caption); err != nil {
		return 0, "", fmt.Errorf("telegram: write caption field: %w", err)
	}
	part, err := w.CreateFormFile("document", filepath.Base(path))
	if err != nil {
		return 0, "", fmt.Errorf("telegram: create form file: %w", err)
	}
	if _, err := io.Copy(part, f); err != nil {
		return 0, "", fmt.Errorf("telegram: copy file contents: %w", err)
	}
	if err := w.Close(); err != nil {
		return 0, "", fmt.Errorf("telegram: close multipart writer: %w", err)
	}

	url := fmt.Sprintf("%s/bot%s/sendDocument", apiBase, c.token)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, &buf)
	if err != nil {
		return 0, "", fmt.Errorf("telegram: new request: %w", err)
	}
	req.Header.Set("Content-Type", w.FormDataContentType())

	resp, err := c.uploadHTTP.Do(req)
	if err != nil {
		return 0, "", errs.NewTransient(fmt.Errorf("telegram: sendDocument: %w", err))
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests {
		return 0, "", &RateLimited{RetryAfter: parseRetryAfter(resp)}
	}
	if resp.StatusCode >= 500 {
		return 0, "", errs.NewTransient(fmt.Errorf("telegram: sendDocument upstream error %d", resp.StatusCode))
	}

	var out struct {
		OK     bool `json:"ok"`
		Result struct {
			MessageID int64 `json:"message_id"`
			Document  struct {
				FileID string `json:"file_id"`
			} `json:"document"`
		} `json:"result"`
		ErrorCode   int    `json:"error_code"`
		Description string `json:"description"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return 0, "", fmt.Errorf("telegram: decode sendDocument response: %w", err)
	}
	if !out.OK {
		// A 4xx application-level rejection (bad chat, oversized file,
		// malformed request) will not succeed on retry with the same
		// bytes.
		return 0, "", errs.NewPermanent(fmt.Errorf("telegram: sendDocument error %d: %s", out.ErrorCode, out.Description))
	}
	return out.Result.MessageID, out.Result.Document.FileID, nil
}

// GetFile resolves a file_id to its current upstream file_path, the
// building block of the downloadable URL.
func (c *Client) GetFile(ctx context.Context, fileID string) (filePath string, err error) {
	url := fmt.Sprintf("%s/bot%s/getFile?file_id=%s", apiBase, c.token, fileID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", fmt.Errorf("telegram: new request: %w", err)
	}

	resp, err := c.apiHTTP.Do(req)
	if err != nil {
		return "", errs.NewTransient(fmt.Errorf("telegram: getFile: %w", err))
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 500 {
		return "", errs.NewTransient(fmt.Errorf("telegram: getFile upstream error %d", resp.StatusCode))
	}

	var out struct {
		OK     bool `json:"ok"`
		Result struct {
			FilePath string `json:"file_path"`
		} `json:"result"`
		ErrorCode   int    `json:"error_code"`
		Description string `json:"description"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("telegram: decode getFile response: %w", err)
	}
	if !out.OK {
		return "", errs.NewPermanent(fmt.Errorf("telegram: getFile error %d: %s", out.ErrorCode, out.Description))
	}
	return out.Result.FilePath, nil
}

// Token returns the credential this client is bound to, so callers
// that only have a bot_token on hand (e.g. the resolver's L2 path) can
// find the client that owns it.
func (c *Client) Token() string { return c.token }

// DownloadURL composes the absolute download URL for a resolved
// file_path, valid for at least one hour per spec §4.4.
func DownloadURL(token, filePath string) string {
	return fmt.Sprintf("%s/file/bot%s/%s", apiBase, token, filePath)
}

func parseRetryAfter(resp *http.Response) time.Duration {
	if v := resp.Header.Get("Retry-After"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return time.Duration(n) * time.Second
		}
	}
	return time.Second
}
