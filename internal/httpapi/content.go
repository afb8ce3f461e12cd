package httpapi

import (
	"context"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/nullstream/imgrelay/internal/magic"
	"github.com/nullstream/imgrelay/internal/resolver"
	"github.com/nullstream/imgrelay/internal/uuidutil"
)

// upstreamTimeout bounds the passthrough fetch from the resolved URL;
// a stalled upstream must not tie up the handler indefinitely.
const upstreamTimeout = 20 * time.Second

// contentHandler implements GET /content/{file_uuid}: resolve the
// external id to an upstream download URL, then stream the bytes back
// verbatim rather than issuing a redirect, so the caller never learns
// the upstream credential embedded in the URL.
type contentHandler struct {
	resolver *resolver.Resolver
	log      *zap.Logger

	httpClient *http.Client
}

func (h *contentHandler) client() *http.Client {
	if h.httpClient != nil {
		return h.httpClient
	}
	return http.DefaultClient
}

func (h *contentHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	raw := chi.URLParam(r, "file_uuid")
	id, err := uuidutil.Parse(raw)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid file_uuid")
		return
	}

	url, err := h.resolver.Resolve(r.Context(), id)
	if errors.Is(err, resolver.ErrNotFound) {
		writeError(w, http.StatusNotFound, "file not found")
		return
	}
	if err != nil {
		h.log.Error("resolve failed", zap.Error(err), zap.String("file_uuid", raw))
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), upstreamTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		h.log.Error("build upstream request failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	resp, err := h.client().Do(req)
	if err != nil {
		if ctx.Err() != nil {
			writeError(w, http.StatusGatewayTimeout, "upstream timed out")
			return
		}
		h.log.Error("upstream fetch failed", zap.Error(err), zap.String("file_uuid", raw))
		writeError(w, http.StatusBadGateway, "upstream unavailable")
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNoContent {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	if resp.StatusCode != http.StatusOK {
		// Mirror the upstream's failure class rather than inventing
		// one: a 404 from upstream most often means the file_path
		// expired between resolve and fetch, which is itself a kind
		// of not-found from the caller's perspective. Any other
		// unexpected status becomes a 502.
		status := http.StatusBadGateway
		if resp.StatusCode >= 400 && resp.StatusCode < 600 {
			status = resp.StatusCode
		}
		writeError(w, status, "upstream returned an error")
		return
	}

	contentType := resp.Header.Get("Content-Type")
	if contentType == "" || contentType == "application/octet-stream" {
		head := make([]byte, 1024)
		n, _ := resp.Body.Read(head)
		head = head[:n]
		if sniffed := sniffOrFallback(head); sniffed != "" {
			contentType = sniffed
		}
		w.Header().Set("Content-Type", contentType)
		w.WriteHeader(http.StatusOK)
		w.Write(head)
		copyRest(w, resp.Body, h.log)
		return
	}

	w.Header().Set("Content-Type", contentType)
	if cl := resp.Header.Get("Content-Length"); cl != "" {
		w.Header().Set("Content-Length", cl)
	}
	w.WriteHeader(http.StatusOK)
	copyRest(w, resp.Body, h.log)
}

// sniffOrFallback matches the restricted image signature table and
// otherwise falls back to the generic binary content type, since an
// upstream that omits Content-Type has still been through the ingest
// endpoint's own sniff check at upload time.
func sniffOrFallback(head []byte) string {
	if mt := magic.SniffImage(head); mt != "" {
		return mt
	}
	return "application/octet-stream"
}

func copyRest(w io.Writer, body io.Reader, log *zap.Logger) {
	if _, err := io.Copy(w, body); err != nil {
		log.Warn("content stream interrupted", zap.Error(err))
	}
}
