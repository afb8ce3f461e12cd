package httpapi

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"

	"go.uber.org/zap"

	"github.com/nullstream/imgrelay/internal/magic"
	"github.com/nullstream/imgrelay/internal/queue"
	"github.com/nullstream/imgrelay/internal/uuidutil"
)

// sniffPrefixLen is the number of leading bytes read before the rest of
// the body is streamed to disk; large enough to cover every signature
// in the magic table, including the 12-byte WEBP RIFF header.
const sniffPrefixLen = 1024

// ingestHandler implements POST /upload: accept one multipart image
// file, stage it to disk under its assigned UUID, and enqueue a READY
// job. It never talks to the upstream directly — that is the worker's
// job, decoupled from the request/response cycle.
type ingestHandler struct {
	queues         *queue.Store
	tempDir        string
	maxUploadBytes int64
	log            *zap.Logger
}

type uploadResponse struct {
	FileUUID string `json:"file_uuid"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func writeError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(errorResponse{Error: msg})
}

func (h *ingestHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, h.maxUploadBytes+1<<20) // headroom for multipart overhead

	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, "missing or unreadable \"file\" field")
		return
	}
	defer file.Close()

	declared := header.Header.Get("Content-Type")
	if !magic.AllowedMimeTypes[declared] {
		writeError(w, http.StatusUnsupportedMediaType, fmt.Sprintf("unsupported content type %q", declared))
		return
	}

	prefix := make([]byte, sniffPrefixLen)
	n, err := io.ReadFull(file, prefix)
	if err != nil && err != io.ErrUnexpectedEOF && err != io.EOF {
		writeError(w, http.StatusBadRequest, "failed reading upload")
		return
	}
	prefix = prefix[:n]

	sniffed := magic.SniffImage(prefix)
	if sniffed == "" || sniffed != declared {
		writeError(w, http.StatusUnsupportedMediaType, "declared content type does not match file contents")
		return
	}

	id, err := uuidutil.New()
	if err != nil {
		h.log.Error("uuid generation failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	if err := os.MkdirAll(h.tempDir, 0o755); err != nil {
		h.log.Error("temp dir create failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	dest := filepath.Join(h.tempDir, id.String())

	// Size is enforced on the running total, not just the declared
	// Content-Length, since the latter is caller-supplied and untrusted.
	written, err := h.stageFile(dest, prefix, file)
	if err != nil {
		h.log.Error("stage upload failed", zap.Error(err), zap.String("file_uuid", id.String()))
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	if written > h.maxUploadBytes {
		os.Remove(dest)
		writeError(w, http.StatusRequestEntityTooLarge, "file exceeds maximum upload size")
		return
	}

	if err := h.queues.Enqueue(r.Context(), id); err != nil {
		os.Remove(dest)
		h.log.Error("enqueue failed", zap.Error(err), zap.String("file_uuid", id.String()))
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusAccepted)
	_ = json.NewEncoder(w).Encode(uploadResponse{FileUUID: id.String()})
}

// stageFile writes prefix followed by the remainder of r to dest,
// fsyncing before close so the bytes are durable on the local
// filesystem before the queue row is ever visible to a worker.
func (h *ingestHandler) stageFile(dest string, prefix []byte, r io.Reader) (int64, error) {
	f, err := os.OpenFile(dest, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return 0, fmt.Errorf("open dest: %w", err)
	}
	defer f.Close()

	n1, err := f.Write(prefix)
	if err != nil {
		return 0, fmt.Errorf("write prefix: %w", err)
	}
	n2, err := io.Copy(f, io.LimitReader(r, h.maxUploadBytes+1))
	if err != nil {
		return 0, fmt.Errorf("write body: %w", err)
	}
	if err := f.Sync(); err != nil {
		return 0, fmt.Errorf("fsync: %w", err)
	}
	return int64(n1) + n2, nil
}
