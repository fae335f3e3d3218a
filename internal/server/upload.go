package server

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/natefinch/atomic"

	"example.com/rrcforge/internal/common"
)

// maxUploadBytes caps one uploaded file. The pipeline consumes decoded
// field lists, domain files and rule packs; none of them comes close.
const maxUploadBytes = 32 << 20

// uploadExts lists the input formats the generation endpoints accept.
var uploadExts = map[string]bool{
	".json":   true,
	".ndjson": true,
	".zip":    true,
}

// uploadedFile extends the artifact reference with the content digest
// so callers can verify what the daemon stored.
type uploadedFile struct {
	ArtifactRef
	SHA256 string `json:"sha256"`
}

// handleUpload ingests generation inputs and registers each as an
// artifact. The returned ids are accepted wherever /generate takes a
// path.
func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		http.Error(w, fmt.Sprintf("parse multipart: %v", err), http.StatusBadRequest)
		return
	}
	if r.MultipartForm == nil {
		http.Error(w, "no files provided", http.StatusBadRequest)
		return
	}
	var files []uploadedFile
	for _, headers := range r.MultipartForm.File {
		for _, fh := range headers {
			uf, err := s.storeUpload(fh)
			if err != nil {
				http.Error(w, fmt.Sprintf("upload %s: %v", fh.Filename, err), http.StatusBadRequest)
				return
			}
			files = append(files, uf)
		}
	}
	if len(files) == 0 {
		http.Error(w, "no files uploaded", http.StatusBadRequest)
		return
	}
	writeJSON(w, http.StatusOK, struct {
		Files []uploadedFile `json:"files"`
	}{Files: files})
}

// storeUpload persists one uploaded file under its content digest.
// Re-uploading identical content lands on the same stored file and
// simply issues a fresh artifact id for it.
func (s *Server) storeUpload(fh *multipart.FileHeader) (uploadedFile, error) {
	var uf uploadedFile
	if fh == nil {
		return uf, errors.New("nil file header")
	}
	ext := strings.ToLower(filepath.Ext(fh.Filename))
	if !uploadExts[ext] {
		return uf, fmt.Errorf("unsupported upload type %q (want .json, .ndjson or .zip)", ext)
	}
	src, err := fh.Open()
	if err != nil {
		return uf, err
	}
	defer src.Close()
	data, err := io.ReadAll(io.LimitReader(src, maxUploadBytes+1))
	if err != nil {
		return uf, err
	}
	if len(data) > maxUploadBytes {
		return uf, fmt.Errorf("file exceeds the %d MiB upload limit", maxUploadBytes>>20)
	}
	digest := common.Sha256OfBytes(data)
	dest := filepath.Join(s.uploadsDir, digest[:16]+ext)
	if _, err := os.Stat(dest); err != nil {
		if err := atomic.WriteFile(dest, bytes.NewReader(data)); err != nil {
			return uf, err
		}
	}
	art, err := s.addArtifact(dest, fh.Filename, guessContentType(fh.Filename), "upload")
	if err != nil {
		return uf, err
	}
	return uploadedFile{ArtifactRef: toRef(art), SHA256: digest}, nil
}
