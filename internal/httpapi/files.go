package httpapi

import (
	"errors"
	"io"
	"mime"
	"net/http"
	"path"
	"strings"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"efiling.org/internal/blob"
	"efiling.org/internal/fault"
	"efiling.org/internal/store"
)

// serveFile streams a stored document. Submission documents are visible to
// their owner and to administrators; templates to every signed-in caller.
func (s *Server) serveFile(w http.ResponseWriter, r *http.Request) {
	key := mux.Vars(r)["key"]
	if err := blob.CheckKey(key); err != nil {
		writeFault(w, r, fault.New(fault.ErrNotFound, "File not found"))
		return
	}
	if err := s.authorizeFile(r, key); err != nil {
		writeFault(w, r, err)
		return
	}
	rc, err := s.blobs.Open(r.Context(), key)
	if err != nil {
		if errors.Is(err, blob.ErrNotFound) {
			writeFault(w, r, fault.Wrap(fault.ErrNotFound, err, "File not found"))
			return
		}
		writeFault(w, r, fault.Wrap(fault.ErrTransport, err, ""))
		return
	}
	defer rc.Close()

	name := path.Base(key)
	w.Header().Set("Content-Type", contentType(name))
	w.Header().Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": name}))
	w.WriteHeader(http.StatusOK)
	if _, err := io.Copy(w, rc); err != nil {
		s.logger.Warn("file stream interrupted", zap.String("key", key), zap.Error(err))
	}
}

func (s *Server) authorizeFile(r *http.Request, key string) error {
	parts := strings.SplitN(key, "/", 3)
	if parts[0] != "submissions" {
		return nil
	}
	self := caller(r)
	if self.IsAdmin() {
		return nil
	}
	if len(parts) < 3 {
		return fault.New(fault.ErrNotFound, "File not found")
	}
	sub, err := s.store.Submission(r.Context(), parts[1])
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return fault.New(fault.ErrNotFound, "File not found")
		}
		return storeFault(err, "", "")
	}
	if sub.Owner.ID != self.ID {
		return fault.New(fault.ErrAuthorization, "You can only download your own documents")
	}
	return nil
}
