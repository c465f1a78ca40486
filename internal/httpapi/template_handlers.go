package httpapi

import (
	"errors"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"efiling.org/internal/audit"
	"efiling.org/internal/blob"
	"efiling.org/internal/fault"
	"efiling.org/internal/filing"
	"efiling.org/internal/ids"
)

func (s *Server) listTemplates(w http.ResponseWriter, r *http.Request) {
	templates, err := s.store.ListTemplates(r.Context())
	if err != nil {
		writeFault(w, r, storeFault(err, "", ""))
		return
	}
	if templates == nil {
		templates = []filing.Template{}
	}
	writeJSON(w, http.StatusOK, templates)
}

func (s *Server) templateTypes(w http.ResponseWriter, r *http.Request) {
	types, err := s.backend.TemplateTypes(r.Context())
	if err != nil {
		writeFault(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, types)
}

func (s *Server) templateCount(w http.ResponseWriter, r *http.Request) {
	counts, err := s.store.Counts(r.Context())
	if err != nil {
		writeFault(w, r, storeFault(err, "", ""))
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"count": counts.Templates})
}

func (s *Server) createTemplate(w http.ResponseWriter, r *http.Request) {
	if err := parseMultipart(r); err != nil {
		writeFault(w, r, err)
		return
	}
	defer func() { _ = r.MultipartForm.RemoveAll() }()

	file, closeFile := formDocument(r, "file")
	defer closeFile()
	in := filing.TemplateInput{
		Name:        strings.TrimSpace(r.FormValue("name")),
		Description: strings.TrimSpace(r.FormValue("description")),
		Type:        strings.TrimSpace(r.FormValue("type")),
		Version:     strings.TrimSpace(r.FormValue("version")),
		File:        file,
	}
	if err := in.Validate(); err != nil {
		writeFault(w, r, err)
		return
	}

	now := s.now().UTC()
	id := ids.At(now)
	key := blob.Key("templates", id, in.File.Filename)
	if _, err := s.blobs.Put(r.Context(), key, in.File.Body, contentType(in.File.Filename)); err != nil {
		writeFault(w, r, fault.Wrap(fault.ErrTransport, err, ""))
		return
	}
	ref := filing.NewFileRef(filesPrefix+key, in.File.Filename)
	t, err := s.store.CreateTemplate(r.Context(), filing.Template{
		ID:               id,
		Name:             in.Name,
		Description:      in.Description,
		Type:             in.Type,
		Version:          in.Version,
		FileURL:          ref.URL,
		OriginalFilename: ref.OriginalFilename,
		FileExtension:    ref.Extension,
		CreatedAt:        now,
	})
	if err != nil {
		s.dropBlob(r, key)
		writeFault(w, r, storeFault(err, "", "Template already exists"))
		return
	}
	_ = audit.LogEvent(r.Context(), "template.created", map[string]any{
		"template_id": t.ID,
		"type":        t.Type,
		"version":     t.Version,
	})
	writeJSON(w, http.StatusCreated, t)
}

func (s *Server) deleteTemplate(w http.ResponseWriter, r *http.Request) {
	id := pathID(r)
	t, err := s.store.Template(r.Context(), id)
	if err != nil {
		writeFault(w, r, storeFault(err, "Template not found", ""))
		return
	}
	if err := s.store.DeleteTemplate(r.Context(), id); err != nil {
		writeFault(w, r, storeFault(err, "Template not found", ""))
		return
	}
	s.dropBlob(r, keyOf(t.FileURL))
	_ = audit.LogEvent(r.Context(), "template.deleted", map[string]any{"template_id": id})
	w.WriteHeader(http.StatusNoContent)
}

type downloadLogRequest struct {
	TemplateID string `json:"templateId"`
}

func (s *Server) logDownload(w http.ResponseWriter, r *http.Request) {
	var req downloadLogRequest
	if err := decodeJSON(r, &req); err != nil {
		writeFault(w, r, err)
		return
	}
	req.TemplateID = strings.TrimSpace(req.TemplateID)
	if req.TemplateID == "" {
		writeFault(w, r, fault.New(fault.ErrValidation, "Template id is required"))
		return
	}
	t, err := s.store.RecordDownload(r.Context(), req.TemplateID)
	if err != nil {
		writeFault(w, r, storeFault(err, "Template not found", ""))
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"message":       "Download logged",
		"downloadCount": t.DownloadCount,
	})
}

func (s *Server) dropBlob(r *http.Request, key string) {
	if key == "" {
		return
	}
	if err := s.blobs.Delete(r.Context(), key); err != nil {
		s.logger.Warn("blob delete failed", zap.String("key", key), zap.Error(err))
	}
}

func parseMultipart(r *http.Request) error {
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			return fault.Wrap(fault.ErrValidation, err, "Upload is too large")
		}
		return fault.Wrap(fault.ErrValidation, err, "Expected a multipart form upload")
	}
	return nil
}

// formDocument returns the uploaded file in field, or nil when absent. The
// returned func closes it.
func formDocument(r *http.Request, field string) (*filing.Document, func()) {
	f, hdr, err := r.FormFile(field)
	if err != nil {
		return nil, func() {}
	}
	return &filing.Document{Filename: hdr.Filename, Body: f}, func() { _ = f.Close() }
}
