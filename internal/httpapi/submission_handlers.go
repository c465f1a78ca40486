package httpapi

import (
	"net/http"

	"efiling.org/internal/filing"
)

func (s *Server) createSubmission(w http.ResponseWriter, r *http.Request) {
	if err := parseMultipart(r); err != nil {
		writeFault(w, r, err)
		return
	}
	defer func() { _ = r.MultipartForm.RemoveAll() }()

	main, closeMain := formDocument(r, "mainFile")
	defer closeMain()
	supporting, closeSupporting := formDocument(r, "supportingDoc")
	defer closeSupporting()

	sub, err := s.workflow.Create(r.Context(), caller(r), filing.Payload{
		TemplateType:  r.FormValue("templateType"),
		TaxPeriod:     r.FormValue("taxPeriod"),
		Comments:      r.FormValue("comments"),
		MainFile:      main,
		SupportingDoc: supporting,
	})
	if err != nil {
		writeFault(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, sub)
}

// ownSubmissions returns every submission of the caller, most recent first.
func (s *Server) ownSubmissions(w http.ResponseWriter, r *http.Request) {
	id := caller(r)
	subs, err := s.backend.OwnSubmissions(r.Context(), *id)
	if err != nil {
		writeFault(w, r, err)
		return
	}
	if subs == nil {
		subs = []filing.Submission{}
	}
	writeJSON(w, http.StatusOK, subs)
}

func (s *Server) listSubmissions(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	page, err := parsePositiveInt(q.Get("page"), 1, 1, 1<<20)
	if err != nil {
		writeFault(w, r, err)
		return
	}
	limit, err := parsePositiveInt(q.Get("limit"), AdminPageSize, 1, 100)
	if err != nil {
		writeFault(w, r, err)
		return
	}
	f := filing.Filter{Status: q.Get("status"), Search: q.Get("search"), Scope: filing.ScopeAll}
	res, err := s.workflow.List(r.Context(), caller(r), f, page, limit)
	if err != nil {
		writeFault(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

type reviewRequest struct {
	ReviewComments string `json:"reviewComments"`
}

func (s *Server) reviewSubmission(to filing.Status) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req reviewRequest
		if r.ContentLength != 0 {
			if err := decodeJSON(r, &req); err != nil {
				writeFault(w, r, err)
				return
			}
		}
		var (
			sub filing.Submission
			err error
		)
		if to == filing.StatusApproved {
			sub, err = s.workflow.Approve(r.Context(), pathID(r), caller(r), req.ReviewComments)
		} else {
			sub, err = s.workflow.Reject(r.Context(), pathID(r), caller(r), req.ReviewComments)
		}
		if err != nil {
			writeFault(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, sub)
	}
}
