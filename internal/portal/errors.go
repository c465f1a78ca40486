package portal

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"efiling.org/internal/fault"
)

// Operation names used for error mapping and metrics.
const (
	opLogin          = "login"
	opEnroll         = "enroll"
	opListTemplates  = "templates.list"
	opCreateTemplate = "templates.create"
	opDeleteTemplate = "templates.delete"
	opTemplateTypes  = "templates.types"
	opTemplateCount  = "templates.count"
	opDownloadLog    = "templates.download_log"
	opDownload       = "templates.download"
	opSubmit         = "submissions.create"
	opRecent         = "submissions.recent"
	opAdminList      = "admin.submissions"
	opApprove        = "admin.approve"
	opReject         = "admin.reject"
	opListUsers      = "admin.users.list"
	opCreateUser     = "admin.users.create"
	opUpdateUser     = "admin.users.update"
	opDeleteUser     = "admin.users.delete"
	opDashboard      = "admin.dashboard"
	opProfile        = "users.profile"
	opUpdateProfile  = "users.profile.update"
	opChangePassword = "users.password"
)

// errorBody is the JSON error envelope returned by the API.
type errorBody struct {
	Message string `json:"message"`
}

func responseError(op string, resp *http.Response) error {
	data, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	var body errorBody
	if err := json.Unmarshal(data, &body); err != nil {
		body.Message = ""
	}
	kind := kindForStatus(op, resp.StatusCode)
	return fault.Wrap(kind, fmt.Errorf("%s: unexpected status %d", op, resp.StatusCode), strings.TrimSpace(body.Message))
}

// kindForStatus maps an HTTP status to an error kind for op.
func kindForStatus(op string, code int) error {
	switch code {
	case http.StatusBadRequest, http.StatusUnprocessableEntity:
		return fault.ErrValidation
	case http.StatusUnauthorized:
		if op == opLogin {
			return fault.ErrAuthentication
		}
		return fault.ErrUnauthenticated
	case http.StatusForbidden:
		return fault.ErrAuthorization
	case http.StatusNotFound:
		return fault.ErrNotFound
	case http.StatusConflict:
		if op == opApprove || op == opReject {
			return fault.ErrInvalidStateTransition
		}
		return fault.ErrEnrollmentConflict
	default:
		return fault.ErrTransport
	}
}
