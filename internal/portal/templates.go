package portal

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"efiling.org/internal/fault"
	"efiling.org/internal/filing"
	"efiling.org/internal/obs"
)

// ListTemplates returns every published template.
func (c *Client) ListTemplates(ctx context.Context) ([]filing.Template, error) {
	var out []filing.Template
	if err := c.getJSON(ctx, opListTemplates, "/templates", nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// TemplateTypes returns the distinct types of the published templates.
func (c *Client) TemplateTypes(ctx context.Context) ([]string, error) {
	var out []string
	if err := c.getJSON(ctx, opTemplateTypes, "/templates/types", nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// TemplateCount returns the number of published templates.
func (c *Client) TemplateCount(ctx context.Context) (int, error) {
	var out struct {
		Count int `json:"count"`
	}
	if err := c.getJSON(ctx, opTemplateCount, "/templates/count", nil, &out); err != nil {
		return 0, err
	}
	return out.Count, nil
}

// CreateTemplate publishes a template with its file.
func (c *Client) CreateTemplate(ctx context.Context, in filing.TemplateInput) (filing.Template, error) {
	if err := in.Validate(); err != nil {
		return filing.Template{}, err
	}
	form := newForm()
	form.field("name", in.Name)
	form.field("description", in.Description)
	form.field("type", in.Type)
	form.field("version", in.Version)
	form.file("file", in.File)
	body, contentType, err := form.close()
	if err != nil {
		return filing.Template{}, err
	}
	var out filing.Template
	err = c.do(ctx, request{op: opCreateTemplate, method: http.MethodPost, path: "/templates", body: body, contentType: contentType}, &out)
	return out, err
}

// DeleteTemplate removes a template.
func (c *Client) DeleteTemplate(ctx context.Context, id string) error {
	return c.do(ctx, request{op: opDeleteTemplate, method: http.MethodDelete, path: "/templates/" + url.PathEscape(id)}, nil)
}

// LogDownload records that the caller downloaded the template.
func (c *Client) LogDownload(ctx context.Context, templateID string) error {
	in := struct {
		TemplateID string `json:"templateId"`
	}{TemplateID: templateID}
	return c.sendJSON(ctx, opDownloadLog, http.MethodPost, "/templates/download-log", in, nil)
}

// Download fetches the file at fileURL into w. Relative URLs resolve against
// the API root; the bearer header is only sent to the API host.
func (c *Client) Download(ctx context.Context, fileURL string, w io.Writer) (n int64, err error) {
	start := time.Now()
	defer func() {
		obs.ObserveClientCall(opDownload, fault.Label(err), time.Since(start))
	}()
	ref, err := url.Parse(fileURL)
	if err != nil {
		return 0, fault.Wrap(fault.ErrValidation, err, "Invalid file URL")
	}
	target := ref
	if !ref.IsAbs() {
		target = c.base.ResolveReference(&url.URL{Path: c.base.Path + ref.Path, RawQuery: ref.RawQuery})
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target.String(), nil)
	if err != nil {
		return 0, fault.Wrap(fault.ErrTransport, err, "")
	}
	if target.Host == c.base.Host {
		c.mu.RLock()
		if v := c.headers.Get("Authorization"); v != "" {
			req.Header.Set("Authorization", v)
		}
		c.mu.RUnlock()
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return 0, fault.Wrap(fault.ErrTransport, err, "")
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return 0, responseError(opDownload, resp)
	}
	n, err = io.Copy(w, resp.Body)
	if err != nil {
		return n, fault.Wrap(fault.ErrTransport, fmt.Errorf("download: %w", err), "")
	}
	return n, nil
}
