package portal

import (
	"bytes"
	"fmt"
	"io"
	"mime/multipart"

	"efiling.org/internal/fault"
	"efiling.org/internal/filing"
)

// form accumulates a multipart body, remembering the first failure.
type form struct {
	buf bytes.Buffer
	w   *multipart.Writer
	err error
}

func newForm() *form {
	f := &form{}
	f.w = multipart.NewWriter(&f.buf)
	return f
}

func (f *form) field(name, value string) {
	if f.err != nil {
		return
	}
	f.err = f.w.WriteField(name, value)
}

func (f *form) file(name string, doc *filing.Document) {
	if f.err != nil || doc == nil {
		return
	}
	part, err := f.w.CreateFormFile(name, doc.Filename)
	if err != nil {
		f.err = err
		return
	}
	if doc.Body == nil {
		return
	}
	if _, err := io.Copy(part, doc.Body); err != nil {
		f.err = fmt.Errorf("read %s: %w", doc.Filename, err)
	}
}

func (f *form) close() (io.Reader, string, error) {
	if f.err == nil {
		f.err = f.w.Close()
	}
	if f.err != nil {
		return nil, "", fault.Wrap(fault.ErrTransport, f.err, "Could not read the selected file.")
	}
	return &f.buf, f.w.FormDataContentType(), nil
}
