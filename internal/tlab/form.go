package tlab

import (
	"bytes"
	"fmt"
	"mime/multipart"
	"net/textproto"
)

// Form is a ready-to-send multipart body. It is built once so the same
// bytes can be replayed on the fallback host.
type Form struct {
	ContentType string
	Body        []byte
}

// NewFileForm builds a multipart form with a single file field.
func NewFileForm(field, filename string, data []byte) (*Form, error) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)

	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition",
		fmt.Sprintf(`form-data; name=%q; filename=%q`, field, filename))
	h.Set("Content-Type", "text/plain")

	part, err := mw.CreatePart(h)
	if err != nil {
		return nil, fmt.Errorf("tlab: create form part: %w", err)
	}
	if _, err := part.Write(data); err != nil {
		return nil, fmt.Errorf("tlab: write form part: %w", err)
	}
	if err := mw.Close(); err != nil {
		return nil, fmt.Errorf("tlab: close form: %w", err)
	}

	return &Form{
		ContentType: mw.FormDataContentType(),
		Body:        buf.Bytes(),
	}, nil
}
