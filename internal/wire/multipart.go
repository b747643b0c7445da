// Package wire encodes and decodes the multipart/form-data bodies of the
// POST /upload contract.
package wire

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"net/textproto"

	"github.com/google/uuid"
	"github.com/hjagadishkumar/alfalfa-yield/models"
)

// UploadPath is the endpoint shared by the gateway and the pipeline
const UploadPath = "/upload"

const octetStream = "application/octet-stream"

// FormFile is one decoded part of an upload body
type FormFile struct {
	Field    string
	Filename string
	Payload  []byte
}

// Encode writes the parts as multipart/form-data, each under the given
// field name, and returns the body with its Content-Type header value.
// Fields are written in the order given.
func Encode(files []FormFile) (*bytes.Buffer, string, error) {
	body := &bytes.Buffer{}
	w := multipart.NewWriter(body)
	if err := w.SetBoundary(uuid.NewString()); err != nil {
		return nil, "", fmt.Errorf("setting boundary: %w", err)
	}

	for _, f := range files {
		h := make(textproto.MIMEHeader)
		h.Set("Content-Disposition", mime.FormatMediaType("form-data", map[string]string{
			"name":     f.Field,
			"filename": f.Filename,
		}))
		h.Set("Content-Type", octetStream)

		part, err := w.CreatePart(h)
		if err != nil {
			return nil, "", fmt.Errorf("creating part %s: %w", f.Field, err)
		}
		if _, err := part.Write(f.Payload); err != nil {
			return nil, "", fmt.Errorf("writing part %s: %w", f.Field, err)
		}
	}

	if err := w.Close(); err != nil {
		return nil, "", fmt.Errorf("closing multipart body: %w", err)
	}
	return body, w.FormDataContentType(), nil
}

// EncodeSlots encodes a multi-file submission in canonical slot order
func EncodeSlots(parts []models.FilePart) (*bytes.Buffer, string, error) {
	files := make([]FormFile, len(parts))
	for i, p := range parts {
		files[i] = FormFile{Field: string(p.Slot), Filename: p.Filename, Payload: p.Payload}
	}
	return Encode(files)
}

// EncodeSingle encodes a single-file analysis upload
func EncodeSingle(part models.FilePart) (*bytes.Buffer, string, error) {
	return Encode([]FormFile{{Field: models.SingleFileField, Filename: part.Filename, Payload: part.Payload}})
}

// Decode reads every part of a multipart request, buffering each in full.
// A part larger than maxPartBytes fails with PayloadTooLarge without the
// excess being read into memory. Non-file fields are decoded as well.
func Decode(r *http.Request, maxPartBytes int64) ([]FormFile, error) {
	mr, err := r.MultipartReader()
	if err != nil {
		return nil, fmt.Errorf("reading multipart body: %w", err)
	}
	return DecodeReader(mr, maxPartBytes)
}

// DecodeReader is Decode over an existing multipart reader
func DecodeReader(mr *multipart.Reader, maxPartBytes int64) ([]FormFile, error) {
	var files []FormFile
	for {
		part, err := mr.NextPart()
		if errors.Is(err, io.EOF) {
			return files, nil
		}
		if err != nil {
			return nil, fmt.Errorf("reading part: %w", err)
		}

		field := part.FormName()
		payload, err := io.ReadAll(io.LimitReader(part, maxPartBytes+1))
		part.Close()
		if err != nil {
			return nil, fmt.Errorf("reading part %s: %w", field, err)
		}
		if int64(len(payload)) > maxPartBytes {
			return nil, models.NewError(models.KindPayloadTooLarge,
				"part %q exceeds %d bytes", field, maxPartBytes)
		}

		files = append(files, FormFile{
			Field:    field,
			Filename: part.FileName(),
			Payload:  payload,
		})
	}
}
