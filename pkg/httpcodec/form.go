package httpcodec

import (
	"bytes"
	"fmt"
	"mime"
	"mime/multipart"
	"net/textproto"
	"path/filepath"
	"strings"
)

// FormField is one field of a client form submission (spec §3 "Client
// request builder", §4.H "Forms"). Filename non-empty marks a file part,
// which forces the form to encode as multipart/form-data.
type FormField struct {
	Name     string
	Value    string // used when Filename == ""
	Filename string // used when this field is a file part
	Content  []byte // file content, only read when Filename != ""
	MimeType string // explicit content-type override for a file part
}

// Form is an ordered collection of fields, matching the builder's
// `.Form(form)` terminator input (spec §3, §4.H).
type Form struct {
	Fields []FormField
}

// AddField appends a plain value field.
func (f *Form) AddField(name, value string) *Form {
	f.Fields = append(f.Fields, FormField{Name: name, Value: value})
	return f
}

// AddFile appends a file part, forcing multipart encoding.
func (f *Form) AddFile(name, filename string, content []byte, mimeType string) *Form {
	f.Fields = append(f.Fields, FormField{Name: name, Filename: filename, Content: content, MimeType: mimeType})
	return f
}

// HasFiles reports whether any field carries a file part.
func (f *Form) HasFiles() bool {
	for _, fl := range f.Fields {
		if fl.Filename != "" {
			return true
		}
	}
	return false
}

// Encode renders the form as a Body plus the Content-Type header value to
// send with it. URL-encoded when only fields are present; multipart when
// any file part is present (spec §4.H "Forms").
func (f *Form) Encode() (body []byte, contentType string, err error) {
	if !f.HasFiles() {
		var pairs []KV
		for _, fl := range f.Fields {
			pairs = append(pairs, KV{Key: fl.Name, Value: fl.Value})
		}
		return []byte(EncodeFormEncoded(pairs)), "application/x-www-form-urlencoded", nil
	}

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for _, fl := range f.Fields {
		if fl.Filename == "" {
			if err := mw.WriteField(fl.Name, fl.Value); err != nil {
				return nil, "", err
			}
			continue
		}
		ct := fl.MimeType
		if ct == "" {
			ct = InferMimeType(fl.Filename)
		}
		header := make(textproto.MIMEHeader)
		header.Set("Content-Disposition", fmt.Sprintf(`form-data; name=%q; filename=%q`, fl.Name, fl.Filename))
		header.Set("Content-Type", ct)
		part, err := mw.CreatePart(header)
		if err != nil {
			return nil, "", err
		}
		if _, err := part.Write(fl.Content); err != nil {
			return nil, "", err
		}
	}
	if err := mw.Close(); err != nil {
		return nil, "", err
	}
	return buf.Bytes(), "multipart/form-data; boundary=" + mw.Boundary(), nil
}

// commonMimeTypes is the extension->type table the original implementation
// relies on for form file parts (spec §4.H "MIME is inferred by
// extension").
var commonMimeTypes = map[string]string{
	".html": "text/html",
	".htm":  "text/html",
	".css":  "text/css",
	".js":   "application/javascript",
	".json": "application/json",
	".xml":  "application/xml",
	".txt":  "text/plain",
	".csv":  "text/csv",
	".png":  "image/png",
	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
	".gif":  "image/gif",
	".svg":  "image/svg+xml",
	".webp": "image/webp",
	".ico":  "image/x-icon",
	".pdf":  "application/pdf",
	".zip":  "application/zip",
	".gz":   "application/gzip",
	".tar":  "application/x-tar",
	".mp3":  "audio/mpeg",
	".wav":  "audio/wav",
	".mp4":  "video/mp4",
	".webm": "video/webm",
	".woff": "font/woff",
	".woff2": "font/woff2",
}

// InferMimeType maps a filename's extension to a MIME type, falling back
// to "text/plain" when there is no extension and "application/octet-stream"
// for an unrecognized one (spec §4.H "Forms").
func InferMimeType(filename string) string {
	ext := strings.ToLower(filepath.Ext(filename))
	if ext == "" {
		return "text/plain"
	}
	if t, ok := commonMimeTypes[ext]; ok {
		return t
	}
	if t := mime.TypeByExtension(ext); t != "" {
		return t
	}
	return "application/octet-stream"
}
