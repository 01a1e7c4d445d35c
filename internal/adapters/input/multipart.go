package input

import (
	"context"
	"io"
	"mime/multipart"
	"path/filepath"
)

// MultipartFile exposes an uploaded form file as a SourceFile.
type MultipartFile struct {
	header *multipart.FileHeader
}

func NewMultipartFile(header *multipart.FileHeader) *MultipartFile {
	return &MultipartFile{header: header}
}

func (f *MultipartFile) Name() string {
	return filepath.Base(f.header.Filename)
}

func (f *MultipartFile) ContentType() string {
	if ct := f.header.Header.Get("Content-Type"); ct != "" {
		return ct
	}
	return contentTypeByName(f.header.Filename)
}

func (f *MultipartFile) Size() int64 {
	return f.header.Size
}

func (f *MultipartFile) Open(context.Context) (io.ReadCloser, error) {
	return f.header.Open()
}
