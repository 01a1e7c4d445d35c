package input

import (
	"context"
	"io"
	"log/slog"
	"mime"
	"path"
	"strings"

	"github.com/gucchon001/invoice-processing-system-sub001/internal/core/ports"
)

// ObjectFile is a stored object addressed by key.
type ObjectFile struct {
	storage ports.ObjectStorage
	info    ports.ObjectInfo
}

// MissingObject is a requested key that could not be resolved.
type MissingObject struct {
	Key string
	Err error
}

// StatObjects resolves keys into source files in request order.
// Unresolvable keys are skipped and reported; only context cancellation is returned as an error.
func StatObjects(ctx context.Context, storage ports.ObjectStorage, keys []string) ([]ports.SourceFile, []MissingObject, error) {
	files := make([]ports.SourceFile, 0, len(keys))
	var missing []MissingObject
	for _, key := range keys {
		if err := ctx.Err(); err != nil {
			return nil, nil, err
		}
		info, err := storage.Stat(ctx, key)
		if err != nil {
			slog.Warn("input_object_missing", "key", key, "error", err)
			missing = append(missing, MissingObject{Key: key, Err: err})
			continue
		}
		files = append(files, &ObjectFile{storage: storage, info: info})
	}
	return files, missing, nil
}

func (f *ObjectFile) Name() string {
	return path.Base(f.info.Key)
}

func (f *ObjectFile) Key() string {
	return f.info.Key
}

func (f *ObjectFile) ContentType() string {
	return contentTypeByName(f.info.Key)
}

func (f *ObjectFile) Size() int64 {
	return f.info.Size
}

func (f *ObjectFile) Open(ctx context.Context) (io.ReadCloser, error) {
	return f.storage.Open(ctx, f.info.Key)
}

func contentTypeByName(name string) string {
	ext := strings.ToLower(path.Ext(name))
	if ext == ".pdf" {
		return ports.MediaTypePDF
	}
	if ct := mime.TypeByExtension(ext); ct != "" {
		return ct
	}
	return "application/octet-stream"
}
