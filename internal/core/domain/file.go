package domain

import "strings"

// FileData is one input document as handed to the workflow engine.
// Values are built by input adapters and are not modified afterwards.
type FileData struct {
	Content  []byte
	Filename string
	Source   string
	Metadata map[string]any
}

// NewFileData copies content and metadata so later changes by the caller
// do not leak into the engine.
func NewFileData(content []byte, filename, source string, metadata map[string]any) FileData {
	buf := make([]byte, len(content))
	copy(buf, content)

	meta := make(map[string]any, len(metadata))
	for k, v := range metadata {
		meta[k] = v
	}

	return FileData{
		Content:  buf,
		Filename: filename,
		Source:   source,
		Metadata: meta,
	}
}

func (f FileData) Size() int {
	return len(f.Content)
}

// Extension returns the lowercase suffix after the last dot, or "".
func (f FileData) Extension() string {
	idx := strings.LastIndex(f.Filename, ".")
	if idx < 0 {
		return ""
	}
	return strings.ToLower(f.Filename[idx+1:])
}

// Info is the file description attached to a WorkflowResult.
func (f FileData) Info() map[string]any {
	return map[string]any{
		"filename":  f.Filename,
		"size":      f.Size(),
		"extension": f.Extension(),
		"source":    f.Source,
	}
}
