package loader

import "io/fs"

// MemFS is an in-memory file system for testing.
type MemFS struct {
	files map[string][]byte
	errs  map[string]error
}

func NewMemFS() *MemFS {
	return &MemFS{files: make(map[string][]byte), errs: make(map[string]error)}
}

func (m *MemFS) AddFile(path string, content string) {
	m.files[path] = []byte(content)
}

func (m *MemFS) FailWith(path string, err error) {
	m.errs[path] = err
}

func (m *MemFS) ReadFile(path string) ([]byte, error) {
	if err, ok := m.errs[path]; ok {
		return nil, err
	}
	data, ok := m.files[path]
	if !ok {
		return nil, fs.ErrNotExist
	}
	return data, nil
}
