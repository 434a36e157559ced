package acquire

import (
	"errors"
	"os"
	"sync"
)

// Media is a downloaded file owned by the caller until Close.
type Media struct {
	Path string
	// SourceURL is the direct media link the extractor reported, when any.
	SourceURL string

	once sync.Once
	err  error
}

// Close deletes the file. It is idempotent and safe to defer.
func (m *Media) Close() error {
	if m == nil {
		return nil
	}
	m.once.Do(func() {
		if m.Path == "" {
			return
		}
		if err := os.Remove(m.Path); err != nil && !errors.Is(err, os.ErrNotExist) {
			m.err = err
		}
	})
	return m.err
}

// Size reports the file size in bytes.
func (m *Media) Size() (int64, error) {
	info, err := os.Stat(m.Path)
	if err != nil {
		return 0, err
	}
	return info.Size(), nil
}
