package crawl

import (
	"archive/tar"
	"bytes"
	"fmt"
	"strings"
	"time"
)

// InjectFile is a file placed into a worker's filesystem before start.
// Path is the full path inside the container, e.g. "/config/crawl.yml".
type InjectFile struct {
	Path    string
	Content string
}

// TarStream packages the file as a single-entry tar archive suitable for
// the control plane's filesystem-injection API. The entry name is the
// path with the leading slash stripped; content round-trips exactly,
// including empty content.
func (f InjectFile) TarStream() (*bytes.Buffer, error) {
	buf := &bytes.Buffer{}
	tw := tar.NewWriter(buf)

	body := []byte(f.Content)
	hdr := &tar.Header{
		Name:    strings.TrimPrefix(f.Path, "/"),
		Mode:    0o644,
		Size:    int64(len(body)),
		ModTime: time.Now().UTC(),
	}
	if err := tw.WriteHeader(hdr); err != nil {
		return nil, fmt.Errorf("write tar header for %q: %w", f.Path, err)
	}
	if _, err := tw.Write(body); err != nil {
		return nil, fmt.Errorf("write tar body for %q: %w", f.Path, err)
	}
	if err := tw.Close(); err != nil {
		return nil, fmt.Errorf("finalize tar for %q: %w", f.Path, err)
	}
	return buf, nil
}
