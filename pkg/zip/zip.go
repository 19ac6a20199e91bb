// Package zip bundles in-memory files into a zip archive.
package zip

import (
	"archive/zip"
	"bytes"
	"fmt"
	"io"
	"time"
)

// Entry is one file of an archive.
type Entry struct {
	Filename string
	Data     []byte
	Modified time.Time
}

// Write streams entries into w as a zip archive.
func Write(w io.Writer, entries []Entry) error {
	zw := zip.NewWriter(w)
	for _, entry := range entries {
		header := &zip.FileHeader{
			Name:     entry.Filename,
			Method:   zip.Deflate,
			Modified: entry.Modified,
		}
		if header.Modified.IsZero() {
			header.Modified = time.Now()
		}
		fw, err := zw.CreateHeader(header)
		if err != nil {
			return fmt.Errorf("zip: create %s: %w", entry.Filename, err)
		}
		if _, err := fw.Write(entry.Data); err != nil {
			return fmt.Errorf("zip: write %s: %w", entry.Filename, err)
		}
	}
	return zw.Close()
}

// Archive returns entries as zip bytes.
func Archive(entries []Entry) ([]byte, error) {
	buf := &bytes.Buffer{}
	if err := Write(buf, entries); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
