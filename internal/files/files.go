// Package files reads inquiry documents off disk. It scans a
// directory for text-bearing extensions and decodes each file through
// an encoding fallback chain: UTF-8 first, then Latin-1, then
// Windows-1252. Real inquiry dumps mix all three.
package files

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"unicode/utf8"

	"go.uber.org/zap"
	"golang.org/x/text/encoding/charmap"
)

// inquiryExtensions are the file extensions treated as inquiries.
var inquiryExtensions = map[string]struct{}{
	".txt": {}, ".text": {}, ".md": {},
}

// Inquiry is one document read from disk. Empty is set when the file
// exists but holds no usable text.
type Inquiry struct {
	SourceID string
	Text     string
	Empty    bool
}

// Reader scans directories and decodes inquiry files.
type Reader struct {
	log *zap.Logger
}

func NewReader(log *zap.Logger) *Reader {
	if log == nil {
		log = zap.NewNop()
	}
	return &Reader{log: log}
}

// Scan lists the inquiry files directly under dir, sorted by name.
// Subdirectories are not descended into; inquiry dumps are flat.
func (r *Reader) Scan(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("scanning %s: %w", dir, err)
	}

	var paths []string
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		ext := strings.ToLower(filepath.Ext(entry.Name()))
		if _, ok := inquiryExtensions[ext]; ok {
			paths = append(paths, filepath.Join(dir, entry.Name()))
		}
	}
	sort.Strings(paths)
	return paths, nil
}

// Read loads and decodes one inquiry file. The returned SourceID is
// the base name; batch output is keyed by it.
func (r *Reader) Read(path string) (Inquiry, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return Inquiry{}, fmt.Errorf("reading %s: %w", path, err)
	}

	inq := Inquiry{SourceID: filepath.Base(path)}
	text, err := decode(raw)
	if err != nil {
		return inq, fmt.Errorf("decoding %s: %w", path, err)
	}
	inq.Text = text
	inq.Empty = strings.TrimSpace(text) == ""
	return inq, nil
}

// decode tries UTF-8, then Latin-1, then Windows-1252. Latin-1 maps
// every byte so the chain cannot fail in practice; the error return
// covers decoder misbehavior, not undecodable input.
func decode(raw []byte) (string, error) {
	if utf8.Valid(raw) {
		return string(raw), nil
	}
	if out, err := charmap.ISO8859_1.NewDecoder().Bytes(raw); err == nil {
		return string(out), nil
	}
	out, err := charmap.Windows1252.NewDecoder().Bytes(raw)
	if err != nil {
		return "", fmt.Errorf("undecodable content: %w", err)
	}
	return string(out), nil
}
