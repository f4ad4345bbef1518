// Package loader reads uploaded tabular files into rows of string cells.
package loader

import (
	"bufio"
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"

	"github.com/ekaya-inc/ekaya-linkage/pkg/apperrors"
)

// TabularLoader loads a stored table. The first row is the header row.
type TabularLoader interface {
	Load(ctx context.Context, location string) ([][]string, error)
}

// Options configure a FileLoader.
type Options struct {
	// BaseDir is the root relative locations are resolved against.
	BaseDir string
	// Encoding of the files: utf-8 (default), windows-1250 or iso-8859-2.
	Encoding string
	// Comma forces a delimiter; zero means detect from extension and header line.
	Comma rune
}

// FileLoader loads CSV and TSV files from local storage.
type FileLoader struct {
	baseDir string
	enc     encoding.Encoding
	comma   rune
}

var _ TabularLoader = (*FileLoader)(nil)

// NewFileLoader creates a FileLoader.
func NewFileLoader(opts Options) (*FileLoader, error) {
	enc, err := lookupEncoding(opts.Encoding)
	if err != nil {
		return nil, err
	}
	return &FileLoader{
		baseDir: opts.BaseDir,
		enc:     enc,
		comma:   opts.Comma,
	}, nil
}

func lookupEncoding(name string) (encoding.Encoding, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "utf-8", "utf8":
		return nil, nil
	case "windows-1250", "cp1250":
		return charmap.Windows1250, nil
	case "iso-8859-2", "latin2":
		return charmap.ISO8859_2, nil
	default:
		return nil, fmt.Errorf("unsupported encoding %q", name)
	}
}

// Load reads all rows of the file at location. Missing, empty or unparseable
// files fail with *apperrors.LoadError.
func (l *FileLoader) Load(ctx context.Context, location string) ([][]string, error) {
	path, err := l.resolve(location)
	if err != nil {
		return nil, err
	}

	var comma rune
	switch strings.ToLower(filepath.Ext(path)) {
	case ".csv", ".txt":
		comma = l.comma
	case ".tsv", ".tab":
		comma = '\t'
	default:
		return nil, &apperrors.LoadError{Location: location, Reason: "no parseable sheet"}
	}

	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, &apperrors.LoadError{Location: location, Reason: "file does not exist", Err: err}
		}
		return nil, &apperrors.LoadError{Location: location, Reason: "file unreadable", Err: err}
	}
	defer f.Close()

	rows, err := l.read(ctx, f, comma)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, &apperrors.LoadError{Location: location, Reason: "no parseable sheet", Err: err}
	}
	if len(rows) == 0 {
		return nil, &apperrors.LoadError{Location: location, Reason: "file is empty"}
	}
	return rows, nil
}

func (l *FileLoader) resolve(location string) (string, error) {
	if location == "" {
		return "", &apperrors.LoadError{Location: location, Reason: "empty location"}
	}
	if filepath.IsAbs(location) || l.baseDir == "" {
		return filepath.Clean(location), nil
	}
	path := filepath.Join(l.baseDir, location)
	rel, err := filepath.Rel(l.baseDir, path)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", &apperrors.LoadError{Location: location, Reason: "location outside upload directory"}
	}
	return path, nil
}

func (l *FileLoader) read(ctx context.Context, r io.Reader, comma rune) ([][]string, error) {
	var decoded io.Reader
	if l.enc != nil {
		decoded = transform.NewReader(r, l.enc.NewDecoder())
	} else {
		decoded = transform.NewReader(r, unicode.BOMOverride(unicode.UTF8.NewDecoder()))
	}

	br := bufio.NewReader(decoded)
	if comma == 0 {
		comma = sniffComma(br)
	}

	cr := csv.NewReader(br)
	cr.Comma = comma
	cr.FieldsPerRecord = -1
	cr.LazyQuotes = true

	rows := make([][]string, 0, 256)
	for {
		if len(rows)%1024 == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}
		rec, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", len(rows)+1, err)
		}
		if len(rows) == 0 && isBlankRecord(rec) {
			continue
		}
		rows = append(rows, rec)
	}
	return rows, nil
}

// sniffComma picks ';' when the header line has more semicolons than commas,
// as spreadsheet exports in comma-decimal locales do.
func sniffComma(br *bufio.Reader) rune {
	peek, _ := br.Peek(4096)
	if i := bytes.IndexByte(peek, '\n'); i >= 0 {
		peek = peek[:i]
	}
	if bytes.Count(peek, []byte{';'}) > bytes.Count(peek, []byte{','}) {
		return ';'
	}
	if bytes.Count(peek, []byte{'\t'}) > bytes.Count(peek, []byte{','}) {
		return '\t'
	}
	return ','
}

func isBlankRecord(rec []string) bool {
	for _, c := range rec {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}

// Header returns the trimmed header row of loaded rows.
func Header(rows [][]string) []string {
	if len(rows) == 0 {
		return nil
	}
	hdr := make([]string, len(rows[0]))
	for i, h := range rows[0] {
		hdr[i] = strings.TrimSpace(h)
	}
	return hdr
}

// Cell returns the trimmed cell at col, or "" for short rows.
func Cell(row []string, col int) string {
	if col < 0 || col >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[col])
}
