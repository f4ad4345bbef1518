package loader

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/text/encoding/charmap"

	"github.com/ekaya-inc/ekaya-linkage/pkg/apperrors"
)

func writeFile(t *testing.T, dir, name string, content []byte) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), content, 0o644))
}

func newLoader(t *testing.T, dir string, enc string) *FileLoader {
	t.Helper()
	l, err := NewFileLoader(Options{BaseDir: dir, Encoding: enc})
	require.NoError(t, err)
	return l
}

func TestFileLoader_LoadCSV(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "orders.csv", []byte("\ufeffid,amount\n1,10\n2, 20 \n3\n"))

	rows, err := newLoader(t, dir, "").Load(context.Background(), "orders.csv")
	require.NoError(t, err)
	require.Len(t, rows, 4)
	assert.Equal(t, []string{"id", "amount"}, rows[0], "BOM is stripped")
	assert.Equal(t, " 20 ", rows[2][1], "cells are returned raw")
	assert.Equal(t, []string{"3"}, rows[3], "ragged rows allowed")
	assert.Equal(t, "", Cell(rows[3], 1))
	assert.Equal(t, "20", Cell(rows[2], 1))
}

func TestFileLoader_SemicolonDetection(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "ucty.csv", []byte("cislo;nazev\n100;Pokladna\n"))

	rows, err := newLoader(t, dir, "").Load(context.Background(), "ucty.csv")
	require.NoError(t, err)
	assert.Equal(t, []string{"cislo", "nazev"}, Header(rows))
	assert.Equal(t, "Pokladna", rows[1][1])
}

func TestFileLoader_TSV(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "t.tsv", []byte("a\tb\nx,y\tz\n"))

	rows, err := newLoader(t, dir, "").Load(context.Background(), "t.tsv")
	require.NoError(t, err)
	assert.Equal(t, []string{"x,y", "z"}, rows[1])
}

func TestFileLoader_Windows1250(t *testing.T) {
	dir := t.TempDir()
	encoded, err := charmap.Windows1250.NewEncoder().String("kód;název\nA;Žluťoučký\n")
	require.NoError(t, err)
	writeFile(t, dir, "cp.csv", []byte(encoded))

	rows, err := newLoader(t, dir, "windows-1250").Load(context.Background(), "cp.csv")
	require.NoError(t, err)
	assert.Equal(t, "kód", rows[0][0])
	assert.Equal(t, "Žluťoučký", rows[1][1])
}

func TestFileLoader_LoadErrors(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "empty.csv", []byte(""))
	writeFile(t, dir, "book.xlsx", []byte("PK\x03\x04"))

	tests := []struct {
		name     string
		location string
		reason   string
	}{
		{"missing file", "nope.csv", "file does not exist"},
		{"empty file", "empty.csv", "file is empty"},
		{"binary spreadsheet", "book.xlsx", "no parseable sheet"},
		{"escapes base dir", "../etc/passwd.csv", "location outside upload directory"},
		{"empty location", "", "empty location"},
	}
	l := newLoader(t, dir, "")
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := l.Load(context.Background(), tt.location)
			require.Error(t, err)
			var le *apperrors.LoadError
			require.True(t, errors.As(err, &le), "expected LoadError, got %T", err)
			assert.Equal(t, tt.reason, le.Reason)
			assert.True(t, apperrors.IsLoadError(err))
		})
	}
}

func TestFileLoader_CancelledContext(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "a.csv", []byte("a\n1\n"))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := newLoader(t, dir, "").Load(ctx, "a.csv")
	assert.ErrorIs(t, err, context.Canceled)
}

func TestNewFileLoader_UnknownEncoding(t *testing.T) {
	_, err := NewFileLoader(Options{Encoding: "ebcdic"})
	assert.Error(t, err)
}
