// Package corpus loads the passage table the retriever answers from.
package corpus

import (
	"bufio"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/xuri/excelize/v2"
)

// Corpus is an ordered, immutable list of passages. Position i lines up
// with vector i of the embedding store.
type Corpus struct {
	column   string
	passages []string
}

// New builds a corpus from in-memory passages.
func New(column string, passages []string) (*Corpus, error) {
	if len(passages) == 0 {
		return nil, errors.New("corpus is empty")
	}
	cp := make([]string, len(passages))
	copy(cp, passages)
	return &Corpus{column: column, passages: cp}, nil
}

// Len returns the number of passages.
func (c *Corpus) Len() int { return len(c.passages) }

// Text returns passage i, or false when i is out of range.
func (c *Corpus) Text(i int) (string, bool) {
	if i < 0 || i >= len(c.passages) {
		return "", false
	}
	return c.passages[i], true
}

// Passages returns a copy of all passages in order.
func (c *Corpus) Passages() []string {
	out := make([]string, len(c.passages))
	copy(out, c.passages)
	return out
}

// Column is the name of the field passages were read from.
func (c *Corpus) Column() string { return c.column }

// Load reads the passages from path. The format follows the extension:
// .csv, .xlsx or .jsonl. sheet only applies to spreadsheets; empty means
// the first sheet.
func Load(path, column, sheet string) (*Corpus, error) {
	if column == "" {
		return nil, errors.New("corpus text column is empty")
	}
	var (
		passages []string
		err      error
	)
	switch strings.ToLower(filepath.Ext(path)) {
	case ".csv":
		passages, err = loadCSV(path, column)
	case ".xlsx":
		passages, err = loadXLSX(path, column, sheet)
	case ".jsonl":
		passages, err = loadJSONL(path, column)
	default:
		return nil, fmt.Errorf("unsupported corpus format %q", filepath.Ext(path))
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load corpus at %s: %w", path, err)
	}
	c, err := New(column, passages)
	if err != nil {
		return nil, fmt.Errorf("failed to load corpus at %s: %w", path, err)
	}
	return c, nil
}

func loadCSV(path, column string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1
	header, err := r.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, errors.New("missing header row")
		}
		return nil, err
	}
	col, err := columnIndex(header, column)
	if err != nil {
		return nil, err
	}
	var out []string
	for {
		rec, err := r.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, err
		}
		out = append(out, cell(rec, col))
	}
	return out, nil
}

func loadXLSX(path, column, sheet string) ([]string, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	if sheet == "" {
		sheet = f.GetSheetName(0)
	}
	rows, err := f.GetRows(sheet)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, errors.New("missing header row")
	}
	col, err := columnIndex(rows[0], column)
	if err != nil {
		return nil, err
	}
	out := make([]string, 0, len(rows)-1)
	for _, row := range rows[1:] {
		out = append(out, cell(row, col))
	}
	return out, nil
}

func loadJSONL(path, column string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var out []string
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	line := 0
	for sc.Scan() {
		line++
		raw := strings.TrimSpace(sc.Text())
		if raw == "" {
			continue
		}
		var row map[string]any
		if err := json.Unmarshal([]byte(raw), &row); err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		v, ok := row[column]
		if !ok {
			return nil, fmt.Errorf("line %d: must contain a %q field", line, column)
		}
		s, ok := v.(string)
		if !ok && v != nil {
			return nil, fmt.Errorf("line %d: field %q is not a string", line, column)
		}
		out = append(out, s)
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

func columnIndex(header []string, column string) (int, error) {
	for i, h := range header {
		if strings.TrimSpace(strings.TrimPrefix(h, "\ufeff")) == column {
			return i, nil
		}
	}
	return 0, fmt.Errorf("must contain a %q column", column)
}

// Short rows leave trailing cells out; they read as empty.
func cell(row []string, col int) string {
	if col < len(row) {
		return row[col]
	}
	return ""
}
