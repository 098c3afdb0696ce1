package source

import (
	"bufio"
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/veridian-systems/rowguard/internal/record"
)

// FileRecordSource reads record batches from artifacts on the local
// filesystem. CSV artifacts get scalar type inference per cell; .ndjson and
// .jsonl artifacts are decoded line by line.
type FileRecordSource struct {
	// Root restricts artifact references to a base directory when non-empty.
	Root string
}

// NewFileRecordSource creates a record source rooted at dir. An empty dir
// allows absolute artifact paths.
func NewFileRecordSource(dir string) *FileRecordSource {
	return &FileRecordSource{Root: dir}
}

// FetchRecords loads and decodes one artifact. Unreachable files wrap
// ErrUnavailable; undecodable content wraps ErrParse.
func (s *FileRecordSource) FetchRecords(ctx context.Context, artifact string) ([]*record.Record, error) {
	if artifact == "" {
		return nil, fmt.Errorf("%w: empty artifact reference", ErrUnavailable)
	}

	path := artifact
	if s.Root != "" {
		path = filepath.Join(s.Root, filepath.Clean("/"+artifact))
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%w: open %s: %v", ErrUnavailable, artifact, err)
	}
	defer f.Close()

	switch strings.ToLower(filepath.Ext(path)) {
	case ".ndjson", ".jsonl":
		return decodeNDJSON(ctx, f)
	default:
		return decodeCSV(ctx, f)
	}
}

func decodeCSV(ctx context.Context, r io.Reader) ([]*record.Record, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if err == io.EOF {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%w: read header: %v", ErrParse, err)
	}

	var records []*record.Record
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		row, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("%w: row %d: %v", ErrParse, len(records)+2, err)
		}

		rec := record.New()
		for i, cell := range row {
			if i >= len(header) {
				return nil, fmt.Errorf("%w: row %d has %d cells for %d columns", ErrParse, len(records)+2, len(row), len(header))
			}
			rec.Set(header[i], record.Infer(cell))
		}
		records = append(records, rec)
	}
	return records, nil
}

func decodeNDJSON(ctx context.Context, r io.Reader) ([]*record.Record, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)

	var records []*record.Record
	line := 0
	for scanner.Scan() {
		line++
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		raw := strings.TrimSpace(scanner.Text())
		if raw == "" {
			continue
		}

		// Walk the token stream directly so field order follows the
		// document rather than Go map iteration.
		rec, err := decodeOrderedObject(raw)
		if err != nil {
			return nil, fmt.Errorf("%w: line %d: %v", ErrParse, line, err)
		}
		records = append(records, rec)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrParse, err)
	}
	return records, nil
}

// decodeOrderedObject walks a JSON object token stream to preserve key order.
func decodeOrderedObject(raw string) (*record.Record, error) {
	dec := json.NewDecoder(strings.NewReader(raw))
	dec.UseNumber()

	tok, err := dec.Token()
	if err != nil {
		return nil, err
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return nil, fmt.Errorf("expected object, got %v", tok)
	}

	rec := record.New()
	for dec.More() {
		keyTok, err := dec.Token()
		if err != nil {
			return nil, err
		}
		key := keyTok.(string)

		var val interface{}
		if err := dec.Decode(&val); err != nil {
			return nil, err
		}
		v, err := record.FromJSONValue(val)
		if err != nil {
			return nil, fmt.Errorf("field %q: %v", key, err)
		}
		rec.Set(key, v)
	}
	return rec, nil
}
