package primaryapi

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// DecodeRecords accepts every listing shape the primary source produces:
// {"data": [...]}, a bare list, or an object keyed by id (favorites).
// Entries that are not objects are dropped.
func DecodeRecords(raw []byte) ([]Record, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return nil, nil
	}

	switch raw[0] {
	case '[':
		return decodeList(raw)
	case '{':
		var wrapper struct {
			Data json.RawMessage `json:"data"`
		}
		if err := json.Unmarshal(raw, &wrapper); err != nil {
			return nil, fmt.Errorf("decode envelope: %w", err)
		}
		if len(bytes.TrimSpace(wrapper.Data)) > 0 && !bytes.Equal(bytes.TrimSpace(wrapper.Data), []byte("null")) {
			return DecodeRecords(wrapper.Data)
		}
		return decodeMap(raw)
	default:
		return nil, fmt.Errorf("unhandled data shape: %.64s", string(raw))
	}
}

func decodeList(raw []byte) ([]Record, error) {
	var items []json.RawMessage
	if err := json.Unmarshal(raw, &items); err != nil {
		return nil, fmt.Errorf("decode list: %w", err)
	}
	out := make([]Record, 0, len(items))
	for _, it := range items {
		var r Record
		if !isObject(it) || json.Unmarshal(it, &r) != nil {
			continue
		}
		out = append(out, r)
	}
	return out, nil
}

// decodeMap handles {"<id>": {...}, ...}. Keys are visited in sorted order so
// the result is deterministic.
func decodeMap(raw []byte) ([]Record, error) {
	var items map[string]json.RawMessage
	if err := json.Unmarshal(raw, &items); err != nil {
		return nil, fmt.Errorf("decode map: %w", err)
	}
	keys := make([]string, 0, len(items))
	for k := range items {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	out := make([]Record, 0, len(items))
	for _, k := range keys {
		var r Record
		if !isObject(items[k]) || json.Unmarshal(items[k], &r) != nil {
			continue
		}
		out = append(out, r)
	}
	return out, nil
}

func isObject(raw json.RawMessage) bool {
	raw = bytes.TrimSpace(raw)
	return len(raw) > 0 && raw[0] == '{'
}

// ParseFile reads a record dump from disk. The format follows the extension.
func ParseFile(path string) ([]Record, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("open file: %w", err)
	}
	return ParseBytes(data, path)
}

// ParseBytes parses dump content held in memory.
func ParseBytes(data []byte, filename string) ([]Record, error) {
	ext := strings.ToLower(filepath.Ext(filename))

	switch ext {
	case ".json":
		return DecodeRecords(data)
	case ".csv":
		return parseCSV(bytes.NewReader(data))
	default:
		return nil, fmt.Errorf("unknown file format: %s (must be .json or .csv)", ext)
	}
}

// parseCSV maps columns by header name. Missing headers fall back to the
// layout id,titulo,cover_url.
func parseCSV(reader io.Reader) ([]Record, error) {
	r := csv.NewReader(reader)
	r.FieldsPerRecord = -1

	header, err := r.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, nil
		}
		return nil, err
	}

	headerMap := make(map[string]int, len(header))
	for i, h := range header {
		headerMap[normalizeHeader(h)] = i
	}

	defaults := map[string]int{
		"id":        0,
		"titulo":    1,
		"cover_url": 2,
	}
	aliases := map[string][]string{
		"id":        {"id", "posts_id"},
		"titulo":    {"titulo", "posttitle", "title"},
		"cover_url": {"cover_url", "thumbnail", "poster"},
	}

	getIndex := func(name string) int {
		for _, a := range aliases[name] {
			if i, ok := headerMap[a]; ok {
				return i
			}
		}
		if d, ok := defaults[name]; ok {
			return d
		}
		return -1
	}
	idIdx, titleIdx, coverIdx := getIndex("id"), getIndex("titulo"), getIndex("cover_url")

	get := func(rec []string, idx int) string {
		if idx < 0 || idx >= len(rec) {
			return ""
		}
		return strings.TrimSpace(rec[idx])
	}

	records, err := r.ReadAll()
	if err != nil {
		return nil, err
	}

	var out []Record
	for _, rec := range records {
		if len(rec) == 0 {
			continue
		}
		id := get(rec, idIdx)
		if id == "" {
			continue
		}
		out = append(out, Record{
			ID:       FlexID(id),
			Titulo:   get(rec, titleIdx),
			CoverURL: get(rec, coverIdx),
		})
	}
	return out, nil
}

// normalizeHeader lowercases and trims a header, folding spaces and dashes to
// underscores so "Cover URL" and "cover_url" compare equal.
func normalizeHeader(h string) string {
	h = strings.ToLower(strings.TrimSpace(h))
	h = strings.ReplaceAll(h, " ", "_")
	h = strings.ReplaceAll(h, "-", "_")
	h = strings.ReplaceAll(h, "\"", "")
	for strings.Contains(h, "__") {
		h = strings.ReplaceAll(h, "__", "_")
	}
	return h
}
