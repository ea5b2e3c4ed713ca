package sniff

import (
	"bytes"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"github.com/csvpilot/csvpilot/internal/domain"
)

// MaxFileSize is the largest upload the sniffer accepts.
const MaxFileSize = 50 * 1024 * 1024

// sniffRows is how many data rows are sampled for delimiter and PII
// detection.
const sniffRows = 5

// delimiter candidates in preference order; comma wins ties.
var delimiters = []string{",", ";", "\t", "|"}

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// Sniff inspects raw upload bytes and produces validated metadata, a
// bounded sample and per-column PII flags. It is pure and performs no I/O.
//
// Sampling splits lines on the detected delimiter without RFC-4180 quote
// escaping; fields containing an embedded delimiter inside quotes will skew
// the sample and the row-count estimate. This is an accepted limitation of
// a preview heuristic, not a full CSV parser.
func Sniff(data []byte, filename string) (*domain.CSVProfile, error) {
	if len(data) > MaxFileSize {
		return nil, &domain.ValidationError{
			Code:    domain.ValidationFileTooLarge,
			Message: "file exceeds the 50MB upload limit",
			Details: map[string]any{"size": len(data)},
		}
	}
	if !strings.EqualFold(filepath.Ext(filename), ".csv") {
		return nil, &domain.ValidationError{
			Code:    domain.ValidationInvalidFormat,
			Message: "only .csv files are supported",
			Details: map[string]any{"filename": filename},
		}
	}

	text, encoding := decode(data)
	if len(text) == 0 {
		return nil, &domain.ValidationError{
			Code:    domain.ValidationEmptyFile,
			Message: "file is empty",
		}
	}

	lines := nonBlankLines(text)
	if len(lines) < 2 {
		return nil, &domain.ValidationError{
			Code:    domain.ValidationInsufficientRows,
			Message: "file needs a header row and at least one data row",
		}
	}

	delimiter := detectDelimiter(lines)
	sample := parseSample(lines, delimiter)

	var columns []string
	if len(sample) > 0 {
		columns = sample[0]
	}

	var values [][]string
	if len(sample) > 1 {
		values = sample[1:]
	}

	return &domain.CSVProfile{
		Filename:  filename,
		Encoding:  encoding,
		Delimiter: delimiter,
		RowCount:  len(lines) - 1,
		Columns:   columns,
		Sample:    sample,
		PIIFlags:  DetectPII(columns, values),
	}, nil
}

// decode returns the file's text and detected encoding. A UTF-8 BOM wins
// outright; otherwise invalid UTF-8 falls back to a Latin-1 reading, which
// is total over arbitrary bytes.
func decode(data []byte) (string, string) {
	if bytes.HasPrefix(data, utf8BOM) {
		return string(data[len(utf8BOM):]), "utf-8"
	}
	if utf8.Valid(data) {
		return string(data), "utf-8"
	}
	return decodeLatin1(data), "latin1"
}

func decodeLatin1(data []byte) string {
	runes := make([]rune, len(data))
	for i, b := range data {
		runes[i] = rune(b)
	}
	return string(runes)
}

func nonBlankLines(text string) []string {
	var lines []string
	for _, line := range strings.Split(strings.ReplaceAll(text, "\r\n", "\n"), "\n") {
		if strings.TrimSpace(line) != "" {
			lines = append(lines, line)
		}
	}
	return lines
}

// detectDelimiter scores each candidate over the first sniffRows lines by
// consistency: the number of lines whose occurrence count is within 1 of
// the average. The highest consistency with a positive average wins, ties
// going to earlier candidates.
func detectDelimiter(lines []string) string {
	window := lines
	if len(window) > sniffRows {
		window = window[:sniffRows]
	}

	best := ","
	bestScore := 0
	for _, cand := range delimiters {
		counts := make([]int, len(window))
		total := 0
		for i, line := range window {
			counts[i] = strings.Count(line, cand)
			total += counts[i]
		}
		avg := float64(total) / float64(len(window))
		if avg <= 0 {
			continue
		}
		score := 0
		for _, c := range counts {
			diff := float64(c) - avg
			if diff >= -1 && diff <= 1 {
				score++
			}
		}
		if score > bestScore {
			best = cand
			bestScore = score
		}
	}
	return best
}

// parseSample splits the first sniffRows+1 lines on the delimiter, trims
// each field and strips a single leading/trailing double quote. Rows with
// at most one field, or only empty fields, are discarded.
func parseSample(lines []string, delimiter string) [][]string {
	limit := sniffRows + 1
	if len(lines) < limit {
		limit = len(lines)
	}

	var sample [][]string
	for _, line := range lines[:limit] {
		fields := strings.Split(line, delimiter)
		if len(fields) <= 1 {
			continue
		}
		row := make([]string, len(fields))
		empty := true
		for i, f := range fields {
			f = strings.TrimSpace(f)
			f = strings.TrimPrefix(f, `"`)
			f = strings.TrimSuffix(f, `"`)
			row[i] = f
			if f != "" {
				empty = false
			}
		}
		if empty {
			continue
		}
		sample = append(sample, row)
	}
	return sample
}
