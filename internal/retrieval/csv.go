package retrieval

import (
	"archive/zip"
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"iter"

	"github.com/ThiagoRGoveia/tracer-ingest/internal/models"
	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"
)

var ErrEmptyArchive = errors.New("archive contains no files")

// ExtractFirstFile returns the decoded text of the first entry in a ZIP
// archive. The portal publishes single-file archives.
func ExtractFirstFile(data []byte) ([]byte, error) {
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("failed to open zip archive: %w", err)
	}
	if len(zr.File) == 0 {
		return nil, ErrEmptyArchive
	}

	f, err := zr.File[0].Open()
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", zr.File[0].Name, err)
	}
	defer f.Close()

	content, err := io.ReadAll(f)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", zr.File[0].Name, err)
	}

	return DecodeText(content)
}

// DecodeText drops bytes that are not valid UTF-8 and strips a leading byte
// order mark.
func DecodeText(data []byte) ([]byte, error) {
	valid := bytes.ToValidUTF8(data, nil)
	decoder := unicode.BOMOverride(unicode.UTF8.NewDecoder())

	out, _, err := transform.Bytes(decoder, valid)
	if err != nil {
		return nil, fmt.Errorf("failed to decode text: %w", err)
	}
	return out, nil
}

// ReadRecords yields one record per CSV row keyed by the header row. Short
// rows are padded with empty strings and surplus cells are dropped. A
// malformed row yields an error and reading continues with the next row; any
// other read error ends the sequence.
func ReadRecords(r io.Reader) iter.Seq2[models.Record, error] {
	return func(yield func(models.Record, error) bool) {
		reader := csv.NewReader(r)
		reader.FieldsPerRecord = -1
		reader.LazyQuotes = true

		header, err := reader.Read()
		if err == io.EOF {
			return
		}
		if err != nil {
			yield(nil, fmt.Errorf("failed to read header: %w", err))
			return
		}
		header = append([]string(nil), header...)

		for {
			row, err := reader.Read()
			if err == io.EOF {
				return
			}
			if err != nil {
				var parseErr *csv.ParseError
				if errors.As(err, &parseErr) {
					if !yield(nil, err) {
						return
					}
					continue
				}
				yield(nil, err)
				return
			}

			record := make(models.Record, len(header))
			for i, key := range header {
				value := ""
				if i < len(row) {
					value = row[i]
				}
				record[key] = value
			}
			if !yield(record, nil) {
				return
			}
		}
	}
}

// ParseRecords tokenizes a whole CSV document, failing on the first
// malformed row.
func ParseRecords(data []byte) ([]models.Record, error) {
	var records []models.Record
	for record, err := range ReadRecords(bytes.NewReader(data)) {
		if err != nil {
			return nil, err
		}
		records = append(records, record)
	}
	return records, nil
}
