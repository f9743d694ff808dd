package core

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
)

// DecodeStrict decodes a JSONL dataset and stops at the first bad line.
// On failure the returned error is a *DecodeError (or an I/O error) and no
// records are returned.
func DecodeStrict(r io.Reader) ([]Record, error) {
	var records []Record
	err := scanLines(r, func(line int, data []byte) error {
		rec, err := ParseRecord(line, data)
		if err != nil {
			return &DecodeError{Line: line, Err: err}
		}
		records = append(records, rec)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return records, nil
}

// DecodeTolerant decodes a JSONL dataset, collecting bad lines instead of
// stopping. The error result is only set when reading r fails.
func DecodeTolerant(r io.Reader) ([]Record, []DecodeError, error) {
	var (
		records []Record
		bad     []DecodeError
	)
	err := scanLines(r, func(line int, data []byte) error {
		rec, err := ParseRecord(line, data)
		if err != nil {
			bad = append(bad, DecodeError{Line: line, Err: err})
			return nil
		}
		records = append(records, rec)
		return nil
	})
	return records, bad, err
}

// scanLines calls fn for every non-blank line of r with its 1-based line number.
func scanLines(r io.Reader, fn func(line int, data []byte) error) error {
	br := bufio.NewReader(r)
	for line := 1; ; line++ {
		data, err := br.ReadBytes('\n')
		if err != nil && !errors.Is(err, io.EOF) {
			return fmt.Errorf("read dataset: %w", err)
		}

		if trimmed := bytes.TrimSpace(data); len(trimmed) > 0 {
			if ferr := fn(line, trimmed); ferr != nil {
				return ferr
			}
		}

		if err != nil {
			return nil
		}
	}
}
