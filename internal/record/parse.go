package record

import (
	"bytes"
	"encoding/json"
	"fmt"
	"slices"
	"strconv"

	"sieve/internal/tokenizer"
)

// Format is the encoding of record lines.
type Format string

const (
	// FormatAuto treats lines starting with '{' as JSON and others as
	// logfmt.
	FormatAuto   Format = "auto"
	FormatJSON   Format = "json"
	FormatLogfmt Format = "logfmt"
)

// ParseFormat parses a format name. Empty is FormatAuto.
func ParseFormat(s string) (Format, error) {
	switch f := Format(s); f {
	case "":
		return FormatAuto, nil
	case FormatAuto, FormatJSON, FormatLogfmt:
		return f, nil
	default:
		return "", fmt.Errorf("unknown record format %q (want auto, json or logfmt)", s)
	}
}

// Options control parsing.
type Options struct {
	Format Format

	// TextFields names the logfmt keys whose values are text fields. JSON
	// records list their text fields under "text".
	TextFields []string
}

// Reserved logfmt keys.
const (
	keyID         = "id"
	keyShard      = "shard"
	keyDatatype   = "datatype"
	keyVisibility = "visibility"
	keyTimestamp  = "timestamp"
)

// ParseLine parses one record line.
func ParseLine(line []byte, opts Options) (Record, error) {
	format := opts.Format
	if format == "" || format == FormatAuto {
		format = FormatLogfmt
		if trimmed := bytes.TrimSpace(line); len(trimmed) > 0 && trimmed[0] == '{' {
			format = FormatJSON
		}
	}
	if format == FormatJSON {
		return parseJSON(line)
	}
	return parseLogfmt(line, opts.TextFields)
}

func parseJSON(line []byte) (Record, error) {
	var r Record
	dec := json.NewDecoder(bytes.NewReader(line))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&r); err != nil {
		return Record{}, fmt.Errorf("json record: %w", err)
	}
	if r.ID == "" {
		return Record{}, fmt.Errorf("json record: missing id")
	}
	return r, nil
}

func parseLogfmt(line []byte, textFields []string) (Record, error) {
	pairs, err := tokenizer.ParseLogfmt(line)
	if err != nil {
		return Record{}, err
	}
	r := Record{Fields: make(map[string]Values)}
	for _, kv := range pairs {
		switch kv.Key {
		case keyID:
			r.ID = kv.Value
		case keyShard:
			r.Shard = kv.Value
		case keyDatatype:
			r.Datatype = kv.Value
		case keyVisibility:
			r.Visibility = kv.Value
		case keyTimestamp:
			ts, err := strconv.ParseInt(kv.Value, 10, 64)
			if err != nil {
				return Record{}, fmt.Errorf("logfmt record: timestamp %q: %w", kv.Value, err)
			}
			r.Timestamp = ts
		default:
			if slices.Contains(textFields, kv.Key) {
				if r.Text == nil {
					r.Text = make(map[string]string)
				}
				if prev, ok := r.Text[kv.Key]; ok {
					r.Text[kv.Key] = prev + " " + kv.Value
				} else {
					r.Text[kv.Key] = kv.Value
				}
				continue
			}
			r.Fields[kv.Key] = append(r.Fields[kv.Key], kv.Value)
		}
	}
	if r.ID == "" {
		return Record{}, fmt.Errorf("logfmt record: missing id")
	}
	return r, nil
}
