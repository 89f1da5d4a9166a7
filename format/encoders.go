package format

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"slices"
	"time"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"

	"github.com/franksops/cloudsave/engine"
	"github.com/franksops/cloudsave/pipeline"
)

// EncodeJSON renders v as indented JSON. Record columns keep their order.
func EncodeJSON(v pipeline.Value) ([]byte, error) {
	tree, err := jsonTree(v)
	if err != nil {
		return nil, err
	}
	out, err := json.MarshalIndent(tree, "", "  ")
	if err != nil {
		return nil, err
	}
	return append(out, '\n'), nil
}

// orderedRecord marshals as a JSON object with columns in order.
type orderedRecord struct {
	cols []string
	vals []any
}

func (r orderedRecord) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, c := range r.cols {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(c)
		if err != nil {
			return nil, err
		}
		val, err := json.Marshal(r.vals[i])
		if err != nil {
			return nil, err
		}
		buf.Write(key)
		buf.WriteByte(':')
		buf.Write(val)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

func jsonTree(v pipeline.Value) (any, error) {
	switch v := v.(type) {
	case pipeline.List:
		out := make([]any, 0, len(v.Vals))
		for _, item := range v.Vals {
			n, err := jsonTree(item)
			if err != nil {
				return nil, err
			}
			out = append(out, n)
		}
		return out, nil
	case pipeline.Record:
		rec := orderedRecord{cols: v.Cols, vals: make([]any, len(v.Vals))}
		for i, item := range v.Vals {
			n, err := jsonTree(item)
			if err != nil {
				return nil, err
			}
			rec.vals[i] = n
		}
		return rec, nil
	}
	return pipeline.ToNative(v)
}

// EncodeYAML renders v as a YAML document. Record columns keep their order.
func EncodeYAML(v pipeline.Value) ([]byte, error) {
	node, err := yamlNode(v)
	if err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(node); err != nil {
		return nil, err
	}
	if err := enc.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func yamlNode(v pipeline.Value) (*yaml.Node, error) {
	switch v := v.(type) {
	case pipeline.List:
		node := &yaml.Node{Kind: yaml.SequenceNode, Tag: "!!seq"}
		for _, item := range v.Vals {
			child, err := yamlNode(item)
			if err != nil {
				return nil, err
			}
			node.Content = append(node.Content, child)
		}
		return node, nil
	case pipeline.Record:
		node := &yaml.Node{Kind: yaml.MappingNode, Tag: "!!map"}
		for i, col := range v.Cols {
			child, err := yamlNode(v.Vals[i])
			if err != nil {
				return nil, err
			}
			key := &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: col}
			node.Content = append(node.Content, key, child)
		}
		return node, nil
	}

	native, err := pipeline.ToNative(v)
	if err != nil {
		return nil, err
	}
	node := &yaml.Node{}
	if err := node.Encode(native); err != nil {
		return nil, err
	}
	return node, nil
}

// EncodeTOML renders a record as a TOML document. TOML has no top-level
// arrays or scalars, so anything but a record is rejected.
func EncodeTOML(v pipeline.Value) ([]byte, error) {
	rec, ok := v.(pipeline.Record)
	if !ok {
		return nil, pipeline.NewError(pipeline.TransformFailed, "to toml", nil).
			WithSpan(v.Span()).
			WithMessage("can't convert %s to toml: only records can be written as a document", v.TypeName())
	}
	native, err := pipeline.ToNative(rec)
	if err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	if err := toml.NewEncoder(&buf).Encode(native); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// EncodeCSV renders a list of records, or a single record, as CSV with a
// header row. Columns appear in the order they are first seen; cells of
// records lacking a column are empty.
func EncodeCSV(v pipeline.Value) ([]byte, error) {
	return encodeDelimited(v, ',')
}

// EncodeTSV is EncodeCSV with tab separated cells.
func EncodeTSV(v pipeline.Value) ([]byte, error) {
	return encodeDelimited(v, '\t')
}

func encodeDelimited(v pipeline.Value, comma rune) ([]byte, error) {
	var rows []pipeline.Record
	switch v := v.(type) {
	case pipeline.Record:
		rows = []pipeline.Record{v}
	case pipeline.List:
		for _, item := range v.Vals {
			rec, ok := item.(pipeline.Record)
			if !ok {
				return nil, fmt.Errorf("table rows must be records, found %s", item.TypeName())
			}
			rows = append(rows, rec)
		}
	default:
		return nil, fmt.Errorf("can't write %s as a table", v.TypeName())
	}

	var header []string
	for _, row := range rows {
		for _, col := range row.Cols {
			if !slices.Contains(header, col) {
				header = append(header, col)
			}
		}
	}

	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	w.Comma = comma
	if err := w.Write(header); err != nil {
		return nil, err
	}
	line := make([]string, len(header))
	for _, row := range rows {
		for i, col := range header {
			line[i] = ""
			v, ok := row.Get(col)
			if !ok {
				continue
			}
			cell, err := cellString(v)
			if err != nil {
				return nil, err
			}
			line[i] = cell
		}
		if err := w.Write(line); err != nil {
			return nil, err
		}
	}
	w.Flush()
	return buf.Bytes(), w.Error()
}

func cellString(v pipeline.Value) (string, error) {
	switch v := v.(type) {
	case pipeline.Date:
		return v.Val.Format(time.RFC3339), nil
	case pipeline.List, pipeline.Record:
		// nested data goes into the cell as compact JSON
		tree, err := jsonTree(v)
		if err != nil {
			return "", err
		}
		out, err := json.Marshal(tree)
		return string(out), err
	}
	return pipeline.CoerceString(v)
}

// EncodeText renders v the way a raw save would: one line per list element,
// anything else as its string form.
func EncodeText(v pipeline.Value) ([]byte, error) {
	return engine.ValueToBytes(v)
}
