package engine

import (
	"bytes"

	"github.com/franksops/cloudsave/pipeline"
)

// ValueToBytes turns one value into the bytes written to storage.
//
// Strings are written as UTF-8 and binaries verbatim. A list becomes its
// elements' string forms, each followed by a newline, so an empty list
// yields no bytes. An error value is returned as the error, unchanged.
// Everything else goes through pipeline.CoerceString.
func ValueToBytes(v pipeline.Value) ([]byte, error) {
	switch v := v.(type) {
	case pipeline.String:
		return []byte(v.Val), nil
	case pipeline.Binary:
		return v.Val, nil
	case pipeline.ErrorValue:
		return nil, v.Err
	case pipeline.List:
		var buf bytes.Buffer
		for _, item := range v.Vals {
			s, err := pipeline.CoerceString(item)
			if err != nil {
				return nil, err
			}
			buf.WriteString(s)
			buf.WriteByte('\n')
		}
		return buf.Bytes(), nil
	}

	s, err := pipeline.CoerceString(v)
	if err != nil {
		return nil, err
	}
	return []byte(s), nil
}
