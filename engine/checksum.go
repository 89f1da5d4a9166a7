package engine

import (
	"hash"
	"hash/crc64"
	"io"
)

var crcTable = crc64.MakeTable(crc64.ISO)

// ChecksumWriter wraps an io.Writer to compute a CRC64 of the bytes it
// accepted, the checksum recorded in the transfer journal.
type ChecksumWriter struct {
	w    io.Writer
	hash hash.Hash64
	n    int64
}

// NewChecksumWriter creates a new ChecksumWriter that wraps the given writer.
func NewChecksumWriter(w io.Writer) *ChecksumWriter {
	return &ChecksumWriter{
		w:    w,
		hash: crc64.New(crcTable),
	}
}

// Write writes data to the underlying writer and updates the checksum.
func (cw *ChecksumWriter) Write(p []byte) (int, error) {
	n, err := cw.w.Write(p)
	if n > 0 {
		cw.n += int64(n)
		cw.hash.Write(p[:n])
	}
	return n, err
}

// Checksum returns the current checksum value.
func (cw *ChecksumWriter) Checksum() uint64 {
	return cw.hash.Sum64()
}

// BytesWritten returns the total number of bytes written.
func (cw *ChecksumWriter) BytesWritten() int64 {
	return cw.n
}

// Checksum computes the journal checksum of data.
func Checksum(data []byte) uint64 {
	return crc64.Checksum(data, crcTable)
}
