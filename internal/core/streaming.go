package core

// streaming.go provides the reader wrappers the CSV loader decodes through.
//
//   - HasBOM: probes the first three bytes of a file for a UTF-8 BOM
//   - BOMSkippingReader: removes the UTF-8 BOM (0xEF 0xBB 0xBF) from Windows files
//   - UTF8Validator: fails with ErrInvalidUTF8 on the first invalid sequence,
//     so the loader can retry the file as Latin-1
//   - CountingReader: tracks bytes read for file statistics

import (
	"bytes"
	"errors"
	"io"
	"os"
	"unicode/utf8"
)

// ErrInvalidUTF8 is returned by UTF8Validator on the first invalid sequence.
var ErrInvalidUTF8 = errors.New("invalid UTF-8 sequence")

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// HasBOM reports whether the file starts with a UTF-8 byte order mark.
func HasBOM(path string) (bool, error) {
	f, err := os.Open(path)
	if err != nil {
		return false, err
	}
	defer f.Close()

	var buf [3]byte
	n, err := io.ReadFull(f, buf[:])
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) && !errors.Is(err, io.EOF) {
		return false, err
	}
	return n == 3 && bytes.Equal(buf[:], utf8BOM), nil
}

// UTF8Validator wraps an io.Reader and passes bytes through unchanged as
// long as they form valid UTF-8. Sequences split across reads are held back
// until the next read completes them.
type UTF8Validator struct {
	reader io.Reader
	chunk  []byte

	// ready holds validated bytes not yet returned to the caller
	ready []byte
	// carry holds an incomplete trailing sequence from the previous chunk
	carry []byte
	err   error
}

const validatorChunkSize = 32 * 1024

// NewUTF8Validator creates a new validating reader.
func NewUTF8Validator(r io.Reader) *UTF8Validator {
	return &UTF8Validator{
		reader: r,
		chunk:  make([]byte, validatorChunkSize+utf8.UTFMax),
	}
}

// Read implements io.Reader.
func (v *UTF8Validator) Read(p []byte) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}
	for len(v.ready) == 0 {
		if v.err != nil {
			return 0, v.err
		}
		v.fill()
	}
	n := copy(p, v.ready)
	v.ready = v.ready[n:]
	return n, nil
}

func (v *UTF8Validator) fill() {
	off := copy(v.chunk, v.carry)
	v.carry = nil

	n, err := v.reader.Read(v.chunk[off:])
	n += off

	valid := n
	if err == nil {
		valid -= incompleteTrailingBytes(v.chunk[:n])
	}

	// Quick check: if all bytes are ASCII, nothing to validate
	if !isAllASCII(v.chunk[:valid]) && !utf8.Valid(v.chunk[:valid]) {
		v.err = ErrInvalidUTF8
		return
	}

	if valid < n {
		v.carry = append([]byte(nil), v.chunk[valid:n]...)
	}
	v.ready = v.chunk[:valid]
	v.err = err
}

// isAllASCII returns true if all bytes are ASCII (< 128).
// This is a fast path optimization since most CSV data is ASCII.
func isAllASCII(data []byte) bool {
	for _, b := range data {
		if b >= 0x80 {
			return false
		}
	}
	return true
}

// incompleteTrailingBytes returns the number of bytes at the end of data
// that could be the start of an incomplete multi-byte UTF-8 sequence.
func incompleteTrailingBytes(data []byte) int {
	if len(data) == 0 {
		return 0
	}

	// Check last 1-3 bytes for incomplete sequences
	for i := 1; i <= 3 && i <= len(data); i++ {
		b := data[len(data)-i]
		// Check if this byte starts a multi-byte sequence
		if b >= 0xC0 {
			if i < runeLen(b) {
				return i
			}
			return 0
		}
		// Continuation byte (10xxxxxx) - keep checking
		if b&0xC0 != 0x80 {
			return 0
		}
	}
	return 0
}

// runeLen returns the expected length of a UTF-8 sequence starting with byte b.
func runeLen(b byte) int {
	switch {
	case b < 0x80:
		return 1
	case b < 0xC0:
		return 0 // continuation byte
	case b < 0xE0:
		return 2
	case b < 0xF0:
		return 3
	default:
		return 4
	}
}

// BOMSkippingReader wraps an io.Reader and skips the UTF-8 BOM if present.
// The UTF-8 BOM is 0xEF 0xBB 0xBF and is commonly added by Windows programs.
type BOMSkippingReader struct {
	reader     io.Reader
	bomChecked bool
	buf        [3]byte
	bufData    []byte // Bytes read during the BOM check that are not a BOM
}

// NewBOMSkippingReader creates a new BOM-skipping reader.
func NewBOMSkippingReader(r io.Reader) *BOMSkippingReader {
	return &BOMSkippingReader{
		reader: r,
	}
}

// Read implements io.Reader. On the first read, it checks for and skips the BOM.
func (r *BOMSkippingReader) Read(p []byte) (int, error) {
	if !r.bomChecked {
		r.bomChecked = true

		n, err := io.ReadFull(r.reader, r.buf[:])
		if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) && !errors.Is(err, io.EOF) {
			return 0, err
		}
		if n < 3 || !bytes.Equal(r.buf[:], utf8BOM) {
			r.bufData = r.buf[:n]
		}
	}

	// Return any remaining buffered data first
	if len(r.bufData) > 0 {
		copied := copy(p, r.bufData)
		r.bufData = r.bufData[copied:]
		return copied, nil
	}

	return r.reader.Read(p)
}

// CountingReader wraps an io.Reader to track bytes read.
type CountingReader struct {
	reader    io.Reader
	BytesRead int64
}

// NewCountingReader creates a counting reader.
func NewCountingReader(r io.Reader) *CountingReader {
	return &CountingReader{reader: r}
}

// Read implements io.Reader.
func (r *CountingReader) Read(p []byte) (int, error) {
	n, err := r.reader.Read(p)
	r.BytesRead += int64(n)
	return n, err
}
