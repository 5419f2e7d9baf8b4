package capture

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/fxamacker/cbor/v2"
)

// Reader iterates the entries of a capture stream
type Reader struct {
	dec    *cbor.Decoder
	file   *os.File
	header Header
}

// Open reads the header of the capture file at path
func Open(path string) (*Reader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open capture file: %w", err)
	}

	r, err := NewReader(f)
	if err != nil {
		f.Close()
		return nil, err
	}
	r.file = f
	return r, nil
}

// NewReader reads a capture stream from in, consuming the header
func NewReader(in io.Reader) (*Reader, error) {
	dec := cbor.NewDecoder(in)

	var hdr Header
	if err := dec.Decode(&hdr); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("capture stream is empty")
		}
		return nil, fmt.Errorf("failed to read capture header: %w", err)
	}
	if hdr.Version > FormatVersion {
		return nil, fmt.Errorf("capture format version %d is newer than supported version %d",
			hdr.Version, FormatVersion)
	}

	return &Reader{dec: dec, header: hdr}, nil
}

// Header returns the capture header
func (r *Reader) Header() Header {
	return r.header
}

// Next returns the next entry, or io.EOF after the last one
func (r *Reader) Next() (Entry, error) {
	var e Entry
	if err := r.dec.Decode(&e); err != nil {
		if errors.Is(err, io.EOF) {
			return Entry{}, io.EOF
		}
		return Entry{}, fmt.Errorf("failed to read capture entry: %w", err)
	}
	return e, nil
}

// Entries drains the remaining entries
func (r *Reader) Entries() ([]Entry, error) {
	var out []Entry
	for {
		e, err := r.Next()
		if err == io.EOF {
			return out, nil
		}
		if err != nil {
			return out, err
		}
		out = append(out, e)
	}
}

// Close closes the file if Open opened one
func (r *Reader) Close() error {
	if r.file != nil {
		return r.file.Close()
	}
	return nil
}

// Load reads a whole capture file
func Load(path string) (Header, []Entry, error) {
	r, err := Open(path)
	if err != nil {
		return Header{}, nil, err
	}
	defer r.Close()

	entries, err := r.Entries()
	if err != nil {
		return r.Header(), nil, err
	}
	return r.Header(), entries, nil
}
