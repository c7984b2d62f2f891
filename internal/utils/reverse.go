package utils

import (
	"bytes"
	"io"
)

const DefaultReverseChunkSize = 8192

// ReverseLineScanner yields the lines of a forward-written file from the last
// to the first, reading it backwards chunkSize bytes at a time. Empty lines
// are skipped. A line cut by a chunk boundary is carried over and completed
// by the next (earlier) chunk.
type ReverseLineScanner struct {
	r         io.ReaderAt
	offset    int64
	chunkSize int

	carry   []byte
	pending [][]byte
	line    []byte
	err     error
}

func NewReverseLineScanner(r io.ReaderAt, size int64, chunkSize int) *ReverseLineScanner {
	if chunkSize <= 0 {
		chunkSize = DefaultReverseChunkSize
	}
	return &ReverseLineScanner{
		r:         r,
		offset:    size,
		chunkSize: chunkSize,
	}
}

func (s *ReverseLineScanner) Scan() bool {
	if s.err != nil {
		return false
	}
	for {
		if n := len(s.pending); n > 0 {
			line := s.pending[n-1]
			s.pending = s.pending[:n-1]
			if len(line) == 0 {
				continue
			}
			s.line = line
			return true
		}

		if s.offset == 0 {
			if s.carry == nil {
				return false
			}
			line := s.carry
			s.carry = nil
			if len(line) == 0 {
				continue
			}
			s.line = line
			return true
		}

		n := int64(s.chunkSize)
		if n > s.offset {
			n = s.offset
		}
		start := s.offset - n
		buf := make([]byte, n, n+int64(len(s.carry)))
		if _, err := s.r.ReadAt(buf, start); err != nil && err != io.EOF {
			s.err = err
			return false
		}
		s.offset = start

		data := append(buf, s.carry...)
		first := bytes.IndexByte(data, '\n')
		if first < 0 {
			s.carry = data
			continue
		}
		s.carry = data[:first]
		s.pending = bytes.Split(data[first+1:], []byte{'\n'})
	}
}

// Bytes returns the current line. It stays valid until the scanner is dropped.
func (s *ReverseLineScanner) Bytes() []byte {
	return s.line
}

func (s *ReverseLineScanner) Err() error {
	return s.err
}
