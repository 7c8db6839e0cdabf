// Package cksum implements the CRC-32 checksum required by the ZIP format.
//
// The incremental [Update] form exists because archive payloads stream through in
// bounded chunks and are never buffered whole.
package cksum

import (
	"fmt"
	"io"
	"os"
)

// Seed is the initial running value callers pass to the first Update call. The final
// running value must be inverted with [Final] (XOR 0xFFFFFFFF) to obtain the standard
// CRC-32 output.
const Seed uint32 = 0xFFFFFFFF

// poly is the reflected CRC-32 polynomial used by ZIP (IEEE 802.3).
const poly uint32 = 0xEDB88320

// table is built once at init and never mutated afterwards.
var table [256]uint32

func init() {
	for i := range table {
		c := uint32(i)
		for range 8 {
			if c&1 != 0 {
				c = poly ^ (c >> 1)
			} else {
				c >>= 1
			}
		}
		table[i] = c
	}
}

// Update folds p into the running checksum crc and returns the new running value.
//
// Seed the first call with [Seed]; chunk boundaries do not affect the result.
func Update(crc uint32, p []byte) uint32 {
	for _, b := range p {
		crc = (crc >> 8) ^ table[byte(crc)^b]
	}
	return crc
}

// Final inverts a running checksum into the standard CRC-32 output.
func Final(crc uint32) uint32 {
	return crc ^ 0xFFFFFFFF
}

// Sum returns the CRC-32 of p in one call.
func Sum(p []byte) uint32 {
	return Final(Update(Seed, p))
}

// Reader folds every byte read from an io.Reader into a running checksum.
type Reader struct {
	src io.Reader
	crc uint32
}

// NewReader wraps src so that all bytes read through it contribute to the checksum.
func NewReader(src io.Reader) *Reader {
	return &Reader{src: src, crc: Seed}
}

func (r *Reader) Read(p []byte) (int, error) {
	n, err := r.src.Read(p)
	r.crc = Update(r.crc, p[:n])
	return n, err
}

// Sum32 returns the checksum of all bytes read so far.
func (r *Reader) Sum32() uint32 {
	return Final(r.crc)
}

// File computes the CRC-32 of the named file by streaming it in 32 KiB chunks.
func File(name string) (uint32, error) {
	f, err := os.Open(name)
	if err != nil {
		return 0, fmt.Errorf("open file error: %w", err)
	}
	defer f.Close()

	var (
		buf = make([]byte, 32*1024)
		crc = Seed
	)
	for {
		n, err := f.Read(buf)
		crc = Update(crc, buf[:n])
		if err == io.EOF {
			return Final(crc), nil
		}
		if err != nil {
			return 0, fmt.Errorf("read file error: %w", err)
		}
	}
}
