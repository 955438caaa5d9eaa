/*
Copyright 2025 The KServe Authors.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package requestbuilder

import (
	"encoding/binary"
	"hash/crc32"
	"io"

	"github.com/pkg/errors"
)

// A TFRecord is framed as
//
//	uint64 length
//	uint32 masked crc32c of length
//	byte   data[length]
//	uint32 masked crc32c of data
//
// with all integers little endian.
const (
	tfRecordHeaderSize = 12
	tfRecordFooterSize = 4
	maxTFRecordSize    = 1 << 30
	crcMaskDelta       = 0xa282ead8
)

var castagnoli = crc32.MakeTable(crc32.Castagnoli)

func maskedCRC(data []byte) uint32 {
	crc := crc32.Checksum(data, castagnoli)
	return ((crc >> 15) | (crc << 17)) + crcMaskDelta
}

type TFRecordReader struct {
	r io.Reader
}

func NewTFRecordReader(r io.Reader) *TFRecordReader {
	return &TFRecordReader{r: r}
}

// Next returns the next record, or io.EOF once the stream ends on a record boundary.
func (t *TFRecordReader) Next() ([]byte, error) {
	var header [tfRecordHeaderSize]byte
	if _, err := io.ReadFull(t.r, header[:]); err != nil {
		if err == io.EOF {
			return nil, io.EOF
		}
		return nil, errors.Wrap(err, "truncated record header")
	}
	length := binary.LittleEndian.Uint64(header[:8])
	if maskedCRC(header[:8]) != binary.LittleEndian.Uint32(header[8:]) {
		return nil, errors.New("corrupted record: length checksum mismatch")
	}
	if length > maxTFRecordSize {
		return nil, errors.Errorf("record of %d bytes exceeds the %d bytes limit", length, maxTFRecordSize)
	}
	data := make([]byte, length)
	if _, err := io.ReadFull(t.r, data); err != nil {
		return nil, errors.Wrap(err, "truncated record data")
	}
	var footer [tfRecordFooterSize]byte
	if _, err := io.ReadFull(t.r, footer[:]); err != nil {
		return nil, errors.Wrap(err, "truncated record footer")
	}
	if maskedCRC(data) != binary.LittleEndian.Uint32(footer[:]) {
		return nil, errors.New("corrupted record: data checksum mismatch")
	}
	return data, nil
}

type TFRecordWriter struct {
	w io.Writer
}

func NewTFRecordWriter(w io.Writer) *TFRecordWriter {
	return &TFRecordWriter{w: w}
}

func (t *TFRecordWriter) Write(record []byte) error {
	buf := make([]byte, 0, tfRecordHeaderSize+len(record)+tfRecordFooterSize)
	buf = binary.LittleEndian.AppendUint64(buf, uint64(len(record)))
	buf = binary.LittleEndian.AppendUint32(buf, maskedCRC(buf[:8]))
	buf = append(buf, record...)
	buf = binary.LittleEndian.AppendUint32(buf, maskedCRC(record))
	_, err := t.w.Write(buf)
	return err
}
