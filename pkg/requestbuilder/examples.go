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
	"bufio"
	"compress/gzip"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/pkg/errors"
	logf "sigs.k8s.io/controller-runtime/pkg/log"

	"github.com/kserve/infravalidator/pkg/constants"
)

var log = logf.Log.WithName("requestbuilder")

const (
	CompressionGzip = "GZIP"
	CompressionNone = "NONE"
)

var gzipMagic = []byte{0x1f, 0x8b}

// ExampleSource yields serialized example records.
type ExampleSource interface {
	// Records returns at most count records, always the same ones for the same source.
	Records(count int) ([][]byte, error)
}

// StaticExamples is an in-memory ExampleSource.
type StaticExamples [][]byte

func (s StaticExamples) Records(count int) ([][]byte, error) {
	if count <= 0 {
		return nil, nil
	}
	if count > len(s) {
		count = len(s)
	}
	return s[:count], nil
}

// TFRecordExampleSource reads TFRecord files from a directory laid out as Split-<name>/ sub-directories.
type TFRecordExampleSource struct {
	Dir       string
	SplitName string
	// Compression is GZIP, NONE, or empty to detect it per file.
	Compression string
}

var _ ExampleSource = (*TFRecordExampleSource)(nil)

// SplitDir resolves the directory of the configured split. Without a split name the first
// Split-* directory in lexical order is used, and a directory without splits is read as is.
func (s *TFRecordExampleSource) SplitDir() (string, error) {
	if s.SplitName != "" {
		dir := filepath.Join(s.Dir, constants.SplitDirPrefix+s.SplitName)
		info, err := os.Stat(dir)
		if err != nil || !info.IsDir() {
			return "", errors.Errorf("split %q not found under %s", s.SplitName, s.Dir)
		}
		return dir, nil
	}
	entries, err := os.ReadDir(s.Dir)
	if err != nil {
		return "", errors.Wrapf(err, "unable to read examples directory %s", s.Dir)
	}
	for _, entry := range entries {
		if entry.IsDir() && strings.HasPrefix(entry.Name(), constants.SplitDirPrefix) {
			return filepath.Join(s.Dir, entry.Name()), nil
		}
	}
	return s.Dir, nil
}

func (s *TFRecordExampleSource) Records(count int) ([][]byte, error) {
	if count <= 0 {
		return nil, nil
	}
	dir, err := s.SplitDir()
	if err != nil {
		return nil, err
	}
	files, err := recordFiles(dir)
	if err != nil {
		return nil, err
	}
	if len(files) == 0 {
		return nil, errors.Errorf("no example files found in %s", dir)
	}
	records := make([][]byte, 0, count)
	for _, file := range files {
		if len(records) >= count {
			break
		}
		read, err := s.readFile(file, count-len(records))
		if err != nil {
			return nil, errors.Wrapf(err, "failed to read examples from %s", file)
		}
		records = append(records, read...)
	}
	log.V(1).Info("Read example records", "dir", dir, "files", len(files), "records", len(records))
	return records, nil
}

func recordFiles(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, errors.Wrapf(err, "unable to read split directory %s", dir)
	}
	var files []string
	for _, entry := range entries {
		if entry.IsDir() || strings.HasPrefix(entry.Name(), ".") || strings.HasPrefix(entry.Name(), "_") {
			continue
		}
		files = append(files, filepath.Join(dir, entry.Name()))
	}
	sort.Strings(files)
	return files, nil
}

func (s *TFRecordExampleSource) readFile(path string, limit int) ([][]byte, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	buffered := bufio.NewReader(file)
	var reader io.Reader = buffered
	compressed := s.Compression == CompressionGzip
	if s.Compression == "" {
		magic, err := buffered.Peek(len(gzipMagic))
		compressed = err == nil && magic[0] == gzipMagic[0] && magic[1] == gzipMagic[1]
	}
	if compressed {
		gz, err := gzip.NewReader(buffered)
		if err != nil {
			return nil, errors.Wrap(err, "not a gzip file")
		}
		defer gz.Close()
		reader = gz
	}

	records := NewTFRecordReader(reader)
	var result [][]byte
	for len(result) < limit {
		record, err := records.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
		result = append(result, record)
	}
	return result, nil
}
