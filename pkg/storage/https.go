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

package storage

import (
	"archive/tar"
	"archive/zip"
	"bytes"
	"compress/gzip"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path"
	"strings"
)

const (
	HEADER_SUFFIX                  = "-headers"
	DEFAULT_MAX_DECOMPRESSION_SIZE = 1024 * 1024 * 1024 // 1 GB
)

// HTTPSProvider downloads a single file, or a zip or tar.gz archive that is unpacked into destDir.
type HTTPSProvider struct {
	Client *http.Client
}

var _ Provider = (*HTTPSProvider)(nil)

func (m *HTTPSProvider) Download(ctx context.Context, destDir string, storageUri string) error {
	log.Info("Downloading over HTTP", "storageUri", storageUri, "destDir", destDir)
	uri, err := url.Parse(storageUri)
	if err != nil {
		return fmt.Errorf("unable to parse storage uri: %w", err)
	}
	downloader := &HTTPSDownloader{
		StorageUri: storageUri,
		DestDir:    destDir,
		Uri:        uri,
	}
	return downloader.Download(ctx, m.Client)
}

type HTTPSDownloader struct {
	StorageUri string
	DestDir    string
	Uri        *url.URL
}

func (h *HTTPSDownloader) Download(ctx context.Context, client *http.Client) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, h.StorageUri, nil)
	if err != nil {
		return err
	}
	headers, err := h.extractHeaders()
	if err != nil {
		return err
	}
	for key, element := range headers {
		req.Header.Add(key, element)
	}

	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to make a request: %w", err)
	}
	defer func() {
		if closeErr := resp.Body.Close(); closeErr != nil {
			log.Error(closeErr, "failed to close body")
		}
	}()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("URI: %s returned a %d response code", h.StorageUri, resp.StatusCode)
	}

	contentType := resp.Header.Get("Content-type")
	switch {
	case strings.Contains(contentType, "application/zip"):
		return extractZipFiles(resp.Body, h.DestDir)
	case strings.Contains(contentType, "application/x-tar") || strings.Contains(contentType, "application/x-gtar") ||
		strings.Contains(contentType, "application/x-gzip") || strings.Contains(contentType, "application/gzip"):
		return extractTarFiles(resp.Body, h.DestDir)
	default:
		fileName := path.Base(h.Uri.Path)
		if fileName == "/" || fileName == "." {
			return fmt.Errorf("URI: %s does not name a file", h.StorageUri)
		}
		fileFullName, err := SafeJoin(h.DestDir, fileName)
		if err != nil {
			return err
		}
		file, err := createNewFile(fileFullName)
		if err != nil {
			return err
		}
		defer file.Close()
		if _, err = io.Copy(file, resp.Body); err != nil {
			return fmt.Errorf("unable to copy file content: %w", err)
		}
	}
	return nil
}

// extractHeaders reads extra request headers from the <hostname>-headers environment variable.
func (h *HTTPSDownloader) extractHeaders() (headers map[string]string, err error) {
	hostname := h.Uri.Hostname()
	headerJSON := os.Getenv(hostname + HEADER_SUFFIX)
	if headerJSON != "" {
		err = json.Unmarshal([]byte(headerJSON), &headers)
		if err != nil {
			log.Error(err, "failed to unmarshal headers")
		}
	}
	return headers, err
}

func createNewFile(fileFullName string) (*os.File, error) {
	if FileExists(fileFullName) {
		if err := os.Remove(fileFullName); err != nil {
			return nil, fmt.Errorf("file is unable to be deleted: %w", err)
		}
	}
	file, err := Create(fileFullName)
	if err != nil {
		return nil, fmt.Errorf("file is already created: %w", err)
	}
	return file, nil
}

func copyLimited(dst io.Writer, src io.Reader) error {
	if _, err := io.CopyN(dst, src, DEFAULT_MAX_DECOMPRESSION_SIZE); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

func extractZipFiles(reader io.Reader, dest string) error {
	body, err := io.ReadAll(reader)
	if err != nil {
		return err
	}
	zipReader, err := zip.NewReader(bytes.NewReader(body), int64(len(body)))
	if err != nil {
		return fmt.Errorf("unable to create new reader: %w", err)
	}

	for _, zipFile := range zipReader.File {
		fileFullPath, err := SafeJoin(dest, zipFile.Name)
		if err != nil {
			return err
		}
		if zipFile.Mode().IsDir() {
			if err := os.MkdirAll(fileFullPath, 0o755); err != nil {
				return fmt.Errorf("unable to create new directory %s", fileFullPath)
			}
			continue
		}

		file, err := createNewFile(fileFullPath)
		if err != nil {
			return err
		}
		rc, err := zipFile.Open()
		if err != nil {
			file.Close()
			return fmt.Errorf("unable to open file: %w", err)
		}
		copyErr := copyLimited(file, rc)
		rc.Close()
		if closeErr := file.Close(); closeErr != nil {
			return closeErr
		}
		if copyErr != nil {
			return fmt.Errorf("unable to copy file content: %w", copyErr)
		}
	}
	return nil
}

func extractTarFiles(reader io.Reader, dest string) error {
	gzr, err := gzip.NewReader(reader)
	if err != nil {
		return err
	}
	defer func(gzr *gzip.Reader) {
		if closeErr := gzr.Close(); closeErr != nil {
			log.Error(closeErr, "failed to close reader")
		}
	}(gzr)

	tr := tar.NewReader(gzr)
	for {
		header, err := tr.Next()
		if errors.Is(err, io.EOF) {
			break
		} else if err != nil {
			return fmt.Errorf("unable to access next tar file: %w", err)
		}

		fileFullPath, err := SafeJoin(dest, header.Name)
		if err != nil {
			return err
		}
		switch header.Typeflag {
		case tar.TypeDir:
			if err := os.MkdirAll(fileFullPath, 0o755); err != nil {
				return fmt.Errorf("unable to create new directory %s", fileFullPath)
			}
		case tar.TypeReg:
			newFile, err := createNewFile(fileFullPath)
			if err != nil {
				return err
			}
			copyErr := copyLimited(newFile, tr)
			newFile.Close()
			if copyErr != nil {
				return fmt.Errorf("unable to copy contents to %s: %w", header.Name, copyErr)
			}
		}
	}
	return nil
}
