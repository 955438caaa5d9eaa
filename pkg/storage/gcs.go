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
	"context"
	"fmt"
	"io"
	"strings"

	gstorage "cloud.google.com/go/storage"
	"github.com/googleapis/google-cloud-go-testing/storage/stiface"
	"google.golang.org/api/iterator"
)

type GCSProvider struct {
	Client stiface.Client
}

var _ Provider = (*GCSProvider)(nil)

func (p *GCSProvider) Download(ctx context.Context, destDir string, storageUri string) error {
	log.Info("Downloading from GCS", "storageUri", storageUri, "destDir", destDir)
	gcsUri := strings.TrimPrefix(storageUri, string(GCS))
	tokens := strings.SplitN(gcsUri, "/", 2)
	prefix := ""
	if len(tokens) == 2 {
		prefix = tokens[1]
	}
	gcsObjectDownloader := &GCSObjectDownloader{
		Context: ctx,
		DestDir: destDir,
		Bucket:  tokens[0],
		Item:    prefix,
	}
	it := gcsObjectDownloader.GetObjectIterator(p.Client)
	if err := gcsObjectDownloader.Download(p.Client, it); err != nil {
		return fmt.Errorf("unable to download object/s because: %w", err)
	}
	return nil
}

type GCSObjectDownloader struct {
	Context context.Context
	DestDir string
	Bucket  string
	Item    string
}

func (g *GCSObjectDownloader) GetObjectIterator(client stiface.Client) stiface.ObjectIterator {
	query := &gstorage.Query{Prefix: g.Item}
	return client.Bucket(g.Bucket).Objects(g.Context, query)
}

func (g *GCSObjectDownloader) Download(client stiface.Client, it stiface.ObjectIterator) error {
	foundObject := false
	for {
		attrs, err := it.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return fmt.Errorf("an error occurred while iterating: %w", err)
		}
		if strings.HasSuffix(attrs.Name, "/") {
			continue
		}
		foundObject = true
		fileName, err := relativeObjectPath(g.DestDir, g.Item, attrs.Name)
		if err != nil {
			return err
		}
		if err := g.DownloadFile(client, attrs, fileName); err != nil {
			return err
		}
	}
	if !foundObject {
		return gstorage.ErrObjectNotExist
	}
	return nil
}

func (g *GCSObjectDownloader) DownloadFile(client stiface.Client, attrs *gstorage.ObjectAttrs, fileName string) error {
	reader, err := client.Bucket(g.Bucket).Object(attrs.Name).NewReader(g.Context)
	if err != nil {
		return fmt.Errorf("failed to create reader for object(%s) in bucket(%s): %w", attrs.Name, g.Bucket, err)
	}
	defer reader.Close()

	file, err := Create(fileName)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", fileName, err)
	}
	defer file.Close()
	if _, err := io.Copy(file, reader); err != nil {
		return fmt.Errorf("failed to write data to file(%s) from object(%s) in bucket(%s): %w",
			fileName, attrs.Name, g.Bucket, err)
	}
	return nil
}
