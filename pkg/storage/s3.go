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
	"strings"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/aws/aws-sdk-go/service/s3/s3iface"
	"github.com/aws/aws-sdk-go/service/s3/s3manager"
	"github.com/aws/aws-sdk-go/service/s3/s3manager/s3manageriface"
)

type S3Provider struct {
	Client     s3iface.S3API
	Downloader s3manageriface.DownloadWithIterator
}

var _ Provider = (*S3Provider)(nil)

func (m *S3Provider) Download(ctx context.Context, destDir string, storageUri string) error {
	log.Info("Downloading from S3", "storageUri", storageUri, "destDir", destDir)
	s3Uri := strings.TrimPrefix(storageUri, string(S3))
	tokens := strings.SplitN(s3Uri, "/", 2)
	if tokens[0] == "" {
		return fmt.Errorf("no bucket in storageUri %s", storageUri)
	}
	prefix := ""
	if len(tokens) == 2 {
		prefix = tokens[1]
	}
	s3ObjectDownloader := &S3ObjectDownloader{
		DestDir: destDir,
		Bucket:  tokens[0],
		Prefix:  prefix,
	}
	objects, err := s3ObjectDownloader.GetAllObjects(m.Client)
	if err != nil {
		return fmt.Errorf("unable to get batch objects %w", err)
	}
	if len(objects) == 0 {
		return fmt.Errorf("no objects found under %s", storageUri)
	}
	if err := s3ObjectDownloader.Download(ctx, m.Downloader, objects); err != nil {
		return fmt.Errorf("unable to get download objects %w", err)
	}
	return nil
}

type S3ObjectDownloader struct {
	DestDir string
	Bucket  string
	Prefix  string
}

func (s *S3ObjectDownloader) GetAllObjects(s3Svc s3iface.S3API) ([]s3manager.BatchDownloadObject, error) {
	resp, err := s3Svc.ListObjects(&s3.ListObjectsInput{
		Bucket: aws.String(s.Bucket),
		Prefix: aws.String(s.Prefix),
	})
	if err != nil {
		return nil, err
	}
	results := make([]s3manager.BatchDownloadObject, 0, len(resp.Contents))
	for _, object := range resp.Contents {
		key := aws.StringValue(object.Key)
		if strings.HasSuffix(key, "/") {
			continue
		}
		fileName, err := relativeObjectPath(s.DestDir, s.Prefix, key)
		if err != nil {
			return nil, err
		}
		file, err := Create(fileName)
		if err != nil {
			return nil, fmt.Errorf("failed to create %s: %w", fileName, err)
		}
		results = append(results, s3manager.BatchDownloadObject{
			Object: &s3.GetObjectInput{
				Key:    aws.String(key),
				Bucket: aws.String(s.Bucket),
			},
			Writer: file,
			After: func() error {
				return file.Close()
			},
		})
	}
	return results, nil
}

func (s *S3ObjectDownloader) Download(ctx context.Context, downloader s3manageriface.DownloadWithIterator, objects []s3manager.BatchDownloadObject) error {
	iter := &s3manager.DownloadObjectsIterator{Objects: objects}
	return downloader.DownloadWithIterator(ctx, iter)
}
