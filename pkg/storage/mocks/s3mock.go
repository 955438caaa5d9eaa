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

package mocks

import (
	"errors"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/aws/aws-sdk-go/service/s3/s3iface"
	"github.com/aws/aws-sdk-go/service/s3/s3manager"
)

type MockS3Client struct {
	s3iface.S3API
	Keys []string
}

func (m *MockS3Client) ListObjects(input *s3.ListObjectsInput) (*s3.ListObjectsOutput, error) {
	keys := m.Keys
	if keys == nil {
		keys = []string{aws.StringValue(input.Prefix) + "/saved_model.pb"}
	}
	contents := make([]*s3.Object, 0, len(keys))
	for _, key := range keys {
		contents = append(contents, &s3.Object{Key: aws.String(key)})
	}
	return &s3.ListObjectsOutput{Contents: contents}, nil
}

// MockS3Downloader writes the object key into every file it is asked to download.
type MockS3Downloader struct{}

func (m *MockS3Downloader) DownloadWithIterator(_ aws.Context, iter s3manager.BatchDownloadIterator, _ ...func(*s3manager.Downloader)) error {
	for iter.Next() {
		object := iter.DownloadObject()
		if _, err := object.Writer.WriteAt([]byte(aws.StringValue(object.Object.Key)), 0); err != nil {
			return err
		}
		if object.After != nil {
			if err := object.After(); err != nil {
				return err
			}
		}
	}
	return iter.Err()
}

type MockS3FailDownloader struct{}

func (m *MockS3FailDownloader) DownloadWithIterator(aws.Context, s3manager.BatchDownloadIterator, ...func(*s3manager.Downloader)) error {
	var errs []s3manager.Error
	errs = append(errs, s3manager.Error{
		OrigErr: errors.New("failed to download"),
		Bucket:  aws.String("modelRepo"),
		Key:     aws.String("model1/saved_model.pb"),
	})
	return s3manager.NewBatchError("BatchedDownloadIncomplete", "some objects have failed to download.", errs)
}
