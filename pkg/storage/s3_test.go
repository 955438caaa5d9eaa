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
	"os"
	"path/filepath"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/kserve/infravalidator/pkg/storage/mocks"
)

var _ = Describe("S3Provider", func() {
	var destDir string

	BeforeEach(func() {
		destDir = GinkgoT().TempDir()
	})

	It("downloads every object under the prefix preserving the layout", func() {
		provider := &S3Provider{
			Client: &mocks.MockS3Client{Keys: []string{
				"model1/saved_model.pb",
				"model1/variables/",
				"model1/variables/variables.index",
			}},
			Downloader: &mocks.MockS3Downloader{},
		}
		Expect(provider.Download(context.Background(), destDir, "s3://modelRepo/model1")).To(Succeed())

		content, err := os.ReadFile(filepath.Join(destDir, "saved_model.pb"))
		Expect(err).NotTo(HaveOccurred())
		Expect(string(content)).To(Equal("model1/saved_model.pb"))
		Expect(filepath.Join(destDir, "variables", "variables.index")).To(BeAnExistingFile())
	})

	It("fails when the listing is empty", func() {
		provider := &S3Provider{
			Client:     &mocks.MockS3Client{Keys: []string{}},
			Downloader: &mocks.MockS3Downloader{},
		}
		err := provider.Download(context.Background(), destDir, "s3://modelRepo/model1")
		Expect(err).To(MatchError(ContainSubstring("no objects found")))
	})

	It("fails without a bucket", func() {
		provider := &S3Provider{Client: &mocks.MockS3Client{}, Downloader: &mocks.MockS3Downloader{}}
		Expect(provider.Download(context.Background(), destDir, "s3:///model1")).NotTo(Succeed())
	})

	It("surfaces batch download errors", func() {
		provider := &S3Provider{
			Client:     &mocks.MockS3Client{},
			Downloader: &mocks.MockS3FailDownloader{},
		}
		err := provider.Download(context.Background(), destDir, "s3://modelRepo/model1")
		Expect(err).To(MatchError(ContainSubstring("unable to get download objects")))
	})

	It("rejects keys that escape the destination", func() {
		downloader := &S3ObjectDownloader{DestDir: destDir, Bucket: "modelRepo", Prefix: "model1"}
		_, err := downloader.GetAllObjects(&mocks.MockS3Client{Keys: []string{"model1/../../etc/passwd"}})
		Expect(err).To(MatchError(ContainSubstring("illegal file path")))
	})
})
