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
	"errors"
	"os"
	"path/filepath"

	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/container"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"k8s.io/utils/ptr"

	"github.com/kserve/infravalidator/pkg/storage/mocks"
)

var _ = Describe("parseAzureUri", func() {
	DescribeTable("valid URIs",
		func(uri string, expected azureUriParts) {
			parts, err := parseAzureUri(uri)
			Expect(err).NotTo(HaveOccurred())
			Expect(parts).To(Equal(expected))
		},
		Entry("simple directory", "azure://account.blob.core.windows.net/models/resnet",
			azureUriParts{serviceUrl: "https://account.blob.core.windows.net", containerName: "models", virtualDir: "resnet"}),
		Entry("nested directory with trailing slash", "azure://account.blob.core.windows.net/models/team/resnet/",
			azureUriParts{serviceUrl: "https://account.blob.core.windows.net", containerName: "models", virtualDir: "team/resnet"}),
	)

	DescribeTable("invalid URIs",
		func(uri string) {
			_, err := parseAzureUri(uri)
			Expect(err).To(HaveOccurred())
		},
		Entry("wrong scheme", "s3://bucket/models"),
		Entry("missing container", "azure://account.blob.core.windows.net"),
		Entry("missing directory", "azure://account.blob.core.windows.net/models/"),
	)
})

var _ = Describe("AzureProvider", func() {
	var destDir string
	const uri = "azure://account.blob.core.windows.net/models/resnet"

	BeforeEach(func() {
		destDir = GinkgoT().TempDir()
	})

	It("downloads every listed blob", func() {
		client := &mocks.MockAzureClient{Pages: []azblob.ListBlobsFlatResponse{{
			ListBlobsFlatSegmentResponse: container.ListBlobsFlatSegmentResponse{
				Segment: &container.BlobFlatListSegment{BlobItems: []*container.BlobItem{
					{Name: ptr.To("resnet/saved_model.pb")},
					{Name: ptr.To("resnet/variables/variables.index")},
				}},
			},
		}}}
		provider := &AzureProvider{Client: client}
		Expect(provider.Download(context.Background(), destDir, uri)).To(Succeed())
		Expect(client.Downloaded).To(ConsistOf("resnet/saved_model.pb", "resnet/variables/variables.index"))
		content, err := os.ReadFile(filepath.Join(destDir, "saved_model.pb"))
		Expect(err).NotTo(HaveOccurred())
		Expect(string(content)).To(Equal("resnet/saved_model.pb"))
	})

	It("fails when no blob matches", func() {
		provider := &AzureProvider{Client: &mocks.MockAzureClient{}}
		Expect(provider.Download(context.Background(), destDir, uri)).To(MatchError(ContainSubstring("no blobs found")))
	})

	It("returns listing errors", func() {
		provider := &AzureProvider{Client: &mocks.MockAzureClient{ListErr: errors.New("forbidden")}}
		Expect(provider.Download(context.Background(), destDir, uri)).To(MatchError(ContainSubstring("forbidden")))
	})

	It("creates the client lazily for the service url", func() {
		var requested string
		provider := &AzureProvider{NewClient: func(serviceUrl string) (AzureClient, error) {
			requested = serviceUrl
			return nil, errors.New("no credential")
		}}
		err := provider.Download(context.Background(), destDir, uri)
		Expect(err).To(MatchError(ContainSubstring("unable to create Azure client")))
		Expect(requested).To(Equal("https://account.blob.core.windows.net"))
	})
})
