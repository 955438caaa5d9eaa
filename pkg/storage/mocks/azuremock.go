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
	"context"
	"os"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore/runtime"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob"
)

// MockAzureClient serves the given pages from its blob listing and records every download.
type MockAzureClient struct {
	Pages       []azblob.ListBlobsFlatResponse
	ListErr     error
	Downloaded  []string
	DownloadErr error
}

func (m *MockAzureClient) NewListBlobsFlatPager(_ string, _ *azblob.ListBlobsFlatOptions) *runtime.Pager[azblob.ListBlobsFlatResponse] {
	page := 0
	return runtime.NewPager(runtime.PagingHandler[azblob.ListBlobsFlatResponse]{
		More: func(azblob.ListBlobsFlatResponse) bool {
			return page < len(m.Pages)
		},
		Fetcher: func(context.Context, *azblob.ListBlobsFlatResponse) (azblob.ListBlobsFlatResponse, error) {
			if m.ListErr != nil {
				return azblob.ListBlobsFlatResponse{}, m.ListErr
			}
			if page >= len(m.Pages) {
				return azblob.ListBlobsFlatResponse{}, nil
			}
			resp := m.Pages[page]
			page++
			return resp, nil
		},
	})
}

func (m *MockAzureClient) DownloadFile(_ context.Context, _ string, blobName string, file *os.File, _ *azblob.DownloadFileOptions) (int64, error) {
	if m.DownloadErr != nil {
		return 0, m.DownloadErr
	}
	m.Downloaded = append(m.Downloaded, blobName)
	n, err := file.WriteString(blobName)
	return int64(n), err
}
