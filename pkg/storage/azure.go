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
	"os"
	"strings"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore/runtime"
	"github.com/Azure/azure-sdk-for-go/sdk/azidentity"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob"
)

// AzureClient is the subset of *azblob.Client used to download blobs.
type AzureClient interface {
	NewListBlobsFlatPager(containerName string, options *azblob.ListBlobsFlatOptions) *runtime.Pager[azblob.ListBlobsFlatResponse]
	DownloadFile(ctx context.Context, containerName string, blobName string, file *os.File, options *azblob.DownloadFileOptions) (int64, error)
}

// AzureProvider downloads blobs addressed as azure://<account>.blob.core.windows.net/<container>/<dir>.
type AzureProvider struct {
	// Client is used for every service when set, NewClient is called per service otherwise.
	Client    AzureClient
	NewClient func(serviceUrl string) (AzureClient, error)
}

var _ Provider = (*AzureProvider)(nil)

type azureUriParts struct {
	serviceUrl    string
	containerName string
	virtualDir    string
}

func parseAzureUri(storageUri string) (azureUriParts, error) {
	if !strings.HasPrefix(storageUri, string(AZURE)) {
		return azureUriParts{}, fmt.Errorf("invalid Azure URI %s", storageUri)
	}
	tokens := strings.SplitN(strings.TrimPrefix(storageUri, string(AZURE)), "/", 3)
	if len(tokens) < 3 || tokens[0] == "" || tokens[1] == "" {
		return azureUriParts{}, fmt.Errorf("invalid Azure URI %s: expected azure://<host>/<container>/<dir>", storageUri)
	}
	virtualDir := strings.TrimSuffix(tokens[2], "/")
	if virtualDir == "" {
		return azureUriParts{}, fmt.Errorf("invalid Azure URI %s: missing virtual directory", storageUri)
	}
	return azureUriParts{
		serviceUrl:    "https://" + tokens[0],
		containerName: tokens[1],
		virtualDir:    virtualDir,
	}, nil
}

// NewAzureClient authenticates with the default Azure credential chain and falls back to
// anonymous access when no credential is available.
func NewAzureClient(serviceUrl string) (AzureClient, error) {
	credential, err := azidentity.NewDefaultAzureCredential(nil)
	if err != nil {
		log.Info("No Azure credential found, using anonymous access", "serviceUrl", serviceUrl)
		return azblob.NewClientWithNoCredential(serviceUrl, nil)
	}
	return azblob.NewClient(serviceUrl, credential, nil)
}

func (a *AzureProvider) Download(ctx context.Context, destDir string, storageUri string) error {
	log.Info("Downloading from Azure", "storageUri", storageUri, "destDir", destDir)
	parts, err := parseAzureUri(storageUri)
	if err != nil {
		return err
	}
	client := a.Client
	if client == nil {
		if a.NewClient == nil {
			return fmt.Errorf("no Azure client configured for %s", parts.serviceUrl)
		}
		if client, err = a.NewClient(parts.serviceUrl); err != nil {
			return fmt.Errorf("unable to create Azure client: %w", err)
		}
	}

	pager := client.NewListBlobsFlatPager(parts.containerName, &azblob.ListBlobsFlatOptions{
		Prefix: &parts.virtualDir,
	})
	found := false
	for pager.More() {
		resp, err := pager.NextPage(ctx)
		if err != nil {
			return err
		}
		if resp.Segment == nil {
			continue
		}
		for _, blob := range resp.Segment.BlobItems {
			if blob.Name == nil {
				continue
			}
			found = true
			if err := a.downloadBlob(ctx, client, parts, *blob.Name, destDir); err != nil {
				return err
			}
		}
	}
	if !found {
		return fmt.Errorf("no blobs found under %s", storageUri)
	}
	return nil
}

func (a *AzureProvider) downloadBlob(ctx context.Context, client AzureClient, parts azureUriParts, blobName string, destDir string) error {
	fileName, err := relativeObjectPath(destDir, parts.virtualDir, blobName)
	if err != nil {
		return err
	}
	file, err := Create(fileName)
	if err != nil {
		return err
	}
	defer file.Close()
	if _, err := client.DownloadFile(ctx, parts.containerName, blobName, file, nil); err != nil {
		return fmt.Errorf("failed to download blob %s: %w", blobName, err)
	}
	return nil
}
