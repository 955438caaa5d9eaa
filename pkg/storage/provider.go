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
	"net/http"
	"os"
	"path/filepath"
	"strings"

	gstorage "cloud.google.com/go/storage"
	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/credentials"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/aws/aws-sdk-go/service/s3/s3manager"
	"github.com/googleapis/google-cloud-go-testing/storage/stiface"
	"github.com/pkg/errors"
	"google.golang.org/api/option"
	logf "sigs.k8s.io/controller-runtime/pkg/log"
)

var log = logf.Log.WithName("storage")

// Provider copies every object found under a storage URI into a local directory.
type Provider interface {
	Download(ctx context.Context, destDir string, storageUri string) error
}

type Protocol string

const (
	S3    Protocol = "s3://"
	GCS   Protocol = "gs://"
	AZURE Protocol = "azure://"
	HTTPS Protocol = "https://"
	HTTP  Protocol = "http://"
	FILE  Protocol = "file://"
)

var SupportedProtocols = []Protocol{S3, GCS, AZURE, HTTPS, HTTP, FILE}

// Environment read when the default clients are created.
const (
	AWSEndpointUrl         = "AWS_ENDPOINT_URL"
	AWSRegion              = "AWS_DEFAULT_REGION"
	S3UseVirtualBucket     = "S3_USER_VIRTUAL_BUCKET"
	S3UseAccelerate        = "S3_USE_ACCELERATE"
	AWSAnonymousCredential = "awsAnonymousCredential"
	GCSCredentialEnvKey    = "GOOGLE_APPLICATION_CREDENTIALS"
)

func GetAllProtocol() (protocols []string) {
	for _, protocol := range SupportedProtocols {
		protocols = append(protocols, string(protocol))
	}
	return protocols
}

// GetProtocol returns the protocol of a storage URI. A URI without a scheme is a local path.
func GetProtocol(storageUri string) (Protocol, error) {
	if storageUri == "" {
		return "", errors.New("there is no storageUri supplied")
	}
	if !strings.Contains(storageUri, "://") {
		return FILE, nil
	}
	for _, protocol := range SupportedProtocols {
		if strings.HasPrefix(storageUri, string(protocol)) {
			return protocol, nil
		}
	}
	return "", fmt.Errorf("protocol not supported for storageUri %s", storageUri)
}

// LocalPath returns the filesystem path of a local URI.
func LocalPath(storageUri string) string {
	return strings.TrimPrefix(storageUri, string(FILE))
}

// Stage makes the content of storageUri available on the local filesystem. Local URIs are
// returned as they are, anything else is downloaded into destDir.
func Stage(ctx context.Context, providers map[Protocol]Provider, storageUri string, destDir string) (string, error) {
	protocol, err := GetProtocol(storageUri)
	if err != nil {
		return "", err
	}
	if protocol == FILE {
		path := LocalPath(storageUri)
		if _, err := os.Stat(path); err != nil {
			return "", errors.Wrapf(err, "local path %s is not readable", path)
		}
		return path, nil
	}
	provider, err := GetProvider(providers, protocol)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(destDir, 0o755); err != nil {
		return "", errors.Wrapf(err, "failed to create staging dir %s", destDir)
	}
	log.Info("Staging artifact", "storageUri", storageUri, "destDir", destDir)
	if err := provider.Download(ctx, destDir, storageUri); err != nil {
		return "", errors.Wrapf(err, "failed to download %s", storageUri)
	}
	return destDir, nil
}

// GetProvider returns the provider registered for protocol, creating a default one when missing.
func GetProvider(providers map[Protocol]Provider, protocol Protocol) (Provider, error) {
	if provider, ok := providers[protocol]; ok {
		return provider, nil
	}

	switch protocol {
	case GCS:
		var gcsClient *gstorage.Client
		var err error

		ctx := context.Background()
		if _, ok := os.LookupEnv(GCSCredentialEnvKey); ok {
			// Picked up by the client through GOOGLE_APPLICATION_CREDENTIALS.
			gcsClient, err = gstorage.NewClient(ctx)
		} else {
			gcsClient, err = gstorage.NewClient(ctx, option.WithoutAuthentication())
		}
		if err != nil {
			return nil, err
		}
		providers[GCS] = &GCSProvider{
			Client: stiface.AdaptClient(gcsClient),
		}
	case S3:
		region, _ := os.LookupEnv(AWSRegion)
		useVirtualBucket := true
		if value, ok := os.LookupEnv(S3UseVirtualBucket); ok && strings.ToLower(value) == "false" {
			useVirtualBucket = false
		}
		useAccelerate := false
		if value, ok := os.LookupEnv(S3UseAccelerate); ok && strings.ToLower(value) == "true" {
			useAccelerate = true
		}
		awsConfig := aws.Config{
			Region:           aws.String(region),
			S3ForcePathStyle: aws.Bool(!useVirtualBucket),
			S3UseAccelerate:  aws.Bool(useAccelerate),
		}
		if endpoint, ok := os.LookupEnv(AWSEndpointUrl); ok {
			awsConfig.Endpoint = aws.String(endpoint)
		}
		if useAnonCred, ok := os.LookupEnv(AWSAnonymousCredential); ok && strings.ToLower(useAnonCred) == "true" {
			awsConfig.Credentials = credentials.AnonymousCredentials
		}
		sess, err := session.NewSession(&awsConfig)
		if err != nil {
			return nil, err
		}
		sessionClient := s3.New(sess)
		providers[S3] = &S3Provider{
			Client:     sessionClient,
			Downloader: s3manager.NewDownloaderWithClient(sessionClient, func(d *s3manager.Downloader) {}),
		}
	case AZURE:
		providers[AZURE] = &AzureProvider{
			NewClient: NewAzureClient,
		}
	case HTTPS, HTTP:
		providers[protocol] = &HTTPSProvider{
			Client: &http.Client{},
		}
	default:
		return nil, fmt.Errorf("protocol manager for %s is not initialized", protocol)
	}

	return providers[protocol], nil
}

// relativeObjectPath maps an object key below prefix to a path inside destDir.
func relativeObjectPath(destDir string, prefix string, key string) (string, error) {
	relative := strings.TrimPrefix(strings.TrimPrefix(key, prefix), "/")
	if relative == "" {
		relative = filepath.Base(key)
	}
	return SafeJoin(destDir, filepath.FromSlash(relative))
}
