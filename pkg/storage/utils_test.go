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
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/onsi/gomega"
)

func TestGetProtocol(t *testing.T) {
	scenarios := map[string]struct {
		uri      string
		expected Protocol
		wantErr  bool
	}{
		"s3":        {uri: "s3://bucket/model", expected: S3},
		"gcs":       {uri: "gs://bucket/model", expected: GCS},
		"azure":     {uri: "azure://acct.blob.core.windows.net/c/model", expected: AZURE},
		"https":     {uri: "https://example.com/model.zip", expected: HTTPS},
		"http":      {uri: "http://example.com/model.zip", expected: HTTP},
		"fileURI":   {uri: "file:///models/resnet", expected: FILE},
		"plainPath": {uri: "/models/resnet", expected: FILE},
		"empty":     {uri: "", wantErr: true},
		"unknown":   {uri: "hdfs://cluster/model", wantErr: true},
	}
	for name, scenario := range scenarios {
		t.Run(name, func(t *testing.T) {
			got, err := GetProtocol(scenario.uri)
			if scenario.wantErr {
				if err == nil {
					t.Errorf("Test %q expected an error, got protocol %q", name, got)
				}
				return
			}
			if err != nil {
				t.Fatalf("Test %q unexpected error: %v", name, err)
			}
			if diff := cmp.Diff(scenario.expected, got); diff != "" {
				t.Errorf("Test %q unexpected result (-want +got): %v", name, diff)
			}
		})
	}
}

func TestSafeJoin(t *testing.T) {
	g := gomega.NewGomegaWithT(t)
	joined, err := SafeJoin("/tmp/dest", "a/b.txt")
	g.Expect(err).NotTo(gomega.HaveOccurred())
	g.Expect(joined).To(gomega.Equal(filepath.Join("/tmp/dest", "a", "b.txt")))

	_, err = SafeJoin("/tmp/dest", "../outside")
	g.Expect(err).To(gomega.HaveOccurred())

	_, err = SafeJoin("/tmp/dest", "a/../../outside")
	g.Expect(err).To(gomega.HaveOccurred())
}

func TestCopyDir(t *testing.T) {
	g := gomega.NewGomegaWithT(t)
	src := t.TempDir()
	g.Expect(os.MkdirAll(filepath.Join(src, "variables"), 0o755)).To(gomega.Succeed())
	g.Expect(os.WriteFile(filepath.Join(src, "saved_model.pb"), []byte("graph"), 0o600)).To(gomega.Succeed())
	g.Expect(os.WriteFile(filepath.Join(src, "variables", "variables.index"), []byte("index"), 0o600)).To(gomega.Succeed())

	dst := filepath.Join(t.TempDir(), "copy")
	g.Expect(CopyDir(src, dst)).To(gomega.Succeed())

	content, err := os.ReadFile(filepath.Join(dst, "variables", "variables.index"))
	g.Expect(err).NotTo(gomega.HaveOccurred())
	g.Expect(string(content)).To(gomega.Equal("index"))
	g.Expect(FileExists(filepath.Join(dst, "saved_model.pb"))).To(gomega.BeTrue())
	g.Expect(FileExists(filepath.Join(dst, "variables"))).To(gomega.BeFalse())
}

type recordingProvider struct {
	uris []string
	err  error
}

func (r *recordingProvider) Download(_ context.Context, destDir string, storageUri string) error {
	r.uris = append(r.uris, storageUri)
	if r.err != nil {
		return r.err
	}
	return os.WriteFile(filepath.Join(destDir, "saved_model.pb"), []byte("graph"), 0o600)
}

func TestStage(t *testing.T) {
	g := gomega.NewGomegaWithT(t)
	ctx := context.Background()

	local := t.TempDir()
	path, err := Stage(ctx, map[Protocol]Provider{}, "file://"+local, t.TempDir())
	g.Expect(err).NotTo(gomega.HaveOccurred())
	g.Expect(path).To(gomega.Equal(local))

	_, err = Stage(ctx, map[Protocol]Provider{}, filepath.Join(local, "absent"), t.TempDir())
	g.Expect(err).To(gomega.HaveOccurred())

	recorder := &recordingProvider{}
	dest := filepath.Join(t.TempDir(), "staged")
	path, err = Stage(ctx, map[Protocol]Provider{GCS: recorder}, "gs://models/resnet", dest)
	g.Expect(err).NotTo(gomega.HaveOccurred())
	g.Expect(path).To(gomega.Equal(dest))
	g.Expect(recorder.uris).To(gomega.Equal([]string{"gs://models/resnet"}))
	g.Expect(filepath.Join(dest, "saved_model.pb")).To(gomega.BeAnExistingFile())

	failing := &recordingProvider{err: errors.New("denied")}
	_, err = Stage(ctx, map[Protocol]Provider{S3: failing}, "s3://models/resnet", t.TempDir())
	g.Expect(err).To(gomega.MatchError(gomega.ContainSubstring("denied")))
}
