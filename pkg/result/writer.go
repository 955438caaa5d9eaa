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

package result

import (
	"os"
	"path/filepath"

	jsoniter "github.com/json-iterator/go"
	"github.com/pkg/errors"
	logf "sigs.k8s.io/controller-runtime/pkg/log"

	"github.com/kserve/infravalidator/pkg/constants"
	"github.com/kserve/infravalidator/pkg/requestbuilder"
	"github.com/kserve/infravalidator/pkg/storage"
	"github.com/kserve/infravalidator/pkg/validation"
)

var log = logf.Log.WithName("result")

var json = jsoniter.ConfigCompatibleWithStandardLibrary

var markerFiles = []string{constants.BlessedFileName, constants.NotBlessedFileName, constants.ErrorFileName}

// Writer persists an InfraBlessingResult.
type Writer struct {
	BlessingDir string
	// ModelDir receives a copy of SourceModelDir augmented with warmup requests.
	ModelDir       string
	SourceModelDir string
}

// Write writes the augmented model into the model directory when the result carries warmup requests, then
// diagnostics.json and the verdict marker into the blessing directory. The marker is written last. A failed
// warmup model is recorded as INFRA_ERROR and returned. The source model is never modified.
func (w *Writer) Write(result InfraBlessingResult) error {
	if err := os.MkdirAll(w.BlessingDir, 0o755); err != nil {
		return errors.Wrapf(err, "failed to create blessing dir %s", w.BlessingDir)
	}
	for _, marker := range markerFiles {
		if err := os.Remove(filepath.Join(w.BlessingDir, marker)); err != nil && !os.IsNotExist(err) {
			return errors.Wrapf(err, "failed to remove stale marker %s", marker)
		}
	}

	var warmupErr error
	if len(result.WarmupRequests) > 0 {
		if warmupErr = w.writeWarmupModel(result.WarmupRequests); warmupErr != nil {
			log.Error(warmupErr, "Failed to write model with warmup requests, recording an error verdict", "modelDir", w.ModelDir)
			result = warmupFailure(result, warmupErr)
		}
	}

	if err := w.writeBlessing(result); err != nil {
		return err
	}
	return warmupErr
}

func warmupFailure(result InfraBlessingResult, cause error) InfraBlessingResult {
	result.Verdict = validation.Error
	result.WarmupRequests = nil
	result.Diagnostics.Verdict = validation.Error
	result.Diagnostics.Cause = "failed to write warmup model: " + cause.Error()
	return result
}

func (w *Writer) writeBlessing(result InfraBlessingResult) error {
	diagnostics, err := json.MarshalIndent(result.Diagnostics, "", "  ")
	if err != nil {
		return errors.Wrap(err, "failed to encode diagnostics")
	}
	diagnosticsFile := filepath.Join(w.BlessingDir, constants.DiagnosticsFileName)
	if err := os.WriteFile(diagnosticsFile, diagnostics, 0o644); err != nil {
		return errors.Wrapf(err, "failed to write %s", diagnosticsFile)
	}
	marker := filepath.Join(w.BlessingDir, MarkerFileName(result.Verdict))
	if err := os.WriteFile(marker, nil, 0o644); err != nil {
		return errors.Wrapf(err, "failed to write %s", marker)
	}
	log.Info("Wrote blessing", "verdict", result.Verdict, "marker", marker)
	return nil
}

func (w *Writer) writeWarmupModel(requests []requestbuilder.Request) error {
	if w.ModelDir == "" {
		return errors.New("no model output directory for the warmup requests")
	}
	source, err := requestbuilder.FindSavedModel(w.SourceModelDir)
	if err != nil {
		return err
	}
	if err := storage.CopyDir(source, w.ModelDir); err != nil {
		return errors.Wrapf(err, "failed to copy model %s to %s", source, w.ModelDir)
	}

	warmupFile := filepath.Join(w.ModelDir, constants.TFServingAssetsExtraDir, constants.TFServingWarmupFileName)
	file, err := storage.Create(warmupFile)
	if err != nil {
		return errors.Wrapf(err, "failed to create %s", warmupFile)
	}
	written, err := requestbuilder.WriteWarmupRecords(file, requests)
	if closeErr := file.Close(); err == nil && closeErr != nil {
		err = closeErr
	}
	if err != nil {
		return errors.Wrapf(err, "failed to write %s", warmupFile)
	}
	if written == 0 {
		return errors.New("none of the requests can be replayed as a warmup request")
	}
	log.Info("Wrote model with warmup requests", "modelDir", w.ModelDir, "requests", written)
	return nil
}
