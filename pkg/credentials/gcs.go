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

package credentials

import (
	corev1 "k8s.io/api/core/v1"
)

const (
	GCSCredentialFileName        = "gcloud-application-credentials.json" // #nosec G101
	GCSCredentialVolumeName      = "user-gcp-sa"                         // #nosec G101
	GCSCredentialVolumeMountPath = "/var/secrets/"                       // #nosec G101
	GCSCredentialEnvKey          = "GOOGLE_APPLICATION_CREDENTIALS"      // #nosec G101
)

func buildGCSSecretVolume(secret *corev1.Secret) (corev1.Volume, corev1.VolumeMount) {
	volume := corev1.Volume{
		Name: GCSCredentialVolumeName,
		VolumeSource: corev1.VolumeSource{
			Secret: &corev1.SecretVolumeSource{
				SecretName: secret.Name,
			},
		},
	}
	volumeMount := corev1.VolumeMount{
		MountPath: GCSCredentialVolumeMountPath,
		Name:      GCSCredentialVolumeName,
		ReadOnly:  true,
	}
	return volume, volumeMount
}
