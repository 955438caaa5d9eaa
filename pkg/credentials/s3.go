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

	"github.com/kserve/infravalidator/pkg/apis/infravalidator/v1alpha1"
	"github.com/kserve/infravalidator/pkg/constants"
)

/*
For a quick reference about AWS ENV variables:
AWS Cli: https://docs.aws.amazon.com/cli/latest/userguide/cli-configure-envvars.html
*/
const (
	AWSAccessKeyId         = "AWS_ACCESS_KEY_ID"
	AWSSecretAccessKey     = "AWS_SECRET_ACCESS_KEY" // #nosec G101
	AWSAccessKeyIdName     = "awsAccessKeyID"
	AWSSecretAccessKeyName = "awsSecretAccessKey" // #nosec G101
	AWSEndpointUrl         = "AWS_ENDPOINT_URL"
	AWSRegion              = "AWS_DEFAULT_REGION"
	S3Endpoint             = "S3_ENDPOINT"
	S3UseHttps             = "S3_USE_HTTPS"
	S3VerifySSL            = "S3_VERIFY_SSL"
)

var (
	S3SecretEndpointAnnotation = constants.InfraValidatorAPIGroupName + "/s3-endpoint"
	S3SecretRegionAnnotation   = constants.InfraValidatorAPIGroupName + "/s3-region"
	S3SecretSSLAnnotation      = constants.InfraValidatorAPIGroupName + "/s3-verifyssl"
	S3SecretHttpsAnnotation    = constants.InfraValidatorAPIGroupName + "/s3-usehttps"
)

func buildS3SecretEnvs(secret *corev1.Secret, config *v1alpha1.StorageCredentialConfig) []corev1.EnvVar {
	accessKeyIdName := AWSAccessKeyIdName
	if config.S3AccessKeyIDName != "" {
		accessKeyIdName = config.S3AccessKeyIDName
	}
	secretAccessKeyName := AWSSecretAccessKeyName
	if config.S3SecretAccessKeyName != "" {
		secretAccessKeyName = config.S3SecretAccessKeyName
	}
	envs := []corev1.EnvVar{
		secretKeyEnv(AWSAccessKeyId, secret.Name, accessKeyIdName),
		secretKeyEnv(AWSSecretAccessKey, secret.Name, secretAccessKeyName),
	}
	return append(envs, buildS3EnvVars(secret.Annotations, config)...)
}

// buildS3EnvVars prefers the annotation of the secret or service account over the configured value.
func buildS3EnvVars(annotations map[string]string, config *v1alpha1.StorageCredentialConfig) []corev1.EnvVar {
	envs := []corev1.EnvVar{}

	endpoint, ok := annotations[S3SecretEndpointAnnotation]
	if !ok {
		endpoint = config.S3Endpoint
	}
	useHttps, ok := annotations[S3SecretHttpsAnnotation]
	if !ok {
		useHttps = config.S3UseHttps
	}
	if endpoint != "" {
		endpointUrl := "https://" + endpoint
		if useHttps == "0" {
			endpointUrl = "http://" + endpoint
		}
		if useHttps != "" {
			envs = append(envs, corev1.EnvVar{Name: S3UseHttps, Value: useHttps})
		}
		envs = append(envs,
			corev1.EnvVar{Name: S3Endpoint, Value: endpoint},
			corev1.EnvVar{Name: AWSEndpointUrl, Value: endpointUrl},
		)
	}

	verifySsl, ok := annotations[S3SecretSSLAnnotation]
	if !ok {
		verifySsl = config.S3VerifySSL
	}
	if verifySsl != "" {
		envs = append(envs, corev1.EnvVar{Name: S3VerifySSL, Value: verifySsl})
	}

	region, ok := annotations[S3SecretRegionAnnotation]
	if !ok {
		region = config.S3Region
	}
	if region != "" {
		envs = append(envs, corev1.EnvVar{Name: AWSRegion, Value: region})
	}
	return envs
}
