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
	"context"

	corev1 "k8s.io/api/core/v1"
	apierr "k8s.io/apimachinery/pkg/api/errors"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/client-go/kubernetes"
	logf "sigs.k8s.io/controller-runtime/pkg/log"

	"github.com/pkg/errors"

	"github.com/kserve/infravalidator/pkg/apis/infravalidator/v1alpha1"
)

const (
	DefaultServiceAccountName = "default"
	AwsIrsaAnnotationKey      = "eks.amazonaws.com/role-arn"
)

var log = logf.Log.WithName("CredentialBuilder")

// CredentialBuilder hands the storage credentials attached to a service account to the
// storage initializer of a sandbox pod.
type CredentialBuilder struct {
	clientset kubernetes.Interface
	config    v1alpha1.StorageCredentialConfig
}

func NewCredentialBuilder(clientset kubernetes.Interface, config v1alpha1.StorageCredentialConfig) *CredentialBuilder {
	return &CredentialBuilder{
		clientset: clientset,
		config:    config,
	}
}

// CreateSecretVolumeAndEnv adds the env vars and secret volumes of every supported secret referenced by the
// service account. A missing service account is not an error: the initializer then runs with ambient credentials.
func (c *CredentialBuilder) CreateSecretVolumeAndEnv(ctx context.Context, namespace string, serviceAccountName string,
	container *corev1.Container, volumes *[]corev1.Volume,
) error {
	if serviceAccountName == "" {
		serviceAccountName = DefaultServiceAccountName
	}
	serviceAccount, err := c.clientset.CoreV1().ServiceAccounts(namespace).Get(ctx, serviceAccountName, metav1.GetOptions{})
	if err != nil {
		if apierr.IsNotFound(err) {
			log.Info("Service account not found, skipping storage credentials", "ServiceAccountName", serviceAccountName,
				"Namespace", namespace)
			return nil
		}
		return errors.Wrapf(err, "failed to get service account %s/%s", namespace, serviceAccountName)
	}

	if _, ok := serviceAccount.Annotations[AwsIrsaAnnotationKey]; ok {
		log.Info("AWS IAM Role annotation found, setting service account envs for s3", "ServiceAccountName", serviceAccountName)
		container.Env = mergeEnvs(container.Env, buildS3EnvVars(serviceAccount.Annotations, &c.config))
	}

	for _, secretRef := range serviceAccount.Secrets {
		if err := c.mountSecretCredential(ctx, secretRef.Name, namespace, container, volumes); err != nil {
			return err
		}
	}
	return nil
}

func (c *CredentialBuilder) mountSecretCredential(ctx context.Context, secretName string, namespace string,
	container *corev1.Container, volumes *[]corev1.Volume,
) error {
	secret, err := c.clientset.CoreV1().Secrets(namespace).Get(ctx, secretName, metav1.GetOptions{})
	if err != nil {
		return errors.Wrapf(err, "failed to get secret %s/%s", namespace, secretName)
	}

	s3SecretAccessKeyName := AWSSecretAccessKeyName
	if c.config.S3SecretAccessKeyName != "" {
		s3SecretAccessKeyName = c.config.S3SecretAccessKeyName
	}
	gcsCredentialFileName := GCSCredentialFileName
	if c.config.GCSCredentialFileName != "" {
		gcsCredentialFileName = c.config.GCSCredentialFileName
	}

	switch {
	case hasKey(secret, s3SecretAccessKeyName):
		log.Info("Setting secret envs for s3", "S3Secret", secret.Name)
		// Secret values override those derived from an IAM role annotation.
		container.Env = mergeEnvs(container.Env, buildS3SecretEnvs(secret, &c.config))
	case hasKey(secret, gcsCredentialFileName):
		log.Info("Setting secret volume for gcs", "GCSSecret", secret.Name)
		volume, volumeMount := buildGCSSecretVolume(secret)
		*volumes = appendVolumeIfNotExists(*volumes, volume)
		container.VolumeMounts = append(container.VolumeMounts, volumeMount)
		container.Env = mergeEnvs(container.Env, []corev1.EnvVar{{
			Name:  GCSCredentialEnvKey,
			Value: GCSCredentialVolumeMountPath + gcsCredentialFileName,
		}})
	case hasKey(secret, AzureClientId), hasKey(secret, LegacyAzureClientId):
		log.Info("Setting secret envs for azure", "AzureSecret", secret.Name)
		container.Env = mergeEnvs(container.Env, buildAzureSecretEnvs(secret))
	case hasKey(secret, AzureStorageAccessKey):
		log.Info("Setting secret envs with azure storage access key for azure", "AzureSecret", secret.Name)
		container.Env = mergeEnvs(container.Env, []corev1.EnvVar{secretKeyEnv(AzureStorageAccessKey, secret.Name, AzureStorageAccessKey)})
	default:
		log.V(5).Info("Skipping unsupported secret", "Secret", secret.Name)
	}
	return nil
}

func hasKey(secret *corev1.Secret, key string) bool {
	_, ok := secret.Data[key]
	return ok
}

func secretKeyEnv(name string, secretName string, key string) corev1.EnvVar {
	return corev1.EnvVar{
		Name: name,
		ValueFrom: &corev1.EnvVarSource{
			SecretKeyRef: &corev1.SecretKeySelector{
				LocalObjectReference: corev1.LocalObjectReference{Name: secretName},
				Key:                  key,
			},
		},
	}
}

// mergeEnvs replaces the vars of base that are redefined in overrides and appends the others.
func mergeEnvs(base []corev1.EnvVar, overrides []corev1.EnvVar) []corev1.EnvVar {
	merged := make([]corev1.EnvVar, 0, len(base)+len(overrides))
	index := map[string]int{}
	for _, env := range base {
		index[env.Name] = len(merged)
		merged = append(merged, env)
	}
	for _, env := range overrides {
		if i, ok := index[env.Name]; ok {
			merged[i] = env
			continue
		}
		index[env.Name] = len(merged)
		merged = append(merged, env)
	}
	return merged
}

func appendVolumeIfNotExists(volumes []corev1.Volume, volume corev1.Volume) []corev1.Volume {
	for _, v := range volumes {
		if v.Name == volume.Name {
			return volumes
		}
	}
	return append(volumes, volume)
}
