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
	AzureStorageAccessKey = "AZURE_STORAGE_ACCESS_KEY"
	// Legacy keys
	LegacyAzureSubscriptionId = "AZ_SUBSCRIPTION_ID"
	LegacyAzureTenantId       = "AZ_TENANT_ID"
	LegacyAzureClientId       = "AZ_CLIENT_ID"
	LegacyAzureClientSecret   = "AZ_CLIENT_SECRET" // #nosec G101

	AzureSubscriptionId = "AZURE_SUBSCRIPTION_ID"
	AzureTenantId       = "AZURE_TENANT_ID"
	AzureClientId       = "AZURE_CLIENT_ID"
	AzureClientSecret   = "AZURE_CLIENT_SECRET" // #nosec G101
)

var (
	AzureEnvKeys              = []string{AzureSubscriptionId, AzureTenantId, AzureClientId, AzureClientSecret, AzureStorageAccessKey}
	legacyAzureEnvKeyMappings = map[string]string{
		AzureSubscriptionId: LegacyAzureSubscriptionId,
		AzureTenantId:       LegacyAzureTenantId,
		AzureClientId:       LegacyAzureClientId,
		AzureClientSecret:   LegacyAzureClientSecret,
	}
)

// buildAzureSecretEnvs maps every Azure key present in the secret, legacy names included,
// to the env var read by the Azure identity chain.
func buildAzureSecretEnvs(secret *corev1.Secret) []corev1.EnvVar {
	envs := make([]corev1.EnvVar, 0, len(AzureEnvKeys))
	for _, name := range AzureEnvKeys {
		key := name
		if legacy, ok := legacyAzureEnvKeyMappings[name]; ok && hasKey(secret, legacy) {
			key = legacy
		}
		if !hasKey(secret, key) {
			continue
		}
		envs = append(envs, secretKeyEnv(name, secret.Name, key))
	}
	return envs
}
