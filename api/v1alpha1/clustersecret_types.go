/*
Copyright 2026.

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

package v1alpha1

import (
	corev1 "k8s.io/api/core/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
)

// =============================================================================
// ClusterSecretSpec defines the desired state of ClusterSecret.
//
// This is where users declare WHAT to replicate and WHERE:
//   - Data/Type: The secret payload, replicated verbatim into every matched
//     namespace as a regular Secret object.
//   - MatchNamespace: Which namespaces should receive a replica.
//   - AvoidNamespaces: Which namespaces must never receive one.
//
// The set of matched namespaces is re-evaluated whenever the rule changes and
// whenever a new namespace appears in the cluster.
// =============================================================================
type ClusterSecretSpec struct {
	// MatchNamespace lists the namespaces to replicate the secret into.
	// Entries may be exact names, glob patterns, or "*" for all namespaces.
	//
	// Example:
	//   matchNamespace:
	//     - team-a
	//     - "prod-*"
	//
	// +required
	// +kubebuilder:validation:MinItems=1
	// +listType=atomic
	MatchNamespace []string `json:"matchNamespace"`

	// AvoidNamespaces lists namespaces to skip, using the same pattern syntax
	// as MatchNamespace. These patterns take precedence over MatchNamespace.
	//
	// +optional
	// +listType=atomic
	AvoidNamespaces []string `json:"avoidNamespaces,omitempty"`

	// Data contains the secret payload. Values are arbitrary bytes,
	// base64-encoded on the wire like a regular Secret.
	//
	// +optional
	Data map[string][]byte `json:"data,omitempty"`

	// Type of the replicated Kubernetes Secret.
	// More info: https://kubernetes.io/docs/concepts/configuration/secret/#secret-types
	//
	// +kubebuilder:default:=Opaque
	// +optional
	Type corev1.SecretType `json:"type,omitempty"`
}

// =============================================================================
// ClusterSecretStatus defines the observed state of ClusterSecret.
// =============================================================================
type ClusterSecretStatus struct {
	// Conditions represent the overall state of the ClusterSecret.
	// Standard condition types:
	//   - "Ready": True when every matched namespace holds an up-to-date replica
	//
	// +listType=map
	// +listMapKey=type
	// +optional
	Conditions []metav1.Condition `json:"conditions,omitempty"`

	// SyncedNamespaces is the sorted list of namespaces that currently hold a
	// replica of this secret. It is the persisted counterpart of the
	// controller's in-memory record and lets the synced set survive restarts.
	//
	// +optional
	SyncedNamespaces []string `json:"syncedNamespaces,omitempty"`

	// LastSyncTime is the timestamp of the last successful full sync.
	//
	// +optional
	LastSyncTime *metav1.Time `json:"lastSyncTime,omitempty"`
}

// +kubebuilder:object:root=true
// +kubebuilder:subresource:status
// +kubebuilder:resource:shortName=csec
// +kubebuilder:printcolumn:name=Type,description=Secret type,JSONPath=.spec.type,type=string
// +kubebuilder:printcolumn:name=Synced,description=Number of namespaces holding a replica,JSONPath=.status.syncedNamespaces,type=string
// +kubebuilder:printcolumn:name=Age,type=date,JSONPath=.metadata.creationTimestamp

// ClusterSecret is the Schema for the clustersecrets API
type ClusterSecret struct {
	metav1.TypeMeta `json:",inline"`

	// metadata is a standard object metadata
	// +optional
	metav1.ObjectMeta `json:"metadata,omitzero"`

	// spec defines the desired state of ClusterSecret
	// +required
	Spec ClusterSecretSpec `json:"spec"`

	// status defines the observed state of ClusterSecret
	// +optional
	Status ClusterSecretStatus `json:"status,omitzero"`
}

// +kubebuilder:object:root=true

// ClusterSecretList contains a list of ClusterSecret
type ClusterSecretList struct {
	metav1.TypeMeta `json:",inline"`
	metav1.ListMeta `json:"metadata,omitzero"`
	Items           []ClusterSecret `json:"items"`
}

func init() {
	SchemeBuilder.Register(&ClusterSecret{}, &ClusterSecretList{})
}
