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

package secrets

// =============================================================================
// Annotations applied to replicated Secret objects.
// These enable tracking which operator manages the replica, where the payload
// came from, and drift detection via checksums.
// =============================================================================
const (
	// AnnotationManagedBy identifies this Secret as managed by the operator
	AnnotationManagedBy = "clustersecret.io/managed-by"

	// AnnotationSourceNamespace records the namespace of the source ClusterSecret
	AnnotationSourceNamespace = "clustersecret.io/source-namespace"

	// AnnotationSourceName records the name of the source ClusterSecret
	AnnotationSourceName = "clustersecret.io/source-name"

	// AnnotationChecksum stores a SHA256 hash of the replicated payload
	AnnotationChecksum = "clustersecret.io/checksum"

	// AnnotationLastSynced records when the replica was last written
	AnnotationLastSynced = "clustersecret.io/last-synced"

	// ManagedByValue is the value for AnnotationManagedBy
	ManagedByValue = "clustersecret-operator"
)

// lastAppliedAnnotation is stamped by kubectl on the source resource and must
// not leak onto replicas.
const lastAppliedAnnotation = "kubectl.kubernetes.io/last-applied-configuration"
