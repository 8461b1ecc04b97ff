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

// Package secrets creates, replaces, and deletes secret replicas in target
// namespaces. Both operations are idempotent and convergent; callers may
// safely re-run them on redelivery.
package secrets

import (
	"context"
	"maps"
	"time"

	"github.com/go-logr/logr"
	corev1 "k8s.io/api/core/v1"
	apierrors "k8s.io/apimachinery/pkg/api/errors"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/types"
	"sigs.k8s.io/controller-runtime/pkg/client"
)

// ReplicaSpec is the desired state of one replica: payload, secret type, and
// the source resource's metadata. Labels and annotations are applied fully on
// every upsert so replicas never accumulate metadata drift.
type ReplicaSpec struct {
	Name            string
	SourceNamespace string
	Data            map[string][]byte
	Type            corev1.SecretType
	Labels          map[string]string
	Annotations     map[string]string
}

// Synchronizer performs replica writes against the cluster object store.
type Synchronizer struct {
	Client client.Client
	Log    logr.Logger
}

// NewSynchronizer returns a Synchronizer writing through the given client.
func NewSynchronizer(c client.Client, log logr.Logger) *Synchronizer {
	return &Synchronizer{Client: c, Log: log}
}

// Upsert ensures the target namespace holds a replica matching the spec.
//
// The existence check and the write are not atomic. Two benign races exist:
//   - concurrent create: surfaces as AlreadyExists/Conflict, returned to the
//     caller as retryable;
//   - concurrent delete between Get and Update: the update fails NotFound and
//     the replica is re-created instead.
func (s *Synchronizer) Upsert(ctx context.Context, namespace string, spec ReplicaSpec) error {
	desired := s.build(namespace, spec)
	key := types.NamespacedName{Namespace: namespace, Name: spec.Name}

	var existing corev1.Secret
	err := s.Client.Get(ctx, key, &existing)
	if apierrors.IsNotFound(err) {
		s.Log.Info("Creating replica", "namespace", namespace, "name", spec.Name)
		return s.Client.Create(ctx, desired)
	} else if err != nil {
		return err
	}

	if upToDate(&existing, desired) {
		s.Log.V(1).Info("Replica already up to date", "namespace", namespace, "name", spec.Name)
		return nil
	}

	existing.Data = desired.Data
	existing.Type = desired.Type
	existing.Labels = desired.Labels
	existing.Annotations = desired.Annotations

	s.Log.Info("Updating replica", "namespace", namespace, "name", spec.Name)
	if err := s.Client.Update(ctx, &existing); err != nil {
		if apierrors.IsNotFound(err) {
			s.Log.Info("Replica deleted concurrently, re-creating", "namespace", namespace, "name", spec.Name)
			return s.Client.Create(ctx, desired)
		}
		return err
	}
	return nil
}

// Delete removes the replica from the namespace. Deleting an absent replica is
// success. Secrets not carrying the managed-by annotation are left alone.
func (s *Synchronizer) Delete(ctx context.Context, namespace, name string) error {
	var existing corev1.Secret
	key := types.NamespacedName{Namespace: namespace, Name: name}
	if err := s.Client.Get(ctx, key, &existing); err != nil {
		return client.IgnoreNotFound(err)
	}

	if existing.Annotations[AnnotationManagedBy] != ManagedByValue {
		s.Log.Info("Refusing to delete unmanaged secret", "namespace", namespace, "name", name)
		return nil
	}

	s.Log.Info("Deleting replica", "namespace", namespace, "name", name)
	return client.IgnoreNotFound(s.Client.Delete(ctx, &existing))
}

func (s *Synchronizer) build(namespace string, spec ReplicaSpec) *corev1.Secret {
	secretType := spec.Type
	if secretType == "" {
		secretType = corev1.SecretTypeOpaque
	}

	annotations := make(map[string]string, len(spec.Annotations)+5)
	for k, v := range spec.Annotations {
		if k == lastAppliedAnnotation {
			continue
		}
		annotations[k] = v
	}
	annotations[AnnotationManagedBy] = ManagedByValue
	annotations[AnnotationSourceNamespace] = spec.SourceNamespace
	annotations[AnnotationSourceName] = spec.Name
	annotations[AnnotationChecksum] = Checksum(spec.Data)
	annotations[AnnotationLastSynced] = time.Now().UTC().Format(time.RFC3339)

	return &corev1.Secret{
		ObjectMeta: metav1.ObjectMeta{
			Name:        spec.Name,
			Namespace:   namespace,
			Labels:      maps.Clone(spec.Labels),
			Annotations: annotations,
		},
		Type: secretType,
		Data: spec.Data,
	}
}

// upToDate compares payload, type, and metadata, ignoring the last-synced
// timestamp so a no-op sync does not churn the object. The payload check
// hashes the replica's actual data, not its checksum annotation, so a replica
// tampered with out of band is still repaired.
func upToDate(existing, desired *corev1.Secret) bool {
	if existing.Type != desired.Type {
		return false
	}
	if Checksum(existing.Data) != desired.Annotations[AnnotationChecksum] {
		return false
	}
	if !maps.Equal(existing.Labels, desired.Labels) {
		return false
	}
	return annotationsEqual(existing.Annotations, desired.Annotations)
}

func annotationsEqual(a, b map[string]string) bool {
	strip := func(m map[string]string) map[string]string {
		out := maps.Clone(m)
		delete(out, AnnotationLastSynced)
		return out
	}
	return maps.Equal(strip(a), strip(b))
}
