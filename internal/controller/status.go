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

package controller

import (
	"context"
	"fmt"

	"github.com/go-logr/logr"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/util/sets"
	"sigs.k8s.io/controller-runtime/pkg/client"

	v1alpha1 "github.com/cloudnepal/ClusterSecret/api/v1alpha1"
)

// StatusReporter persists the synced-namespace set onto the source resource so
// it survives restarts and is observable with kubectl.
type StatusReporter struct {
	Client client.Client
	Log    logr.Logger
}

// Record patches the status subresource with the current synced set. The
// latest body is fetched first so the patch does not fight older resource
// versions held by the caller; a resource deleted in the meantime is nothing
// to report on.
func (s *StatusReporter) Record(ctx context.Context, key client.ObjectKey, synced sets.Set[string], ready bool) error {
	var cs v1alpha1.ClusterSecret
	if err := s.Client.Get(ctx, key, &cs); err != nil {
		return client.IgnoreNotFound(err)
	}
	orig := cs.DeepCopy()

	cs.Status.SyncedNamespaces = sets.List(synced)
	if ready {
		now := metav1.Now()
		cs.Status.LastSyncTime = &now
		setCondition(&cs, ConditionTypeReady, metav1.ConditionTrue, "SyncSuccessful",
			"All matched namespaces hold an up-to-date replica")
	} else {
		setCondition(&cs, ConditionTypeReady, metav1.ConditionFalse, "SyncFailed",
			"Some namespaces failed to sync")
	}

	s.Log.V(1).Info("Patching status", "clustersecret", key.Name, "syncedNamespaces", cs.Status.SyncedNamespaces)
	if err := s.Client.Status().Patch(ctx, &cs, client.MergeFrom(orig)); err != nil {
		return fmt.Errorf("failed to patch ClusterSecret status: %w", err)
	}
	return nil
}
