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

package dispatch

import (
	"context"
	"fmt"

	corev1 "k8s.io/api/core/v1"
	apiequality "k8s.io/apimachinery/pkg/api/equality"
	toolscache "k8s.io/client-go/tools/cache"
	ctrlcache "sigs.k8s.io/controller-runtime/pkg/cache"

	v1alpha1 "github.com/cloudnepal/ClusterSecret/api/v1alpha1"
	"github.com/cloudnepal/ClusterSecret/internal/events"
)

// =============================================================================
// Informer sources.
//
// These adapt raw informer callbacks into the typed event variants. The
// informer framework provides the collaborator guarantees the handlers rely
// on: full bodies on every callback, old+new bodies on update, and replay of
// existing objects on startup (which doubles as the resume trigger).
// =============================================================================

// ClusterSecretSource watches ClusterSecret resources through the manager's
// cache and emits Created, MatchRuleChanged, PayloadChanged, and Deleted.
func ClusterSecretSource(c ctrlcache.Cache) Source {
	return func(ctx context.Context, d *Dispatcher) error {
		inf, err := c.GetInformer(ctx, &v1alpha1.ClusterSecret{})
		if err != nil {
			return fmt.Errorf("failed to get ClusterSecret informer: %w", err)
		}

		_, err = inf.AddEventHandler(toolscache.ResourceEventHandlerFuncs{
			AddFunc: func(obj interface{}) {
				cs, ok := obj.(*v1alpha1.ClusterSecret)
				if !ok {
					return
				}
				d.Enqueue(events.Created{Secret: cs.DeepCopy()})
			},
			UpdateFunc: func(oldObj, newObj interface{}) {
				oldCS, ok := oldObj.(*v1alpha1.ClusterSecret)
				if !ok {
					return
				}
				newCS, ok := newObj.(*v1alpha1.ClusterSecret)
				if !ok {
					return
				}
				// Periodic resync replays the same object version; nothing changed.
				if oldCS.ResourceVersion == newCS.ResourceVersion {
					return
				}
				enqueueFieldChanges(d, oldCS, newCS)
			},
			DeleteFunc: func(obj interface{}) {
				if tombstone, ok := obj.(toolscache.DeletedFinalStateUnknown); ok {
					obj = tombstone.Obj
				}
				cs, ok := obj.(*v1alpha1.ClusterSecret)
				if !ok {
					return
				}
				d.Enqueue(events.Deleted{Secret: cs.DeepCopy()})
			},
		})
		if err != nil {
			return fmt.Errorf("failed to register ClusterSecret handler: %w", err)
		}
		return nil
	}
}

// enqueueFieldChanges diffs the watched fields and emits one event per field
// that changed. A single update may change both the rule and the payload; the
// two events share a key and are therefore handled in order.
func enqueueFieldChanges(d *Dispatcher, oldCS, newCS *v1alpha1.ClusterSecret) {
	ruleChanged := !apiequality.Semantic.DeepEqual(oldCS.Spec.MatchNamespace, newCS.Spec.MatchNamespace) ||
		!apiequality.Semantic.DeepEqual(oldCS.Spec.AvoidNamespaces, newCS.Spec.AvoidNamespaces)
	payloadChanged := !apiequality.Semantic.DeepEqual(oldCS.Spec.Data, newCS.Spec.Data) ||
		oldCS.Spec.Type != newCS.Spec.Type

	if ruleChanged {
		old := oldCS.DeepCopy()
		d.Enqueue(events.MatchRuleChanged{
			Old:    &events.NamespaceRule{Match: old.Spec.MatchNamespace, Avoid: old.Spec.AvoidNamespaces},
			New:    &events.NamespaceRule{Match: newCS.Spec.MatchNamespace, Avoid: newCS.Spec.AvoidNamespaces},
			Secret: newCS.DeepCopy(),
		})
	}
	if payloadChanged {
		d.Enqueue(events.PayloadChanged{
			Old:    oldCS.DeepCopy().Spec.Data,
			New:    newCS.Spec.Data,
			Secret: newCS.DeepCopy(),
		})
	}
}

// NamespaceSource watches Namespace objects and emits NamespaceCreated.
// Informer replay on startup re-announces every existing namespace; the
// handler treats already-synced namespaces as no-ops, so replay is harmless.
func NamespaceSource(c ctrlcache.Cache) Source {
	return func(ctx context.Context, d *Dispatcher) error {
		inf, err := c.GetInformer(ctx, &corev1.Namespace{})
		if err != nil {
			return fmt.Errorf("failed to get Namespace informer: %w", err)
		}

		_, err = inf.AddEventHandler(toolscache.ResourceEventHandlerFuncs{
			AddFunc: func(obj interface{}) {
				ns, ok := obj.(*corev1.Namespace)
				if !ok {
					return
				}
				d.Enqueue(events.NamespaceCreated{Name: ns.Name})
			},
		})
		if err != nil {
			return fmt.Errorf("failed to register Namespace handler: %w", err)
		}
		return nil
	}
}
