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
	"slices"

	"github.com/go-logr/logr"
	corev1 "k8s.io/api/core/v1"
	utilerrors "k8s.io/apimachinery/pkg/util/errors"
	"k8s.io/apimachinery/pkg/util/sets"
	"sigs.k8s.io/controller-runtime/pkg/client"

	v1alpha1 "github.com/cloudnepal/ClusterSecret/api/v1alpha1"
	"github.com/cloudnepal/ClusterSecret/internal/cache"
	"github.com/cloudnepal/ClusterSecret/internal/dispatch"
	"github.com/cloudnepal/ClusterSecret/internal/events"
	"github.com/cloudnepal/ClusterSecret/internal/match"
	"github.com/cloudnepal/ClusterSecret/internal/secrets"
)

// =============================================================================
// Reconciler keeps deployed secret replicas consistent with the desired state
// declared by ClusterSecret resources.
//
// It consumes the typed event variants from internal/events through a single
// entry point and composes the cache store, the namespace matcher, the secret
// synchronizer, and the status reporter into the per-trigger state
// transitions.
//
// Related files:
// - status.go: persists the synced-namespace set onto the resource status
// - conditions.go: status condition helpers
// =============================================================================
type Reconciler struct {
	Client  client.Client
	Reader  client.Reader
	Store   cache.Store
	Secrets *secrets.Synchronizer
	Status  *StatusReporter
	Log     logr.Logger

	// ReservedNamespaces are never synced into, regardless of the match rule.
	// Injected by the operator configuration, not hard-coded in the matcher.
	ReservedNamespaces []string
}

// Handle dispatches one event to its trigger handler.
func (r *Reconciler) Handle(ctx context.Context, ev events.Event) error {
	switch e := ev.(type) {
	case events.Created:
		return r.handleCreate(ctx, e.Secret)
	case events.MatchRuleChanged:
		return r.handleMatchRuleChanged(ctx, e)
	case events.PayloadChanged:
		return r.handlePayloadChanged(ctx, e)
	case events.Deleted:
		return r.handleDelete(ctx, e.Secret)
	case events.NamespaceCreated:
		return r.handleNamespaceCreated(ctx, e.Name)
	default:
		return dispatch.Permanent(fmt.Errorf("unhandled event type %T", ev))
	}
}

// Bootstrap rebuilds the in-memory cache from persisted resources. It must
// complete before steady-state event handling begins; the synced set of each
// record is seeded from the persisted status so replicas created in a previous
// run stay accounted for.
func (r *Reconciler) Bootstrap(ctx context.Context) error {
	var list v1alpha1.ClusterSecretList
	if err := r.Reader.List(ctx, &list); err != nil {
		return fmt.Errorf("failed to list existing ClusterSecrets: %w", err)
	}
	for i := range list.Items {
		cs := &list.Items[i]
		rec := recordFromSecret(cs)
		rec.SyncedNamespaces = sets.New(cs.Status.SyncedNamespaces...)
		r.Store.Set(rec)
	}
	r.Log.Info("Bootstrapped cache from existing ClusterSecrets", "count", len(list.Items))
	return nil
}

// handleCreate processes first observation of a resource, including resume
// after a restart. It resolves the rule and upserts a replica into every
// matched namespace.
func (r *Reconciler) handleCreate(ctx context.Context, cs *v1alpha1.ClusterSecret) error {
	log := r.Log.WithValues("clustersecret", cs.Name, "namespace", cs.Namespace)

	matched, err := r.resolve(ctx, cs.Spec.MatchNamespace, cs.Spec.AvoidNamespaces)
	if err != nil {
		return err
	}
	log.Info("Syncing to matched namespaces", "namespaces", matched)

	synced := sets.New[string]()
	var errs []error
	for _, ns := range matched {
		if err := r.Secrets.Upsert(ctx, ns, replicaSpec(cs)); err != nil {
			log.Error(err, "Failed to sync replica", "target", ns)
			errs = append(errs, fmt.Errorf("namespace %s: %w", ns, err))
			continue
		}
		synced.Insert(ns)
	}

	rec := recordFromSecret(cs)
	rec.SyncedNamespaces = synced
	r.Store.Set(rec)

	if err := r.Status.Record(ctx, client.ObjectKeyFromObject(cs), synced, len(errs) == 0); err != nil {
		errs = append(errs, err)
	}
	return utilerrors.NewAggregate(errs)
}

// handleMatchRuleChanged applies a set diff between the old synced set and the
// newly matched set: replicas are added to T\S and removed from S\T, and the
// intersection is never touched. This avoids the transient replica absence a
// teardown-and-rebuild would cause.
func (r *Reconciler) handleMatchRuleChanged(ctx context.Context, e events.MatchRuleChanged) error {
	if e.Old == nil {
		// First observation of the field; the create handler owns this case.
		r.Log.V(1).Info("Ignoring match-rule event without old value")
		return nil
	}
	cs := e.Secret
	log := r.Log.WithValues("clustersecret", cs.Name, "namespace", cs.Namespace)

	synced := r.syncedSet(cs, log)

	matched, err := r.resolve(ctx, cs.Spec.MatchNamespace, cs.Spec.AvoidNamespaces)
	if err != nil {
		return err
	}
	target := sets.New(matched...)

	toAdd := target.Difference(synced)
	toRemove := synced.Difference(target)
	log.Info("Applying namespace diff", "add", sets.List(toAdd), "remove", sets.List(toRemove))

	next := synced.Clone()
	var errs []error
	for _, ns := range sets.List(toAdd) {
		if err := r.Secrets.Upsert(ctx, ns, replicaSpec(cs)); err != nil {
			log.Error(err, "Failed to sync replica", "target", ns)
			errs = append(errs, fmt.Errorf("namespace %s: %w", ns, err))
			continue
		}
		next.Insert(ns)
	}
	for _, ns := range sets.List(toRemove) {
		if err := r.Secrets.Delete(ctx, ns, cs.Name); err != nil {
			log.Error(err, "Failed to delete replica", "target", ns)
			errs = append(errs, fmt.Errorf("namespace %s: %w", ns, err))
			continue
		}
		next.Delete(ns)
	}

	rec := recordFromSecret(cs)
	rec.SyncedNamespaces = next
	r.Store.Set(rec)

	if err := r.Status.Record(ctx, client.ObjectKeyFromObject(cs), next, len(errs) == 0); err != nil {
		errs = append(errs, err)
	}
	return utilerrors.NewAggregate(errs)
}

// handlePayloadChanged re-writes the payload into every currently synced
// namespace. Identity (which namespaces hold a copy) and content are
// orthogonal: the namespace set and the persisted status stay untouched.
func (r *Reconciler) handlePayloadChanged(ctx context.Context, e events.PayloadChanged) error {
	if e.Old == nil {
		r.Log.V(1).Info("Ignoring payload event without old value")
		return nil
	}
	cs := e.Secret
	log := r.Log.WithValues("clustersecret", cs.Name, "namespace", cs.Namespace)

	synced := r.syncedSet(cs, log)

	var errs []error
	for _, ns := range sets.List(synced) {
		log.Info("Re-syncing replica payload", "target", ns)
		if err := r.Secrets.Upsert(ctx, ns, replicaSpec(cs)); err != nil {
			log.Error(err, "Failed to re-sync replica", "target", ns)
			errs = append(errs, fmt.Errorf("namespace %s: %w", ns, err))
		}
	}

	rec := recordFromSecret(cs)
	rec.SyncedNamespaces = synced
	r.Store.Set(rec)

	return utilerrors.NewAggregate(errs)
}

// handleDelete cascades the deletion of the source resource to every replica
// and drops the cache record so namespace events stop considering it.
func (r *Reconciler) handleDelete(ctx context.Context, cs *v1alpha1.ClusterSecret) error {
	log := r.Log.WithValues("clustersecret", cs.Name, "namespace", cs.Namespace)

	synced := r.syncedSet(cs, log)

	var errs []error
	for _, ns := range sets.List(synced) {
		log.Info("Deleting replica", "target", ns)
		if err := r.Secrets.Delete(ctx, ns, cs.Name); err != nil {
			log.Error(err, "Failed to delete replica", "target", ns)
			errs = append(errs, fmt.Errorf("namespace %s: %w", ns, err))
		}
	}
	if len(errs) > 0 {
		// Keep the record; redelivery retries the remaining replicas.
		return utilerrors.NewAggregate(errs)
	}

	if err := r.Store.Remove(cs.UID); err != nil {
		log.V(1).Info("Record was not cached, maybe it was created in another run")
	}
	return nil
}

// handleNamespaceCreated checks every cached record against the new topology
// and clones matching secrets into the new namespace. Records already synced
// there are skipped, so informer replay of existing namespaces is a no-op.
func (r *Reconciler) handleNamespaceCreated(ctx context.Context, name string) error {
	reserved, err := match.MatchesAny(r.ReservedNamespaces, name)
	if err != nil {
		return dispatch.Permanent(fmt.Errorf("invalid reserved-namespaces policy: %w", err))
	}
	if reserved {
		return nil
	}

	namespaces, err := r.listNamespaceNames(ctx)
	if err != nil {
		return err
	}

	var errs []error
	for _, rec := range r.Store.List() {
		if rec.SyncedNamespaces.Has(name) {
			continue
		}
		matched, err := match.Resolve(r.rule(rec.MatchNamespace, rec.AvoidNamespaces), namespaces)
		if err != nil {
			// A broken rule on one record must not starve the others.
			r.Log.Error(err, "Skipping record with invalid match rule", "clustersecret", rec.Name)
			continue
		}
		if !slices.Contains(matched, name) {
			continue
		}

		r.Log.Info("Cloning secret into new namespace", "clustersecret", rec.Name, "target", name)
		if err := r.Secrets.Upsert(ctx, name, replicaSpecFromRecord(rec)); err != nil {
			r.Log.Error(err, "Failed to clone secret", "clustersecret", rec.Name, "target", name)
			errs = append(errs, fmt.Errorf("%s into %s: %w", rec.Name, name, err))
			continue
		}

		// Fold the new namespace into the live record without racing the
		// handler that owns it.
		if !r.Store.Update(rec.UID, func(live *cache.Record) {
			live.SyncedNamespaces.Insert(name)
		}) {
			// Record removed while cloning; the delete handler owns cleanup.
			continue
		}

		// Status is patched from the live record, not the fan-out snapshot,
		// so writes folded in by concurrent resource handlers are kept.
		live, ok := r.Store.Get(rec.UID)
		if !ok {
			continue
		}
		key := client.ObjectKey{Namespace: live.Namespace, Name: live.Name}
		if err := r.Status.Record(ctx, key, live.SyncedNamespaces, true); err != nil {
			errs = append(errs, err)
		}
	}
	return utilerrors.NewAggregate(errs)
}

// syncedSet returns the record's synced set, falling back to the persisted
// status when the record is missing (not yet bootstrapped, or lost). The
// fallback keeps field handlers best-effort instead of aborting; the next full
// reconciliation self-heals the cache.
func (r *Reconciler) syncedSet(cs *v1alpha1.ClusterSecret, log logr.Logger) sets.Set[string] {
	if rec, ok := r.Store.Get(cs.UID); ok {
		return rec.SyncedNamespaces
	}
	log.Info("Received an event for an unknown ClusterSecret, proceeding from persisted status")
	return sets.New(cs.Status.SyncedNamespaces...)
}

// resolve evaluates the rule against a fresh namespace snapshot. Rules that
// cannot compile are permanent failures; retrying them can never succeed.
func (r *Reconciler) resolve(ctx context.Context, matchNS, avoidNS []string) ([]string, error) {
	namespaces, err := r.listNamespaceNames(ctx)
	if err != nil {
		return nil, err
	}
	matched, err := match.Resolve(r.rule(matchNS, avoidNS), namespaces)
	if err != nil {
		return nil, dispatch.Permanent(err)
	}
	return matched, nil
}

func (r *Reconciler) rule(matchNS, avoidNS []string) match.Rule {
	avoid := make([]string, 0, len(avoidNS)+len(r.ReservedNamespaces))
	avoid = append(avoid, avoidNS...)
	avoid = append(avoid, r.ReservedNamespaces...)
	return match.Rule{Match: matchNS, Avoid: avoid}
}

func (r *Reconciler) listNamespaceNames(ctx context.Context) ([]string, error) {
	var list corev1.NamespaceList
	if err := r.Client.List(ctx, &list); err != nil {
		return nil, fmt.Errorf("failed to list namespaces: %w", err)
	}
	names := make([]string, 0, len(list.Items))
	for i := range list.Items {
		if !list.Items[i].DeletionTimestamp.IsZero() {
			continue
		}
		names = append(names, list.Items[i].Name)
	}
	return names, nil
}

func replicaSpec(cs *v1alpha1.ClusterSecret) secrets.ReplicaSpec {
	return secrets.ReplicaSpec{
		Name:            cs.Name,
		SourceNamespace: cs.Namespace,
		Data:            cs.Spec.Data,
		Type:            cs.Spec.Type,
		Labels:          cs.Labels,
		Annotations:     cs.Annotations,
	}
}

func replicaSpecFromRecord(rec *cache.Record) secrets.ReplicaSpec {
	return secrets.ReplicaSpec{
		Name:            rec.Name,
		SourceNamespace: rec.Namespace,
		Data:            rec.Data,
		Type:            rec.Type,
		Labels:          rec.Labels,
		Annotations:     rec.Annotations,
	}
}

func recordFromSecret(cs *v1alpha1.ClusterSecret) *cache.Record {
	return &cache.Record{
		UID:             cs.UID,
		Name:            cs.Name,
		Namespace:       cs.Namespace,
		MatchNamespace:  cs.Spec.MatchNamespace,
		AvoidNamespaces: cs.Spec.AvoidNamespaces,
		Data:            cs.Spec.Data,
		Type:            cs.Spec.Type,
		Labels:          cs.Labels,
		Annotations:     cs.Annotations,
	}
}
