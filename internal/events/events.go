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

// Package events defines the closed set of change notifications the
// reconciler consumes. Each variant carries the full current body of the
// resource it concerns; field-level variants additionally carry the old and
// new value of the watched field (old is nil on first observation).
package events

import (
	v1alpha1 "github.com/cloudnepal/ClusterSecret/api/v1alpha1"
)

// Event is one typed change notification. Key returns the serialization key:
// deliveries sharing a key are handled one at a time, in order.
type Event interface {
	Key() string
}

// NamespaceRule is the old/new snapshot of a ClusterSecret's namespace rule.
type NamespaceRule struct {
	Match []string
	Avoid []string
}

// Created fires when a ClusterSecret is first observed, including informer
// replay after a restart (resume).
type Created struct {
	Secret *v1alpha1.ClusterSecret
}

func (e Created) Key() string { return string(e.Secret.UID) }

// MatchRuleChanged fires when matchNamespace or avoidNamespaces changed.
type MatchRuleChanged struct {
	Old    *NamespaceRule
	New    *NamespaceRule
	Secret *v1alpha1.ClusterSecret
}

func (e MatchRuleChanged) Key() string { return string(e.Secret.UID) }

// PayloadChanged fires when the secret data or type changed.
type PayloadChanged struct {
	Old    map[string][]byte
	New    map[string][]byte
	Secret *v1alpha1.ClusterSecret
}

func (e PayloadChanged) Key() string { return string(e.Secret.UID) }

// Deleted fires when a ClusterSecret is removed. Secret is the last known body.
type Deleted struct {
	Secret *v1alpha1.ClusterSecret
}

func (e Deleted) Key() string { return string(e.Secret.UID) }

// NamespaceCreated fires when a new namespace appears in the cluster.
// It is keyed by namespace, so it may run concurrently with resource handlers.
type NamespaceCreated struct {
	Name string
}

func (e NamespaceCreated) Key() string { return "namespace/" + e.Name }
