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

// Package match resolves a ClusterSecret namespace rule against a live
// namespace list. Resolution is a pure function: no caching, no side effects.
// Callers pass a fresh namespace snapshot so the result reflects current
// cluster topology, and inject any reserved-namespace policy into Avoid.
package match

import (
	"fmt"

	"github.com/gobwas/glob"
	"k8s.io/apimachinery/pkg/util/sets"
)

// Rule is a namespace-selection rule. Entries in both lists may be exact
// names, glob patterns ("prod-*"), or "*" for all namespaces. Avoid patterns
// take precedence over Match patterns.
type Rule struct {
	Match []string
	Avoid []string
}

// Resolve returns the sorted set of namespaces the rule selects.
// A pattern that fails to compile is a caller error, not a transient one.
func Resolve(rule Rule, namespaces []string) ([]string, error) {
	include, err := compile(rule.Match)
	if err != nil {
		return nil, fmt.Errorf("invalid matchNamespace pattern: %w", err)
	}
	exclude, err := compile(rule.Avoid)
	if err != nil {
		return nil, fmt.Errorf("invalid avoidNamespaces pattern: %w", err)
	}

	matched := sets.New[string]()
	for _, ns := range namespaces {
		if matchesAny(exclude, ns) {
			continue
		}
		if matchesAny(include, ns) {
			matched.Insert(ns)
		}
	}
	return sets.List(matched), nil
}

// MatchesAny reports whether name matches any of the given patterns.
// Used by callers to test a single namespace against a policy list.
func MatchesAny(patterns []string, name string) (bool, error) {
	globs, err := compile(patterns)
	if err != nil {
		return false, err
	}
	return matchesAny(globs, name), nil
}

func compile(patterns []string) ([]glob.Glob, error) {
	globs := make([]glob.Glob, 0, len(patterns))
	for _, p := range patterns {
		g, err := glob.Compile(p)
		if err != nil {
			return nil, fmt.Errorf("%q: %w", p, err)
		}
		globs = append(globs, g)
	}
	return globs, nil
}

func matchesAny(globs []glob.Glob, name string) bool {
	for _, g := range globs {
		if g.Match(name) {
			return true
		}
	}
	return false
}
