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
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"

	v1alpha1 "github.com/cloudnepal/ClusterSecret/api/v1alpha1"
)

// ConditionTypeReady indicates overall sync health.
// True = every matched namespace holds a replica, False = some failed.
const ConditionTypeReady = "Ready"

// setCondition updates or adds a condition on the ClusterSecret status.
//
// This follows Kubernetes conventions:
// - Each condition type appears at most once
// - LastTransitionTime only updates when status changes
// - Reason and Message can update without changing transition time
func setCondition(cs *v1alpha1.ClusterSecret, condType string, status metav1.ConditionStatus, reason, message string) {
	condition := metav1.Condition{
		Type:               condType,
		Status:             status,
		LastTransitionTime: metav1.Now(),
		Reason:             reason,
		Message:            message,
	}

	for i, existing := range cs.Status.Conditions {
		if existing.Type == condType {
			if existing.Status != status {
				cs.Status.Conditions[i] = condition
			} else {
				cs.Status.Conditions[i].Reason = reason
				cs.Status.Conditions[i].Message = message
			}
			return
		}
	}

	cs.Status.Conditions = append(cs.Status.Conditions, condition)
}
