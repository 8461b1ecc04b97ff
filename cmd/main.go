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

package main

import (
	"context"
	"flag"
	"os"
	"strings"

	// Import all Kubernetes client auth plugins (e.g. Azure, GCP, OIDC, etc.)
	// to ensure that exec-entrypoint and run can make use of them.
	_ "k8s.io/client-go/plugin/pkg/client/auth"

	"k8s.io/apimachinery/pkg/runtime"
	utilruntime "k8s.io/apimachinery/pkg/util/runtime"
	clientgoscheme "k8s.io/client-go/kubernetes/scheme"
	ctrl "sigs.k8s.io/controller-runtime"
	"sigs.k8s.io/controller-runtime/pkg/healthz"
	"sigs.k8s.io/controller-runtime/pkg/log/zap"
	"sigs.k8s.io/controller-runtime/pkg/manager"
	metricsserver "sigs.k8s.io/controller-runtime/pkg/metrics/server"

	v1alpha1 "github.com/cloudnepal/ClusterSecret/api/v1alpha1"
	"github.com/cloudnepal/ClusterSecret/internal/cache"
	"github.com/cloudnepal/ClusterSecret/internal/controller"
	"github.com/cloudnepal/ClusterSecret/internal/dispatch"
	"github.com/cloudnepal/ClusterSecret/internal/secrets"
)

var (
	scheme   = runtime.NewScheme()
	setupLog = ctrl.Log.WithName("setup")
)

func init() {
	utilruntime.Must(clientgoscheme.AddToScheme(scheme))
	utilruntime.Must(v1alpha1.AddToScheme(scheme))
}

func main() {
	var metricsAddr string
	var probeAddr string
	var enableLeaderElection bool
	var reservedNamespaces string
	flag.StringVar(&metricsAddr, "metrics-bind-address", ":8080", "The address the metric endpoint binds to.")
	flag.StringVar(&probeAddr, "health-probe-bind-address", ":8081", "The address the probe endpoint binds to.")
	flag.BoolVar(&enableLeaderElection, "leader-elect", false,
		"Enable leader election for controller manager. "+
			"Enabling this will ensure there is only one active controller manager.")
	flag.StringVar(&reservedNamespaces, "reserved-namespaces", "kube-system,kube-public,kube-node-lease",
		"Comma-separated namespace patterns that never receive replicas.")
	opts := zap.Options{
		Development: true,
	}
	opts.BindFlags(flag.CommandLine)
	flag.Parse()

	ctrl.SetLogger(zap.New(zap.UseFlagOptions(&opts)))

	mgr, err := ctrl.NewManager(ctrl.GetConfigOrDie(), ctrl.Options{
		Scheme:                 scheme,
		Metrics:                metricsserver.Options{BindAddress: metricsAddr},
		HealthProbeBindAddress: probeAddr,
		LeaderElection:         enableLeaderElection,
		LeaderElectionID:       "clustersecret-operator.clustersecret.io",
	})
	if err != nil {
		setupLog.Error(err, "unable to start manager")
		os.Exit(1)
	}

	store := cache.NewStore()
	synchronizer := secrets.NewSynchronizer(mgr.GetClient(), ctrl.Log.WithName("synchronizer"))
	reporter := &controller.StatusReporter{
		Client: mgr.GetClient(),
		Log:    ctrl.Log.WithName("status"),
	}
	reconciler := &controller.Reconciler{
		Client:             mgr.GetClient(),
		Reader:             mgr.GetAPIReader(),
		Store:              store,
		Secrets:            synchronizer,
		Status:             reporter,
		Log:                ctrl.Log.WithName("reconciler"),
		ReservedNamespaces: splitNonEmpty(reservedNamespaces),
	}

	dispatcher := dispatch.New(reconciler, ctrl.Log.WithName("dispatcher"), dispatch.Options{})
	dispatcher.AddSource(dispatch.ClusterSecretSource(mgr.GetCache()))
	dispatcher.AddSource(dispatch.NamespaceSource(mgr.GetCache()))

	// The cache must be populated from persisted resources before the first
	// event is delivered; sources are only registered afterwards.
	if err := mgr.Add(manager.RunnableFunc(func(ctx context.Context) error {
		if err := reconciler.Bootstrap(ctx); err != nil {
			return err
		}
		return dispatcher.Run(ctx)
	})); err != nil {
		setupLog.Error(err, "unable to add dispatcher runnable")
		os.Exit(1)
	}

	if err := mgr.AddHealthzCheck("healthz", healthz.Ping); err != nil {
		setupLog.Error(err, "unable to set up health check")
		os.Exit(1)
	}
	if err := mgr.AddReadyzCheck("readyz", healthz.Ping); err != nil {
		setupLog.Error(err, "unable to set up ready check")
		os.Exit(1)
	}

	setupLog.Info("starting manager")
	if err := mgr.Start(ctrl.SetupSignalHandler()); err != nil {
		setupLog.Error(err, "problem running manager")
		os.Exit(1)
	}
}

func splitNonEmpty(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
