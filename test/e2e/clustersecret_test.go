//go:build e2e
// +build e2e

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

package e2e

import (
	"fmt"
	"os/exec"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/cloudnepal/ClusterSecret/test/utils"
)

var _ = Describe("ClusterSecret propagation", Ordered, func() {
	const (
		nsAlpha = "e2e-team-alpha"
		nsBeta  = "e2e-team-beta"
		nsGamma = "e2e-team-gamma"
	)

	BeforeAll(func() {
		By("installing CRDs")
		cmd := exec.Command("make", "install")
		_, err := utils.Run(cmd)
		Expect(err).NotTo(HaveOccurred(), "Failed to install CRDs")

		By("deploying the controller-manager")
		cmd = exec.Command("make", "deploy", fmt.Sprintf("IMG=%s", projectImage))
		_, err = utils.Run(cmd)
		Expect(err).NotTo(HaveOccurred(), "Failed to deploy the controller-manager")

		By("waiting for controller to be ready")
		Eventually(func() error {
			cmd := exec.Command("kubectl", "get", "deployment", "-n", namespace,
				"clustersecret-operator-controller-manager", "-o", "jsonpath={.status.readyReplicas}")
			output, err := utils.Run(cmd)
			if err != nil {
				return err
			}
			if output != "1" {
				return fmt.Errorf("controller not ready yet")
			}
			return nil
		}, 120*time.Second, 2*time.Second).Should(Succeed())

		By("creating test namespaces")
		for _, ns := range []string{nsAlpha, nsBeta} {
			cmd = exec.Command("kubectl", "create", "ns", ns)
			_, _ = utils.Run(cmd)
		}
	})

	AfterAll(func() {
		By("cleaning up test namespaces")
		for _, ns := range []string{nsAlpha, nsBeta, nsGamma} {
			cmd := exec.Command("kubectl", "delete", "ns", ns, "--ignore-not-found")
			_, _ = utils.Run(cmd)
		}

		By("undeploying the controller-manager")
		cmd := exec.Command("make", "undeploy")
		_, _ = utils.Run(cmd)

		By("uninstalling CRDs")
		cmd = exec.Command("make", "uninstall")
		_, _ = utils.Run(cmd)
	})

	It("should clone the secret into every matched namespace", func() {
		By("creating a ClusterSecret matching the test namespaces")
		csYAML := `
apiVersion: clustersecret.io/v1alpha1
kind: ClusterSecret
metadata:
  name: db-creds
  namespace: default
spec:
  matchNamespace:
    - e2e-team-*
  data:
    password: cGFzczEyMw==
`
		cmd := exec.Command("kubectl", "apply", "-f", "-")
		cmd.Stdin = stringReader(csYAML)
		_, err := utils.Run(cmd)
		Expect(err).NotTo(HaveOccurred())

		By("waiting for the replicas to appear")
		for _, ns := range []string{nsAlpha, nsBeta} {
			Eventually(func() error {
				cmd := exec.Command("kubectl", "get", "secret", "db-creds", "-n", ns)
				_, err := utils.Run(cmd)
				return err
			}, 60*time.Second, 2*time.Second).Should(Succeed())
		}

		By("verifying replica payload and ownership annotation")
		cmd = exec.Command("kubectl", "get", "secret", "db-creds", "-n", nsAlpha,
			"-o", "jsonpath={.data.password}")
		output, err := utils.Run(cmd)
		Expect(err).NotTo(HaveOccurred())
		Expect(output).To(Equal("cGFzczEyMw=="))

		cmd = exec.Command("kubectl", "get", "secret", "db-creds", "-n", nsAlpha,
			"-o", `jsonpath={.metadata.annotations.clustersecret\.io/managed-by}`)
		output, err = utils.Run(cmd)
		Expect(err).NotTo(HaveOccurred())
		Expect(output).To(Equal("clustersecret-operator"))

		By("verifying the status lists the synced namespaces")
		Eventually(func() (string, error) {
			cmd := exec.Command("kubectl", "get", "clustersecret", "db-creds", "-n", "default",
				"-o", "jsonpath={.status.syncedNamespaces}")
			return utils.Run(cmd)
		}, 60*time.Second, 2*time.Second).Should(SatisfyAll(
			ContainSubstring(nsAlpha),
			ContainSubstring(nsBeta),
		))
	})

	It("should propagate data changes to existing replicas", func() {
		By("rotating the payload")
		cmd := exec.Command("kubectl", "patch", "clustersecret", "db-creds", "-n", "default",
			"--type=merge", "-p", `{"spec":{"data":{"password":"cm90YXRlZA=="}}}`)
		_, err := utils.Run(cmd)
		Expect(err).NotTo(HaveOccurred())

		By("waiting for the replicas to converge")
		for _, ns := range []string{nsAlpha, nsBeta} {
			Eventually(func() (string, error) {
				cmd := exec.Command("kubectl", "get", "secret", "db-creds", "-n", ns,
					"-o", "jsonpath={.data.password}")
				return utils.Run(cmd)
			}, 60*time.Second, 2*time.Second).Should(Equal("cm90YXRlZA=="))
		}
	})

	It("should clone into namespaces created after the ClusterSecret", func() {
		By("creating a new matching namespace")
		cmd := exec.Command("kubectl", "create", "ns", nsGamma)
		_, err := utils.Run(cmd)
		Expect(err).NotTo(HaveOccurred())

		By("waiting for the replica to appear there")
		Eventually(func() error {
			cmd := exec.Command("kubectl", "get", "secret", "db-creds", "-n", nsGamma)
			_, err := utils.Run(cmd)
			return err
		}, 60*time.Second, 2*time.Second).Should(Succeed())
	})

	It("should remove replicas when the match rule narrows", func() {
		By("narrowing the rule to one namespace")
		cmd := exec.Command("kubectl", "patch", "clustersecret", "db-creds", "-n", "default",
			"--type=merge", "-p", fmt.Sprintf(`{"spec":{"matchNamespace":["%s"]}}`, nsAlpha))
		_, err := utils.Run(cmd)
		Expect(err).NotTo(HaveOccurred())

		By("waiting for the no-longer-matched replicas to disappear")
		for _, ns := range []string{nsBeta, nsGamma} {
			Eventually(func() string {
				cmd := exec.Command("kubectl", "get", "secret", "db-creds", "-n", ns)
				output, _ := utils.Run(cmd)
				return output
			}, 60*time.Second, 2*time.Second).Should(ContainSubstring("NotFound"))
		}

		By("verifying the kept replica is still there")
		cmd = exec.Command("kubectl", "get", "secret", "db-creds", "-n", nsAlpha)
		_, err = utils.Run(cmd)
		Expect(err).NotTo(HaveOccurred())
	})

	It("should cascade deletion of the ClusterSecret to its replicas", func() {
		By("deleting the ClusterSecret")
		cmd := exec.Command("kubectl", "delete", "clustersecret", "db-creds", "-n", "default")
		_, err := utils.Run(cmd)
		Expect(err).NotTo(HaveOccurred())

		By("waiting for the remaining replica to disappear")
		Eventually(func() string {
			cmd := exec.Command("kubectl", "get", "secret", "db-creds", "-n", nsAlpha)
			output, _ := utils.Run(cmd)
			return output
		}, 60*time.Second, 2*time.Second).Should(ContainSubstring("NotFound"))
	})
})
