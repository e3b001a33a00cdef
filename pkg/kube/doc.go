/*
Package kube wraps the Kubernetes operations the activities need: deploy
the per-instance secret, statefulset and services, poll pod readiness,
read the LoadBalancer ingress address, and delete it all again.

Manifests are YAML templates rendered per instance and decoded into
typed objects, so what the controller applies matches what an operator
would write by hand. Deploys are create-or-update and deletes treat
NotFound as already-done; both directions are safe to retry.

NewWithClientset accepts any kubernetes.Interface, which is how tests
run the full deploy and delete paths against a fake clientset.
*/
package kube
