// Package kubeutil connects to the Kubernetes API.
package kubeutil

import (
	"k8s.io/client-go/kubernetes"
	"k8s.io/client-go/rest"
	"k8s.io/client-go/tools/clientcmd"

	xe "github.com/roundup-project/roundup/pkg/errors"
)

// RestConfig resolves the client config.
//
// kubeconfig, when not empty, is used.
// Otherwise files in $KUBECONFIG or ~/.kube/config are merged as kubectl does.
// When none of them exist, the in-cluster config is used.
func RestConfig(kubeconfig string) (*rest.Config, error) {
	rules := clientcmd.NewDefaultClientConfigLoadingRules()
	rules.ExplicitPath = kubeconfig

	config, err := clientcmd.NewNonInteractiveDeferredLoadingClientConfig(
		rules, &clientcmd.ConfigOverrides{},
	).ClientConfig()
	if clientcmd.IsEmptyConfig(err) {
		config, err = rest.InClusterConfig()
	}
	if err != nil {
		return nil, xe.Wrap(err)
	}
	return config, nil
}

// ConnectToK8s makes a clientset with RestConfig(kubeconfig).
func ConnectToK8s(kubeconfig string) (*kubernetes.Clientset, error) {
	config, err := RestConfig(kubeconfig)
	if err != nil {
		return nil, err
	}
	config.UserAgent = "roundup"
	clientset, err := kubernetes.NewForConfig(config)
	if err != nil {
		return nil, xe.Wrap(err)
	}
	return clientset, nil
}
