// Package kubernetes provides a sandbox.Acquirer that obtains sandbox-server
// pods through agent-sandbox SandboxClaim resources.
package kubernetes

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/runtime"
	"k8s.io/apimachinery/pkg/types"
	"sigs.k8s.io/controller-runtime/pkg/client"
	ctrlconfig "sigs.k8s.io/controller-runtime/pkg/client/config"

	sandboxv1alpha1 "sigs.k8s.io/agent-sandbox/api/v1alpha1"
	extensionsv1alpha1 "sigs.k8s.io/agent-sandbox/extensions/api/v1alpha1"

	"github.com/rhuss/vizlaunch/pkg/debug"
	"github.com/rhuss/vizlaunch/pkg/sandbox"
)

var _ sandbox.Acquirer = (*ClaimAcquirer)(nil)

const (
	defaultPort         = 8080
	defaultPollInterval = 500 * time.Millisecond
)

// Options configures a ClaimAcquirer.
type Options struct {
	// Template is the SandboxTemplate the claims reference.
	Template  string
	Namespace string
	// ClaimTimeout bounds the wait for the Sandbox to become ready.
	ClaimTimeout time.Duration
	// Port of the sandbox-server inside the pod. Defaults to 8080.
	Port         int
	PollInterval time.Duration
}

// ClaimAcquirer creates one SandboxClaim per execution, waits for the
// matching Sandbox to report Ready and returns its service URL. Releasing
// deletes the claim, which lets the controller recycle the pod.
type ClaimAcquirer struct {
	client client.Client
	opts   Options
}

// NewClaimAcquirer creates a ClaimAcquirer.
func NewClaimAcquirer(c client.Client, opts Options) *ClaimAcquirer {
	if opts.Port == 0 {
		opts.Port = defaultPort
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = defaultPollInterval
	}
	if opts.ClaimTimeout <= 0 {
		opts.ClaimTimeout = time.Minute
	}
	return &ClaimAcquirer{client: c, opts: opts}
}

// NewScheme returns a runtime.Scheme with the agent-sandbox types registered.
func NewScheme() (*runtime.Scheme, error) {
	scheme := runtime.NewScheme()
	if err := sandboxv1alpha1.AddToScheme(scheme); err != nil {
		return nil, fmt.Errorf("register sandbox types: %w", err)
	}
	if err := extensionsv1alpha1.AddToScheme(scheme); err != nil {
		return nil, fmt.Errorf("register extensions types: %w", err)
	}
	return scheme, nil
}

// NewFromKubeconfig builds a ClaimAcquirer whose client uses the
// in-cluster config or the local kubeconfig, whichever is found first.
func NewFromKubeconfig(opts Options) (*ClaimAcquirer, error) {
	restCfg, err := ctrlconfig.GetConfig()
	if err != nil {
		return nil, fmt.Errorf("load kubernetes config: %w", err)
	}
	scheme, err := NewScheme()
	if err != nil {
		return nil, err
	}
	c, err := client.New(restCfg, client.Options{Scheme: scheme})
	if err != nil {
		return nil, fmt.Errorf("create kubernetes client: %w", err)
	}
	return NewClaimAcquirer(c, opts), nil
}

// Acquire creates a SandboxClaim and blocks until its Sandbox is ready.
func (a *ClaimAcquirer) Acquire(ctx context.Context) (string, func(), error) {
	claimName := generateClaimNameFn()

	claim := &extensionsv1alpha1.SandboxClaim{
		ObjectMeta: metav1.ObjectMeta{
			Name:      claimName,
			Namespace: a.opts.Namespace,
			Labels: map[string]string{
				"app.kubernetes.io/managed-by": "vizlaunch",
			},
		},
		Spec: extensionsv1alpha1.SandboxClaimSpec{
			TemplateRef: extensionsv1alpha1.SandboxTemplateRef{
				Name: a.opts.Template,
			},
		},
	}

	if err := a.client.Create(ctx, claim); err != nil {
		return "", nil, fmt.Errorf("create SandboxClaim %q: %w", claimName, err)
	}
	debug.Log("sandbox", "created SandboxClaim", "name", claimName, "namespace", a.opts.Namespace, "template", a.opts.Template)

	fqdn, err := a.waitForReady(ctx, claimName)
	if err != nil {
		a.deleteClaim(claimName)
		return "", nil, err
	}

	url := fmt.Sprintf("http://%s:%d", fqdn, a.opts.Port)
	debug.Log("sandbox", "sandbox acquired", "name", claimName, "url", url)

	return url, func() { a.deleteClaim(claimName) }, nil
}

// waitForReady polls the Sandbox named after the claim until it is Ready
// with a service FQDN, the claim timeout expires, or ctx ends.
func (a *ClaimAcquirer) waitForReady(ctx context.Context, name string) (string, error) {
	deadline := time.NewTimer(a.opts.ClaimTimeout)
	defer deadline.Stop()
	ticker := time.NewTicker(a.opts.PollInterval)
	defer ticker.Stop()

	key := types.NamespacedName{Name: name, Namespace: a.opts.Namespace}
	for {
		select {
		case <-ctx.Done():
			return "", fmt.Errorf("waiting for Sandbox %q: %w", name, ctx.Err())
		case <-deadline.C:
			return "", fmt.Errorf("Sandbox %q not ready after %s", name, a.opts.ClaimTimeout)
		case <-ticker.C:
			sb := &sandboxv1alpha1.Sandbox{}
			if err := a.client.Get(ctx, key, sb); err != nil {
				// The controller may not have created it yet.
				debug.Log("sandbox", "waiting for Sandbox", "name", name, "error", err.Error())
				continue
			}
			if isReady(sb) && sb.Status.ServiceFQDN != "" {
				return sb.Status.ServiceFQDN, nil
			}
		}
	}
}

func isReady(sb *sandboxv1alpha1.Sandbox) bool {
	for _, c := range sb.Status.Conditions {
		if c.Type == string(sandboxv1alpha1.SandboxConditionReady) && c.Status == metav1.ConditionTrue {
			return true
		}
	}
	return false
}

// deleteClaim runs on release and cleanup paths, so it logs instead of
// returning errors. It uses its own context because the caller's may be done.
func (a *ClaimAcquirer) deleteClaim(name string) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	claim := &extensionsv1alpha1.SandboxClaim{
		ObjectMeta: metav1.ObjectMeta{Name: name, Namespace: a.opts.Namespace},
	}
	if err := a.client.Delete(ctx, claim); err != nil {
		slog.Warn("failed to delete SandboxClaim", "name", name, "namespace", a.opts.Namespace, "error", err.Error())
		return
	}
	debug.Log("sandbox", "deleted SandboxClaim", "name", name, "namespace", a.opts.Namespace)
}

// generateClaimNameFn is replaceable in tests for deterministic naming.
var generateClaimNameFn = func() string {
	return fmt.Sprintf("vizlaunch-%d", time.Now().UnixNano())
}
