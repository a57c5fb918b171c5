// Package k8stools implements the kubernetes diagnostic tools served by the
// demo tool server. Cluster access goes through kubectl so the toolset works
// against whatever context the operator's kubeconfig points at.
package k8stools

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"

	"kubepilot/internal/mcpserver"
	"kubepilot/internal/tools"
)

// Runner executes one external command and returns its stdout.
type Runner func(ctx context.Context, name string, args ...string) ([]byte, error)

func execRunner(ctx context.Context, name string, args ...string) ([]byte, error) {
	out, err := exec.CommandContext(ctx, name, args...).Output()
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) && len(exitErr.Stderr) > 0 {
			return nil, fmt.Errorf("%s: %s", name, strings.TrimSpace(string(exitErr.Stderr)))
		}
		return nil, fmt.Errorf("%s: %w", name, err)
	}
	return out, nil
}

// Toolset holds the kubectl-backed tools plus the calculator.
type Toolset struct {
	run Runner
}

// New builds a toolset. A nil runner means real kubectl invocations.
func New(run Runner) *Toolset {
	if run == nil {
		run = execRunner
	}
	return &Toolset{run: run}
}

// RegisterAll registers every tool on the given server.
func (t *Toolset) RegisterAll(srv *mcpserver.Server) error {
	specs := []struct {
		desc tools.Descriptor
		fn   mcpserver.ToolFunc
	}{
		{calculateDescriptor(), calculate},
		{podsDescriptor(), t.podsInformation},
		{namespaceDescriptor(), t.namespaceInformation},
		{nodesDescriptor(), t.nodesInformation},
		{networkPolicyDescriptor(), t.networkPolicyInformation},
		{applyDescriptor(), t.applyResource},
	}
	for _, s := range specs {
		if err := srv.Register(s.desc, s.fn); err != nil {
			return err
		}
	}
	return nil
}

func podsDescriptor() tools.Descriptor {
	return tools.Descriptor{
		Name:        "get_pods_information",
		Description: "Return information regarding pods in a Kubernetes cluster. Pod name and namespace are both optional; leaving them unset returns all pods across all namespaces.",
		InputSchema: map[string]any{
			"type":  "object",
			"title": "get_pods_informationArguments",
			"properties": map[string]any{
				"podName":   map[string]any{"type": "string", "title": "Podname"},
				"namespace": map[string]any{"type": "string", "title": "Namespace"},
			},
			"required": []any{"podName", "namespace"},
		},
	}
}

func namespaceDescriptor() tools.Descriptor {
	return tools.Descriptor{
		Name:        "get_namespace_information",
		Description: "Return information regarding namespaces in a Kubernetes cluster. An empty namespace returns all namespaces.",
		InputSchema: map[string]any{
			"type":  "object",
			"title": "get_namespace_informationArguments",
			"properties": map[string]any{
				"namespace": map[string]any{"type": "string", "title": "Namespace"},
			},
			"required": []any{"namespace"},
		},
	}
}

func nodesDescriptor() tools.Descriptor {
	return tools.Descriptor{
		Name:        "get_nodes_information",
		Description: "Return information regarding nodes and hosts in a Kubernetes cluster. Node name is optional; leaving it unset returns all nodes.",
		InputSchema: map[string]any{
			"type":  "object",
			"title": "get_nodes_informationArguments",
			"properties": map[string]any{
				"nodeName": map[string]any{"type": "string", "title": "Nodename", "default": nil},
			},
		},
	}
}

func networkPolicyDescriptor() tools.Descriptor {
	return tools.Descriptor{
		Name:        "get_network_policy_information",
		Description: "Return the network policies configured in the Kubernetes cluster. Policies describe which pods may talk to which pods through ingress and egress rules.",
		InputSchema: map[string]any{
			"type":       "object",
			"title":      "get_network_policy_informationArguments",
			"properties": map[string]any{},
		},
	}
}

func applyDescriptor() tools.Descriptor {
	return tools.Descriptor{
		Name:        "create_or_update_k8s_resource",
		Description: "Create or update a Kubernetes resource such as a pod, network policy or deployment from a JSON resource specification.",
		InputSchema: map[string]any{
			"type":  "object",
			"title": "create_or_update_k8s_resourceArguments",
			"properties": map[string]any{
				"resourceSpec": map[string]any{"type": "string", "title": "Resourcespec"},
			},
			"required": []any{"resourceSpec"},
		},
	}
}

// podsInformation fetches pods via kubectl and reduces each one to the
// fields worth showing a model: identity, containers with their state, and
// per-namespace counts.
func (t *Toolset) podsInformation(ctx context.Context, args map[string]any) (string, error) {
	podName := optionalArg(args, "podName")
	namespace := optionalArg(args, "namespace")

	value, err := t.kubectlJSON(ctx, podArgs(podName, namespace)...)
	if err != nil {
		return "", err
	}
	doc, ok := value.(map[string]any)
	if !ok {
		return wrapResult(value)
	}

	results := map[string]any{
		"kind":  doc["kind"],
		"items": []any{},
	}
	perNamespace := map[string]any{}
	total := 0

	if asString(doc["kind"]) == "Pod" {
		summary := summarizePod(doc)
		results["items"] = []any{summary}
		perNamespace[asString(summary["namespace"])] = 1
		total = 1
	} else {
		items := []any{}
		for _, item := range asSlice(doc["items"]) {
			pod, ok := item.(map[string]any)
			if !ok {
				continue
			}
			summary := summarizePod(pod)
			items = append(items, summary)
			ns := asString(summary["namespace"])
			if n, ok := perNamespace[ns].(int); ok {
				perNamespace[ns] = n + 1
			} else {
				perNamespace[ns] = 1
			}
			total++
		}
		results["items"] = items
	}
	results["summary"] = map[string]any{
		"total_pod_count":         total,
		"pods_count_by_namespace": perNamespace,
	}
	return wrapResult(results)
}

func podArgs(podName, namespace string) []string {
	args := []string{"get", "pods"}
	if podName != "" {
		args = []string{"get", "pod", podName}
	}
	switch {
	case namespace != "":
		args = append(args, "-n", namespace)
	case podName == "":
		args = append(args, "--all-namespaces")
	}
	return append(args, "-o", "json")
}

func summarizePod(pod map[string]any) map[string]any {
	meta := asMap(pod["metadata"])
	spec := asMap(pod["spec"])
	status := asMap(pod["status"])

	out := map[string]any{
		"kind":      pod["kind"],
		"name":      meta["name"],
		"namespace": meta["namespace"],
		"metadata": map[string]any{
			"labels":          meta["labels"],
			"annotations":     meta["annotations"],
			"resourceVersion": meta["resourceVersion"],
		},
		"nodeName":     valueOr(spec["nodeName"], "Not Set"),
		"nodeSelector": valueOr(spec["nodeSelector"], "Not Set"),
	}

	statuses := asSlice(status["containerStatuses"])
	containers := []any{}
	for _, item := range asSlice(spec["containers"]) {
		c := asMap(item)
		summary := map[string]any{
			"name":            c["name"],
			"image":           c["image"],
			"imagePullPolicy": c["imagePullPolicy"],
			"resources":       c["resources"],
			"ports":           c["ports"],
			"volumeMounts":    c["volumeMounts"],
		}
		for _, s := range statuses {
			st := asMap(s)
			if asString(st["name"]) == asString(c["name"]) {
				summary["state"] = st["state"]
				break
			}
		}
		containers = append(containers, summary)
	}
	out["containers"] = containers
	out["total_container_count"] = len(containers)
	if conditions, ok := status["conditions"]; ok {
		out["pod_status"] = conditions
	}
	return out
}

func (t *Toolset) namespaceInformation(ctx context.Context, args map[string]any) (string, error) {
	namespace := optionalArg(args, "namespace")
	argv := []string{"get", "namespaces", "-o", "json"}
	if namespace != "" {
		argv = []string{"get", "namespace", namespace, "-o", "json"}
	}
	value, err := t.kubectlJSON(ctx, argv...)
	if err != nil {
		return "", err
	}
	return wrapResult(value)
}

func (t *Toolset) nodesInformation(ctx context.Context, args map[string]any) (string, error) {
	nodeName := optionalArg(args, "nodeName")
	argv := []string{"get", "nodes", "-o", "json"}
	if nodeName != "" {
		argv = []string{"get", "node", nodeName, "-o", "json"}
	}
	value, err := t.kubectlJSON(ctx, argv...)
	if err != nil {
		return "", err
	}
	return wrapResult(value)
}

func (t *Toolset) networkPolicyInformation(ctx context.Context, args map[string]any) (string, error) {
	value, err := t.kubectlJSON(ctx, "get", "networkpolicies", "--all-namespaces", "-o", "json")
	if err != nil {
		return "", err
	}
	doc, ok := value.(map[string]any)
	if !ok {
		return wrapResult(value)
	}

	results := map[string]any{"kind": doc["kind"]}
	items := []any{}
	for _, item := range asSlice(doc["items"]) {
		policy, ok := item.(map[string]any)
		if !ok {
			continue
		}
		meta := asMap(policy["metadata"])
		items = append(items, map[string]any{
			"name":            meta["name"],
			"namespace":       meta["namespace"],
			"resourceVersion": meta["resourceVersion"],
			"spec":            policy["spec"],
		})
	}
	results["items"] = items
	return wrapResult(results)
}

func (t *Toolset) applyResource(ctx context.Context, args map[string]any) (string, error) {
	spec, _ := args["resourceSpec"].(string)
	if strings.TrimSpace(spec) == "" {
		return "", errors.New("resourceSpec is required")
	}

	f, err := os.CreateTemp("", "kubepilot-resource-*.json")
	if err != nil {
		return "", fmt.Errorf("stage resource spec: %w", err)
	}
	defer os.Remove(f.Name())
	if _, err := f.WriteString(spec); err != nil {
		f.Close()
		return "", fmt.Errorf("stage resource spec: %w", err)
	}
	if err := f.Close(); err != nil {
		return "", fmt.Errorf("stage resource spec: %w", err)
	}

	value, err := t.kubectlJSON(ctx, "apply", "-f", f.Name(), "-o", "json")
	if err != nil {
		return "", err
	}
	return wrapResult(value)
}

// kubectlJSON runs kubectl and parses its stdout. Non-JSON output, such as
// "No resources found", comes back as the trimmed string.
func (t *Toolset) kubectlJSON(ctx context.Context, args ...string) (any, error) {
	raw, err := t.run(ctx, "kubectl", args...)
	if err != nil {
		return nil, err
	}
	var value any
	if err := json.Unmarshal(bytes.TrimSpace(raw), &value); err != nil {
		return strings.TrimSpace(string(raw)), nil
	}
	return value, nil
}

func wrapResult(value any) (string, error) {
	payload, err := json.Marshal(map[string]any{"result": value})
	if err != nil {
		return "", fmt.Errorf("encode result: %w", err)
	}
	return string(payload), nil
}

// optionalArg reads a string argument, treating the literal "None" the same
// as absent. Clients fill unset parameters with that placeholder.
func optionalArg(args map[string]any, key string) string {
	s, _ := args[key].(string)
	s = strings.TrimSpace(s)
	if s == "None" {
		return ""
	}
	return s
}

func valueOr(v any, fallback any) any {
	if v == nil {
		return fallback
	}
	return v
}

func asMap(v any) map[string]any {
	m, _ := v.(map[string]any)
	return m
}

func asSlice(v any) []any {
	s, _ := v.([]any)
	return s
}

func asString(v any) string {
	s, _ := v.(string)
	return s
}
