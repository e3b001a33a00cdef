package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/paddockdb/paddock/pkg/api"
	"github.com/paddockdb/paddock/pkg/types"
)

var applyCmd = &cobra.Command{
	Use:   "apply",
	Short: "Apply a resource definition from a YAML file",
	Long: `Apply a Paddock resource from a YAML file.

Examples:
  # Create an instance from a definition
  paddock apply -f instance.yaml

An instance definition looks like:

  apiVersion: paddock.dev/v1
  kind: PostgresInstance
  metadata:
    name: mydb
  spec:
    password: changeme123
    version: "18"
    storageGB: 10
    internal: false`,
	RunE: runApply,
}

func init() {
	applyCmd.Flags().StringP("file", "f", "", "YAML file to apply (required)")
	_ = applyCmd.MarkFlagRequired("file")

	rootCmd.AddCommand(applyCmd)
}

// PaddockResource represents a generic Paddock resource document
type PaddockResource struct {
	APIVersion string                 `yaml:"apiVersion"`
	Kind       string                 `yaml:"kind"`
	Metadata   ResourceMetadata       `yaml:"metadata"`
	Spec       map[string]interface{} `yaml:"spec"`
}

type ResourceMetadata struct {
	Name   string            `yaml:"name"`
	Labels map[string]string `yaml:"labels,omitempty"`
}

func runApply(cmd *cobra.Command, args []string) error {
	filename, _ := cmd.Flags().GetString("file")

	// Read YAML file
	data, err := os.ReadFile(filename)
	if err != nil {
		return fmt.Errorf("failed to read file: %v", err)
	}

	// Parse YAML
	var resource PaddockResource
	if err := yaml.Unmarshal(data, &resource); err != nil {
		return fmt.Errorf("failed to parse YAML: %v", err)
	}

	c := newAPIClient(cmd)

	// Apply resource based on kind
	switch resource.Kind {
	case "PostgresInstance":
		return applyInstance(c, &resource)
	default:
		return fmt.Errorf("unsupported resource kind: %s", resource.Kind)
	}
}

func applyInstance(c *apiClient, resource *PaddockResource) error {
	name := resource.Metadata.Name
	if name == "" {
		return fmt.Errorf("metadata.name is required")
	}
	password := getString(resource.Spec, "password", "")
	if password == "" {
		return fmt.Errorf("instance password is required")
	}

	// Instances are immutable once provisioned, so apply skips existing
	// ones instead of updating.
	var existing types.Instance
	if err := c.get("/api/instances/"+name, &existing); err == nil {
		fmt.Printf("Instance already exists: %s (state: %s, skipping)\n", name, existing.State)
		return nil
	}

	fmt.Printf("Creating instance: %s\n", name)

	req := api.CreateInstanceRequest{
		Name:            name,
		Password:        password,
		PostgresVersion: getString(resource.Spec, "version", ""),
		StorageSizeGB:   getInt(resource.Spec, "storageGB", 0),
		Internal:        getBool(resource.Spec, "internal", false),
		Namespace:       getString(resource.Spec, "namespace", ""),
	}

	var resp api.CreateInstanceResponse
	if err := c.post("/api/instances", req, &resp); err != nil {
		return fmt.Errorf("failed to create instance: %v", err)
	}

	fmt.Printf("✓ Instance created: %s (orchestration: %s)\n", resp.K8sName, resp.OrchestrationID)
	if resp.DNSName != "" {
		fmt.Printf("  DNS (expected): %s\n", resp.DNSName)
	}
	return nil
}

// Helper functions
func getString(m map[string]interface{}, key, defaultValue string) string {
	if v, ok := m[key]; ok {
		return fmt.Sprintf("%v", v)
	}
	return defaultValue
}

func getInt(m map[string]interface{}, key string, defaultValue int) int {
	if v, ok := m[key]; ok {
		switch val := v.(type) {
		case int:
			return val
		case float64:
			return int(val)
		}
	}
	return defaultValue
}

func getBool(m map[string]interface{}, key string, defaultValue bool) bool {
	if v, ok := m[key]; ok {
		if b, isBool := v.(bool); isBool {
			return b
		}
	}
	return defaultValue
}
