package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/paddockdb/paddock/pkg/api"
	"github.com/paddockdb/paddock/pkg/types"
)

var instanceCmd = &cobra.Command{
	Use:   "instance",
	Short: "Manage PostgreSQL instances",
}

var instanceCreateCmd = &cobra.Command{
	Use:   "create NAME",
	Short: "Create a new PostgreSQL instance",
	Long: `Create a new PostgreSQL instance.

The name becomes the public DNS label: 'mydb' is reachable at
mydb.westus3.cloudapp.azure.com once provisioning finishes. Creation
runs in the background; use --wait to block until it completes.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		password, _ := cmd.Flags().GetString("password")
		version, _ := cmd.Flags().GetString("pg-version")
		storage, _ := cmd.Flags().GetInt("storage")
		internal, _ := cmd.Flags().GetBool("internal")
		namespace, _ := cmd.Flags().GetString("namespace")
		wait, _ := cmd.Flags().GetBool("wait")

		c := newAPIClient(cmd)
		req := api.CreateInstanceRequest{
			Name:            args[0],
			Password:        password,
			PostgresVersion: version,
			StorageSizeGB:   storage,
			Internal:        internal,
			Namespace:       namespace,
		}

		var resp api.CreateInstanceResponse
		if err := c.post("/api/instances", req, &resp); err != nil {
			return fmt.Errorf("failed to create instance: %v", err)
		}

		fmt.Println("✓ Instance creation started")
		fmt.Println()
		fmt.Printf("  Name:           %s\n", resp.InstanceName)
		fmt.Printf("  K8s Name:       %s\n", resp.K8sName)
		if resp.DNSName != "" {
			fmt.Printf("  DNS (expected): %s\n", resp.DNSName)
		}
		fmt.Println()

		if !wait {
			fmt.Println("The instance is being created in the background.")
			fmt.Println()
			fmt.Println("Check status with:")
			fmt.Printf("  paddock instance get %s\n", resp.InstanceName)
			fmt.Println()
			fmt.Println("For advanced diagnostics:")
			fmt.Printf("  paddock orchestrations get %s\n", resp.OrchestrationID)
			return nil
		}

		fmt.Println("Waiting for provisioning to finish...")
		if err := waitForOrchestration(c, resp.OrchestrationID, 10*time.Minute); err != nil {
			return err
		}

		var inst types.Instance
		if err := c.get("/api/instances/"+resp.K8sName, &inst); err != nil {
			return fmt.Errorf("instance created but lookup failed: %v", err)
		}
		fmt.Println()
		fmt.Println("✓ Instance is ready")
		if inst.DNSConnectionString != nil {
			fmt.Printf("  Connect: %s\n", *inst.DNSConnectionString)
		} else if inst.IPConnectionString != nil {
			fmt.Printf("  Connect: %s\n", *inst.IPConnectionString)
		}
		return nil
	},
}

// waitForOrchestration polls until the orchestration reaches a terminal
// status.
func waitForOrchestration(c *apiClient, id string, timeout time.Duration) error {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		var detail api.OrchestrationDetail
		if err := c.get("/api/server/orchestrations/"+id+"?history_limit=0", &detail); err != nil {
			return fmt.Errorf("failed to poll orchestration: %v", err)
		}
		switch detail.Status {
		case "Completed":
			return nil
		case "Failed":
			if detail.Error != "" {
				return fmt.Errorf("provisioning failed: %s", detail.Error)
			}
			return fmt.Errorf("provisioning failed, see 'paddock orchestrations get %s'", id)
		}
		time.Sleep(2 * time.Second)
	}
	return fmt.Errorf("timed out after %s waiting for %s", timeout, id)
}

var instanceDeleteCmd = &cobra.Command{
	Use:   "delete NAME",
	Short: "Delete a PostgreSQL instance",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c := newAPIClient(cmd)

		var resp api.DeleteInstanceResponse
		if err := c.delete("/api/instances/"+args[0], &resp); err != nil {
			return fmt.Errorf("failed to delete instance: %v", err)
		}

		fmt.Println("✓ Instance deletion started")
		fmt.Println()
		fmt.Printf("  Name:     %s\n", resp.InstanceName)
		fmt.Printf("  K8s Name: %s\n", resp.K8sName)
		fmt.Println()
		fmt.Println("The instance is being deleted in the background.")
		fmt.Println()
		fmt.Println("For advanced diagnostics:")
		fmt.Printf("  paddock orchestrations get %s\n", resp.OrchestrationID)
		return nil
	},
}

var instanceListCmd = &cobra.Command{
	Use:   "list",
	Short: "List all PostgreSQL instances",
	RunE: func(cmd *cobra.Command, args []string) error {
		output, _ := cmd.Flags().GetString("output")

		c := newAPIClient(cmd)
		var instances []api.InstanceSummary
		if err := c.get("/api/instances", &instances); err != nil {
			return fmt.Errorf("failed to list instances: %v", err)
		}

		if output == "json" {
			return printJSON(instances)
		}

		fmt.Printf("%-15s %-35s %-10s %-10s %-8s %-10s\n",
			"NAME", "DNS NAME", "STATE", "HEALTH", "VERSION", "STORAGE")
		fmt.Println(strings.Repeat("-", 95))

		for _, inst := range instances {
			fmt.Printf("%-15s %-35s %-10s %-10s %-8s %dGB\n",
				inst.UserName, strOr(inst.DNSName, "-"), inst.State,
				inst.Health, inst.PostgresVersion, inst.StorageSizeGB)
		}

		fmt.Println()
		fmt.Printf("%d instance(s) found\n", len(instances))
		return nil
	},
}

var instanceGetCmd = &cobra.Command{
	Use:   "get NAME",
	Short: "Get details of a specific instance",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		output, _ := cmd.Flags().GetString("output")

		c := newAPIClient(cmd)
		var inst types.Instance
		if err := c.get("/api/instances/"+args[0], &inst); err != nil {
			return fmt.Errorf("failed to get instance: %v", err)
		}

		if output == "json" {
			return printJSON(inst)
		}

		fmt.Printf("Instance: %s\n", args[0])
		fmt.Println(strings.Repeat("=", 60))
		fmt.Println()
		fmt.Println("Status:")
		fmt.Printf("  State:              %s\n", inst.State)
		fmt.Printf("  Health:             %s\n", inst.Health)
		fmt.Printf("  PostgreSQL Version: %s\n", inst.PostgresVersion)
		if inst.Message != nil {
			fmt.Printf("  Message:            %s\n", *inst.Message)
		}
		fmt.Println()
		fmt.Println("Identity:")
		fmt.Printf("  User Name:          %s\n", inst.UserName)
		fmt.Printf("  K8s Name:           %s\n", inst.K8sName)
		fmt.Printf("  DNS Name:           %s\n", strOr(inst.DNSName, "-"))
		fmt.Println()
		fmt.Println("Configuration:")
		fmt.Printf("  Storage:            %d GB\n", inst.StorageSizeGB)
		fmt.Printf("  Load Balancer:      %t\n", inst.UseLoadBalancer)
		fmt.Printf("  Namespace:          %s\n", inst.Namespace)
		fmt.Println()
		fmt.Println("Network:")
		if inst.DNSConnectionString != nil {
			fmt.Printf("  DNS Connection:     %s\n", *inst.DNSConnectionString)
		}
		if inst.IPConnectionString != nil {
			fmt.Printf("  IP Connection:      %s\n", *inst.IPConnectionString)
		}
		if inst.ExternalIP != nil {
			fmt.Printf("  External IP:        %s\n", *inst.ExternalIP)
		}
		fmt.Println()
		fmt.Println("Timestamps:")
		fmt.Printf("  Created:            %s\n", inst.CreatedAt.Format(time.RFC3339))
		fmt.Printf("  Updated:            %s\n", inst.UpdatedAt.Format(time.RFC3339))
		return nil
	},
}

func init() {
	instanceCmd.AddCommand(instanceCreateCmd)
	instanceCmd.AddCommand(instanceDeleteCmd)
	instanceCmd.AddCommand(instanceListCmd)
	instanceCmd.AddCommand(instanceGetCmd)

	instanceCreateCmd.Flags().StringP("password", "p", "", "PostgreSQL password (required, min 8 characters)")
	instanceCreateCmd.Flags().String("pg-version", "", "PostgreSQL version (server default: 18)")
	instanceCreateCmd.Flags().Int("storage", 0, "Storage size in GB (server default: 10)")
	instanceCreateCmd.Flags().Bool("internal", false, "Use ClusterIP instead of LoadBalancer (no public DNS)")
	instanceCreateCmd.Flags().String("namespace", "", "Kubernetes namespace (server default: paddock)")
	instanceCreateCmd.Flags().Bool("wait", false, "Wait until provisioning completes")
	instanceCreateCmd.MarkFlagRequired("password")

	instanceListCmd.Flags().StringP("output", "o", "table", "Output format (table or json)")
	instanceGetCmd.Flags().StringP("output", "o", "table", "Output format (table or json)")
}
