package main

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/paddockdb/paddock/pkg/api"
)

var orchestrationsCmd = &cobra.Command{
	Use:   "orchestrations",
	Short: "Inspect and signal orchestrations (advanced diagnostics)",
}

var orchestrationsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List orchestrations",
	RunE: func(cmd *cobra.Command, args []string) error {
		statusFilter, _ := cmd.Flags().GetString("status")
		instanceFilter, _ := cmd.Flags().GetString("instance")
		limit, _ := cmd.Flags().GetInt("limit")

		c := newAPIClient(cmd)
		var orchestrations []api.OrchestrationSummary
		if err := c.get("/api/server/orchestrations", &orchestrations); err != nil {
			return fmt.Errorf("failed to list orchestrations: %v", err)
		}

		filtered := orchestrations[:0]
		for _, o := range orchestrations {
			if statusFilter != "" && !strings.Contains(o.Status, statusFilter) {
				continue
			}
			// Instance names are part of orchestration ids, e.g.
			// create-mydb-12345678.
			if instanceFilter != "" && !strings.Contains(o.InstanceID, instanceFilter) {
				continue
			}
			filtered = append(filtered, o)
		}
		if limit > 0 && len(filtered) > limit {
			filtered = filtered[:limit]
		}

		if instanceFilter != "" {
			fmt.Printf("Orchestrations for instance: %s\n", instanceFilter)
		} else {
			fmt.Println("Orchestrations (Advanced Diagnostics)")
		}
		if statusFilter != "" {
			fmt.Printf("Filtered by status: %s\n", statusFilter)
		}
		fmt.Println(strings.Repeat("=", 110))
		fmt.Println()
		fmt.Printf("%-35s %-25s %-10s %-10s %-20s\n",
			"ID", "TYPE", "VERSION", "STATUS", "STARTED")
		fmt.Println(strings.Repeat("-", 110))

		for _, o := range filtered {
			version := o.OrchestrationVersion
			if version == "" {
				version = "-"
			}
			fmt.Printf("%-35s %-25s %-10s %-10s %s\n",
				o.InstanceID, o.OrchestrationName, version, o.Status,
				o.CreatedAt.Format(time.RFC3339))
		}

		fmt.Println()
		if len(filtered) == 0 {
			if instanceFilter != "" {
				fmt.Printf("No orchestrations found for instance: %s\n", instanceFilter)
				fmt.Println()
				fmt.Println("Tips:")
				fmt.Println("  - Check if the instance name is correct")
				fmt.Println("  - Try listing all orchestrations without the filter")
			} else {
				fmt.Println("No orchestrations found")
			}
			return nil
		}
		fmt.Printf("%d orchestration(s) found\n", len(filtered))
		fmt.Println()
		fmt.Println("Use 'paddock orchestrations get <ID>' for details")
		return nil
	},
}

var orchestrationsGetCmd = &cobra.Command{
	Use:   "get ID",
	Short: "Get orchestration details",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		showHistory, _ := cmd.Flags().GetBool("history")
		id := args[0]

		c := newAPIClient(cmd)
		var orch api.OrchestrationDetail
		if err := c.get("/api/server/orchestrations/"+id, &orch); err != nil {
			return fmt.Errorf("failed to get orchestration: %v", err)
		}

		fmt.Printf("Orchestration: %s\n", id)
		fmt.Println(strings.Repeat("=", 80))
		fmt.Println()
		fmt.Printf("Status:          %s\n", orch.Status)
		fmt.Printf("Type:            %s\n", orch.OrchestrationName)
		if orch.OrchestrationVersion != "" {
			fmt.Printf("Version:         %s\n", orch.OrchestrationVersion)
		}
		fmt.Printf("Execution:       #%d\n", orch.CurrentExecutionID)
		if orch.Error != "" {
			fmt.Printf("Error:           %s\n", orch.Error)
		}
		fmt.Println()
		fmt.Println("Timeline:")
		fmt.Printf("  Created:       %s\n", orch.CreatedAt.Format(time.RFC3339))
		fmt.Printf("  Updated:       %s\n", orch.UpdatedAt.Format(time.RFC3339))
		fmt.Println()

		if len(orch.Output) > 0 && string(orch.Output) != "null" {
			fmt.Println("Output:")
			var pretty json.RawMessage = orch.Output
			if data, err := json.MarshalIndent(pretty, "", "  "); err == nil {
				fmt.Println(string(data))
			} else {
				fmt.Println(string(orch.Output))
			}
			fmt.Println()
		}

		totalEvents := 0
		for _, exec := range orch.History {
			totalEvents += len(exec.Events)
		}
		if showHistory {
			if totalEvents == 0 {
				fmt.Println("No execution history available")
			} else {
				fmt.Printf("Execution History (%d executions, %d events):\n", len(orch.History), totalEvents)
				fmt.Println(strings.Repeat("-", 80))
				fmt.Println()
				if err := printJSON(orch.History); err != nil {
					return err
				}
			}
			fmt.Println()
		} else if totalEvents > 0 {
			fmt.Printf("Use '--history' to see %d execution events\n", totalEvents)
			fmt.Println()
		}

		fmt.Println("Use 'paddock instance get <name>' to check instance status")
		return nil
	},
}

var orchestrationsRaiseEventCmd = &cobra.Command{
	Use:   "raise-event ID EVENT",
	Short: "Raise an external event against a running orchestration",
	Long: `Raise an external event against a running orchestration.

Events unblock workflows waiting on them, for example the instance
actor's shutdown wait:

  paddock orchestrations raise-event actor-mydb-a1b2c3d4 InstanceDeleted`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		data, _ := cmd.Flags().GetString("data")
		id, event := args[0], args[1]

		if data != "" && !json.Valid([]byte(data)) {
			return fmt.Errorf("--data must be valid JSON")
		}

		c := newAPIClient(cmd)
		req := api.RaiseEventRequest{EventName: event}
		if data != "" {
			req.EventData = json.RawMessage(data)
		}

		var resp api.RaiseEventResponse
		if err := c.post("/api/server/orchestrations/"+id+"/raise-event", req, &resp); err != nil {
			return fmt.Errorf("failed to raise event: %v", err)
		}

		fmt.Println("✓ Event raised")
		fmt.Printf("  Orchestration: %s\n", resp.InstanceID)
		fmt.Printf("  Event:         %s\n", resp.EventName)
		return nil
	},
}

func init() {
	orchestrationsCmd.AddCommand(orchestrationsListCmd)
	orchestrationsCmd.AddCommand(orchestrationsGetCmd)
	orchestrationsCmd.AddCommand(orchestrationsRaiseEventCmd)

	orchestrationsListCmd.Flags().String("status", "", "Filter by status (Running, Completed, Failed)")
	orchestrationsListCmd.Flags().String("instance", "", "Filter by instance name")
	orchestrationsListCmd.Flags().IntP("limit", "l", 20, "Limit number of results")

	orchestrationsGetCmd.Flags().Bool("history", false, "Show execution history")

	orchestrationsRaiseEventCmd.Flags().String("data", "", "Event payload as JSON (default {})")
}
