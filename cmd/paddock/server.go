package main

import (
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/paddockdb/paddock/pkg/config"
	"github.com/paddockdb/paddock/pkg/log"
	"github.com/paddockdb/paddock/pkg/server"
)

var serverCmd = &cobra.Command{
	Use:   "server",
	Short: "Manage the Paddock control plane server",
}

var serverRunCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the server in the foreground",
	Long: `Run the control plane in the foreground: the HTTP API, the
orchestration runtime, and the activity workers, all in one process.

This is the mode 'server start' launches in the background. Use it
directly under a process supervisor or in a container.`,
	RunE: runServer,
}

var serverStartCmd = &cobra.Command{
	Use:   "start",
	Short: "Start the server in the background",
	RunE: func(cmd *cobra.Command, args []string) error {
		configPath, _ := cmd.Flags().GetString("config")
		foreground, _ := cmd.Flags().GetBool("foreground")

		if foreground {
			return runServer(cmd, args)
		}

		cfg, err := config.Load(configPath)
		if err != nil {
			return err
		}

		d := server.NewDaemon(cfg.Runtime.DataDir)
		if pid, _ := d.ReadPID(); server.Alive(pid) {
			fmt.Println("✓ Server is already running")
			fmt.Printf("  PID: %d\n", pid)
			fmt.Println("  Use 'paddock server status' for details")
			return nil
		}

		fmt.Println("Starting Paddock server in background...")

		var extraArgs []string
		if configPath != "" {
			extraArgs = append(extraArgs, "--config", configPath)
		}
		pid, err := d.Start(extraArgs...)
		if err != nil {
			return err
		}

		fmt.Println("✓ Server started")
		fmt.Printf("  PID:  %d\n", pid)
		fmt.Printf("  API:  http://localhost:%d\n", cfg.Server.Port)
		fmt.Printf("  Logs: %s\n", server.LogPath(cfg.Runtime.DataDir))
		fmt.Println()
		fmt.Println("Use 'paddock server stop' to stop the server")
		fmt.Println("Use 'paddock server logs -f' to follow logs")
		return nil
	},
}

var serverStopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Stop the background server",
	RunE: func(cmd *cobra.Command, args []string) error {
		dataDir, _ := cmd.Flags().GetString("data-dir")

		d := server.NewDaemon(dataDir)
		pid, _ := d.ReadPID()
		if pid != 0 {
			fmt.Printf("Stopping Paddock server (PID: %d)...\n", pid)
		}

		err := d.Stop(30 * time.Second)
		if err == server.ErrNotRunning {
			fmt.Println("✗ Server is not running")
			return nil
		}
		if err != nil {
			return err
		}
		fmt.Println("✓ Server stopped")
		return nil
	},
}

var serverStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Check whether the server is running",
	RunE: func(cmd *cobra.Command, args []string) error {
		dataDir, _ := cmd.Flags().GetString("data-dir")
		serverURL, _ := cmd.Flags().GetString("server")

		d := server.NewDaemon(dataDir)
		st := d.Status(serverURL + "/health")

		if !st.Running {
			if st.PID != 0 {
				fmt.Println("✗ Server is not running (stale PID file)")
				os.Remove(server.PIDPath(dataDir))
			} else {
				fmt.Println("✗ Server is not running")
			}
			return nil
		}

		fmt.Println("✓ Server is running")
		fmt.Printf("  PID: %d\n", st.PID)
		fmt.Printf("  API: %s\n", serverURL)
		if st.Healthy {
			fmt.Println("  Status: healthy")
			fmt.Printf("  Version: %s\n", st.Version)
		} else {
			fmt.Println("  Status: not responding")
		}
		return nil
	},
}

var serverLogsCmd = &cobra.Command{
	Use:   "logs",
	Short: "View server logs",
	RunE: func(cmd *cobra.Command, args []string) error {
		dataDir, _ := cmd.Flags().GetString("data-dir")
		follow, _ := cmd.Flags().GetBool("follow")
		tail, _ := cmd.Flags().GetInt("tail")
		filter, _ := cmd.Flags().GetString("filter")

		d := server.NewDaemon(dataDir)

		lines, err := d.TailLogs(tail, filter)
		if err != nil {
			return err
		}
		if lines == nil && !follow {
			fmt.Printf("✗ No log file found at: %s\n", server.LogPath(dataDir))
			fmt.Println("  Server may not have been started yet")
			return nil
		}
		for _, line := range lines {
			fmt.Println(line)
		}

		if !follow {
			return nil
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		return d.FollowLogs(ctx, os.Stdout)
	},
}

func runServer(cmd *cobra.Command, _ []string) error {
	configPath, _ := cmd.Flags().GetString("config")

	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	log.Init(log.Config{
		Level:      log.Level(cfg.Logging.Level),
		JSONOutput: cfg.Logging.JSON,
		Output:     os.Stdout,
	})

	srv, err := server.New(cfg, Version)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	return srv.Run(ctx)
}

// defaultDataDir matches the runtime.data_dir config default.
func defaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".paddock"
	}
	return filepath.Join(home, ".paddock")
}

func init() {
	serverCmd.AddCommand(serverRunCmd)
	serverCmd.AddCommand(serverStartCmd)
	serverCmd.AddCommand(serverStopCmd)
	serverCmd.AddCommand(serverStatusCmd)
	serverCmd.AddCommand(serverLogsCmd)

	serverRunCmd.Flags().String("config", "", "Path to config file (YAML)")
	serverStartCmd.Flags().String("config", "", "Path to config file (YAML)")
	serverStartCmd.Flags().BoolP("foreground", "f", false, "Run in the foreground instead")

	for _, c := range []*cobra.Command{serverStopCmd, serverStatusCmd, serverLogsCmd} {
		c.Flags().String("data-dir", defaultDataDir(), "Data directory holding server.pid and server.log")
	}

	serverLogsCmd.Flags().BoolP("follow", "f", false, "Follow log output")
	serverLogsCmd.Flags().IntP("tail", "n", 100, "Number of lines to show")
	serverLogsCmd.Flags().String("filter", "", "Only show lines containing this text (e.g. an orchestration id)")
}
