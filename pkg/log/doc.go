/*
Package log provides structured logging for Paddock using zerolog.

The package holds one global logger, configured once at process start,
plus helpers that derive component-scoped child loggers. Every log line
is a structured event: JSON in production, pretty console output for
local development.

# Usage

Initialize once in main:

	log.Init(log.Config{
		Level:      log.InfoLevel,
		JSONOutput: true,
		Output:     os.Stdout,
	})

Derive scoped loggers:

	logger := log.WithComponent("runtime")
	logger.Info().Str("instance_id", id).Msg("Orchestration completed")

	wf := log.WithWorkflow("CreateInstance")
	act := log.WithActivity("deploy-postgres")

# Conventions

Components log under a fixed "component" field (api, server, runtime,
cms, kube) so one grep isolates a subsystem. Workflow and activity
loggers add "workflow" and "activity" fields; anything touching a
specific instance adds "instance_id". Messages are short sentences in
the imperative or past tense, with the variable parts in fields rather
than interpolated into the message.

The server daemon redirects stdout to the log file under the data
directory, which is what 'paddock server logs' reads back.
*/
package log
