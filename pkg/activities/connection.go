package activities

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/paddockdb/paddock/pkg/probe"
	"github.com/paddockdb/paddock/pkg/runtime"
	"github.com/paddockdb/paddock/pkg/workflow"
)

// InjectTestConnectionFailureEnv forces every test-connection attempt to
// fail, which exercises the create workflow's retry and cleanup paths on
// a live system.
const InjectTestConnectionFailureEnv = "PADDOCK_INJECT_TEST_CONNECTION_FAILURE"

// testConnection opens a real SQL session against the new instance and
// reads its server version. The DNS connection string is preferred so
// the public name is what gets proven, not just the raw IP.
func (d *Deps) testConnection(ctx *runtime.ActivityContext, input json.RawMessage) (json.RawMessage, error) {
	var in TestConnectionInput
	if err := json.Unmarshal(input, &in); err != nil {
		return nil, workflow.Fatalf("decode test-connection input: %v", err)
	}

	if v := os.Getenv(InjectTestConnectionFailureEnv); v == "true" || v == "1" {
		ctx.Logger.Warn().Str("instance", in.InstanceName).Msg("Injected test-connection failure")
		return nil, errors.New("injected test-connection failure")
	}

	target, via := in.DNSConnectionString, "dns"
	if target == "" {
		target, via = in.IPConnectionString, "ip"
	}
	if target == "" {
		return nil, workflow.Fatalf("test-connection requires a connection string")
	}

	res := probe.NewPostgresChecker(target).WithTimeout(d.ProbeTimeout).Check(ctx)
	if !res.Healthy {
		return nil, fmt.Errorf("connection test via %s failed: %s", via, res.Message)
	}

	ctx.Logger.Info().
		Str("instance", in.InstanceName).
		Str("via", via).
		Str("version", res.Version).
		Msg("Connection test succeeded")
	return marshal(TestConnectionOutput{Target: via, Version: res.Version})
}
