package activities

import (
	"encoding/json"
	"fmt"

	"github.com/paddockdb/paddock/pkg/dnsname"
	"github.com/paddockdb/paddock/pkg/kube"
	"github.com/paddockdb/paddock/pkg/runtime"
	"github.com/paddockdb/paddock/pkg/workflow"
)

// deployPostgres creates the PVC, StatefulSet and Service for an
// instance. An existing StatefulSet means an earlier attempt already got
// here, so the handler reports success without touching anything.
func (d *Deps) deployPostgres(ctx *runtime.ActivityContext, input json.RawMessage) (json.RawMessage, error) {
	var in DeployPostgresInput
	if err := json.Unmarshal(input, &in); err != nil {
		return nil, workflow.Fatalf("decode deploy-postgres input: %v", err)
	}
	if in.InstanceName == "" || in.Namespace == "" {
		return nil, workflow.Fatalf("deploy-postgres requires instance_name and namespace")
	}

	exists, err := d.Kube.StatefulSetExists(ctx, in.Namespace, in.InstanceName)
	if err != nil {
		return nil, fmt.Errorf("check existing statefulset: %w", err)
	}
	if exists {
		ctx.Logger.Info().
			Str("instance", in.InstanceName).
			Msg("StatefulSet already exists, skipping deploy")
		return marshal(DeployPostgresOutput{AlreadyDeployed: true})
	}

	err = d.Kube.Deploy(ctx, kube.DeploySpec{
		Name:            in.InstanceName,
		Namespace:       in.Namespace,
		Password:        in.Password,
		PostgresVersion: in.PostgresVersion,
		StorageSizeGB:   in.StorageSizeGB,
		UseLoadBalancer: in.UseLoadBalancer,
		DNSLabel:        in.DNSLabel,
	})
	if err != nil {
		return nil, fmt.Errorf("deploy postgres resources: %w", err)
	}
	return marshal(DeployPostgresOutput{})
}

// deletePostgres removes the instance's resources in Service,
// StatefulSet, PVC order, pausing before the PVC so the kubelet can
// release the volume. Missing resources are fine; the output reports
// whether anything actually existed.
func (d *Deps) deletePostgres(ctx *runtime.ActivityContext, input json.RawMessage) (json.RawMessage, error) {
	var in DeletePostgresInput
	if err := json.Unmarshal(input, &in); err != nil {
		return nil, workflow.Fatalf("decode delete-postgres input: %v", err)
	}
	if in.InstanceName == "" || in.Namespace == "" {
		return nil, workflow.Fatalf("delete-postgres requires instance_name and namespace")
	}

	svcExisted, err := d.Kube.DeleteService(ctx, in.Namespace, in.InstanceName)
	if err != nil {
		return nil, fmt.Errorf("delete service: %w", err)
	}
	stsExisted, err := d.Kube.DeleteStatefulSet(ctx, in.Namespace, in.InstanceName)
	if err != nil {
		return nil, fmt.Errorf("delete statefulset: %w", err)
	}
	if err := sleep(ctx, d.DeletePause); err != nil {
		return nil, err
	}
	pvcExisted, err := d.Kube.DeletePVC(ctx, in.Namespace, in.InstanceName)
	if err != nil {
		return nil, fmt.Errorf("delete pvc: %w", err)
	}

	deleted := svcExisted || stsExisted || pvcExisted
	ctx.Logger.Info().
		Str("instance", in.InstanceName).
		Bool("service", svcExisted).
		Bool("statefulset", stsExisted).
		Bool("pvc", pvcExisted).
		Msg("Deleted instance resources")
	return marshal(DeletePostgresOutput{ResourcesDeleted: deleted})
}

// waitForReady reports one readiness observation of the instance pod.
// The create workflow owns the retry loop, so this never blocks.
func (d *Deps) waitForReady(ctx *runtime.ActivityContext, input json.RawMessage) (json.RawMessage, error) {
	var in WaitForReadyInput
	if err := json.Unmarshal(input, &in); err != nil {
		return nil, workflow.Fatalf("decode wait-for-ready input: %v", err)
	}
	phase, ready, err := d.Kube.PodStatus(ctx, in.Namespace, in.InstanceName)
	if err != nil {
		return nil, fmt.Errorf("read pod status: %w", err)
	}
	return marshal(WaitForReadyOutput{Ready: ready, Phase: phase})
}

// getConnectionStrings builds the instance's connection strings. With a
// LoadBalancer service it waits here, in real time, for the ingress IP;
// cluster-internal services address the service DNS name instead.
func (d *Deps) getConnectionStrings(ctx *runtime.ActivityContext, input json.RawMessage) (json.RawMessage, error) {
	var in GetConnectionStringsInput
	if err := json.Unmarshal(input, &in); err != nil {
		return nil, workflow.Fatalf("decode get-connection-strings input: %v", err)
	}
	if in.InstanceName == "" || in.Namespace == "" {
		return nil, workflow.Fatalf("get-connection-strings requires instance_name and namespace")
	}

	var out GetConnectionStringsOutput
	host := fmt.Sprintf("%s.%s.svc.cluster.local", kube.ServiceName(in.InstanceName), in.Namespace)
	if in.UseLoadBalancer {
		ip, err := d.waitForExternalIP(ctx, in.Namespace, in.InstanceName)
		if err != nil {
			return nil, err
		}
		out.ExternalIP = ip
		host = ip
	}
	out.IPConnectionString = connString(in.Password, host)

	if in.UseLoadBalancer && in.DNSLabel != "" {
		region, err := d.Kube.Region(ctx)
		if err != nil {
			ctx.Logger.Warn().Err(err).Msg("Region lookup failed, using default region")
			region = dnsname.DefaultRegion
		}
		out.DNSConnectionString = connString(in.Password, dnsname.FQDN(in.DNSLabel, region))
	}
	return marshal(out)
}

func (d *Deps) waitForExternalIP(ctx *runtime.ActivityContext, namespace, instance string) (string, error) {
	for attempt := 1; attempt <= d.LBPollAttempts; attempt++ {
		ip, err := d.Kube.ServiceExternalIP(ctx, namespace, instance)
		if err != nil {
			return "", fmt.Errorf("read service external ip: %w", err)
		}
		if ip != "" {
			ctx.Logger.Info().Str("instance", instance).Str("external_ip", ip).Msg("LoadBalancer IP assigned")
			return ip, nil
		}
		if attempt < d.LBPollAttempts {
			if err := sleep(ctx, d.LBPollInterval); err != nil {
				return "", err
			}
		}
	}
	return "", fmt.Errorf("loadbalancer ip not assigned after %d attempts", d.LBPollAttempts)
}

func connString(password, host string) string {
	return fmt.Sprintf("postgresql://postgres:%s@%s:5432/postgres", password, host)
}
