package activities

// Activity names as they appear in orchestration histories. Renaming one
// breaks replay of every in-flight instance that scheduled it, so these
// are frozen.
const (
	DeployPostgres       = "deploy-postgres"
	DeletePostgres       = "delete-postgres"
	WaitForReady         = "wait-for-ready"
	GetConnectionStrings = "get-connection-strings"
	TestConnection       = "test-connection"
	RaiseEvent           = "raise-event"

	CMSCreateInstanceRecord  = "cms-create-instance-record"
	CMSUpdateInstanceState   = "cms-update-instance-state"
	CMSFreeDNSName           = "cms-free-dns-name"
	CMSGetInstanceByK8sName  = "cms-get-instance-by-k8s-name"
	CMSGetInstanceConnection = "cms-get-instance-connection"
	CMSRecordHealthCheck     = "cms-record-health-check"
	CMSUpdateInstanceHealth  = "cms-update-instance-health"
	CMSRecordInstanceActor   = "cms-record-instance-actor"
	CMSDeleteInstanceRecord  = "cms-delete-instance-record"
)
