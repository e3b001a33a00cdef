package kube

import (
	"bytes"
	"fmt"
	"strconv"
	"text/template"

	"sigs.k8s.io/yaml"
)

// InstanceLabel is the selector label key carrying the instance name on
// every resource this package creates.
const InstanceLabel = "instance"

// ServiceName returns the Service name for an instance.
func ServiceName(instance string) string { return instance + "-svc" }

// PVCName returns the PersistentVolumeClaim name for an instance.
func PVCName(instance string) string { return instance + "-pvc" }

// DeploySpec carries the manifest template variables for one PostgreSQL
// instance.
type DeploySpec struct {
	Name            string
	Namespace       string
	Password        string
	PostgresVersion string
	StorageSizeGB   int
	UseLoadBalancer bool
	DNSLabel        string
}

// ServiceType maps the load-balancer flag onto the Kubernetes service type.
func (s DeploySpec) ServiceType() string {
	if s.UseLoadBalancer {
		return "LoadBalancer"
	}
	return "ClusterIP"
}

// PGDATA points one level below the mount so initdb does not trip over the
// volume's lost+found directory.
const pvcManifest = `
apiVersion: v1
kind: PersistentVolumeClaim
metadata:
  name: {{ .Name }}-pvc
  namespace: {{ .Namespace }}
  labels:
    app: paddock
    instance: {{ .Name }}
spec:
  accessModes:
    - ReadWriteOnce
  resources:
    requests:
      storage: {{ .StorageSizeGB }}Gi
`

const statefulSetManifest = `
apiVersion: apps/v1
kind: StatefulSet
metadata:
  name: {{ .Name }}
  namespace: {{ .Namespace }}
  labels:
    app: paddock
    instance: {{ .Name }}
spec:
  serviceName: {{ .Name }}-svc
  replicas: 1
  selector:
    matchLabels:
      instance: {{ .Name }}
  template:
    metadata:
      labels:
        app: paddock
        instance: {{ .Name }}
    spec:
      containers:
        - name: postgres
          image: postgres:{{ .PostgresVersion }}
          ports:
            - name: postgres
              containerPort: 5432
          env:
            - name: POSTGRES_PASSWORD
              value: {{ quote .Password }}
            - name: PGDATA
              value: /var/lib/postgresql/data/pgdata
          readinessProbe:
            exec:
              command: ["pg_isready", "-U", "postgres"]
            initialDelaySeconds: 5
            periodSeconds: 5
          volumeMounts:
            - name: data
              mountPath: /var/lib/postgresql/data
      volumes:
        - name: data
          persistentVolumeClaim:
            claimName: {{ .Name }}-pvc
`

const serviceManifest = `
apiVersion: v1
kind: Service
metadata:
  name: {{ .Name }}-svc
  namespace: {{ .Namespace }}
  labels:
    app: paddock
    instance: {{ .Name }}
{{- if .DNSLabel }}
  annotations:
    service.beta.kubernetes.io/azure-dns-label-name: {{ .DNSLabel }}
{{- end }}
spec:
  type: {{ .ServiceType }}
  selector:
    instance: {{ .Name }}
  ports:
    - name: postgres
      port: 5432
      targetPort: 5432
`

var manifestFuncs = template.FuncMap{
	"quote": strconv.Quote,
}

var (
	pvcTemplate         = template.Must(template.New("pvc").Funcs(manifestFuncs).Parse(pvcManifest))
	statefulSetTemplate = template.Must(template.New("statefulset").Funcs(manifestFuncs).Parse(statefulSetManifest))
	serviceTemplate     = template.Must(template.New("service").Funcs(manifestFuncs).Parse(serviceManifest))
)

// renderManifest executes a template with the spec and decodes the YAML
// into the typed object.
func renderManifest(tpl *template.Template, spec DeploySpec, out any) error {
	var buf bytes.Buffer
	if err := tpl.Execute(&buf, spec); err != nil {
		return fmt.Errorf("render %s manifest: %w", tpl.Name(), err)
	}
	if err := yaml.UnmarshalStrict(buf.Bytes(), out); err != nil {
		return fmt.Errorf("decode %s manifest: %w", tpl.Name(), err)
	}
	return nil
}
