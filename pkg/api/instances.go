package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/paddockdb/paddock/pkg/cms"
	"github.com/paddockdb/paddock/pkg/dnsname"
	"github.com/paddockdb/paddock/pkg/history"
	"github.com/paddockdb/paddock/pkg/orchestrations"
	"github.com/paddockdb/paddock/pkg/types"
)

// CreateInstanceRequest is the POST /api/instances body.
type CreateInstanceRequest struct {
	Name            string `json:"name" validate:"required,instance_name"`
	Password        string `json:"password" validate:"required,min=8"`
	PostgresVersion string `json:"postgres_version"`
	StorageSizeGB   int    `json:"storage_size_gb" validate:"omitempty,min=1,max=1024"`
	Internal        bool   `json:"internal"`
	Namespace       string `json:"namespace"`
}

// CreateInstanceResponse acknowledges an accepted create. DNSName is the
// address the instance will be reachable at once provisioning finishes;
// empty for internal instances.
type CreateInstanceResponse struct {
	InstanceName    string `json:"instance_name"`
	K8sName         string `json:"k8s_name"`
	OrchestrationID string `json:"orchestration_id"`
	DNSName         string `json:"dns_name,omitempty"`
}

func (s *Server) applyCreateDefaults(req *CreateInstanceRequest) {
	if req.PostgresVersion == "" {
		req.PostgresVersion = types.DefaultPostgresVersion
	}
	if req.StorageSizeGB == 0 {
		req.StorageSizeGB = types.DefaultStorageSizeGB
	}
	if req.Namespace == "" {
		req.Namespace = s.cfg.Namespace
	}
}

// newCreateInput derives the Kubernetes name, orchestration id, and DNS
// label for one instance and assembles the workflow input.
func newCreateInput(req CreateInstanceRequest) (types.CreateInstanceInput, CreateInstanceResponse) {
	label := dnsname.Sanitize(req.Name)
	k8sName := dnsname.Unique(label)
	orchID := orchestrations.CreateID(k8sName)

	input := types.CreateInstanceInput{
		UserName:        req.Name,
		K8sName:         k8sName,
		Password:        req.Password,
		PostgresVersion: req.PostgresVersion,
		StorageSizeGB:   req.StorageSizeGB,
		UseLoadBalancer: !req.Internal,
		Namespace:       req.Namespace,
		OrchestrationID: orchID,
	}
	resp := CreateInstanceResponse{
		InstanceName:    req.Name,
		K8sName:         k8sName,
		OrchestrationID: orchID,
	}
	if !req.Internal {
		input.DNSLabel = label
		resp.DNSName = dnsname.FQDN(label, dnsname.DefaultRegion)
	}
	return input, resp
}

func (s *Server) handleCreateInstance(w http.ResponseWriter, r *http.Request) {
	var req CreateInstanceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, codeBadRequest, "invalid JSON body: "+err.Error())
		return
	}
	s.applyCreateDefaults(&req)
	if err := s.validate.Struct(req); err != nil {
		s.writeError(w, http.StatusBadRequest, codeBadRequest, validationMessage(err))
		return
	}

	// Surface DNS collisions before any resources move. The create
	// workflow re-checks when it reserves the catalog row, so a miss
	// here is caught there.
	if !req.Internal {
		label := dnsname.Sanitize(req.Name)
		owner, err := s.catalog.GetDNSOwner(r.Context(), label)
		switch {
		case err == nil:
			s.writeError(w, http.StatusConflict, codeConflict, fmt.Sprintf(
				"DNS name '%s' is already reserved by instance '%s' (user: %s)",
				label, owner.K8sName, owner.UserName))
			return
		case !errors.Is(err, cms.ErrNotFound):
			s.writeError(w, http.StatusInternalServerError, codeInternal,
				"failed to check DNS availability: "+err.Error())
			return
		}
	}

	input, resp := newCreateInput(req)
	if err := s.orch.StartOrchestration(resp.OrchestrationID, orchestrations.CreateInstance, input); err != nil {
		if errors.Is(err, history.ErrInstanceExists) {
			s.writeError(w, http.StatusConflict, codeConflict, fmt.Sprintf(
				"orchestration '%s' already exists", resp.OrchestrationID))
			return
		}
		s.writeError(w, http.StatusInternalServerError, codeInternal,
			"failed to start create orchestration: "+err.Error())
		return
	}
	s.writeJSON(w, http.StatusAccepted, resp)
}

// BulkCreateRequest is the POST /api/instances/bulk body. Instances are
// named base_name1..base_nameN and share the remaining settings.
type BulkCreateRequest struct {
	BaseName        string `json:"base_name" validate:"required,instance_name"`
	Count           int    `json:"count" validate:"required,min=1,max=50"`
	Password        string `json:"password" validate:"required,min=8"`
	PostgresVersion string `json:"postgres_version"`
	StorageSizeGB   int    `json:"storage_size_gb" validate:"omitempty,min=1,max=1024"`
	Internal        bool   `json:"internal"`
	Namespace       string `json:"namespace"`
}

// BulkCreateResponse lists the accepted creates.
type BulkCreateResponse struct {
	Count     int                      `json:"count"`
	Instances []CreateInstanceResponse `json:"instances"`
}

func (s *Server) handleBulkCreateInstances(w http.ResponseWriter, r *http.Request) {
	var req BulkCreateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, codeBadRequest, "invalid JSON body: "+err.Error())
		return
	}
	if req.PostgresVersion == "" {
		req.PostgresVersion = types.DefaultPostgresVersion
	}
	if req.StorageSizeGB == 0 {
		req.StorageSizeGB = types.DefaultStorageSizeGB
	}
	if req.Namespace == "" {
		req.Namespace = s.cfg.Namespace
	}
	if err := s.validate.Struct(req); err != nil {
		s.writeError(w, http.StatusBadRequest, codeBadRequest, validationMessage(err))
		return
	}

	created := make([]CreateInstanceResponse, 0, req.Count)
	for i := 1; i <= req.Count; i++ {
		input, resp := newCreateInput(CreateInstanceRequest{
			Name:            fmt.Sprintf("%s%d", req.BaseName, i),
			Password:        req.Password,
			PostgresVersion: req.PostgresVersion,
			StorageSizeGB:   req.StorageSizeGB,
			Internal:        req.Internal,
			Namespace:       req.Namespace,
		})
		if err := s.orch.StartOrchestration(resp.OrchestrationID, orchestrations.CreateInstance, input); err != nil {
			s.writeError(w, http.StatusInternalServerError, codeInternal, fmt.Sprintf(
				"failed to start orchestration %d of %d: %v", i, req.Count, err))
			return
		}
		created = append(created, resp)
	}
	s.writeJSON(w, http.StatusAccepted, BulkCreateResponse{Count: len(created), Instances: created})
}

// InstanceSummary is the list projection of an instance. Connection
// strings are omitted, they embed the instance password.
type InstanceSummary struct {
	UserName        string              `json:"user_name"`
	K8sName         string              `json:"k8s_name"`
	DNSName         *string             `json:"dns_name,omitempty"`
	State           types.InstanceState `json:"state"`
	Health          types.HealthStatus  `json:"health_status"`
	Message         *string             `json:"message,omitempty"`
	PostgresVersion string              `json:"postgres_version"`
	StorageSizeGB   int                 `json:"storage_size_gb"`
	CreatedAt       time.Time           `json:"created_at"`
}

func (s *Server) handleListInstances(w http.ResponseWriter, r *http.Request) {
	instances, err := s.catalog.ListInstances(r.Context())
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, codeInternal, "failed to list instances: "+err.Error())
		return
	}
	summaries := make([]InstanceSummary, 0, len(instances))
	for _, inst := range instances {
		summaries = append(summaries, InstanceSummary{
			UserName:        inst.UserName,
			K8sName:         inst.K8sName,
			DNSName:         inst.DNSName,
			State:           inst.State,
			Health:          inst.Health,
			Message:         inst.Message,
			PostgresVersion: inst.PostgresVersion,
			StorageSizeGB:   inst.StorageSizeGB,
			CreatedAt:       inst.CreatedAt,
		})
	}
	s.writeJSON(w, http.StatusOK, summaries)
}

func (s *Server) handleGetInstance(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	inst, err := s.catalog.FindInstance(r.Context(), name)
	switch {
	case errors.Is(err, cms.ErrNotFound):
		s.writeError(w, http.StatusNotFound, codeNotFound, fmt.Sprintf("instance '%s' not found", name))
		return
	case err != nil:
		s.writeError(w, http.StatusInternalServerError, codeInternal, "failed to look up instance: "+err.Error())
		return
	}
	s.writeJSON(w, http.StatusOK, inst)
}

// DeleteInstanceResponse acknowledges an accepted delete.
type DeleteInstanceResponse struct {
	InstanceName    string `json:"instance_name"`
	K8sName         string `json:"k8s_name"`
	OrchestrationID string `json:"orchestration_id"`
}

// startDelete kicks off a delete orchestration for a resolved instance.
// The id carries a timestamp so a later re-delete of a recreated name
// cannot collide with this one's history.
func (s *Server) startDelete(name string, inst *types.Instance) (DeleteInstanceResponse, error) {
	orchID := orchestrations.DeleteID(inst.K8sName, time.Now())
	input := types.DeleteInstanceInput{
		Name:            inst.K8sName,
		Namespace:       inst.Namespace,
		OrchestrationID: orchID,
	}
	if err := s.orch.StartOrchestration(orchID, orchestrations.DeleteInstance, input); err != nil {
		return DeleteInstanceResponse{}, err
	}
	return DeleteInstanceResponse{InstanceName: name, K8sName: inst.K8sName, OrchestrationID: orchID}, nil
}

func (s *Server) handleDeleteInstance(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	inst, err := s.catalog.FindInstance(r.Context(), name)
	switch {
	case errors.Is(err, cms.ErrNotFound):
		s.writeError(w, http.StatusNotFound, codeNotFound, fmt.Sprintf(
			"instance '%s' not found or already deleted", name))
		return
	case err != nil:
		s.writeError(w, http.StatusInternalServerError, codeInternal, "failed to look up instance: "+err.Error())
		return
	}

	resp, err := s.startDelete(name, inst)
	if err != nil {
		if errors.Is(err, history.ErrInstanceExists) {
			s.writeError(w, http.StatusConflict, codeConflict, fmt.Sprintf(
				"a delete for '%s' is already running", name))
			return
		}
		s.writeError(w, http.StatusInternalServerError, codeInternal,
			"failed to start delete orchestration: "+err.Error())
		return
	}
	s.writeJSON(w, http.StatusAccepted, resp)
}

// BulkDeleteRequest is the DELETE /api/instances body.
type BulkDeleteRequest struct {
	InstanceNames []string `json:"instance_names" validate:"required,min=1,max=50"`
}

// BulkDeleteFailure reports one name that could not be deleted.
type BulkDeleteFailure struct {
	InstanceName string `json:"instance_name"`
	Error        string `json:"error"`
}

// BulkDeleteResponse summarizes a bulk delete.
type BulkDeleteResponse struct {
	Deleted   int                      `json:"deleted"`
	Errors    int                      `json:"errors"`
	Instances []DeleteInstanceResponse `json:"instances"`
	Failures  []BulkDeleteFailure      `json:"failures"`
}

func (s *Server) handleBulkDeleteInstances(w http.ResponseWriter, r *http.Request) {
	var req BulkDeleteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, codeBadRequest, "invalid JSON body: "+err.Error())
		return
	}
	if err := s.validate.Struct(req); err != nil {
		s.writeError(w, http.StatusBadRequest, codeBadRequest, validationMessage(err))
		return
	}

	deleted := make([]DeleteInstanceResponse, 0, len(req.InstanceNames))
	failures := make([]BulkDeleteFailure, 0)
	for _, name := range req.InstanceNames {
		inst, err := s.catalog.FindInstance(r.Context(), name)
		switch {
		case errors.Is(err, cms.ErrNotFound):
			failures = append(failures, BulkDeleteFailure{InstanceName: name, Error: "not found or already deleted"})
			continue
		case err != nil:
			failures = append(failures, BulkDeleteFailure{InstanceName: name, Error: err.Error()})
			continue
		}

		resp, err := s.startDelete(name, inst)
		if err != nil {
			msg := err.Error()
			if errors.Is(err, history.ErrInstanceExists) {
				msg = "a delete is already running"
			}
			failures = append(failures, BulkDeleteFailure{InstanceName: name, Error: msg})
			continue
		}
		deleted = append(deleted, resp)
	}

	s.writeJSON(w, http.StatusOK, BulkDeleteResponse{
		Deleted:   len(deleted),
		Errors:    len(failures),
		Instances: deleted,
		Failures:  failures,
	})
}
