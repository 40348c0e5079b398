package service

import (
	"context"
	"fmt"
	"net/http"

	"github.com/michal-majer/s4kit/internal/apperr"
	"github.com/michal-majer/s4kit/internal/config"
	"github.com/michal-majer/s4kit/internal/model"
)

// OperationForMethod maps an inbound HTTP method to its logical operation.
func OperationForMethod(method string) (model.Operation, bool) {
	switch method {
	case http.MethodGet, http.MethodHead:
		return model.OpRead, true
	case http.MethodPost:
		return model.OpCreate, true
	case http.MethodPut, http.MethodPatch:
		return model.OpUpdate, true
	case http.MethodDelete:
		return model.OpDelete, true
	default:
		return "", false
	}
}

// PermissionService checks an entity+operation pair against the grants held
// by an API key. Denied requests never reach credential decryption or the
// backend.
type PermissionService struct {
	store *config.Store
}

// NewPermissionService creates a PermissionService.
func NewPermissionService(store *config.Store) *PermissionService {
	return &PermissionService{store: store}
}

// Check loads the key's grant for the target instance service and verifies
// the entity and operation are allowed.
func (p *PermissionService) Check(ctx context.Context, apiKeyID, instanceServiceID int64, entity string, op model.Operation) error {
	grants, err := p.store.GetAccessGrants(ctx, apiKeyID)
	if err != nil {
		return apperr.Internal(fmt.Sprintf("load grants: %v", err))
	}

	for i := range grants {
		if grants[i].InstanceServiceID != instanceServiceID {
			continue
		}
		if grants[i].Allows(entity, op) {
			return nil
		}
		return apperr.Permission(fmt.Sprintf("operation %q on entity %q is not granted", op, entity))
	}
	return apperr.Permission("no access grant for this service")
}
