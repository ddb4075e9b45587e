package storage

import (
	"errors"

	"github.com/forkline/api/internal/platform/auth"
)

// ErrPermissionDenied is returned when the caller may not access the object.
var ErrPermissionDenied = errors.New("storage: permission denied")

// AuthorizeDownload checks whether identity may fetch an object owned by
// ownerID. The owning diner always may; staff and admins may fetch any
// tenant object when handling support requests.
func AuthorizeDownload(identity *auth.Identity, ownerID string) error {
	if identity == nil {
		return ErrPermissionDenied
	}
	if ownerID != "" && identity.UID == ownerID {
		return nil
	}
	if identity.HasAnyRole(auth.RoleStaff, auth.RoleAdmin) {
		return nil
	}
	return ErrPermissionDenied
}
