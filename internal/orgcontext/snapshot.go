package orgcontext

import (
	"github.com/smallbiznis/insightboard/internal/orgcache"
	"github.com/smallbiznis/insightboard/internal/permission"
)

type State int

const (
	StateUninitialized State = iota
	StateHydratedFromCache
	StateReconciling
	StateReady
)

func (s State) String() string {
	switch s {
	case StateHydratedFromCache:
		return "hydrated_from_cache"
	case StateReconciling:
		return "reconciling"
	case StateReady:
		return "ready"
	default:
		return "uninitialized"
	}
}

func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Snapshot is an immutable view of a user's organization context. Providers
// publish a new Snapshot on every transition and never mutate an old one.
type Snapshot struct {
	State               State                   `json:"state"`
	CurrentOrganization *orgcache.Organization  `json:"current_organization"`
	Organizations       []orgcache.Organization `json:"organizations"`
	MemberRole          permission.Role         `json:"member_role"`
	IsLoading           bool                    `json:"is_loading"`
	Generation          uint64                  `json:"generation"`
}

func (s Snapshot) Capabilities() permission.Capabilities {
	return permission.For(s.MemberRole)
}

// CurrentOrganizationID is empty when nothing is selected.
func (s Snapshot) CurrentOrganizationID() string {
	if s.CurrentOrganization == nil {
		return ""
	}
	return s.CurrentOrganization.ID
}

func (s Snapshot) find(id string) *orgcache.Organization {
	for i := range s.Organizations {
		if s.Organizations[i].ID == id {
			org := s.Organizations[i]
			return &org
		}
	}
	return nil
}
