package domain

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/insightboard/pkg/db/pagination"
	"gorm.io/gorm"
)

type RecordRequest struct {
	OrganizationID snowflake.ID
	ActorID        snowflake.ID
	Action         string
	TargetType     string
	TargetID       string
	Metadata       map[string]any
}

type ListActivityRequest struct {
	pagination.Pagination
	OrganizationID snowflake.ID
	Action         string
	TargetType     string
}

type ListActivityResponse struct {
	pagination.PageInfo
	ActivityLogs []ActivityLog `json:"activity_logs"`
}

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, entry *ActivityLog) error
	List(ctx context.Context, db *gorm.DB, filter ListFilter) ([]*ActivityLog, error)
}

type Service interface {
	Record(ctx context.Context, req RecordRequest) error
	List(ctx context.Context, req ListActivityRequest) (ListActivityResponse, error)
}

var (
	ErrInvalidOrganization = errors.New("invalid_organization")
	ErrInvalidPageToken    = errors.New("invalid_page_token")
	ErrInvalidAction       = errors.New("invalid_action")
)
