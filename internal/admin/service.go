package admin

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/driftlabs/storefront-backend/internal/users"
	"github.com/driftlabs/storefront-backend/pkg/db/models"
	"github.com/driftlabs/storefront-backend/pkg/enums"
	pkgerrors "github.com/driftlabs/storefront-backend/pkg/errors"
)

const newUserWindow = 30 * 24 * time.Hour

type usersRepository interface {
	Count(ctx context.Context) (int64, error)
	CountSince(ctx context.Context, cutoff time.Time) (int64, error)
	List(ctx context.Context, limit int) ([]models.User, error)
}

type billingRepository interface {
	CountSubscriptionsByStatus(ctx context.Context) (map[enums.SubscriptionStatus]int64, error)
}

type mediaRepository interface {
	ListByUsers(ctx context.Context, userIDs []uuid.UUID) ([]models.Media, error)
}

// Summary aggregates the operational counters shown on the admin dashboard.
type Summary struct {
	TotalUsers            int64                              `json:"totalUsers"`
	NewUsersLast30Days    int64                              `json:"newUsersLast30Days"`
	SubscriptionsByStatus map[enums.SubscriptionStatus]int64 `json:"subscriptionsByStatus"`
}

// UserWithUploads pairs a user with everything they have uploaded.
type UserWithUploads struct {
	User    *users.UserDTO `json:"user"`
	Uploads []models.Media `json:"uploads"`
}

// Service exposes the admin-only read surface.
type Service interface {
	Summary(ctx context.Context) (*Summary, error)
	ListUsersWithUploads(ctx context.Context, limit int) ([]UserWithUploads, error)
}

// ServiceParams groups dependencies for the admin service.
type ServiceParams struct {
	Users   usersRepository
	Billing billingRepository
	Media   mediaRepository
}

type service struct {
	users   usersRepository
	billing billingRepository
	media   mediaRepository
}

// NewService builds the admin service.
func NewService(params ServiceParams) (Service, error) {
	if params.Users == nil {
		return nil, fmt.Errorf("users repository required")
	}
	if params.Billing == nil {
		return nil, fmt.Errorf("billing repository required")
	}
	if params.Media == nil {
		return nil, fmt.Errorf("media repository required")
	}
	return &service{
		users:   params.Users,
		billing: params.Billing,
		media:   params.Media,
	}, nil
}

func (s *service) Summary(ctx context.Context) (*Summary, error) {
	total, err := s.users.Count(ctx)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "count users")
	}
	recent, err := s.users.CountSince(ctx, time.Now().UTC().Add(-newUserWindow))
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "count recent users")
	}
	byStatus, err := s.billing.CountSubscriptionsByStatus(ctx)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "count subscriptions")
	}
	if byStatus == nil {
		byStatus = map[enums.SubscriptionStatus]int64{}
	}
	return &Summary{
		TotalUsers:            total,
		NewUsersLast30Days:    recent,
		SubscriptionsByStatus: byStatus,
	}, nil
}

func (s *service) ListUsersWithUploads(ctx context.Context, limit int) ([]UserWithUploads, error) {
	userRows, err := s.users.List(ctx, limit)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list users")
	}
	if len(userRows) == 0 {
		return []UserWithUploads{}, nil
	}

	ids := make([]uuid.UUID, 0, len(userRows))
	for _, user := range userRows {
		ids = append(ids, user.ID)
	}
	uploads, err := s.media.ListByUsers(ctx, ids)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list uploads")
	}

	uploadsByUser := make(map[uuid.UUID][]models.Media, len(userRows))
	for _, upload := range uploads {
		uploadsByUser[upload.UserID] = append(uploadsByUser[upload.UserID], upload)
	}

	result := make([]UserWithUploads, 0, len(userRows))
	for i := range userRows {
		user := userRows[i]
		result = append(result, UserWithUploads{
			User:    users.FromModel(&user),
			Uploads: uploadsByUser[user.ID],
		})
	}
	return result, nil
}
