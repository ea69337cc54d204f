//go:build protogen

package access

import (
	"context"
	"time"

	"google.golang.org/grpc"

	accessv1 "github.com/barbersoft/backend/protos/gen/access/v1"
	"github.com/barbersoft/backend/services/account-service/internal/storage"
)

type server struct {
	accessv1.UnimplementedAccessServiceServer
	companies *storage.CompanyRepository
	roles     *storage.RoleRepository
}

func Register(grpcServer *grpc.Server, companies *storage.CompanyRepository, roles *storage.RoleRepository) {
	accessv1.RegisterAccessServiceServer(grpcServer, &server{companies: companies, roles: roles})
}

func (s *server) GetAccessStatus(ctx context.Context, req *accessv1.AccessStatusRequest) (*accessv1.AccessStatusResponse, error) {
	roleNames, err := s.roles.ListForUser(ctx, req.GetUserId())
	if err != nil {
		// Same fail-open contract as the HTTP endpoint.
		return &accessv1.AccessStatusResponse{Decision: string(DecisionFullAccess)}, nil
	}
	roles := make([]Role, 0, len(roleNames))
	for _, name := range roleNames {
		roles = append(roles, Role(name))
	}

	var company *Company
	if req.GetCompanyId() != "" {
		record, err := s.companies.GetByID(ctx, req.GetCompanyId())
		if err == nil {
			company = &Company{
				ID:            record.ID,
				OwnerUserID:   record.OwnerUserID,
				Name:          record.Name,
				PlanStatus:    record.PlanStatus,
				TrialEndsAt:   record.TrialEndsAt,
				PartnerEndsAt: record.PartnerEndsAt,
				IsBlocked:     record.IsBlocked,
			}
		} else if !storage.IsNotFound(err) {
			return &accessv1.AccessStatusResponse{Decision: string(DecisionFullAccess)}, nil
		}
	}

	result := Evaluate(roles, company, time.Now().UTC())
	return &accessv1.AccessStatusResponse{
		Decision:      string(result.Decision),
		DaysRemaining: int32(result.DaysRemaining),
	}, nil
}
