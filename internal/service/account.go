package service

import (
	"context"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/josh-kwaku/spendguard/internal/domain"
	"github.com/josh-kwaku/spendguard/internal/logging"
)

type accountRepo interface {
	Create(ctx context.Context, account *domain.Account) error
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Account, error)
	GetByAgentID(ctx context.Context, agentID string) (*domain.Account, error)
	UpdateTags(ctx context.Context, id uuid.UUID, tags domain.AccountTags) (*domain.Account, error)
}

// AccountService is the directory of ledger accounts and the hierarchy
// each one is tagged into.
type AccountService struct {
	accounts accountRepo
	validate *validator.Validate
}

func NewAccountService(accounts accountRepo) *AccountService {
	return &AccountService{
		accounts: accounts,
		validate: validator.New(validator.WithRequiredStructEnabled()),
	}
}

type CreateAccountRequest struct {
	Name     string             `validate:"required,max=255"`
	Type     domain.AccountType `validate:"required,oneof=asset liability equity revenue expense"`
	Currency domain.Currency    `validate:"required,len=3,uppercase"`
	Tags     domain.AccountTags
}

func (s *AccountService) CreateAccount(ctx context.Context, req CreateAccountRequest) (*domain.Account, error) {
	log := logging.FromContext(ctx)

	if err := s.validate.Struct(req); err != nil {
		return nil, fmt.Errorf("CreateAccount: %w: %s", domain.ErrInvalidRequest, err)
	}

	now := time.Now().UTC()
	account := &domain.Account{
		ID:        uuid.New(),
		Name:      req.Name,
		Type:      req.Type,
		Currency:  req.Currency,
		Tags:      normalizeTags(req.Tags),
		CreatedAt: now,
		UpdatedAt: now,
	}

	if err := s.accounts.Create(ctx, account); err != nil {
		return nil, fmt.Errorf("CreateAccount: %w", err)
	}

	log.Info("account created",
		"account_id", account.ID,
		"account_type", account.Type,
		"currency", account.Currency,
	)
	return account, nil
}

func (s *AccountService) GetAccount(ctx context.Context, id uuid.UUID) (*domain.Account, error) {
	a, err := s.accounts.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("GetAccount: %w", err)
	}
	return a, nil
}

// TagAccount replaces the hierarchy tags of an account. Nothing else about
// an account can change.
func (s *AccountService) TagAccount(ctx context.Context, id uuid.UUID, tags domain.AccountTags) (*domain.Account, error) {
	a, err := s.accounts.UpdateTags(ctx, id, normalizeTags(tags))
	if err != nil {
		return nil, fmt.Errorf("TagAccount: %w", err)
	}
	logging.FromContext(ctx).Info("account tagged", "account_id", id)
	return a, nil
}

// ResolveHierarchy builds the enforcement path for an agent from the tags
// of the account that carries it.
func (s *AccountService) ResolveHierarchy(ctx context.Context, agentID string) (domain.HierarchyPath, error) {
	if agentID == "" {
		return domain.HierarchyPath{}, fmt.Errorf("ResolveHierarchy: empty agent id: %w", domain.ErrInvalidRequest)
	}

	a, err := s.accounts.GetByAgentID(ctx, agentID)
	if err != nil {
		return domain.HierarchyPath{}, fmt.Errorf("ResolveHierarchy: %w", err)
	}

	path := domain.HierarchyPath{AgentID: agentID}
	if a.Tags.TeamID != nil {
		path.TeamID = *a.Tags.TeamID
	}
	if a.Tags.DepartmentID != nil {
		path.DepartmentID = *a.Tags.DepartmentID
	}
	return path, nil
}

// normalizeTags turns empty strings into absent tags.
func normalizeTags(t domain.AccountTags) domain.AccountTags {
	clean := func(p *string) *string {
		if p == nil || *p == "" {
			return nil
		}
		return p
	}
	return domain.AccountTags{
		AgentID:      clean(t.AgentID),
		TeamID:       clean(t.TeamID),
		DepartmentID: clean(t.DepartmentID),
	}
}
