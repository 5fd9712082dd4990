package repository

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"

	"github.com/sandeepkv93/engine-service-portal/internal/domain"
	"github.com/sandeepkv93/engine-service-portal/internal/observability"
)

var (
	ErrCredentialNotFound = errors.New("credential not found")
	ErrCredentialConflict = errors.New("credential already exists")
)

//go:generate mockgen -destination=gomock/credential_repository_mock.go -package=gomock . CredentialRepository

type CredentialRepository interface {
	Create(ctx context.Context, credential *domain.Credential) error
	FindByEmployeeCode(ctx context.Context, employeeCode string) (*domain.Credential, error)
	FindByID(ctx context.Context, id uint) (*domain.Credential, error)
	GrantAdmin(ctx context.Context, id uint, adminKeyHash string) error
	ListPaged(ctx context.Context, req PageRequest) (PageResult[domain.Credential], error)
}

type GormCredentialRepository struct {
	db *gorm.DB
}

func NewCredentialRepository(db *gorm.DB) CredentialRepository {
	return &GormCredentialRepository{db: db}
}

func (r *GormCredentialRepository) Create(ctx context.Context, credential *domain.Credential) error {
	if err := r.db.WithContext(ctx).Create(credential).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			observability.RecordRepositoryOperation(ctx, "credential", "create", "conflict")
			return ErrCredentialConflict
		}
		observability.RecordRepositoryOperation(ctx, "credential", "create", "error")
		return err
	}
	observability.RecordRepositoryOperation(ctx, "credential", "create", "success")
	return nil
}

func (r *GormCredentialRepository) FindByEmployeeCode(ctx context.Context, employeeCode string) (*domain.Credential, error) {
	var c domain.Credential
	if err := r.db.WithContext(ctx).Where("employee_code = ?", employeeCode).First(&c).Error; err != nil {
		return nil, r.lookupError(ctx, "find_by_employee_code", err)
	}
	observability.RecordRepositoryOperation(ctx, "credential", "find_by_employee_code", "success")
	return &c, nil
}

func (r *GormCredentialRepository) FindByID(ctx context.Context, id uint) (*domain.Credential, error) {
	var c domain.Credential
	if err := r.db.WithContext(ctx).First(&c, id).Error; err != nil {
		return nil, r.lookupError(ctx, "find_by_id", err)
	}
	observability.RecordRepositoryOperation(ctx, "credential", "find_by_id", "success")
	return &c, nil
}

// GrantAdmin sets the admin flag and the admin key hash in a single UPDATE so
// neither column can be observed without the other.
func (r *GormCredentialRepository) GrantAdmin(ctx context.Context, id uint, adminKeyHash string) error {
	if adminKeyHash == "" {
		return errors.New("admin key hash is required")
	}
	res := r.db.WithContext(ctx).Model(&domain.Credential{}).Where("id = ?", id).
		Updates(map[string]any{
			"is_admin":       true,
			"admin_key_hash": adminKeyHash,
			"updated_at":     time.Now().UTC(),
		})
	if res.Error != nil {
		observability.RecordRepositoryOperation(ctx, "credential", "grant_admin", "error")
		return res.Error
	}
	if res.RowsAffected == 0 {
		observability.RecordRepositoryOperation(ctx, "credential", "grant_admin", "not_found")
		return ErrCredentialNotFound
	}
	observability.RecordRepositoryOperation(ctx, "credential", "grant_admin", "success")
	return nil
}

func (r *GormCredentialRepository) ListPaged(ctx context.Context, req PageRequest) (PageResult[domain.Credential], error) {
	req = req.Normalize()
	base := r.db.WithContext(ctx).Model(&domain.Credential{})

	var total int64
	if err := base.Count(&total).Error; err != nil {
		observability.RecordRepositoryOperation(ctx, "credential", "list_paged", "error")
		return PageResult[domain.Credential]{}, err
	}
	var items []domain.Credential
	if err := base.Order("id asc").Offset(req.Offset()).Limit(req.PageSize).Find(&items).Error; err != nil {
		observability.RecordRepositoryOperation(ctx, "credential", "list_paged", "error")
		return PageResult[domain.Credential]{}, err
	}
	observability.RecordRepositoryOperation(ctx, "credential", "list_paged", "success")
	return NewPageResult(req, items, total), nil
}

func (r *GormCredentialRepository) lookupError(ctx context.Context, op string, err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		observability.RecordRepositoryOperation(ctx, "credential", op, "not_found")
		return ErrCredentialNotFound
	}
	observability.RecordRepositoryOperation(ctx, "credential", op, "error")
	return err
}
