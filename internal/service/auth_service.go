package service

import (
	"context"
	"crypto/subtle"
	"errors"
	"log/slog"
	"net/mail"
	"regexp"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/sandeepkv93/engine-service-portal/internal/config"
	"github.com/sandeepkv93/engine-service-portal/internal/domain"
	"github.com/sandeepkv93/engine-service-portal/internal/observability"
	"github.com/sandeepkv93/engine-service-portal/internal/repository"
	"github.com/sandeepkv93/engine-service-portal/internal/security"
)

const (
	minDisplayNameLen = 3
	minSecretLen      = 8
)

var employeeCodeRe = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9_-]{0,63}$`)

const (
	msgMissingRegisterFields = "All credentials are required."
	msgMissingLoginFields    = "Employee code and password are required."
	msgMissingAdminFields    = "Admin code and admin key are required."
	msgMissingAdminKey       = "Admin key is required."
	msgMissingTarget         = "Target employee code is required."
	msgUnknownEmployee       = "User with this employee code does not exist."
	msgIncorrectPassword     = "Incorrect password."
	msgInvalidCredentials    = "Invalid employee code or password."
	msgAlreadyRegistered     = "User already registered."
	msgInvalidAdminCode      = "Invalid admin code."
	msgNotAdmin              = "Admin access is not enabled for this employee."
	msgIncorrectAdminKey     = "Incorrect admin key."
)

type Identity struct {
	ID           uint   `json:"id"`
	EmployeeCode string `json:"employeeCode"`
	DisplayName  string `json:"displayName"`
	ContactEmail string `json:"contactEmail,omitempty"`
	IsAdmin      bool   `json:"isAdmin"`
}

func identityOf(c *domain.Credential) Identity {
	return Identity{
		ID:           c.ID,
		EmployeeCode: c.EmployeeCode,
		DisplayName:  c.DisplayName,
		ContactEmail: c.ContactEmail,
		IsAdmin:      c.IsAdmin,
	}
}

type LoginResult struct {
	Identity  Identity
	Token     string
	Scope     string
	ExpiresAt time.Time
}

type RegisterInput struct {
	EmployeeCode string
	DisplayName  string
	ContactEmail string
	Password     string
}

type LoginInput struct {
	EmployeeCode string
	Password     string
	ClientIP     string
}

// TargetID is used only when EmployeeCode is empty.
type ElevateInput struct {
	CallerID     uint
	EmployeeCode string
	TargetID     uint
	AdminCode    string
	AdminKey     string
}

// AdminCode is optional; when present it must match.
type AdminLoginInput struct {
	EmployeeCode string
	SubjectID    uint
	AdminCode    string
	AdminKey     string
	ClientIP     string
}

type AuthService struct {
	creds     repository.CredentialRepository
	hasher    *security.PasswordHasher
	tokens    *TokenService
	guard     AuthAbuseGuard
	adminCode []byte
	uniform   bool
}

func NewAuthService(
	cfg *config.Config,
	creds repository.CredentialRepository,
	hasher *security.PasswordHasher,
	tokens *TokenService,
	guard AuthAbuseGuard,
) *AuthService {
	if guard == nil {
		guard = NewNoopAuthAbuseGuard()
	}
	return &AuthService{
		creds:     creds,
		hasher:    hasher,
		tokens:    tokens,
		guard:     guard,
		adminCode: []byte(cfg.AdminCode),
		uniform:   cfg.AuthUniformLoginErrors,
	}
}

func (s *AuthService) Register(ctx context.Context, in RegisterInput) (*Identity, error) {
	ctx, span := observability.StartAuthSpan(ctx, "register")
	defer span.End()

	code := strings.TrimSpace(in.EmployeeCode)
	name := strings.TrimSpace(in.DisplayName)
	email := strings.TrimSpace(strings.ToLower(in.ContactEmail))
	if code == "" || name == "" || in.Password == "" {
		return nil, s.fail(ctx, "register", validationError(msgMissingRegisterFields))
	}
	if err := validateRegistration(code, name, email, in.Password); err != nil {
		return nil, s.fail(ctx, "register", err)
	}

	// The unique index is authoritative; this only picks the message.
	if _, err := s.creds.FindByEmployeeCode(ctx, code); err == nil {
		return nil, s.fail(ctx, "register", conflictError(msgAlreadyRegistered))
	} else if !errors.Is(err, repository.ErrCredentialNotFound) {
		return nil, s.fail(ctx, "register", internalError(err))
	}

	hash, err := s.hasher.Hash(in.Password)
	if err != nil {
		return nil, s.fail(ctx, "register", internalError(err))
	}
	cred := &domain.Credential{
		EmployeeCode: code,
		DisplayName:  name,
		ContactEmail: email,
		PasswordHash: hash,
	}
	if err := s.creds.Create(ctx, cred); err != nil {
		if errors.Is(err, repository.ErrCredentialConflict) {
			return nil, s.fail(ctx, "register", conflictError(msgAlreadyRegistered))
		}
		return nil, s.fail(ctx, "register", internalError(err))
	}
	observability.RecordAuthFlowEvent(ctx, "register", "success")
	id := identityOf(cred)
	return &id, nil
}

func (s *AuthService) Login(ctx context.Context, in LoginInput) (*LoginResult, error) {
	ctx, span := observability.StartAuthSpan(ctx, "login")
	defer span.End()

	code := strings.TrimSpace(in.EmployeeCode)
	if code == "" || in.Password == "" {
		return nil, s.fail(ctx, "login", validationError(msgMissingLoginFields))
	}
	if err := s.checkCooldown(ctx, AuthAbuseScopeLogin, code, in.ClientIP); err != nil {
		return nil, s.fail(ctx, "login", err)
	}

	cred, err := s.creds.FindByEmployeeCode(ctx, code)
	if err != nil {
		if errors.Is(err, repository.ErrCredentialNotFound) {
			s.hasher.Equalize(in.Password)
			s.registerFailure(ctx, AuthAbuseScopeLogin, code, in.ClientIP)
			if s.uniform {
				return nil, s.fail(ctx, "login", unauthorizedError(msgInvalidCredentials))
			}
			return nil, s.fail(ctx, "login", notFoundError(msgUnknownEmployee))
		}
		return nil, s.fail(ctx, "login", internalError(err))
	}
	if !s.hasher.Verify(in.Password, cred.PasswordHash) {
		s.registerFailure(ctx, AuthAbuseScopeLogin, code, in.ClientIP)
		if s.uniform {
			return nil, s.fail(ctx, "login", unauthorizedError(msgInvalidCredentials))
		}
		return nil, s.fail(ctx, "login", unauthorizedError(msgIncorrectPassword))
	}
	s.resetFailures(ctx, AuthAbuseScopeLogin, code, in.ClientIP)

	issued, err := s.tokens.Issue(cred.ID)
	if err != nil {
		return nil, s.fail(ctx, "login", internalError(err))
	}
	observability.RecordAuthFlowEvent(ctx, "login", "success")
	return &LoginResult{Identity: identityOf(cred), Token: issued.Token, Scope: issued.Scope, ExpiresAt: issued.ExpiresAt}, nil
}

// Elevate on an existing admin rotates its admin key.
func (s *AuthService) Elevate(ctx context.Context, in ElevateInput) (*Identity, error) {
	ctx, span := observability.StartAuthSpan(ctx, "elevate")
	defer span.End()

	code := strings.TrimSpace(in.EmployeeCode)
	if in.AdminCode == "" || in.AdminKey == "" {
		return nil, s.fail(ctx, "elevate", validationError(msgMissingAdminFields))
	}
	if code == "" && in.TargetID == 0 {
		return nil, s.fail(ctx, "elevate", validationError(msgMissingTarget))
	}
	if err := validateSecret("Admin key", in.AdminKey); err != nil {
		return nil, s.fail(ctx, "elevate", err)
	}

	target, err := s.lookup(ctx, code, in.TargetID)
	if err != nil {
		if errors.Is(err, repository.ErrCredentialNotFound) {
			return nil, s.fail(ctx, "elevate", notFoundError(msgUnknownEmployee))
		}
		return nil, s.fail(ctx, "elevate", internalError(err))
	}
	if !s.adminCodeMatches(in.AdminCode) {
		return nil, s.fail(ctx, "elevate", forbiddenError(msgInvalidAdminCode))
	}

	keyHash, err := s.hasher.Hash(in.AdminKey)
	if err != nil {
		return nil, s.fail(ctx, "elevate", internalError(err))
	}
	if err := s.creds.GrantAdmin(ctx, target.ID, keyHash); err != nil {
		if errors.Is(err, repository.ErrCredentialNotFound) {
			return nil, s.fail(ctx, "elevate", notFoundError(msgUnknownEmployee))
		}
		return nil, s.fail(ctx, "elevate", internalError(err))
	}
	target.IsAdmin = true
	target.AdminKeyHash = &keyHash
	slog.InfoContext(ctx, "admin granted", "caller_id", in.CallerID, "target_id", target.ID)
	observability.RecordAuthFlowEvent(ctx, "elevate", "success")
	id := identityOf(target)
	return &id, nil
}

func (s *AuthService) AdminLogin(ctx context.Context, in AdminLoginInput) (*LoginResult, error) {
	ctx, span := observability.StartAuthSpan(ctx, "admin_login")
	defer span.End()

	code := strings.TrimSpace(in.EmployeeCode)
	if in.AdminKey == "" {
		return nil, s.fail(ctx, "admin_login", validationError(msgMissingAdminKey))
	}
	if code == "" && in.SubjectID == 0 {
		return nil, s.fail(ctx, "admin_login", validationError(msgMissingTarget))
	}
	if in.AdminCode != "" && !s.adminCodeMatches(in.AdminCode) {
		return nil, s.fail(ctx, "admin_login", forbiddenError(msgInvalidAdminCode))
	}
	guardIdentity := code
	if guardIdentity == "" {
		guardIdentity = "id:" + strconv.FormatUint(uint64(in.SubjectID), 10)
	}
	if err := s.checkCooldown(ctx, AuthAbuseScopeAdminLogin, guardIdentity, in.ClientIP); err != nil {
		return nil, s.fail(ctx, "admin_login", err)
	}

	cred, err := s.lookup(ctx, code, in.SubjectID)
	if err != nil {
		if errors.Is(err, repository.ErrCredentialNotFound) {
			s.hasher.Equalize(in.AdminKey)
			s.registerFailure(ctx, AuthAbuseScopeAdminLogin, guardIdentity, in.ClientIP)
			return nil, s.fail(ctx, "admin_login", notFoundError(msgUnknownEmployee))
		}
		return nil, s.fail(ctx, "admin_login", internalError(err))
	}
	if !cred.HasAdminKey() {
		s.hasher.Equalize(in.AdminKey)
		return nil, s.fail(ctx, "admin_login", forbiddenError(msgNotAdmin))
	}
	if !s.hasher.Verify(in.AdminKey, *cred.AdminKeyHash) {
		s.registerFailure(ctx, AuthAbuseScopeAdminLogin, guardIdentity, in.ClientIP)
		return nil, s.fail(ctx, "admin_login", unauthorizedError(msgIncorrectAdminKey))
	}
	s.resetFailures(ctx, AuthAbuseScopeAdminLogin, guardIdentity, in.ClientIP)

	issued, err := s.tokens.IssueAdmin(cred.ID)
	if err != nil {
		return nil, s.fail(ctx, "admin_login", internalError(err))
	}
	observability.RecordAuthFlowEvent(ctx, "admin_login", "success")
	return &LoginResult{Identity: identityOf(cred), Token: issued.Token, Scope: issued.Scope, ExpiresAt: issued.ExpiresAt}, nil
}

func (s *AuthService) Logout(ctx context.Context, claims *security.Claims) error {
	ctx, span := observability.StartAuthSpan(ctx, "logout")
	defer span.End()

	if err := s.tokens.Revoke(ctx, claims); err != nil {
		return s.fail(ctx, "logout", internalError(err))
	}
	observability.RecordAuthFlowEvent(ctx, "logout", "success")
	return nil
}

func (s *AuthService) Me(ctx context.Context, subjectID uint) (*Identity, error) {
	ctx, span := observability.StartAuthSpan(ctx, "me")
	defer span.End()

	cred, err := s.creds.FindByID(ctx, subjectID)
	if err != nil {
		if errors.Is(err, repository.ErrCredentialNotFound) {
			return nil, notFoundError(msgUnknownEmployee)
		}
		return nil, s.fail(ctx, "me", internalError(err))
	}
	id := identityOf(cred)
	return &id, nil
}

func (s *AuthService) lookup(ctx context.Context, employeeCode string, id uint) (*domain.Credential, error) {
	if employeeCode != "" {
		return s.creds.FindByEmployeeCode(ctx, employeeCode)
	}
	return s.creds.FindByID(ctx, id)
}

func (s *AuthService) adminCodeMatches(candidate string) bool {
	return len(s.adminCode) > 0 && subtle.ConstantTimeCompare([]byte(candidate), s.adminCode) == 1
}

func (s *AuthService) checkCooldown(ctx context.Context, scope AuthAbuseScope, identity, ip string) *AuthError {
	retryAfter, err := s.guard.Check(ctx, scope, identity, ip)
	if err != nil {
		observability.RecordAuthAbuseGuardEvent(ctx, string(scope), "check", "error")
		slog.WarnContext(ctx, "auth abuse guard check failed; allowing attempt", "scope", scope, "error", err)
		return nil
	}
	if retryAfter > 0 {
		observability.RecordAuthAbuseGuardEvent(ctx, string(scope), "check", "blocked")
		observability.RecordAuthAbuseCooldown(ctx, string(scope), "check", retryAfter)
		return throttledError(retryAfter)
	}
	observability.RecordAuthAbuseGuardEvent(ctx, string(scope), "check", "allowed")
	return nil
}

func (s *AuthService) registerFailure(ctx context.Context, scope AuthAbuseScope, identity, ip string) {
	cooldown, err := s.guard.RegisterFailure(ctx, scope, identity, ip)
	if err != nil {
		observability.RecordAuthAbuseGuardEvent(ctx, string(scope), "register_failure", "error")
		slog.WarnContext(ctx, "auth abuse guard register failed", "scope", scope, "error", err)
		return
	}
	observability.RecordAuthAbuseGuardEvent(ctx, string(scope), "register_failure", "recorded")
	if cooldown > 0 {
		observability.RecordAuthAbuseCooldown(ctx, string(scope), "register_failure", cooldown)
	}
}

func (s *AuthService) resetFailures(ctx context.Context, scope AuthAbuseScope, identity, ip string) {
	if err := s.guard.Reset(ctx, scope, identity, ip); err != nil {
		observability.RecordAuthAbuseGuardEvent(ctx, string(scope), "reset", "error")
		slog.WarnContext(ctx, "auth abuse guard reset failed", "scope", scope, "error", err)
	}
}

func (s *AuthService) fail(ctx context.Context, flow string, err *AuthError) error {
	observability.RecordAuthFlowEvent(ctx, flow, string(err.Kind))
	if err.Kind == KindInternal {
		slog.ErrorContext(ctx, "auth flow failed", "flow", flow, "error", err.Err)
	}
	return err
}

func validateRegistration(code, name, email, password string) *AuthError {
	if !employeeCodeRe.MatchString(code) {
		return validationError("Employee code may contain only letters, digits, '-' and '_' (max 64).")
	}
	if utf8.RuneCountInString(name) < minDisplayNameLen {
		return validationError("Display name must be at least 3 characters.")
	}
	if email != "" {
		addr, err := mail.ParseAddress(email)
		if err != nil || addr.Address != email {
			return validationError("Contact email is not a valid address.")
		}
	}
	return validateSecret("Password", password)
}

func validateSecret(label, secret string) *AuthError {
	if len(secret) < minSecretLen {
		return validationError(label + " must be at least 8 characters.")
	}
	if len(secret) > security.MaxSecretBytes {
		return validationError(label + " must be at most 72 bytes.")
	}
	return nil
}
