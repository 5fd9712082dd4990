package handler

import (
	"encoding/json"
	"errors"
	"io"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/sandeepkv93/engine-service-portal/internal/http/middleware"
	"github.com/sandeepkv93/engine-service-portal/internal/http/response"
	"github.com/sandeepkv93/engine-service-portal/internal/observability"
	"github.com/sandeepkv93/engine-service-portal/internal/service"
)

type AuthHandler struct {
	authSvc service.AuthServiceInterface
}

func NewAuthHandler(authSvc service.AuthServiceInterface) *AuthHandler {
	return &AuthHandler{authSvc: authSvc}
}

type registerUserRequest struct {
	EmployeeCode string `json:"employeeCode"`
	DisplayName  string `json:"displayName"`
	ContactEmail string `json:"contactEmail"`
	Password     string `json:"password"`
}

type loginUserRequest struct {
	EmployeeCode string `json:"employeeCode"`
	Password     string `json:"password"`
}

type loginAdminRequest struct {
	EmployeeCode string `json:"employeeCode"`
	SubjectID    uint   `json:"subjectId"`
	AdminCode    string `json:"adminCode"`
	AdminKey     string `json:"adminKey"`
}

type registerAdminRequest struct {
	TargetID     uint   `json:"targetId"`
	EmployeeCode string `json:"employeeCode"`
	AdminCode    string `json:"adminCode"`
	AdminKey     string `json:"adminKey"`
}

func (h *AuthHandler) RegisterUser(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	status := "success"
	defer func() {
		observability.RecordAuthRequestDuration(r.Context(), "register_user", status, time.Since(start))
	}()

	var req registerUserRequest
	if !decodeJSON(w, r, &req) {
		status = "failure"
		return
	}
	id, err := h.authSvc.Register(r.Context(), service.RegisterInput{
		EmployeeCode: req.EmployeeCode,
		DisplayName:  req.DisplayName,
		ContactEmail: req.ContactEmail,
		Password:     req.Password,
	})
	if err != nil {
		status = "failure"
		audit(r, "auth.register", "", req.EmployeeCode, "register", err)
		writeAuthError(w, r, err)
		return
	}
	audit(r, "auth.register", idString(id.ID), id.EmployeeCode, "register", nil)
	response.JSON(w, r, http.StatusCreated, map[string]any{
		"message": "User registered successfully.",
		"user":    id,
	})
}

func (h *AuthHandler) LoginUser(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	status := "success"
	defer func() {
		observability.RecordAuthRequestDuration(r.Context(), "login_user", status, time.Since(start))
	}()

	var req loginUserRequest
	if !decodeJSON(w, r, &req) {
		status = "failure"
		return
	}
	res, err := h.authSvc.Login(r.Context(), service.LoginInput{
		EmployeeCode: req.EmployeeCode,
		Password:     req.Password,
		ClientIP:     clientIP(r),
	})
	if err != nil {
		status = "failure"
		audit(r, "auth.login", "", req.EmployeeCode, "login", err)
		writeAuthError(w, r, err)
		return
	}
	audit(r, "auth.login", idString(res.Identity.ID), res.Identity.EmployeeCode, "login", nil)
	response.JSON(w, r, http.StatusOK, map[string]any{
		"message":   "Login successful.",
		"user":      res.Identity,
		"token":     res.Token,
		"expiresAt": res.ExpiresAt,
	})
}

// LoginAdmin identifies the caller by employeeCode, then subjectId, then the bearer token.
func (h *AuthHandler) LoginAdmin(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	status := "success"
	defer func() {
		observability.RecordAuthRequestDuration(r.Context(), "login_admin", status, time.Since(start))
	}()

	var req loginAdminRequest
	if !decodeJSON(w, r, &req) {
		status = "failure"
		return
	}
	subjectID := req.SubjectID
	if req.EmployeeCode == "" && subjectID == 0 {
		subjectID, _ = middleware.SubjectFromContext(r.Context())
	}
	res, err := h.authSvc.AdminLogin(r.Context(), service.AdminLoginInput{
		EmployeeCode: req.EmployeeCode,
		SubjectID:    subjectID,
		AdminCode:    req.AdminCode,
		AdminKey:     req.AdminKey,
		ClientIP:     clientIP(r),
	})
	if err != nil {
		status = "failure"
		audit(r, "auth.admin.login", actorID(r), targetRef(req.EmployeeCode, subjectID), "admin_login", err)
		writeAuthError(w, r, err)
		return
	}
	audit(r, "auth.admin.login", idString(res.Identity.ID), res.Identity.EmployeeCode, "admin_login", nil)
	response.JSON(w, r, http.StatusOK, map[string]any{
		"message":   "Admin login successful.",
		"user":      res.Identity,
		"token":     res.Token,
		"scope":     res.Scope,
		"expiresAt": res.ExpiresAt,
	})
}

func (h *AuthHandler) RegisterAdmin(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	status := "success"
	defer func() {
		observability.RecordAuthRequestDuration(r.Context(), "register_admin", status, time.Since(start))
	}()

	callerID, ok := middleware.SubjectFromContext(r.Context())
	if !ok {
		status = "failure"
		response.Error(w, r, http.StatusUnauthorized, "UNAUTHORIZED", "Unauthorized: Token missing", nil)
		return
	}
	var req registerAdminRequest
	if !decodeJSON(w, r, &req) {
		status = "failure"
		return
	}
	id, err := h.authSvc.Elevate(r.Context(), service.ElevateInput{
		CallerID:     callerID,
		EmployeeCode: req.EmployeeCode,
		TargetID:     req.TargetID,
		AdminCode:    req.AdminCode,
		AdminKey:     req.AdminKey,
	})
	if err != nil {
		status = "failure"
		audit(r, "auth.admin.grant", idString(callerID), targetRef(req.EmployeeCode, req.TargetID), "grant_admin", err)
		writeAuthError(w, r, err)
		return
	}
	audit(r, "auth.admin.grant", idString(callerID), id.EmployeeCode, "grant_admin", nil)
	response.JSON(w, r, http.StatusOK, map[string]any{
		"message": "Admin access granted.",
		"user":    id,
	})
}

func (h *AuthHandler) LogoutUser(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	status := "success"
	defer func() {
		observability.RecordAuthRequestDuration(r.Context(), "logout_user", status, time.Since(start))
	}()

	claims, ok := middleware.ClaimsFromContext(r.Context())
	if !ok {
		status = "failure"
		response.Error(w, r, http.StatusUnauthorized, "UNAUTHORIZED", "Unauthorized: Token missing", nil)
		return
	}
	if err := h.authSvc.Logout(r.Context(), claims); err != nil {
		status = "failure"
		audit(r, "auth.logout", claims.Subject, claims.Subject, "logout", err)
		writeAuthError(w, r, err)
		return
	}
	audit(r, "auth.logout", claims.Subject, claims.Subject, "logout", nil)
	response.JSON(w, r, http.StatusOK, map[string]any{"message": "Logged out."})
}

func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	subjectID, ok := middleware.SubjectFromContext(r.Context())
	if !ok {
		response.Error(w, r, http.StatusUnauthorized, "UNAUTHORIZED", "Unauthorized: Token missing", nil)
		return
	}
	id, err := h.authSvc.Me(r.Context(), subjectID)
	if err != nil {
		writeAuthError(w, r, err)
		return
	}
	response.JSON(w, r, http.StatusOK, map[string]any{"user": id})
}

func (h *AuthHandler) Protected(w http.ResponseWriter, r *http.Request) {
	subjectID, _ := middleware.SubjectFromContext(r.Context())
	response.JSON(w, r, http.StatusOK, map[string]any{
		"message":   "Protected Route",
		"subjectId": subjectID,
	})
}

func (h *AuthHandler) AdminProtected(w http.ResponseWriter, r *http.Request) {
	subjectID, _ := middleware.SubjectFromContext(r.Context())
	response.JSON(w, r, http.StatusOK, map[string]any{
		"message":   "Admin Protected Route",
		"subjectId": subjectID,
	})
}

var kindStatus = map[service.ErrorKind]struct {
	status int
	code   string
}{
	service.KindValidation:      {http.StatusBadRequest, "BAD_REQUEST"},
	service.KindUnauthorized:    {http.StatusUnauthorized, "UNAUTHORIZED"},
	service.KindForbidden:       {http.StatusForbidden, "FORBIDDEN"},
	service.KindNotFound:        {http.StatusNotFound, "NOT_FOUND"},
	service.KindConflict:        {http.StatusConflict, "CONFLICT"},
	service.KindTooManyRequests: {http.StatusTooManyRequests, "TOO_MANY_ATTEMPTS"},
	service.KindInternal:        {http.StatusInternalServerError, "INTERNAL"},
}

func writeAuthError(w http.ResponseWriter, r *http.Request, err error) {
	var ae *service.AuthError
	if !errors.As(err, &ae) {
		ae = &service.AuthError{Kind: service.KindInternal, Message: "Something went wrong. Please try again later."}
	}
	m, ok := kindStatus[ae.Kind]
	if !ok {
		m = kindStatus[service.KindInternal]
	}
	if ae.RetryAfter > 0 {
		w.Header().Set("Retry-After", strconv.Itoa(max(int(ae.RetryAfter.Round(time.Second).Seconds()), 1)))
	}
	response.Error(w, r, m.status, m.code, ae.Message, nil)
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	err := json.NewDecoder(r.Body).Decode(dst)
	if err == nil {
		return true
	}
	var maxBytesErr *http.MaxBytesError
	switch {
	case errors.As(err, &maxBytesErr):
		response.Error(w, r, http.StatusRequestEntityTooLarge, "PAYLOAD_TOO_LARGE", "Request body is too large.", nil)
	case errors.Is(err, io.EOF):
		response.Error(w, r, http.StatusBadRequest, "BAD_REQUEST", "Request body is required.", nil)
	default:
		response.Error(w, r, http.StatusBadRequest, "BAD_REQUEST", "Request body must be valid JSON.", nil)
	}
	return false
}

func audit(r *http.Request, event, actor, target, action string, err error) {
	in := observability.AuditInput{
		EventName:  event,
		ActorID:    actor,
		TargetType: "credential",
		TargetID:   target,
		Action:     action,
		Outcome:    "success",
	}
	if err != nil {
		in.Outcome = "failure"
		in.Reason = string(service.KindOf(err))
	}
	observability.Audit(r, in)
}

func actorID(r *http.Request) string {
	if id, ok := middleware.SubjectFromContext(r.Context()); ok {
		return idString(id)
	}
	return ""
}

func targetRef(employeeCode string, id uint) string {
	if employeeCode = strings.TrimSpace(employeeCode); employeeCode != "" {
		return employeeCode
	}
	if id == 0 {
		return ""
	}
	return idString(id)
}

func idString(id uint) string {
	return strconv.FormatUint(uint64(id), 10)
}

func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err == nil {
		return host
	}
	return r.RemoteAddr
}
