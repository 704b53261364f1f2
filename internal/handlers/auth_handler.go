package handlers

import (
	"errors"
	"net/http"
	"time"

	"github.com/HFI-UC/UtiOpia-sub001/internal/acl"
	"github.com/HFI-UC/UtiOpia-sub001/internal/apperrors"
	"github.com/HFI-UC/UtiOpia-sub001/internal/audit"
	"github.com/HFI-UC/UtiOpia-sub001/internal/auth"
	"github.com/HFI-UC/UtiOpia-sub001/internal/middleware"
	"github.com/HFI-UC/UtiOpia-sub001/internal/models"
	"github.com/HFI-UC/UtiOpia-sub001/internal/repository"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

type AuthHandler struct {
	users      repository.Users
	jwtService *auth.JWTService
	policy     *acl.Policy
	auditLog   *audit.Logger
}

func NewAuthHandler(users repository.Users, jwtService *auth.JWTService, policy *acl.Policy, auditLog *audit.Logger) *AuthHandler {
	return &AuthHandler{
		users:      users,
		jwtService: jwtService,
		policy:     policy,
		auditLog:   auditLog,
	}
}

// Register handles user registration
func (h *AuthHandler) Register(c *gin.Context) {
	var req models.CreateUserRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		bindError(c, err)
		return
	}

	// Hash password
	hashedPassword, err := auth.HashPassword(req.Password)
	if err != nil {
		respondError(c, h.auditLog, apperrors.Internal(err))
		return
	}

	now := time.Now().UTC()
	user := &models.User{
		ID:           uuid.New(),
		Email:        models.NormalizeEmail(req.Email),
		DisplayName:  req.DisplayName,
		PasswordHash: hashedPassword,
		Role:         acl.RoleUser,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := user.Validate(); err != nil {
		ErrorResponse(c, http.StatusBadRequest, apperrors.CodeInvalid, err.Error())
		return
	}

	if err := h.users.Create(c.Request.Context(), user); err != nil {
		if errors.Is(err, repository.ErrConflict) {
			respondError(c, h.auditLog, apperrors.Conflict("email already registered"))
			return
		}
		respondError(c, h.auditLog, apperrors.Internal(err))
		return
	}

	// Generate token
	token, err := h.jwtService.GenerateToken(user.ID, user.Email, user.Role)
	if err != nil {
		respondError(c, h.auditLog, apperrors.Internal(err))
		return
	}

	c.JSON(http.StatusCreated, models.LoginResponse{
		Token: token,
		User:  *user,
	})
}

// Login handles user login
func (h *AuthHandler) Login(c *gin.Context) {
	var req models.LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		bindError(c, err)
		return
	}

	user, err := h.users.GetByEmail(c.Request.Context(), models.NormalizeEmail(req.Email))
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			respondError(c, h.auditLog, apperrors.Unauthorized("Invalid credentials"))
			return
		}
		respondError(c, h.auditLog, apperrors.Internal(err))
		return
	}

	// Check password
	if err := auth.CheckPassword(user.PasswordHash, req.Password); err != nil {
		respondError(c, h.auditLog, apperrors.Unauthorized("Invalid credentials"))
		return
	}

	token, err := h.jwtService.GenerateToken(user.ID, user.Email, user.Role)
	if err != nil {
		respondError(c, h.auditLog, apperrors.Internal(err))
		return
	}

	c.JSON(http.StatusOK, models.LoginResponse{
		Token: token,
		User:  *user,
	})
}

// GetMe returns the current user and what their role may do
func (h *AuthHandler) GetMe(c *gin.Context) {
	actor := middleware.ActorFrom(c)

	user, err := h.users.GetByID(c.Request.Context(), *actor.UserID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			respondError(c, h.auditLog, apperrors.NotFound("User not found"))
			return
		}
		respondError(c, h.auditLog, apperrors.Internal(err))
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"user":    user,
		"actions": h.policy.Actions(user.Role),
	})
}
