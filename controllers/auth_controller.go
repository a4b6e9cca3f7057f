package controllers

import (
	"context"
	"net/http"

	"storefront/apperrors"
	"storefront/middleware"
	"storefront/models"
	"storefront/services"

	"github.com/gin-gonic/gin"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

type AuthService interface {
	Register(ctx context.Context, username, password string) (*models.AuthResponse, error)
	Login(ctx context.Context, username, password string) (*models.AuthResponse, error)
	Profile(ctx context.Context, userID primitive.ObjectID) (*models.User, error)
	ChangePassword(ctx context.Context, userID primitive.ObjectID, current, next string) error
	Logout(ctx context.Context, claims *services.Claims) error
	CheckUsername(ctx context.Context, username string) (bool, error)
	SecurityStatus(ctx context.Context, userID primitive.ObjectID) (*models.SecurityStatus, error)
}

type AuthController struct {
	service AuthService
}

func NewAuthController(service AuthService) *AuthController {
	registerValidators()
	return &AuthController{service: service}
}

func (ac *AuthController) Register(c *gin.Context) {
	var req models.RegisterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		apperrors.Abort(c, bindError(err))
		return
	}

	resp, err := ac.service.Register(c.Request.Context(), req.Username, req.Password)
	if err != nil {
		apperrors.Abort(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{
		"message":   "Account created successfully",
		"token":     resp.Token,
		"expiresAt": resp.ExpiresAt,
		"user":      resp.User,
	})
}

func (ac *AuthController) Login(c *gin.Context) {
	var req models.LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		apperrors.Abort(c, bindError(err))
		return
	}

	resp, err := ac.service.Login(c.Request.Context(), req.Username, req.Password)
	if err != nil {
		apperrors.Abort(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"message":   "Logged in successfully",
		"token":     resp.Token,
		"expiresAt": resp.ExpiresAt,
		"user":      resp.User,
	})
}

func (ac *AuthController) Profile(c *gin.Context) {
	user, err := ac.service.Profile(c.Request.Context(), middleware.GetUserID(c))
	if err != nil {
		apperrors.Abort(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"user": user})
}

func (ac *AuthController) ChangePassword(c *gin.Context) {
	var req models.ChangePasswordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		apperrors.Abort(c, bindError(err))
		return
	}

	if err := ac.service.ChangePassword(c.Request.Context(), middleware.GetUserID(c), req.CurrentPassword, req.NewPassword); err != nil {
		apperrors.Abort(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Password changed successfully"})
}

func (ac *AuthController) Logout(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		apperrors.Abort(c, apperrors.Unauthorized("Access token required"))
		return
	}
	if err := ac.service.Logout(c.Request.Context(), claims); err != nil {
		apperrors.Abort(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Logged out successfully"})
}

func (ac *AuthController) CheckUsername(c *gin.Context) {
	username := c.Param("username")
	available, err := ac.service.CheckUsername(c.Request.Context(), username)
	if err != nil {
		apperrors.Abort(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"username": username, "available": available})
}

func (ac *AuthController) SecurityStatus(c *gin.Context) {
	status, err := ac.service.SecurityStatus(c.Request.Context(), middleware.GetUserID(c))
	if err != nil {
		apperrors.Abort(c, err)
		return
	}
	c.JSON(http.StatusOK, status)
}
