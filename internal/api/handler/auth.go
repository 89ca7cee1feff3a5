package handler

import (
	"errors"
	"log"
	"net/http"
	"roomchat/backend/internal/auth"
	"roomchat/backend/internal/localization"
	"roomchat/backend/internal/storage"

	"github.com/gin-gonic/gin"
)

type registerRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required,min=5"`
	Nickname string `json:"nickname" binding:"required,max=32"`
}

type loginRequest struct {
	Email    string `json:"email" binding:"required"`
	Password string `json:"password" binding:"required"`
}

// Register creates a plain user account.
func (h *Handler) Register(c *gin.Context) {
	var req registerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.fail(c, http.StatusBadRequest, localization.KeyInvalidPayload)
		return
	}

	user, err := h.Auth.Register(c.Request.Context(), auth.RegisterInput{
		Email:    req.Email,
		Password: req.Password,
		Nickname: req.Nickname,
	})
	switch {
	case errors.Is(err, storage.ErrUserExists):
		h.fail(c, http.StatusBadRequest, localization.KeyUserExists)
		return
	case errors.Is(err, auth.ErrInvalidInput):
		h.fail(c, http.StatusBadRequest, localization.KeyInvalidPayload)
		return
	case err != nil:
		log.Printf("ERROR: Registration failed: %v", err)
		h.fail(c, http.StatusInternalServerError, localization.KeyServerError)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"message": h.text(localization.KeyRegistered), "id": user.ID})
}

// Login exchanges email and password for a bearer token.
func (h *Handler) Login(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.fail(c, http.StatusBadRequest, localization.KeyInvalidPayload)
		return
	}

	token, user, err := h.Auth.Login(c.Request.Context(), req.Email, req.Password)
	switch {
	case errors.Is(err, auth.ErrInvalidCredentials):
		h.fail(c, http.StatusUnauthorized, localization.KeyInvalidLogin)
		return
	case errors.Is(err, auth.ErrAccountBlocked):
		h.fail(c, http.StatusForbidden, localization.KeyAccountBlocked)
		return
	case err != nil:
		log.Printf("ERROR: Login failed: %v", err)
		h.fail(c, http.StatusInternalServerError, localization.KeyServerError)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"token":     token,
		"expiresIn": int(h.Auth.Tokens.TTL().Seconds()),
		"userId":    user.ID,
		"nickname":  user.Nickname,
		"role":      user.Role,
	})
}
