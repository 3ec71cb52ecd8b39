package server

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/wednesday-pm/taskrelay/internal/auth"
	"github.com/wednesday-pm/taskrelay/internal/realtime"
	"github.com/wednesday-pm/taskrelay/internal/users"
	"go.uber.org/zap"
)

type presencePayload struct {
	UserID            int64  `json:"userId"`
	Room              string `json:"room"`
	Online            bool   `json:"online"`
	ActiveConnections int    `json:"activeConnections"`
}

// handleSocket authenticates the handshake before upgrading. The token's
// subject is authoritative; a mismatched claimed user id is refused.
func (h *httpHandler) handleSocket(c *gin.Context) {
	handshake, err := auth.ExtractHandshake(c.Request)
	if err != nil {
		h.logger.Info("socket handshake rejected", zap.Error(err))
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}
	principal, err := h.tokens.ValidateToken(handshake.Token)
	if err != nil {
		h.logTokenFailure(err)
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}
	if h.revocations.IsRevoked(principal) {
		h.logger.Info("revoked token rejected", zap.Int64("user_id", principal.UserID))
		c.JSON(http.StatusUnauthorized, gin.H{"error": "token_revoked"})
		return
	}
	if principal.UserID != handshake.UserID {
		h.logger.Warn("socket handshake identity mismatch",
			zap.Int64("token_user_id", principal.UserID),
			zap.Int64("claimed_user_id", handshake.UserID))
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	err = h.hub.Serve(c.Writer, c.Request, realtime.Identity{UserID: principal.UserID, Token: handshake.Token})
	if err != nil && !errors.Is(err, realtime.ErrHubClosed) {
		h.logger.Debug("socket serve ended with error", zap.Int64("user_id", principal.UserID), zap.Error(err))
	}
}

func (h *httpHandler) handlePresence(c *gin.Context) {
	principal, ok := principalFromContext(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}
	userID, err := strconv.ParseInt(c.Param("userId"), 10, 64)
	if err != nil || userID <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_user_id"})
		return
	}
	if userID != principal.UserID && principal.Role != users.RoleAdmin {
		c.JSON(http.StatusForbidden, gin.H{"error": "forbidden"})
		return
	}

	registry := h.hub.Registry()
	c.JSON(http.StatusOK, presencePayload{
		UserID:            userID,
		Room:              realtime.RoomName(userID),
		Online:            registry.IsOnline(userID),
		ActiveConnections: registry.ActiveCount(userID),
	})
}
