package server

import (
	"net/http"

	"github.com/gin-gonic/gin"
	userdomain "github.com/smallbiznis/tasklane/internal/user/domain"
)

type changeRoleRequest struct {
	Role string `json:"role" binding:"required"`
}

func (s *Server) ChangeMemberRole(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		return
	}
	orgID, ok := pathID(c, "id")
	if !ok {
		return
	}
	memberID, ok := pathID(c, "memberId")
	if !ok {
		return
	}

	var req changeRoleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	member, err := s.usersvc.ChangeRole(c.Request.Context(), user, orgID, memberID, userdomain.Role(req.Role))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": member})
}

func (s *Server) RemoveMember(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		return
	}
	orgID, ok := pathID(c, "id")
	if !ok {
		return
	}
	memberID, ok := pathID(c, "memberId")
	if !ok {
		return
	}

	if err := s.usersvc.RemoveMember(c.Request.Context(), user, orgID, memberID); err != nil {
		AbortWithError(c, err)
		return
	}

	c.Status(http.StatusNoContent)
}
