package server

import (
	"context"
	"errors"
	"io"
	"net/http"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	userdomain "github.com/smallbiznis/tasklane/internal/user/domain"
)

type inviteMemberRequest struct {
	Email string `json:"email" binding:"required"`
	Role  string `json:"role"`
}

type respondInvitationRequest struct {
	AcceptAnyway bool `json:"accept_anyway"`
}

func (s *Server) InviteMember(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		return
	}
	orgID, ok := pathID(c, "id")
	if !ok {
		return
	}

	var req inviteMemberRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}
	role := userdomain.Role(req.Role)
	if req.Role == "" {
		role = userdomain.RoleMember
	}

	invitation, err := s.usersvc.InviteMember(c.Request.Context(), user, orgID, userdomain.InviteMemberRequest{
		Email: req.Email,
		Role:  role,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"data": invitation})
}

func (s *Server) CancelInvitation(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		return
	}
	orgID, ok := pathID(c, "id")
	if !ok {
		return
	}
	invitationID, ok := pathID(c, "invitationId")
	if !ok {
		return
	}

	if err := s.usersvc.CancelInvitation(c.Request.Context(), user, orgID, invitationID); err != nil {
		AbortWithError(c, err)
		return
	}

	c.Status(http.StatusNoContent)
}

func (s *Server) GetInvitation(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		return
	}
	invitationID, ok := pathID(c, "id")
	if !ok {
		return
	}

	view, err := s.usersvc.GetInvitation(c.Request.Context(), user, invitationID)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": view})
}

func (s *Server) AcceptInvitation(c *gin.Context) {
	s.respondInvitation(c, s.usersvc.AcceptInvitation)
}

func (s *Server) RejectInvitation(c *gin.Context) {
	s.respondInvitation(c, s.usersvc.RejectInvitation)
}

type invitationResponder func(ctx context.Context, user userdomain.CurrentUser, invitationID snowflake.ID, req userdomain.RespondInvitationRequest) (*userdomain.InvitationResponse, error)

// respondInvitation answers 200 with the outcome. An email mismatch is also
// a 200; the client repeats the call with accept_anyway set.
func (s *Server) respondInvitation(c *gin.Context, respond invitationResponder) {
	user, ok := currentUser(c)
	if !ok {
		return
	}
	invitationID, ok := pathID(c, "id")
	if !ok {
		return
	}

	var req respondInvitationRequest
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		AbortWithError(c, invalidRequestError())
		return
	}

	resp, err := respond(c.Request.Context(), user, invitationID, userdomain.RespondInvitationRequest{
		AcceptAnyway: req.AcceptAnyway,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}
