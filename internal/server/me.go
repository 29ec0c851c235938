package server

import (
	"net/http"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	userdomain "github.com/smallbiznis/tasklane/internal/user/domain"
)

type meResponse struct {
	ID            snowflake.ID              `json:"id"`
	Email         string                    `json:"email"`
	Name          *string                   `json:"name"`
	Organizations []userdomain.Organization `json:"organizations"`
}

type updatePreferencesRequest struct {
	Locale *string `json:"locale"`
	Theme  *string `json:"theme"`
}

type updateProfileRequest struct {
	Name string `json:"name"`
}

func (s *Server) Me(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		return
	}

	orgs, err := s.usersvc.ListOrganizations(c.Request.Context(), user)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	if orgs == nil {
		orgs = []userdomain.Organization{}
	}

	c.JSON(http.StatusOK, meResponse{
		ID:            user.ID,
		Email:         user.Email,
		Name:          user.Name,
		Organizations: orgs,
	})
}

func (s *Server) UpdatePreferences(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		return
	}

	var req updatePreferencesRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	updated, err := s.usersvc.UpdateUserPreferences(c.Request.Context(), user, userdomain.UpdatePreferencesRequest{
		Locale: req.Locale,
		Theme:  req.Theme,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": updated})
}

func (s *Server) UpdateProfile(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		return
	}

	var req updateProfileRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	updated, err := s.usersvc.UpdateProfile(c.Request.Context(), user, userdomain.UpdateProfileRequest{Name: req.Name})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": updated})
}
