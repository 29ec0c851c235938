package server

import (
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	userdomain "github.com/smallbiznis/tasklane/internal/user/domain"
)

type createOrganizationRequest struct {
	Name string  `json:"name" binding:"required"`
	Slug *string `json:"slug"`
}

type updateOrganizationRequest struct {
	Name     *string `json:"name"`
	Slug     *string `json:"slug"`
	Logo     *string `json:"logo"`
	Metadata *string `json:"metadata"`
}

func (s *Server) ListOrganizations(c *gin.Context) {
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

	c.JSON(http.StatusOK, gin.H{"data": orgs})
}

func (s *Server) CreateOrganization(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		return
	}

	var req createOrganizationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	org, err := s.usersvc.CreateOrganization(c.Request.Context(), user, userdomain.CreateOrganizationRequest{
		Name: req.Name,
		Slug: req.Slug,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"data": org})
}

func (s *Server) UpdateOrganization(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		return
	}
	orgID, ok := pathID(c, "id")
	if !ok {
		return
	}

	var req updateOrganizationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	org, err := s.usersvc.UpdateOrganization(c.Request.Context(), user, orgID, userdomain.UpdateOrganizationRequest{
		Name:     req.Name,
		Slug:     req.Slug,
		Logo:     req.Logo,
		Metadata: req.Metadata,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": org})
}

func (s *Server) DeleteOrganization(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		return
	}
	orgID, ok := pathID(c, "id")
	if !ok {
		return
	}

	if err := s.usersvc.DeleteOrganization(c.Request.Context(), user, orgID); err != nil {
		AbortWithError(c, err)
		return
	}

	c.Status(http.StatusNoContent)
}

// UploadOrganizationLogo reads the multipart "file" field. Bodies over the
// logo limit are cut off one byte past it so the service can reject them.
func (s *Server) UploadOrganizationLogo(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		return
	}
	orgID, ok := pathID(c, "id")
	if !ok {
		return
	}

	header, err := c.FormFile("file")
	if err != nil {
		if errors.Is(err, http.ErrMissingFile) {
			AbortWithError(c, newValidationError("file", "required", "file is required"))
			return
		}
		AbortWithError(c, invalidRequestError())
		return
	}

	file, err := header.Open()
	if err != nil {
		AbortWithError(c, err)
		return
	}
	defer file.Close()

	data, err := io.ReadAll(io.LimitReader(file, userdomain.MaxLogoBytes+1))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	result, err := s.usersvc.UploadOrganizationLogo(c.Request.Context(), user, orgID, userdomain.UploadLogoRequest{
		Data:     data,
		Filename: header.Filename,
		MimeType: header.Header.Get("Content-Type"),
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": result})
}
