package server

import (
	"errors"

	"github.com/gin-gonic/gin"
	authdomain "github.com/smallbiznis/tasklane/internal/auth/domain"
	obscontext "github.com/smallbiznis/tasklane/internal/observability/context"
	obslogger "github.com/smallbiznis/tasklane/internal/observability/logger"
	userdomain "github.com/smallbiznis/tasklane/internal/user/domain"
	"go.uber.org/zap"
)

const contextCurrentUserKey = "current_user"

// AuthRequired resolves the session token from the bearer header or the
// session cookie and stores the current user on the context.
func (s *Server) AuthRequired() gin.HandlerFunc {
	return func(c *gin.Context) {
		token, ok := s.sessions.ReadToken(c)
		if !ok {
			AbortWithError(c, ErrUnauthorized)
			return
		}

		user, err := s.authsvc.Authenticate(c.Request.Context(), token)
		if err != nil {
			if errors.Is(err, authdomain.ErrInvalidToken) || errors.Is(err, authdomain.ErrTokenExpired) {
				obslogger.FromContext(c.Request.Context()).Debug("session rejected", zap.Error(err))
				s.sessions.Clear(c)
				AbortWithError(c, ErrUnauthorized)
				return
			}
			AbortWithError(c, err)
			return
		}

		c.Set(contextCurrentUserKey, *user)
		c.Request = c.Request.WithContext(obscontext.WithActorID(c.Request.Context(), user.ID.String()))
		c.Next()
	}
}

// OrgContext tags the request context with the organization in the path.
func OrgContext() gin.HandlerFunc {
	return func(c *gin.Context) {
		if orgID := c.Param("id"); orgID != "" {
			c.Request = c.Request.WithContext(obscontext.WithOrgID(c.Request.Context(), orgID))
		}
		c.Next()
	}
}

func currentUser(c *gin.Context) (userdomain.CurrentUser, bool) {
	value, ok := c.Get(contextCurrentUserKey)
	if !ok {
		AbortWithError(c, ErrUnauthorized)
		return userdomain.CurrentUser{}, false
	}
	user, ok := value.(userdomain.CurrentUser)
	if !ok {
		AbortWithError(c, ErrUnauthorized)
		return userdomain.CurrentUser{}, false
	}
	return user, true
}
