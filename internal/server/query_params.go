package server

import (
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
)

// pathID parses the snowflake id in path parameter name. Malformed ids are
// reported as not found, the same as ids that do not exist.
func pathID(c *gin.Context, name string) (snowflake.ID, bool) {
	parsed, err := snowflake.ParseString(strings.TrimSpace(c.Param(name)))
	if err != nil || parsed == 0 {
		AbortWithError(c, ErrNotFound)
		return 0, false
	}
	return parsed, true
}
