package server

import (
	"net/http"

	"github.com/gin-gonic/gin"
	taskdomain "github.com/smallbiznis/tasklane/internal/task/domain"
)

type addTaskRequest struct {
	ID          string `json:"id"`
	Description string `json:"description" binding:"required"`
}

func (s *Server) ListTasks(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		return
	}

	tasks, err := s.tasksvc.ListMyTasks(c.Request.Context(), user)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	if tasks == nil {
		tasks = []taskdomain.Task{}
	}

	c.JSON(http.StatusOK, gin.H{"data": tasks})
}

func (s *Server) AddTask(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		return
	}

	var req addTaskRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	task, err := s.tasksvc.AddTask(c.Request.Context(), user, taskdomain.AddTaskRequest{
		ID:          req.ID,
		Description: req.Description,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"data": task})
}

func (s *Server) DeleteTask(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		return
	}

	if err := s.tasksvc.DeleteTask(c.Request.Context(), user, c.Param("id")); err != nil {
		AbortWithError(c, err)
		return
	}

	c.Status(http.StatusNoContent)
}
