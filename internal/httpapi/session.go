package httpapi

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"herdsync/internal/session"
)

type sessionDTO struct {
	State  session.State `json:"state"`
	HasPIN bool          `json:"hasPin"`
}

func (s *Server) sessionState(c *gin.Context) {
	s.respondSession(c, s.app.Guard().State())
}

func (s *Server) respondSession(c *gin.Context, st session.State) {
	hasPIN, err := s.app.Guard().HasPIN(c.Request.Context())
	if err != nil {
		s.writeError(c, err)
		return
	}
	ok(c, sessionDTO{State: st, HasPIN: hasPIN})
}

type loginDTO struct {
	Email    string `json:"email" binding:"required"`
	Password string `json:"password" binding:"required"`
}

func (s *Server) login(c *gin.Context) {
	var dto loginDTO
	if err := c.ShouldBindJSON(&dto); err != nil {
		fail(c, http.StatusBadRequest, formatBindingError(err))
		return
	}
	st, err := s.app.Guard().SignIn(c.Request.Context(), dto.Email, dto.Password)
	if err != nil {
		s.writeError(c, err)
		return
	}
	s.respondSession(c, st)
}

type pinDTO struct {
	PIN     string `json:"pin" binding:"required"`
	Confirm string `json:"confirm"`
}

func (s *Server) createPIN(c *gin.Context) {
	var dto pinDTO
	if err := c.ShouldBindJSON(&dto); err != nil {
		fail(c, http.StatusBadRequest, formatBindingError(err))
		return
	}
	guard := s.app.Guard()
	if err := guard.CreatePIN(c.Request.Context(), dto.PIN, dto.Confirm); err != nil {
		s.writeError(c, err)
		return
	}
	s.respondSession(c, guard.State())
}

func (s *Server) unlock(c *gin.Context) {
	var dto pinDTO
	if err := c.ShouldBindJSON(&dto); err != nil {
		fail(c, http.StatusBadRequest, formatBindingError(err))
		return
	}
	st, err := s.app.Guard().EnterPIN(c.Request.Context(), dto.PIN)
	if err != nil {
		s.writeError(c, err)
		return
	}
	s.respondSession(c, st)
}

func (s *Server) logout(c *gin.Context) {
	guard := s.app.Guard()
	if err := guard.Logout(c.Request.Context()); err != nil {
		s.logger.Warn("logout incomplete", "error", err)
	}
	s.respondSession(c, guard.State())
}

type lifecycleDTO struct {
	Phase string `json:"phase" binding:"required"`
}

func (s *Server) lifecycle(c *gin.Context) {
	var dto lifecycleDTO
	if err := c.ShouldBindJSON(&dto); err != nil {
		fail(c, http.StatusBadRequest, formatBindingError(err))
		return
	}
	phase, err := session.ParseLifecycle(dto.Phase)
	if err != nil {
		fail(c, http.StatusBadRequest, err.Error())
		return
	}
	ctx := c.Request.Context()
	guard := s.app.Guard()
	switch phase {
	case session.Background:
		if err := guard.Background(ctx); err != nil {
			s.writeError(c, err)
			return
		}
		s.respondSession(c, guard.State())
	case session.Foreground:
		st, err := guard.Foreground(ctx)
		if err != nil {
			s.writeError(c, err)
			return
		}
		s.respondSession(c, st)
	}
}
