package httpapi

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"herdsync/internal/core"
	"herdsync/pkg/domain"
)

func (s *Server) listFarmers(c *gin.Context) {
	farmers, err := s.app.Farmers(c.Request.Context())
	if err != nil {
		s.writeError(c, err)
		return
	}
	ok(c, farmers)
}

func (s *Server) submitFarmer(c *gin.Context) {
	var rec domain.FarmerRecord
	if err := c.ShouldBindJSON(&rec); err != nil {
		fail(c, http.StatusBadRequest, formatBindingError(err))
		return
	}
	out, err := s.app.SubmitFarmer(c.Request.Context(), rec)
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, successResponse{Data: out})
}

func (s *Server) listOfftakes(c *gin.Context) {
	offtakes, err := s.app.Offtakes(c.Request.Context())
	if err != nil {
		s.writeError(c, err)
		return
	}
	ok(c, offtakes)
}

func (s *Server) submitOfftake(c *gin.Context) {
	var req core.OfftakeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, formatBindingError(err))
		return
	}
	res, err := s.app.SubmitOfftake(c.Request.Context(), req)
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, successResponse{Data: res})
}

func (s *Server) clearOfftakes(c *gin.Context) {
	if err := s.app.ClearOfftakes(c.Request.Context()); err != nil {
		s.writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) pending(c *gin.Context) {
	counts, err := s.app.PendingCounts(c.Request.Context())
	if err != nil {
		s.writeError(c, err)
		return
	}
	ok(c, counts)
}

func (s *Server) syncNow(c *gin.Context) {
	rep, err := s.app.SyncNow(c.Request.Context())
	if err != nil && !errors.Is(err, core.ErrOffline) {
		// Partial passes still carry a report.
		s.logger.Error("sync pass failed", "error", err)
		c.JSON(http.StatusBadGateway, gin.H{"message": err.Error(), "data": rep})
		return
	}
	if err != nil {
		s.writeError(c, err)
		return
	}
	ok(c, rep)
}

func (s *Server) reports(c *gin.Context) {
	rep, err := s.app.Reports(c.Request.Context())
	if err != nil {
		s.writeError(c, err)
		return
	}
	ok(c, rep)
}

type countyDTO struct {
	County    string `json:"county" binding:"required"`
	Subcounty string `json:"subcounty,omitempty"`
}

func (s *Server) getCounty(c *gin.Context) {
	ctx := c.Request.Context()
	county, err := s.app.Settings().County(ctx)
	if err != nil {
		s.writeError(c, err)
		return
	}
	sub, err := s.app.Settings().Subcounty(ctx)
	if err != nil {
		s.writeError(c, err)
		return
	}
	ok(c, countyDTO{County: county, Subcounty: sub})
}

func (s *Server) putCounty(c *gin.Context) {
	var dto countyDTO
	if err := c.ShouldBindJSON(&dto); err != nil {
		fail(c, http.StatusBadRequest, formatBindingError(err))
		return
	}
	ctx := c.Request.Context()
	if err := s.app.Settings().SetCounty(ctx, dto.County); err != nil {
		s.writeError(c, err)
		return
	}
	if dto.Subcounty != "" {
		if err := s.app.Settings().SetSubcounty(ctx, dto.Subcounty); err != nil {
			s.writeError(c, err)
			return
		}
	}
	s.getCounty(c)
}
