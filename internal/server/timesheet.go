package server

import (
	"net/http"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	timesheetdomain "github.com/smallbiznis/carebill/internal/timesheet/domain"
)

type overlapCheckRequest struct {
	ProviderID         string                       `json:"provider_id" binding:"required"`
	ClientID           string                       `json:"client_id" binding:"required"`
	ExcludeTimesheetID string                       `json:"exclude_timesheet_id"`
	IsSupervisory      bool                         `json:"is_supervisory"`
	Entries            []timesheetdomain.EntryInput `json:"entries" binding:"required,min=1,dive"`
}

func (s *Server) CreateTimesheet(c *gin.Context) {
	var req timesheetdomain.CreateTimesheetRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, bindError(err))
		return
	}

	item, err := s.timesheetSvc.Create(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"data": item})
}

func (s *Server) GetTimesheet(c *gin.Context) {
	id, err := pathID(c, "id")
	if err != nil {
		AbortWithError(c, err)
		return
	}

	item, err := s.timesheetSvc.Get(c.Request.Context(), id)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": item})
}

func (s *Server) UpdateTimesheet(c *gin.Context) {
	id, err := pathID(c, "id")
	if err != nil {
		AbortWithError(c, err)
		return
	}

	var req timesheetdomain.UpdateTimesheetRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, bindError(err))
		return
	}

	item, err := s.timesheetSvc.Update(c.Request.Context(), id, req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": item})
}

func (s *Server) ApproveTimesheet(c *gin.Context) {
	id, err := pathID(c, "id")
	if err != nil {
		AbortWithError(c, err)
		return
	}

	item, err := s.timesheetSvc.Approve(c.Request.Context(), id)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": item})
}

func (s *Server) DeleteTimesheet(c *gin.Context) {
	id, err := pathID(c, "id")
	if err != nil {
		AbortWithError(c, err)
		return
	}

	if err := s.timesheetSvc.Delete(c.Request.Context(), id); err != nil {
		AbortWithError(c, err)
		return
	}

	c.Status(http.StatusNoContent)
}

// CheckTimesheetOverlaps previews conflicts without writing anything.
func (s *Server) CheckTimesheetOverlaps(c *gin.Context) {
	var req overlapCheckRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, bindError(err))
		return
	}

	providerID, err := snowflake.ParseString(strings.TrimSpace(req.ProviderID))
	if err != nil || providerID <= 0 {
		AbortWithError(c, newValidationError("provider_id", "invalid_provider_id", "invalid provider_id"))
		return
	}
	clientID, err := snowflake.ParseString(strings.TrimSpace(req.ClientID))
	if err != nil || clientID <= 0 {
		AbortWithError(c, newValidationError("client_id", "invalid_client_id", "invalid client_id"))
		return
	}
	excludeID, err := parseOptionalSnowflakeID(req.ExcludeTimesheetID)
	if err != nil {
		AbortWithError(c, newValidationError("exclude_timesheet_id", "invalid_exclude_timesheet_id", "invalid exclude_timesheet_id"))
		return
	}

	conflicts, err := s.timesheetSvc.CheckOverlaps(c.Request.Context(), timesheetdomain.OverlapRequest{
		ProviderID:         providerID,
		ClientID:           clientID,
		Entries:            req.Entries,
		ExcludeTimesheetID: excludeID,
		Supervisory:        req.IsSupervisory,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"data": gin.H{
			"has_overlaps": len(conflicts) > 0,
			"conflicts":    conflicts,
		},
	})
}
