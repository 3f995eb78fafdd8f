package server

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	deliverydomain "github.com/smallbiznis/carebill/internal/delivery/domain"
)

type listQueueQuery struct {
	Status    string `form:"status"`
	PageToken string `form:"page_token"`
	PageSize  string `form:"page_size"`
}

type dispatchRequest struct {
	IDs        []string `json:"ids"`
	All        bool     `json:"all"`
	Recipients []string `json:"recipients"`
}

type failStuckRequest struct {
	IDs       []string `json:"ids"`
	Threshold string   `json:"threshold"`
	Reason    string   `json:"reason"`
}

func (s *Server) ListQueue(c *gin.Context) {
	var query listQueueQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}
	pageSize, err := parseOptionalInt(query.PageSize)
	if err != nil {
		AbortWithError(c, newValidationError("page_size", "invalid_page_size", "invalid page_size"))
		return
	}

	resp, err := s.queueSvc.List(c.Request.Context(), deliverydomain.ListRequest{
		Status:    deliverydomain.Status(strings.ToUpper(strings.TrimSpace(query.Status))),
		PageToken: strings.TrimSpace(query.PageToken),
		PageSize:  pageSize,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"data":            resp.Items,
		"next_page_token": resp.NextPageToken,
		"has_more":        resp.HasMore,
	})
}

// DispatchQueue claims the selected items and sends them as one batch. A batch
// that was attempted but failed still answers 200; the failure is in the body.
func (s *Server) DispatchQueue(c *gin.Context) {
	var req dispatchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, bindError(err))
		return
	}
	ids, err := parseIDList("ids", req.IDs)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	result, err := s.queueSvc.ClaimAndSend(c.Request.Context(), deliverydomain.DispatchRequest{
		IDs:        ids,
		All:        req.All,
		Recipients: req.Recipients,
	})
	if errors.Is(err, deliverydomain.ErrNothingToClaim) {
		c.JSON(http.StatusConflict, gin.H{
			"error": errorPayload{Type: "conflict", Message: err.Error()},
			"data":  result,
		})
		return
	}
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": result})
}

func (s *Server) RemoveQueueItem(c *gin.Context) {
	id, err := pathID(c, "id")
	if err != nil {
		AbortWithError(c, err)
		return
	}

	if err := s.queueSvc.Remove(c.Request.Context(), id); err != nil {
		AbortWithError(c, err)
		return
	}

	c.Status(http.StatusNoContent)
}

func (s *Server) RequeueItem(c *gin.Context) {
	id, err := pathID(c, "id")
	if err != nil {
		AbortWithError(c, err)
		return
	}

	item, err := s.queueSvc.Requeue(c.Request.Context(), id)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": item})
}

func (s *Server) ListStuckQueue(c *gin.Context) {
	threshold, err := parseOptionalDuration(c.Query("threshold"))
	if err != nil {
		AbortWithError(c, newValidationError("threshold", "invalid_threshold", "invalid threshold"))
		return
	}
	if threshold == 0 {
		threshold = s.recoveryThreshold()
	}

	items, err := s.queueSvc.ListStuck(c.Request.Context(), threshold)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"data":      items,
		"threshold": threshold.String(),
	})
}

// FailStuckQueue moves stuck SENDING items to FAILED. Omitting ids fails every
// item past the threshold.
func (s *Server) FailStuckQueue(c *gin.Context) {
	var req failStuckRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, bindError(err))
		return
	}
	ids, err := parseIDList("ids", req.IDs)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	threshold, err := parseOptionalDuration(req.Threshold)
	if err != nil {
		AbortWithError(c, newValidationError("threshold", "invalid_threshold", "invalid threshold"))
		return
	}
	if threshold == 0 {
		threshold = s.recoveryThreshold()
	}

	failed, err := s.queueSvc.FailStuck(c.Request.Context(), ids, threshold, req.Reason)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": gin.H{"failed": failed}})
}
