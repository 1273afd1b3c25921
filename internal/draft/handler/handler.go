package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/opencoder/opencoder/backend/go-services/internal/draft"
	"github.com/opencoder/opencoder/backend/go-services/internal/draft/service"
)

// ActorFunc resolves the authenticated caller from the request. It is
// supplied by the session layer so the handler stays free of auth details.
type ActorFunc func(c *gin.Context) (service.Actor, error)

func httpStatus(err error) int {
	switch draft.Kind(err) {
	case "not_found":
		return http.StatusNotFound
	case "forbidden":
		return http.StatusForbidden
	case "invalid_state":
		return http.StatusConflict
	case "generation_failed", "upload_failed":
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func respondError(c *gin.Context, err error) {
	c.JSON(httpStatus(err), gin.H{"error": err.Error(), "kind": draft.Kind(err)})
}

func draftJSON(d *draft.Draft) gin.H {
	out := gin.H{
		"id":           d.ID,
		"assignmentId": d.AssignmentID,
		"status":       d.Status,
		"content":      d.Content,
		"feedback":     d.Feedback,
		"createdAt":    d.CreatedAt,
		"updatedAt":    d.UpdatedAt,
	}
	if d.FailureReason != "" {
		out["failureReason"] = d.FailureReason
	}
	if d.SubmissionDate != nil {
		out["submissionDate"] = d.SubmissionDate
	}
	return out
}

// RegisterDraftRoutes wires the draft lifecycle endpoints.
func RegisterDraftRoutes(r gin.IRouter, svc *service.Service, actorOf ActorFunc) {
	withActor := func(fn func(c *gin.Context, actor service.Actor)) gin.HandlerFunc {
		return func(c *gin.Context) {
			actor, err := actorOf(c)
			if err != nil {
				c.JSON(http.StatusUnauthorized, gin.H{"error": "not authenticated"})
				return
			}
			fn(c, actor)
		}
	}

	r.POST("/api/assignments/:id/generate", withActor(func(c *gin.Context, actor service.Actor) {
		var req struct {
			Tone   string `json:"tone"`
			Length string `json:"length"`
			Rigor  string `json:"rigor"`
		}
		// body is optional; all params have server-side defaults
		if c.Request.ContentLength > 0 {
			if err := c.ShouldBindJSON(&req); err != nil {
				c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
				return
			}
		}
		d, err := svc.StartGeneration(c.Request.Context(), actor, c.Param("id"), draft.GenerationParams{
			Tone:   req.Tone,
			Length: req.Length,
			Rigor:  req.Rigor,
		})
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusAccepted, draftJSON(d))
	}))

	r.GET("/api/assignments/:id/drafts", withActor(func(c *gin.Context, actor service.Actor) {
		list, err := svc.ListByAssignment(c.Request.Context(), actor, c.Param("id"))
		if err != nil {
			respondError(c, err)
			return
		}
		out := make([]gin.H, 0, len(list))
		for _, d := range list {
			out = append(out, draftJSON(d))
		}
		c.JSON(http.StatusOK, out)
	}))

	r.GET("/api/drafts/:id", withActor(func(c *gin.Context, actor service.Actor) {
		d, err := svc.Get(c.Request.Context(), actor, c.Param("id"))
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, draftJSON(d))
	}))

	r.PUT("/api/drafts/:id", withActor(func(c *gin.Context, actor service.Actor) {
		var req struct {
			Content  string `json:"content"`
			Feedback string `json:"feedback"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		d, err := svc.Save(c.Request.Context(), actor, c.Param("id"), req.Content, req.Feedback)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, draftJSON(d))
	}))

	r.POST("/api/drafts/:id/retry", withActor(func(c *gin.Context, actor service.Actor) {
		d, err := svc.Retry(c.Request.Context(), actor, c.Param("id"))
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusAccepted, draftJSON(d))
	}))

	r.POST("/api/drafts/:id/export", withActor(func(c *gin.Context, actor service.Actor) {
		out, err := svc.ExportPDF(c.Request.Context(), actor, c.Param("id"))
		if err != nil {
			respondError(c, err)
			return
		}
		c.Header("Content-Disposition", `attachment; filename="`+out.Filename+`"`)
		c.Data(http.StatusOK, out.ContentType, out.Data)
	}))

	r.POST("/api/drafts/:id/submit", withActor(func(c *gin.Context, actor service.Actor) {
		res, err := svc.Submit(c.Request.Context(), actor, c.Param("id"))
		if err != nil {
			respondError(c, err)
			return
		}
		out := draftJSON(res.Draft)
		out["submissionId"] = res.SubmissionID
		out["driveFileId"] = res.DriveFileID
		c.JSON(http.StatusOK, out)
	}))

	r.GET("/api/drafts/:id/submission", withActor(func(c *gin.Context, actor service.Actor) {
		rec, url, err := svc.SubmissionReceipt(c.Request.Context(), actor, c.Param("id"))
		if err != nil {
			respondError(c, err)
			return
		}
		out := gin.H{"receipt": rec}
		if url != "" {
			out["downloadUrl"] = url
		}
		c.JSON(http.StatusOK, out)
	}))

	// Poll endpoint for generation progress. While the draft is still
	// generating the response carries a Retry-After hint; clients that prefer
	// push can subscribe to the Redis channel instead.
	r.GET("/api/drafts/:id/events", withActor(func(c *gin.Context, actor service.Actor) {
		d, err := svc.Get(c.Request.Context(), actor, c.Param("id"))
		if err != nil {
			respondError(c, err)
			return
		}
		if d.Status == draft.StatusGenerating {
			c.Header("Retry-After", "2")
		}
		out := gin.H{"id": d.ID, "status": d.Status, "updatedAt": d.UpdatedAt}
		if d.FailureReason != "" {
			out["failureReason"] = d.FailureReason
		}
		c.JSON(http.StatusOK, out)
	}))
}
