package classroom

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

// ActorFunc resolves the caller's user id and Google access token from the
// request session.
type ActorFunc func(c *gin.Context) (ownerID, token string, err error)

func courseJSON(co *Course) gin.H {
	return gin.H{
		"id":          co.ID,
		"googleId":    co.GoogleID,
		"name":        co.Name,
		"section":     co.Section,
		"description": co.Description,
		"room":        co.Room,
	}
}

func assignmentJSON(a *Assignment) gin.H {
	out := gin.H{
		"id":          a.ID,
		"googleId":    a.GoogleID,
		"courseId":    a.CourseID,
		"title":       a.Title,
		"description": a.Description,
		"materials":   a.Materials,
	}
	if a.DueDate != nil {
		out["dueDate"] = a.DueDate.Format(time.RFC3339)
	}
	return out
}

func respond(c *gin.Context, err error) {
	switch {
	case errors.Is(err, ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error(), "kind": "not_found"})
	default:
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error(), "kind": "classroom_unavailable"})
	}
}

// RegisterClassroomRoutes wires the course and assignment endpoints. Listing
// endpoints sync from the remote provider first so the cache tracks what the
// user sees in their classroom, then serve from the cache.
func RegisterClassroomRoutes(r gin.IRouter, svc *Service, actorOf ActorFunc) {
	withActor := func(fn func(c *gin.Context, ownerID, token string)) gin.HandlerFunc {
		return func(c *gin.Context) {
			ownerID, token, err := actorOf(c)
			if err != nil {
				c.JSON(http.StatusUnauthorized, gin.H{"error": "not authenticated"})
				return
			}
			fn(c, ownerID, token)
		}
	}

	r.GET("/api/courses", withActor(func(c *gin.Context, ownerID, token string) {
		list, err := svc.SyncCourses(c.Request.Context(), ownerID, token)
		if err != nil {
			respond(c, err)
			return
		}
		out := make([]gin.H, 0, len(list))
		for _, co := range list {
			out = append(out, courseJSON(co))
		}
		c.JSON(http.StatusOK, out)
	}))

	r.GET("/api/courses/:id", withActor(func(c *gin.Context, ownerID, token string) {
		co, err := svc.GetCourse(c.Request.Context(), c.Param("id"), ownerID)
		if err != nil {
			respond(c, err)
			return
		}
		c.JSON(http.StatusOK, courseJSON(co))
	}))

	r.GET("/api/courses/:id/assignments", withActor(func(c *gin.Context, ownerID, token string) {
		list, err := svc.SyncAssignments(c.Request.Context(), ownerID, token, c.Param("id"))
		if err != nil {
			respond(c, err)
			return
		}
		out := make([]gin.H, 0, len(list))
		for _, a := range list {
			out = append(out, assignmentJSON(a))
		}
		c.JSON(http.StatusOK, out)
	}))

	r.GET("/api/assignments/:id", withActor(func(c *gin.Context, ownerID, token string) {
		a, err := svc.GetAssignment(c.Request.Context(), c.Param("id"), ownerID)
		if err != nil {
			respond(c, err)
			return
		}
		c.JSON(http.StatusOK, assignmentJSON(a))
	}))
}
