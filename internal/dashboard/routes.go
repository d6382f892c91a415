package dashboard

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/pactops/fieldops/internal/alerts"
	"github.com/pactops/fieldops/internal/autorelease"
	"github.com/pactops/fieldops/internal/budget"
)

// registerRoutes sets up all dashboard routes on the Gin router.
func registerRoutes(router *gin.Engine, db *gorm.DB) {
	router.GET("/healthz", handleHealth(db))

	api := router.Group("/api")
	api.GET("/budgets", handleBudgetList(db))
	api.GET("/budgets/:id", handleBudgetDetail(db))
	api.GET("/budgets/:id/alerts", handleBudgetAlerts(db))
	api.GET("/budgets/:id/check", handleBudgetCheck(db))
	api.GET("/projects/:id/summary", handleProjectSummary(db))
	api.GET("/alerts", handleAlertList(db))
	api.POST("/alerts/:id/acknowledge", handleAlertAcknowledge(db))
	api.GET("/users/:id/notifications", handleUserNotifications(db))
	api.GET("/visits", handleVisitList(db))
	api.GET("/visits/:id/check", handleVisitCheck(db))

	// SSE stream of newly created active alerts.
	api.GET("/events", handleSSE(db))
}

func handleHealth(db *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		sqlDB, err := db.DB()
		if err != nil || sqlDB.Ping() != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "degraded"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	}
}

func handleBudgetList(db *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		rows, err := BudgetList(db, BudgetFilters{
			ProjectID: c.Query("project"),
			PlanID:    c.Query("plan"),
			Status:    c.Query("status"),
		})
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"budgets": rows, "count": len(rows)})
	}
}

func handleBudgetDetail(db *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		detail, err := GetBudgetDetail(db, c.Param("id"))
		if err != nil {
			if errors.Is(err, budget.ErrNotFound) {
				c.JSON(http.StatusNotFound, gin.H{"error": "budget not found"})
				return
			}
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, detail)
	}
}

func handleBudgetAlerts(db *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		rows, err := alerts.ListForBudget(db, c.Param("id"), c.Query("status"))
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"alerts": rows, "count": len(rows)})
	}
}

func handleBudgetCheck(db *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		amount, err := strconv.ParseInt(c.Query("amount"), 10, 64)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "amount must be an integer (cents)"})
			return
		}
		res, err := budget.CheckRestriction(db, c.Param("id"), amount)
		if err != nil {
			if errors.Is(err, budget.ErrNotFound) {
				c.JSON(http.StatusNotFound, gin.H{"error": "budget not found"})
				return
			}
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, res)
	}
}

func handleProjectSummary(db *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		summary, err := budget.ProjectSummary(db, c.Param("id"))
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, summary)
	}
}

func handleAlertList(db *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		rows, err := AlertList(db, c.Query("status"), c.Query("severity"))
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"alerts": rows, "count": len(rows)})
	}
}

func handleAlertAcknowledge(db *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, err := strconv.ParseUint(c.Param("id"), 10, 32)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid alert id"})
			return
		}
		var body struct {
			Actor string `json:"actor" binding:"required"`
		}
		if err := c.ShouldBindJSON(&body); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "actor is required"})
			return
		}
		if err := alerts.Acknowledge(db, uint(id), body.Actor); err != nil {
			c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"acknowledged": true})
	}
}

func handleUserNotifications(db *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		unreadOnly := c.Query("unread") == "true"
		rows, err := UserNotifications(db, c.Param("id"), unreadOnly)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"notifications": rows, "count": len(rows)})
	}
}

func handleVisitList(db *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		rows, err := VisitList(db, c.Query("status"), c.Query("confirmation"))
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"visits": rows, "count": len(rows)})
	}
}

func handleVisitCheck(db *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		release, reason := autorelease.CheckVisit(db, c.Param("id"), time.Now())
		c.JSON(http.StatusOK, gin.H{"wouldRelease": release, "reason": reason})
	}
}
