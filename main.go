package main

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strconv"
	"time"

	"linkboard/config"
	"linkboard/models"
	"linkboard/services"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

var (
	submissionsCounter prometheus.Counter
	votesCounter       prometheus.Counter
	decisionsCounter   prometheus.Counter
)

func init() {
	submissionsCounter = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "content_submissions_total",
			Help: "Total number of content submissions accepted (created or updated).",
		},
	)
	votesCounter = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "relationship_votes_cast_total",
			Help: "Total number of relationship votes cast or recast.",
		},
	)
	decisionsCounter = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "suggestion_decisions_total",
			Help: "Total number of suggestion transitions completed by moderators.",
		},
	)
	prometheus.MustRegister(submissionsCounter, votesCounter, decisionsCounter)
}

// sessionMiddleware löst das Session-Token zu einem Actor auf. Fehlende
// oder ungültige Tokens sind nie fatal: der Request läuft anonym weiter.
func sessionMiddleware(actors *services.ActorService) gin.HandlerFunc {
	return func(c *gin.Context) {
		if actor := actors.Resolve(c.GetHeader("X-Session-Token")); actor != nil {
			c.Set("actor", actor)
		}
		c.Next()
	}
}

func currentActor(c *gin.Context) *services.Actor {
	if v, ok := c.Get("actor"); ok {
		if actor, ok := v.(*services.Actor); ok {
			return actor
		}
	}
	return nil
}

func statusForCode(code services.ErrorCode) int {
	switch code {
	case services.CodeValidation, services.CodeSelfPair:
		return http.StatusBadRequest
	case services.CodeUnauthenticated:
		return http.StatusUnauthorized
	case services.CodeForbidden:
		return http.StatusForbidden
	case services.CodeNotFound:
		return http.StatusNotFound
	case services.CodeDuplicatePending, services.CodeInvalidTransition:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// fail rendert einen Service-Fehler als stabiles Error-Envelope.
func fail(c *gin.Context, err error) {
	if se, ok := services.AsServiceError(err); ok {
		c.JSON(statusForCode(se.Code), gin.H{"success": false, "error": se})
		return
	}
	c.JSON(http.StatusInternalServerError, gin.H{
		"success": false,
		"error":   gin.H{"code": services.CodePersistence, "message": "internal error"},
	})
}

func main() {
	logging, err := zap.NewProduction()
	if err != nil {
		log.Fatalf("can't initialize zap logger: %v", err)
	}
	defer logging.Sync()

	cfg, err := config.Load()
	if err != nil {
		logging.Fatal("Config load error", zap.Error(err))
	}

	db, err := gorm.Open(postgres.Open(cfg.DSN()), &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent),
		TranslateError: true,
	})
	if err != nil {
		logging.Fatal("Failed to connect to database", zap.Error(err))
	}
	logging.Info("Successfully connected to database.")

	logging.Info("Running database auto-migration...")
	if err := models.AutoMigrate(db); err != nil {
		logging.Fatal("Auto-migration failed", zap.Error(err))
	}

	// Setup Services
	actors := services.NewActorService(db, logging)
	tags := services.NewTagService(db, logging)
	votes := services.NewVoteService(db, logging)
	suggestions := services.NewSuggestionService(db, logging, votes)

	var notifier services.Notifier = services.NoopNotifier{}
	if cfg.ApprovalWebhookURL != "" {
		notifier = services.NewWebhookNotifier(cfg.ApprovalWebhookURL, cfg.NotifyTimeout(), logging)
		logging.Info("Approval webhook notifier enabled")
	} else {
		logging.Warn("No approval webhook configured, notifications are discarded")
	}
	submissions := services.NewSubmissionService(db, logging, tags, notifier, cfg.NotifyTimeout())

	seedDefaultTags(db, tags, logging)

	// Setup Router
	router := gin.Default()
	router.Use(gin.Recovery())
	router.Use(sessionMiddleware(actors))
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))
	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "healthy", "service": "linkboard"})
	})

	// Setup Routes
	setupContentRoutes(router, db, submissions, logging)
	setupVoteRoutes(router, votes)
	setupTagRoutes(router, tags)
	setupSuggestionRoutes(router, suggestions)

	// Setup Cron: usage_count lazy neu berechnen
	cronScheduler := cron.New()
	cronScheduler.AddFunc(cfg.TagRecountSchedule, func() {
		logging.Info("Running scheduled tag usage recount...")
		if _, err := tags.RecountUsage(context.Background()); err != nil {
			logging.Error("Tag recount job failed", zap.Error(err))
		}
	})
	cronScheduler.Start()

	logging.Info("Starting server", zap.String("port", cfg.HTTPPort))
	srv := &http.Server{
		Addr:              ":" + cfg.HTTPPort,
		Handler:           router,
		ReadTimeout:       30 * time.Second,
		ReadHeaderTimeout: 15 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       120 * time.Second,
	}
	if err := srv.ListenAndServe(); err != nil {
		logging.Fatal("Failed to run server", zap.Error(err))
	}
}

func setupContentRoutes(router *gin.Engine, db *gorm.DB, submissions *services.SubmissionService, log *zap.Logger) {
	rg := router.Group("/content")

	// POST - Submission Gate; Identität optional, anonym landet in pending
	rg.POST("", func(c *gin.Context) {
		var draft services.ContentDraft
		if err := c.ShouldBindJSON(&draft); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{
				"success": false,
				"error":   gin.H{"code": services.CodeValidation, "message": "invalid request body"},
			})
			return
		}

		content, action, err := submissions.Submit(&draft, currentActor(c))
		if err != nil {
			fail(c, err)
			return
		}
		submissionsCounter.Inc()

		status := http.StatusOK
		if action == services.ActionCreated {
			status = http.StatusCreated
		}
		c.JSON(status, gin.H{"success": true, "data": content, "action": action})
	})

	// GET - gefilterte, paginierte Liste
	rg.GET("", func(c *gin.Context) {
		query := db.Model(&models.Content{})

		if v := c.Query("approval_status"); v != "" {
			query = query.Where("approval_status = ?", v)
		}
		if v := c.Query("platform"); v != "" {
			query = query.Where("platform = ?", v)
		}
		if v := c.Query("channel"); v != "" {
			query = query.Where("channels @> ?", jsonbContainment(v))
		}
		if v := c.Query("tag"); v != "" {
			query = query.Where("tags @> ?", jsonbContainment(v))
		}
		if v := c.Query("submitted_after"); v != "" {
			if t, err := time.Parse(time.RFC3339, v); err == nil {
				query = query.Where("submitted_at >= ?", t)
			}
		}
		if v := c.Query("submitted_before"); v != "" {
			if t, err := time.Parse(time.RFC3339, v); err == nil {
				query = query.Where("submitted_at <= ?", t)
			}
		}

		var total int64
		if err := query.Count(&total).Error; err != nil {
			log.Error("Content count failed", zap.Error(err))
			fail(c, err)
			return
		}

		limit := parseIntDefault(c.Query("limit"), 50)
		if limit > 200 {
			limit = 200
		}
		offset := parseIntDefault(c.Query("offset"), 0)

		var contents []models.Content
		if err := query.Order("submitted_at desc").Limit(limit).Offset(offset).Find(&contents).Error; err != nil {
			log.Error("Content listing failed", zap.Error(err))
			fail(c, err)
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"success": true,
			"data":    contents,
			"meta":    gin.H{"total": total, "limit": limit, "offset": offset},
		})
	})

	// GET - einzelner Eintrag
	rg.GET("/:id", func(c *gin.Context) {
		var content models.Content
		if err := db.Where("id = ?", c.Param("id")).First(&content).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				fail(c, services.Errf(services.CodeNotFound, "content %s not found", c.Param("id")))
				return
			}
			log.Error("Content fetch failed", zap.String("id", c.Param("id")), zap.Error(err))
			fail(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"success": true, "data": content})
	})

	// POST - Moderator-Entscheidung über pending Content
	rg.POST("/:id/review", func(c *gin.Context) {
		var req struct {
			Action string `json:"action" binding:"required"`
			Reason string `json:"reason"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{
				"success": false,
				"error":   gin.H{"code": services.CodeValidation, "message": "action is required"},
			})
			return
		}

		content, err := submissions.Review(c.Param("id"), req.Action, req.Reason, currentActor(c))
		if err != nil {
			fail(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"success": true, "data": content})
	})
}

func setupVoteRoutes(router *gin.Engine, votes *services.VoteService) {
	rg := router.Group("/relationships")

	// POST - Stimme abgeben (Upsert, last-write-wins pro Voter)
	rg.POST("/vote", func(c *gin.Context) {
		var req struct {
			ContentID1 string `json:"contentId1" binding:"required"`
			ContentID2 string `json:"contentId2" binding:"required"`
			Vote       string `json:"vote" binding:"required"`
			Reason     string `json:"reason"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{
				"success": false,
				"error":   gin.H{"code": services.CodeValidation, "message": "contentId1, contentId2 and vote are required"},
			})
			return
		}

		vote, err := votes.Cast(req.ContentID1, req.ContentID2, currentActor(c), req.Vote, req.Reason)
		if err != nil {
			fail(c, err)
			return
		}
		votesCounter.Inc()
		c.JSON(http.StatusOK, gin.H{"success": true, "data": vote})
	})

	// GET - eigene Stimme (oder null)
	rg.GET("/vote", func(c *gin.Context) {
		vote, err := votes.Get(c.Query("contentId1"), c.Query("contentId2"), currentActor(c))
		if err != nil {
			fail(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"success": true, "data": vote})
	})

	// DELETE - idempotente Rücknahme
	rg.DELETE("/vote", func(c *gin.Context) {
		deleted, err := votes.Retract(c.Query("contentId1"), c.Query("contentId2"), currentActor(c))
		if err != nil {
			fail(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"success": true, "data": gin.H{"deleted": deleted}})
	})

	// GET - Tally eines Paars (Ranking-Signal, eventual consistent)
	rg.GET("/tally", func(c *gin.Context) {
		tally, err := votes.TallyFor(c.Query("contentId1"), c.Query("contentId2"))
		if err != nil {
			fail(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"success": true, "data": tally})
	})
}

func setupTagRoutes(router *gin.Engine, tags *services.TagService) {
	rg := router.Group("/tags")

	rg.GET("", func(c *gin.Context) {
		list, err := tags.List()
		if err != nil {
			fail(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"success": true, "data": list})
	})

	// POST - manueller Anstoß der usage_count-Neuberechnung
	rg.POST("/recount", func(c *gin.Context) {
		actor := currentActor(c)
		if !actor.IsModerator() {
			fail(c, services.Errf(services.CodeForbidden, "recounting tags requires the moderator role"))
			return
		}
		updated, err := tags.RecountUsage(c.Request.Context())
		if err != nil {
			fail(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"success": true, "data": gin.H{"updated": updated}})
	})
}

func setupSuggestionRoutes(router *gin.Engine, suggestions *services.SuggestionService) {
	rg := router.Group("/tags/relationships")

	// POST - neuen Kanten-Kandidaten vorschlagen
	rg.POST("/suggest", func(c *gin.Context) {
		var req struct {
			EntityA  string  `json:"entityA" binding:"required"`
			EntityB  string  `json:"entityB" binding:"required"`
			Type     string  `json:"relationshipType" binding:"required"`
			Strength float64 `json:"strength"`
			Reason   string  `json:"reason"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{
				"success": false,
				"error":   gin.H{"code": services.CodeValidation, "message": "entityA, entityB and relationshipType are required"},
			})
			return
		}

		suggestion, err := suggestions.Propose(req.EntityA, req.EntityB, req.Type, req.Strength, currentActor(c), req.Reason)
		if err != nil {
			fail(c, err)
			return
		}
		c.JSON(http.StatusCreated, gin.H{"success": true, "data": suggestion})
	})

	// GET - Moderations-Queue, paginiert mit meta.total
	rg.GET("/suggest", func(c *gin.Context) {
		status := c.DefaultQuery("status", models.SuggestionPending)
		limit := parseIntDefault(c.Query("limit"), 50)
		offset := parseIntDefault(c.Query("offset"), 0)

		list, total, err := suggestions.List(status, c.Query("sortBy"), limit, offset)
		if err != nil {
			fail(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{
			"success": true,
			"data":    list,
			"meta":    gin.H{"total": total, "limit": limit, "offset": offset},
		})
	})

	// POST - Einzel-Entscheidung, inkl. Modify-then-Approve
	rg.POST("/approve", func(c *gin.Context) {
		var req struct {
			SuggestionID string   `json:"suggestionId" binding:"required"`
			Action       string   `json:"action" binding:"required"`
			Strength     *float64 `json:"strength"`
			Type         *string  `json:"relationshipType"`
			MergeInto    *string  `json:"mergeInto"`
			Notes        string   `json:"notes"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{
				"success": false,
				"error":   gin.H{"code": services.CodeValidation, "message": "suggestionId and action are required"},
			})
			return
		}

		overrides := &services.DecideOverrides{
			Strength:  req.Strength,
			Type:      req.Type,
			MergeInto: req.MergeInto,
		}
		suggestion, err := suggestions.Decide(req.SuggestionID, req.Action, overrides, req.Notes, currentActor(c))
		if err != nil {
			fail(c, err)
			return
		}
		decisionsCounter.Inc()
		c.JSON(http.StatusOK, gin.H{"success": true, "data": suggestion})
	})

	// PUT - Batch; Partial Failures brechen den Call nicht ab
	rg.PUT("/approve", func(c *gin.Context) {
		var req struct {
			SuggestionIDs []string `json:"suggestionIds" binding:"required"`
			Action        string   `json:"action" binding:"required"`
			Notes         string   `json:"notes"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{
				"success": false,
				"error":   gin.H{"code": services.CodeValidation, "message": "suggestionIds and action are required"},
			})
			return
		}

		result, err := suggestions.DecideBatch(req.SuggestionIDs, req.Action, req.Notes, currentActor(c))
		if err != nil {
			fail(c, err)
			return
		}
		decisionsCounter.Add(float64(result.Succeeded))
		c.JSON(http.StatusOK, gin.H{"success": true, "data": result})
	})
}

func seedDefaultTags(db *gorm.DB, tags *services.TagService, logger *zap.Logger) {
	var count int64
	db.Model(&models.Tag{}).Count(&count)
	if count > 0 {
		return
	}
	defaults := []string{"ai", "machine-learning", "generative-art", "3d", "tutorial"}
	if err := tags.Ensure(defaults); err != nil {
		logger.Warn("Failed to seed default tags", zap.Error(err))
	} else {
		logger.Info("Default tags seeded.")
	}
}

// jsonbContainment baut den Operanden für @>-Filter. Der Wert wird
// JSON-kodiert, damit Anführungszeichen im Query-Parameter kein
// invalides jsonb erzeugen.
func jsonbContainment(v string) string {
	operand, _ := json.Marshal([]string{v})
	return string(operand)
}

func parseIntDefault(raw string, def int) int {
	if raw == "" {
		return def
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v < 0 {
		return def
	}
	return v
}
