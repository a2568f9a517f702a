package sync

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/ceramicnetwork/anchor-syncer/src/gateway/request"
	"github.com/ceramicnetwork/anchor-syncer/src/gateway/response"
	"github.com/ceramicnetwork/anchor-syncer/src/streams"
	"github.com/ceramicnetwork/anchor-syncer/src/utils/config"
	"github.com/ceramicnetwork/anchor-syncer/src/utils/model"
	"github.com/ceramicnetwork/anchor-syncer/src/utils/task"

	"github.com/gin-gonic/gin"
	"github.com/teivah/onecontext"
)

// Stream index surface used by the API
type ModelStore interface {
	IndexedModels(ctx context.Context) ([]string, error)
	AddModels(ctx context.Context, modelIds []string) error
	RemoveModels(ctx context.Context, modelIds []string) error
	ListAnchors(ctx context.Context, modelId string, limit int) ([]*model.AnchorCommitment, error)
}

// REST API server. Serves sync status, model administration and anchor queries
type Server struct {
	*task.Task

	httpServer *http.Server
	Router     *gin.Engine

	syncer *Syncer
	store  ModelStore
}

func NewServer(config *config.Config) (self *Server) {
	self = new(Server)

	self.Task = task.NewTask(config, "server").
		WithSubtaskFunc(self.run).
		WithOnStop(self.stop)

	if config.IsDevelopment {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	self.Router = gin.New()

	self.httpServer = &http.Server{
		Addr:    config.Gateway.RESTListenAddress,
		Handler: self.Router,
	}

	self.registerRoutes()
	return
}

func (self *Server) WithSyncer(v *Syncer) *Server {
	self.syncer = v
	return self
}

func (self *Server) WithStore(v ModelStore) *Server {
	self.store = v
	return self
}

func (self *Server) registerRoutes() {
	v1 := self.Router.Group("v1")
	{
		v1.GET("sync/status", self.onGetStatus)
		v1.GET("models", self.onGetModels)
		v1.GET("models/:id/anchors", self.onGetAnchors)

		admin := v1.Group("admin")
		{
			admin.POST("models", self.onStartModelSync)
			admin.DELETE("models", self.onStopModelSync)
		}
	}
}

func (self *Server) run() (err error) {
	err = self.httpServer.ListenAndServe()
	if err != nil && err != http.ErrServerClosed {
		self.Log.WithError(err).Error("Failed to start REST server")
		return
	}
	return nil
}

func (self *Server) stop() {
	ctx, cancel := context.WithTimeout(context.Background(), self.Config.StopTimeout)
	defer cancel()

	err := self.httpServer.Shutdown(ctx)
	if err != nil {
		self.Log.WithError(err).Error("Failed to gracefully shutdown REST server")
		return
	}
}

// Merged context, cancelled when either the request or the task stops
func (self *Server) requestContext(c *gin.Context) (context.Context, context.CancelFunc) {
	return onecontext.Merge(c.Request.Context(), self.Ctx)
}

func (self *Server) onGetStatus(c *gin.Context) {
	ctx, cancel := self.requestContext(c)
	defer cancel()

	status, err := self.syncer.SyncStatus(ctx)
	if err != nil {
		self.Log.WithError(err).Error("Failed to get sync status")
		c.AbortWithStatus(http.StatusInternalServerError)
		return
	}

	c.JSON(http.StatusOK, status)
}

func (self *Server) onGetModels(c *gin.Context) {
	ctx, cancel := self.requestContext(c)
	defer cancel()

	modelIds, err := self.store.IndexedModels(ctx)
	if err != nil {
		self.Log.WithError(err).Error("Failed to list indexed models")
		c.AbortWithStatus(http.StatusInternalServerError)
		return
	}

	c.JSON(http.StatusOK, response.ModelsToResponse(modelIds, self.syncer.SyncComplete))
}

func (self *Server) onGetAnchors(c *gin.Context) {
	limit := self.Config.Gateway.DefaultPageSize
	if v := c.Query("limit"); v != "" {
		parsed, err := strconv.Atoi(v)
		if err != nil || parsed <= 0 {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "limit must be a positive integer"})
			return
		}
		limit = parsed
	}
	if limit > self.Config.Gateway.MaxPageSize {
		limit = self.Config.Gateway.MaxPageSize
	}

	ctx, cancel := self.requestContext(c)
	defer cancel()

	anchors, err := self.store.ListAnchors(ctx, c.Param("id"), limit)
	if err != nil {
		if errors.Is(err, streams.ErrModelNotSynced) {
			c.AbortWithStatusJSON(http.StatusServiceUnavailable, gin.H{"error": err.Error()})
			return
		}
		self.Log.WithError(err).Error("Failed to list anchors")
		c.AbortWithStatus(http.StatusInternalServerError)
		return
	}

	c.JSON(http.StatusOK, response.AnchorsToResponse(anchors))
}

func (self *Server) onStartModelSync(c *gin.Context) {
	var in request.StartModelSync
	err := c.ShouldBindJSON(&in)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if len(in.Models) == 0 {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "models is required"})
		return
	}
	if in.FromBlock < 0 || in.ToBlock < in.FromBlock {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid block range"})
		return
	}

	ctx, cancel := self.requestContext(c)
	defer cancel()

	err = self.store.AddModels(ctx, in.Models)
	if err != nil {
		self.Log.WithError(err).Error("Failed to enroll models")
		c.AbortWithStatus(http.StatusInternalServerError)
		return
	}

	err = self.syncer.StartModelSync(ctx, in.FromBlock, in.ToBlock, in.Models...)
	if err != nil {
		self.Log.WithError(err).Error("Failed to start model sync")
		c.AbortWithStatus(http.StatusInternalServerError)
		return
	}

	c.JSON(http.StatusCreated, response.ModelsToResponse(in.Models, self.syncer.SyncComplete))
}

func (self *Server) onStopModelSync(c *gin.Context) {
	var in request.StopModelSync
	err := c.ShouldBindJSON(&in)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if len(in.Models) == 0 {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "models is required"})
		return
	}

	// Running jobs finish on their own, only future scheduling stops
	self.syncer.StopModelSync(in.Models...)

	ctx, cancel := self.requestContext(c)
	defer cancel()

	err = self.store.RemoveModels(ctx, in.Models)
	if err != nil {
		self.Log.WithError(err).Error("Failed to remove model enrollment")
		c.AbortWithStatus(http.StatusInternalServerError)
		return
	}

	c.Status(http.StatusNoContent)
}
