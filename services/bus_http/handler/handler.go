package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"executor-go/commonlib/actor"
	"executor-go/commonlib/config"
	"executor-go/commonlib/log"
	"executor-go/commonlib/pool"
	"executor-go/commonlib/snowflake"
	"executor-go/infrastructure/health"
	"executor-go/infrastructure/presence"
	"executor-go/infrastructure/producer"
)

// =============================================================================
// Handler
// =============================================================================

// Deps are the collaborators of a Handler. Monitor and Presence are nil when
// disabled.
type Deps struct {
	Directory  actor.Directory
	Codec      actor.Codec
	Monitor    *health.Monitor
	Presence   presence.Store
	Pool       *pool.Pool
	HTTPWorker pool.Worker
	IDs        *snowflake.TypedID
	WebSocket  config.WebSocketConfig
	Logger     log.Logger
}

// Handler handles HTTP requests.
type Handler struct {
	Deps
	logger log.Logger
}

// NewHandler creates a new handler.
func NewHandler(deps Deps) *Handler {
	if deps.Codec == nil {
		deps.Codec = actor.JSONCodec{}
	}
	logger := deps.Logger
	if logger == nil {
		logger = log.Default()
	}
	return &Handler{Deps: deps, logger: logger}
}

// RegisterRoutes registers all HTTP routes.
func (h *Handler) RegisterRoutes(router gin.IRouter) {
	router.GET("/health", h.Health)

	actors := router.Group("/actors")
	{
		actors.GET("", h.ListActors)
		actors.POST("", h.StartActor)
		actors.POST("/:name/commands", h.SendCommand)
		actors.POST("/:name/messages", h.SendMessage)
		actors.POST("/:name/fetch", h.Fetch)
		actors.GET("/:name/tap", h.Tap)
	}
}

// anonymousSender names callers that did not say who they are.
func anonymousSender() string {
	return "http-" + uuid.New().String()
}

// =============================================================================
// Health Endpoints
// =============================================================================

// Health reports worker health and actor counts. Any failing worker makes the
// service degraded.
func (h *Handler) Health(c *gin.Context) {
	workers := []pool.WorkerStatus{}
	healthy := true
	if h.Pool != nil {
		workers = h.Pool.Status(c.Request.Context())
		for _, w := range workers {
			healthy = healthy && w.Healthy()
		}
	}

	body := gin.H{
		"service": "bus_http",
		"actors":  len(h.Directory.Names()),
		"workers": workers,
	}
	if h.Monitor != nil {
		body["unhealthy_actors"] = h.Monitor.Unhealthy()
	}

	if !healthy {
		body["status"] = "degraded"
		c.JSON(http.StatusServiceUnavailable, body)
		return
	}
	body["status"] = "ok"
	c.JSON(http.StatusOK, body)
}

// =============================================================================
// Actor Endpoints
// =============================================================================

// ActorView is one actor as listed by the API.
type ActorView struct {
	Name     string `json:"name"`
	State    string `json:"state"`
	Healthy  *bool  `json:"healthy,omitempty"`
	LastSeen int64  `json:"last_seen,omitempty"`
}

// ListActors lists every registered actor, including terminated ones.
func (h *Handler) ListActors(c *gin.Context) {
	status := make(map[string]health.PeerStatus)
	if h.Monitor != nil {
		for _, s := range h.Monitor.Status() {
			status[s.Name] = s
		}
	}

	names := h.Directory.Names()
	views := make([]ActorView, 0, len(names))
	for _, name := range names {
		state, ok := h.Directory.State(name)
		if !ok {
			continue
		}
		view := ActorView{Name: name, State: state.String()}
		if s, ok := status[name]; ok {
			healthy := s.Healthy
			view.Healthy = &healthy
			view.LastSeen = s.LastSeen.Unix()
		}
		views = append(views, view)
	}

	body := gin.H{"actors": views}
	if h.Presence != nil {
		entries, err := h.Presence.List(c.Request.Context())
		if err != nil {
			h.logger.WithContext(c.Request.Context()).Warn("Failed to list presence", log.Err(err))
		} else {
			body["presence"] = entries
		}
	}
	c.JSON(http.StatusOK, body)
}

// StartActorRequest is the body of POST /actors.
type StartActorRequest struct {
	Name string `json:"name" binding:"required"`
}

// StartActor starts a new actor.
func (h *Handler) StartActor(c *gin.Context) {
	var req StartActorRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	err := h.Directory.Start(req.Name)
	switch {
	case err == nil:
		c.JSON(http.StatusCreated, gin.H{"name": req.Name})
	case errors.Is(err, actor.ErrAlreadyExists):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	case errors.Is(err, actor.ErrInvalidName):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, actor.ErrDirectoryStopped):
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": err.Error()})
	default:
		c.Error(err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to start actor"})
	}
}

// SendCommandRequest is the body of POST /actors/:name/commands. Command
// uses the textual form, e.g. "Ping" or "Seq(42)".
type SendCommandRequest struct {
	From    string `json:"from"`
	Command string `json:"command" binding:"required"`
}

// SendCommand sends a control command. Delivery is never confirmed, so an
// unknown destination is accepted like any other.
func (h *Handler) SendCommand(c *gin.Context) {
	var req SendCommandRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	cmd, err := actor.ParseCommand(req.Command)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if req.From == "" {
		req.From = anonymousSender()
	}

	to := c.Param("name")
	h.Directory.SendCommand(req.From, to, cmd)
	c.JSON(http.StatusAccepted, gin.H{
		"from":    req.From,
		"to":      to,
		"command": cmd.String(),
	})
}

// SendMessageRequest is the body of POST /actors/:name/messages. Payload is
// base64 in JSON. MessageType defaults to Request.
type SendMessageRequest struct {
	From          string            `json:"from"`
	Payload       []byte            `json:"payload"`
	CorrelationID string            `json:"correlation_id"`
	MessageType   actor.MessageType `json:"message_type"`
}

// SendMessage sends an opaque payload. A correlation id is assigned when the
// caller did not supply one.
func (h *Handler) SendMessage(c *gin.Context) {
	var req SendMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	h.fillMessageDefaults(&req.From, &req.CorrelationID, &req.MessageType)

	to := c.Param("name")
	h.Directory.SendMessage(req.From, to, req.Payload, req.CorrelationID, req.MessageType)
	c.JSON(http.StatusAccepted, gin.H{
		"from":           req.From,
		"to":             to,
		"correlation_id": req.CorrelationID,
		"message_type":   req.MessageType.String(),
	})
}

// FetchRequest is the body of POST /actors/:name/fetch.
type FetchRequest struct {
	From          string            `json:"from"`
	URL           string            `json:"url" binding:"required,url"`
	CorrelationID string            `json:"correlation_id"`
	MessageType   actor.MessageType `json:"message_type"`
}

// Fetch downloads a URL and sends the body as a message. A failed download
// sends nothing and answers 502.
func (h *Handler) Fetch(c *gin.Context) {
	var req FetchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if h.HTTPWorker == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "http client unavailable"})
		return
	}
	h.fillMessageDefaults(&req.From, &req.CorrelationID, &req.MessageType)

	ctx := log.WithCorrelationID(c.Request.Context(), req.CorrelationID)
	to := c.Param("name")
	err := h.Directory.SendPayload(ctx, req.From, to, producer.HTTPGet(h.HTTPWorker, req.URL), req.CorrelationID, req.MessageType)
	if err != nil {
		h.logger.WithContext(ctx).Warn("Fetch failed",
			log.String("url", req.URL),
			log.String("to", to),
			log.Err(err),
		)
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusAccepted, gin.H{
		"from":           req.From,
		"to":             to,
		"correlation_id": req.CorrelationID,
	})
}

func (h *Handler) fillMessageDefaults(from, correlationID *string, mt *actor.MessageType) {
	if *from == "" {
		*from = anonymousSender()
	}
	if *correlationID == "" && h.IDs != nil {
		*correlationID = h.IDs.CorrelationID()
	}
	if *mt == 0 {
		*mt = actor.MessageTypeRequest
	}
}
