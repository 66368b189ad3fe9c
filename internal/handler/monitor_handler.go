package handler

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/quizdesk/quizdesk-backend/internal/config"
	"github.com/quizdesk/quizdesk-backend/internal/model"
	"github.com/quizdesk/quizdesk-backend/internal/response"
	"github.com/quizdesk/quizdesk-backend/internal/service"
	ws "github.com/quizdesk/quizdesk-backend/internal/websocket"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// buildUpgrader creates a WebSocket upgrader with origin validation.
// An empty allowedOrigins slice permits all origins (development mode).
func buildUpgrader(allowedOrigins []string) websocket.Upgrader {
	return websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			if len(allowedOrigins) == 0 {
				return true
			}
			origin := r.Header.Get("Origin")
			for _, allowed := range allowedOrigins {
				if strings.EqualFold(allowed, origin) {
					return true
				}
			}
			return false
		},
	}
}

// MonitorHandler serves the invigilator views: the attempt overview for a
// quiz and a live WebSocket feed of violation events.
type MonitorHandler struct {
	attemptService   *service.AttemptService
	violationService *service.ViolationService
	rdb              *redis.Client
	log              zerolog.Logger
	upgrader         websocket.Upgrader
}

// NewMonitorHandler creates a new MonitorHandler.
func NewMonitorHandler(
	attemptService *service.AttemptService,
	violationService *service.ViolationService,
	rdb *redis.Client,
	log zerolog.Logger,
	allowedOrigins []string,
) *MonitorHandler {
	return &MonitorHandler{
		attemptService:   attemptService,
		violationService: violationService,
		rdb:              rdb,
		log:              log.With().Str("component", "monitor_handler").Logger(),
		upgrader:         buildUpgrader(allowedOrigins),
	}
}

// ListAttempts godoc
// GET /api/v1/admin/quizzes/:quiz_id/attempts
// Read-only overview of all attempts with violation counts.
func (h *MonitorHandler) ListAttempts(c *gin.Context) {
	quizID, err := uuid.Parse(c.Param("quiz_id"))
	if err != nil {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidID)
		return
	}

	overviews, err := h.attemptService.ListOverview(c.Request.Context(), quizID)
	if err != nil {
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"attempts": overviews})
}

// ListViolations godoc
// GET /api/v1/admin/attempts/:attempt_id/violations
// Full violation log of one attempt in server-received order.
func (h *MonitorHandler) ListViolations(c *gin.Context) {
	attemptID, err := uuid.Parse(c.Param("attempt_id"))
	if err != nil {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidID)
		return
	}

	violations, err := h.violationService.ListByAttempt(c.Request.Context(), attemptID)
	if err != nil {
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
		return
	}
	if violations == nil {
		violations = []model.Violation{}
	}

	response.Success(c, http.StatusOK, gin.H{"violations": violations})
}

// StreamViolations godoc
// WS /ws/v1/admin/quizzes/:quiz_id/monitor
// Subscribes the invigilator to the quiz's Redis monitor channel and
// relays violation events until the connection closes.
func (h *MonitorHandler) StreamViolations(c *gin.Context) {
	quizID, err := uuid.Parse(c.Param("quiz_id"))
	if err != nil {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidID)
		return
	}

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.log.Error().Err(err).Msg("WebSocket upgrade failed")
		return
	}
	defer conn.Close()

	wsLog := h.log.With().Str("quiz_id", quizID.String()).Logger()
	wsLog.Info().Msg("Monitor connected")

	sub := h.rdb.Subscribe(c.Request.Context(), config.CacheKey.QuizMonitorChannel(quizID.String()))
	defer sub.Close()

	h.relay(conn, sub.Channel(), wsLog)
}

// relay pumps violation events to the socket until the client goes away.
// The select loop is the connection's only writer: the reader goroutine
// never writes, it just detects disconnect and signals inbound traffic so
// pongs are sent from here too (gorilla allows one concurrent writer).
func (h *MonitorHandler) relay(conn *websocket.Conn, ch <-chan *redis.Message, wsLog zerolog.Logger) {
	done := make(chan struct{})
	pings := make(chan struct{}, 1)
	go func() {
		defer close(done)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
			// One pending pong is enough; coalesce bursts.
			select {
			case pings <- struct{}{}:
			default:
			}
		}
	}()

	for {
		select {
		case <-done:
			wsLog.Info().Msg("Monitor disconnected")
			return
		case <-pings:
			if err := ws.WriteTyped(conn, ws.PongMessage{Event: ws.EventPong}); err != nil {
				wsLog.Debug().Err(err).Msg("Monitor write failed, closing")
				return
			}
		case msg, ok := <-ch:
			if !ok {
				wsLog.Warn().Msg("Monitor channel closed")
				return
			}

			var event model.ViolationEvent
			if err := json.Unmarshal([]byte(msg.Payload), &event); err != nil {
				wsLog.Error().Err(err).Msg("Malformed monitor event")
				continue
			}

			out := ws.ViolationMessage{
				Event:      ws.EventViolation,
				QuizID:     event.QuizID.String(),
				StudentID:  event.StudentID,
				Message:    event.Message,
				Count:      event.Count,
				RecordedAt: event.RecordedAt.Format(time.RFC3339),
			}
			if err := ws.WriteTyped(conn, out); err != nil {
				wsLog.Debug().Err(err).Msg("Monitor write failed, closing")
				return
			}
		}
	}
}
