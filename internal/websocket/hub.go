package websocket

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/gofiber/contrib/websocket"
	"go.uber.org/zap"

	"github.com/morphreel/api/internal/model"
)

// JobDirectory is the job-store surface the hub needs: replaying the
// current state to a fresh subscriber and honoring channel-based cancel
// frames.
type JobDirectory interface {
	GetJob(ctx context.Context, jobID string) (*model.Job, error)
	CancelJob(ctx context.Context, jobID string) error
}

// Client represents one WebSocket subscriber to a job's progress.
type Client struct {
	JobID string
	Conn  *websocket.Conn
	Send  chan []byte
}

// Hub maintains active progress-channel connections grouped by job and
// broadcasts frames to every subscriber of a job.
type Hub struct {
	clients    map[string]map[*Client]bool
	register   chan *Client
	unregister chan *Client
	broadcast  chan *broadcastMessage

	jobs   JobDirectory
	logger *zap.Logger

	mu sync.RWMutex
}

type broadcastMessage struct {
	JobID   string
	Payload []byte
}

// NewHub creates a new Hub.
func NewHub(jobs JobDirectory, logger *zap.Logger) *Hub {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Hub{
		clients:    make(map[string]map[*Client]bool),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		broadcast:  make(chan *broadcastMessage, 256),
		jobs:       jobs,
		logger:     logger,
	}
}

// Run starts the hub's main loop.
func (h *Hub) Run() {
	for {
		select {
		case client := <-h.register:
			h.mu.Lock()
			if h.clients[client.JobID] == nil {
				h.clients[client.JobID] = make(map[*Client]bool)
			}
			h.clients[client.JobID][client] = true
			h.mu.Unlock()
			h.logger.Info("progress subscriber registered", zap.String("job_id", client.JobID))

		case client := <-h.unregister:
			h.mu.Lock()
			if clients, ok := h.clients[client.JobID]; ok {
				if _, ok := clients[client]; ok {
					delete(clients, client)
					close(client.Send)
					if len(clients) == 0 {
						delete(h.clients, client.JobID)
					}
				}
			}
			h.mu.Unlock()
			h.logger.Info("progress subscriber unregistered", zap.String("job_id", client.JobID))

		case msg := <-h.broadcast:
			h.mu.RLock()
			if clients, ok := h.clients[msg.JobID]; ok {
				for client := range clients {
					select {
					case client.Send <- msg.Payload:
					default:
						close(client.Send)
						delete(clients, client)
					}
				}
			}
			h.mu.RUnlock()
		}
	}
}

// Broadcast sends a typed frame to all subscribers of a job.
func (h *Hub) Broadcast(jobID, frameType string, data interface{}) {
	payload, err := marshalFrame(jobID, frameType, data)
	if err != nil {
		h.logger.Error("failed to marshal frame",
			zap.String("job_id", jobID), zap.String("type", frameType), zap.Error(err))
		return
	}
	h.broadcast <- &broadcastMessage{JobID: jobID, Payload: payload}
}

// BroadcastProgress sends a progress frame to all job subscribers.
func (h *Hub) BroadcastProgress(jobID string, p *model.RenderProgress) {
	h.Broadcast(jobID, model.WSTypeProgress, model.WSStateData{Progress: p})
}

// BroadcastStarted announces that a job began running.
func (h *Hub) BroadcastStarted(jobID string, totalSteps int, projectName string) {
	h.Broadcast(jobID, model.WSTypeJobStarted, model.WSStartedData{
		TotalSteps:  totalSteps,
		ProjectName: projectName,
	})
}

// BroadcastComplete sends the terminal completion frame.
func (h *Hub) BroadcastComplete(jobID, outputPath string, variantPaths map[string]string, elapsed float64) {
	h.Broadcast(jobID, model.WSTypeComplete, model.WSCompleteData{
		OutputPath:     outputPath,
		VariantPaths:   variantPaths,
		ElapsedSeconds: elapsed,
	})
}

// BroadcastError sends the terminal failure frame.
func (h *Hub) BroadcastError(jobID, message string) {
	h.Broadcast(jobID, model.WSTypeError, model.WSErrorData{Message: message})
}

// BroadcastCancelled sends the terminal cancellation frame.
func (h *Hub) BroadcastCancelled(jobID string) {
	h.Broadcast(jobID, model.WSTypeCancelled, nil)
}

// HandleConnection serves one WebSocket subscriber until it disconnects.
// On connect the job's current state is replayed so late subscribers see
// a consistent view; thereafter the client receives broadcast frames and
// may send ping and cancel frames.
func (h *Hub) HandleConnection(c *websocket.Conn, jobID string) {
	client := &Client{
		JobID: jobID,
		Conn:  c,
		Send:  make(chan []byte, 256),
	}

	h.register <- client
	defer func() { h.unregister <- client }()

	h.sendCurrentState(client)

	// Writer goroutine
	go func() {
		ticker := time.NewTicker(30 * time.Second)
		defer ticker.Stop()

		for {
			select {
			case message, ok := <-client.Send:
				if !ok {
					c.WriteMessage(websocket.CloseMessage, []byte{})
					return
				}
				if err := c.WriteMessage(websocket.TextMessage, message); err != nil {
					return
				}

			case <-ticker.C:
				// Server-side keep-alive
				payload, err := marshalFrame(jobID, model.WSTypeHeartbeat, nil)
				if err != nil {
					return
				}
				if err := c.WriteMessage(websocket.TextMessage, payload); err != nil {
					return
				}
			}
		}
	}()

	// Reader loop
	for {
		_, message, err := c.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.logger.Warn("websocket read error", zap.String("job_id", jobID), zap.Error(err))
			}
			break
		}

		var frame model.WSFrame
		if err := json.Unmarshal(message, &frame); err != nil {
			h.logger.Warn("invalid frame from client", zap.String("job_id", jobID))
			continue
		}

		switch frame.Type {
		case model.WSTypePing:
			h.sendTo(client, jobID, model.WSTypePong, nil)

		case model.WSTypeCancel:
			if err := h.jobs.CancelJob(context.Background(), jobID); err != nil {
				h.logger.Warn("channel cancel failed",
					zap.String("job_id", jobID), zap.Error(err))
				continue
			}
			h.sendTo(client, jobID, model.WSTypeCancelRequested, nil)

		default:
			h.logger.Debug("unknown client frame",
				zap.String("job_id", jobID), zap.String("type", frame.Type))
		}
	}
}

// sendCurrentState replays the job's present state to a new subscriber.
// Terminal jobs replay their terminal frame so a client attaching after
// the fact still converges.
func (h *Hub) sendCurrentState(client *Client) {
	job, err := h.jobs.GetJob(context.Background(), client.JobID)
	if err != nil {
		h.logger.Warn("state replay skipped",
			zap.String("job_id", client.JobID), zap.Error(err))
		return
	}

	switch job.State {
	case model.JobStateComplete:
		var elapsed float64
		if job.Progress != nil {
			elapsed = job.Progress.ElapsedSeconds
		}
		h.sendTo(client, job.ID, model.WSTypeComplete, model.WSCompleteData{
			OutputPath:     job.OutputPath,
			VariantPaths:   job.VariantPaths,
			ElapsedSeconds: elapsed,
		})
	case model.JobStateFailed:
		msg := ""
		if job.Error != nil {
			msg = *job.Error
		}
		h.sendTo(client, job.ID, model.WSTypeError, model.WSErrorData{Message: msg})
	case model.JobStateCancelled:
		h.sendTo(client, job.ID, model.WSTypeCancelled, nil)
	default:
		h.sendTo(client, job.ID, model.WSTypeState, model.WSStateData{
			State:    job.State,
			Progress: job.Progress,
		})
	}
}

func (h *Hub) sendTo(client *Client, jobID, frameType string, data interface{}) {
	payload, err := marshalFrame(jobID, frameType, data)
	if err != nil {
		h.logger.Error("failed to marshal frame",
			zap.String("job_id", jobID), zap.String("type", frameType), zap.Error(err))
		return
	}
	select {
	case client.Send <- payload:
	default:
	}
}

func marshalFrame(jobID, frameType string, data interface{}) ([]byte, error) {
	frame := model.WSFrame{
		Type:      frameType,
		JobID:     jobID,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	}
	if data != nil {
		raw, err := json.Marshal(data)
		if err != nil {
			return nil, err
		}
		frame.Data = raw
	}
	return json.Marshal(frame)
}
