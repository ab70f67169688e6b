package progress

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/morphreel/api/internal/model"
)

// EventType classifies a decoded progress-channel frame.
type EventType string

const (
	EventJobStarted      EventType = "job_started"
	EventProgress        EventType = "progress"
	EventCompleted       EventType = "job_completed"
	EventFailed          EventType = "job_failed"
	EventCancelled       EventType = "job_cancelled"
	EventHeartbeat       EventType = "heartbeat"
	EventPong            EventType = "pong"
	EventCancelRequested EventType = "cancel_requested"
	EventUnknown         EventType = "unknown"
)

// Message is a decoded inbound frame from the progress channel.
// Only the fields relevant to the event type are populated.
type Message struct {
	Event     EventType
	WireType  string
	JobID     string
	Timestamp time.Time

	// progress / state
	Progress *model.RenderProgress

	// job_started
	TotalSteps  int
	ProjectName string

	// complete
	OutputPath     string
	VariantPaths   map[string]string
	ElapsedSeconds float64

	// error
	ErrorMessage string
}

// DecodeError reports a frame that failed structural validation.
// The connection layer drops such frames and keeps the channel open.
type DecodeError struct {
	Reason string
	Err    error
}

func (e *DecodeError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("decode frame: %s: %v", e.Reason, e.Err)
	}
	return fmt.Sprintf("decode frame: %s", e.Reason)
}

func (e *DecodeError) Unwrap() error { return e.Err }

// Decode parses and validates a raw channel frame. Unrecognized frame
// types decode as EventUnknown so newer servers stay compatible; frames
// that are not JSON, lack a type, or carry a malformed payload return a
// *DecodeError.
func Decode(raw []byte) (Message, error) {
	var frame model.WSFrame
	if err := json.Unmarshal(raw, &frame); err != nil {
		return Message{}, &DecodeError{Reason: "invalid JSON", Err: err}
	}
	if frame.Type == "" {
		return Message{}, &DecodeError{Reason: "missing type"}
	}

	msg := Message{WireType: frame.Type, JobID: frame.JobID}

	if frame.Timestamp != "" {
		ts, err := time.Parse(time.RFC3339, frame.Timestamp)
		if err != nil {
			return Message{}, &DecodeError{Reason: "invalid timestamp", Err: err}
		}
		msg.Timestamp = ts
	}

	switch frame.Type {
	case model.WSTypeJobStarted:
		msg.Event = EventJobStarted
		var data model.WSStartedData
		if err := unmarshalData(frame.Data, &data); err != nil {
			return Message{}, err
		}
		msg.TotalSteps = data.TotalSteps
		msg.ProjectName = data.ProjectName

	case model.WSTypeState, model.WSTypeProgress, model.WSTypeStepProgress:
		msg.Event = EventProgress
		var data model.WSStateData
		if err := unmarshalData(frame.Data, &data); err != nil {
			return Message{}, err
		}
		if data.Progress != nil {
			msg.Progress = data.Progress
		} else if frame.Type != model.WSTypeState {
			// bare progress frames carry the progress object directly
			var p model.RenderProgress
			if err := unmarshalData(frame.Data, &p); err != nil {
				return Message{}, err
			}
			msg.Progress = &p
		}

	case model.WSTypeComplete:
		msg.Event = EventCompleted
		var data model.WSCompleteData
		if err := unmarshalData(frame.Data, &data); err != nil {
			return Message{}, err
		}
		msg.OutputPath = data.OutputPath
		msg.VariantPaths = data.VariantPaths
		msg.ElapsedSeconds = data.ElapsedSeconds

	case model.WSTypeError:
		msg.Event = EventFailed
		var data model.WSErrorData
		if err := unmarshalData(frame.Data, &data); err != nil {
			return Message{}, err
		}
		msg.ErrorMessage = data.Message

	case model.WSTypeCancelled:
		msg.Event = EventCancelled

	case model.WSTypeHeartbeat:
		msg.Event = EventHeartbeat

	case model.WSTypePong:
		msg.Event = EventPong

	case model.WSTypeCancelRequested:
		msg.Event = EventCancelRequested

	default:
		msg.Event = EventUnknown
	}

	return msg, nil
}

func unmarshalData(raw json.RawMessage, v interface{}) error {
	if len(raw) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return &DecodeError{Reason: "invalid data payload", Err: err}
	}
	return nil
}
