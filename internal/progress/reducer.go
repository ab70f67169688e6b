package progress

import "github.com/morphreel/api/internal/model"

// Reduce folds one decoded message into the current state. It is pure
// and total: every event type has a defined transition, and no input
// can move a job out of a terminal state. Duplicated terminal messages
// and stray heartbeats after completion are absorbed as identity.
func Reduce(s State, m Message) State {
	if s.State.Terminal() {
		return s
	}

	switch m.Event {
	case EventJobStarted:
		if s.State != model.JobStateRunning {
			s.Step = 0
			s.Percent = 0
		}
		s.State = model.JobStateRunning
		if m.TotalSteps > 0 {
			s.TotalSteps = m.TotalSteps
		}

	case EventProgress:
		s.State = model.JobStateRunning
		if p := m.Progress; p != nil {
			s.Step = p.Step
			if p.TotalSteps > 0 {
				s.TotalSteps = p.TotalSteps
			}
			// Monotonic clamp: a stale or reordered frame may report a
			// lower percentage; it still updates context fields but
			// never moves the percentage backwards.
			if pct := clampPercent(p.ProgressPercent); pct > s.Percent {
				s.Percent = pct
			}
			if p.Phase != "" {
				s.Phase = p.Phase
			}
			if p.Message != "" {
				s.Message = p.Message
			}
			if p.CurrentSubject != "" {
				s.CurrentSubject = p.CurrentSubject
			}
			if p.ElapsedSeconds > 0 {
				s.ElapsedSeconds = p.ElapsedSeconds
			}
			if p.EstimatedRemainingSeconds != nil {
				s.EstimatedRemainingSeconds = p.EstimatedRemainingSeconds
			}
		}

	case EventCompleted:
		s.State = model.JobStateComplete
		s.Percent = 100
		if m.ElapsedSeconds > 0 {
			s.ElapsedSeconds = m.ElapsedSeconds
		}
		outputs := make(map[string]string, len(m.VariantPaths)+1)
		if m.OutputPath != "" {
			outputs["default"] = m.OutputPath
		}
		for name, path := range m.VariantPaths {
			outputs[name] = path
		}
		s.Outputs = outputs

	case EventFailed:
		s.State = model.JobStateFailed
		s.Error = m.ErrorMessage
		if m.ErrorMessage != "" {
			s.Message = m.ErrorMessage
		}

	case EventCancelled:
		s.State = model.JobStateCancelled

	case EventHeartbeat, EventPong, EventCancelRequested, EventUnknown:
		// no job semantics
	}

	return s
}

func clampPercent(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 100 {
		return 100
	}
	return v
}
