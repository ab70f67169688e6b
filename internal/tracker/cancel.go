package tracker

import (
	"context"
	"fmt"

	"github.com/fasthttp/websocket"
	"go.uber.org/zap"

	"github.com/morphreel/api/internal/model"
	"github.com/morphreel/api/internal/progress"
)

// Cancel requests cancellation of the tracked job through both paths:
// a best-effort cancel frame on the live channel, and the out-of-band
// REST call regardless of channel state. Both paths are idempotent and
// converge on the same terminal state; calling Cancel after the job is
// already terminal succeeds without doing anything.
//
// The cancel is considered requested as soon as this method returns —
// it does not wait for the server's cancelled confirmation. A frame
// write failure is logged only; a failure of the out-of-band call is
// returned wrapped in ErrCancelRequest.
func (t *Tracker) Cancel(ctx context.Context) error {
	snap := t.store.Snapshot()
	if snap.Job.State.Terminal() {
		return nil
	}

	t.store.SetCancelRequested()

	if snap.Conn == progress.ConnConnected {
		if err := t.sendCancelFrame(); err != nil {
			t.logger.Warn("cancel frame not sent",
				zap.String("job_id", t.jobID), zap.Error(err))
		}
	}

	if t.cancel != nil {
		if err := t.cancel.CancelRender(ctx, t.jobID); err != nil {
			return fmt.Errorf("%w: %v", ErrCancelRequest, err)
		}
	}
	return nil
}

func (t *Tracker) sendCancelFrame() error {
	t.mu.Lock()
	conn := t.conn
	t.mu.Unlock()
	if conn == nil {
		return fmt.Errorf("no live connection")
	}

	t.writeMu.Lock()
	defer t.writeMu.Unlock()
	return conn.WriteMessage(websocket.TextMessage,
		[]byte(fmt.Sprintf(`{"type":%q}`, model.WSTypeCancel)))
}
