package server

import (
	"io"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/learning152/ui-tars-launcher/internal/bridge"
)

// SSE event names, one per bridge topic.
const (
	EventProcessStarted = "processStarted"
	EventProcessUpdated = "processUpdated"
	EventProcessExited  = "processExited"
	EventLogOutput      = "logOutput"
)

const (
	streamBuffer    = 256
	streamKeepAlive = 15 * time.Second
)

type sseMsg struct {
	name string
	data any
}

// subscribeAll forwards every topic into ch without blocking the publisher.
// When the client falls behind, overflow is closed and the stream ends.
func subscribeAll(ev *bridge.Events, ch chan<- sseMsg, overflow chan<- struct{}) func() {
	push := func(m sseMsg) {
		select {
		case ch <- m:
		default:
			select {
			case overflow <- struct{}{}:
			default:
			}
		}
	}
	unsubs := []func(){
		ev.ProcessStarted.Subscribe(func(p bridge.ProcessInfo) { push(sseMsg{EventProcessStarted, p}) }),
		ev.ProcessUpdated.Subscribe(func(p bridge.ProcessInfo) { push(sseMsg{EventProcessUpdated, p}) }),
		ev.ProcessExited.Subscribe(func(e bridge.ExitEvent) { push(sseMsg{EventProcessExited, e}) }),
		ev.LogOutput.Subscribe(func(e bridge.LogEntry) { push(sseMsg{EventLogOutput, e}) }),
	}
	return func() {
		for _, u := range unsubs {
			u()
		}
	}
}

func (r *Router) handleEvents(c *gin.Context) {
	ch := make(chan sseMsg, streamBuffer)
	overflow := make(chan struct{}, 1)
	unsubscribe := subscribeAll(r.deps.Events, ch, overflow)
	defer unsubscribe()

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Status(200)
	c.Writer.Flush()

	ticker := time.NewTicker(streamKeepAlive)
	defer ticker.Stop()
	ctx := c.Request.Context()
	c.Stream(func(w io.Writer) bool {
		select {
		case <-ctx.Done():
			return false
		case <-overflow:
			r.log.Warn("event stream dropped slow client", "remote", c.ClientIP())
			return false
		case m := <-ch:
			c.SSEvent(m.name, m.data)
			return true
		case <-ticker.C:
			_, _ = io.WriteString(w, ": keep-alive\n\n")
			return true
		}
	})
}
