package bridge

import (
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/lvaillant/cadenza/internal/bus"
	"github.com/lvaillant/cadenza/internal/errmsg"
	"github.com/lvaillant/cadenza/internal/logging"
	"github.com/lvaillant/cadenza/internal/playback"
)

// Integrator forwards local bus traffic across a transport and injects
// received messages into the local bus. Each integrator carries a
// process-unique context id generated at construction; a message whose
// context id matches the receiver's own is an echo and is dropped, so
// an event crosses the bridge at most once in each direction.
type Integrator struct {
	id        string
	bus       *bus.Bus
	transport Transport
	log       *logrus.Entry

	// reinjecting counts in-flight local dispatches of events received
	// from the transport. Anything dispatched while it is held is
	// treated as caused by the remote event and is not broadcast back.
	mu          sync.Mutex
	reinjecting int

	unsubscribe func()
	closeOnce   sync.Once
}

// NewIntegrator subscribes to the bus and starts the transport. The
// returned integrator is live immediately.
func NewIntegrator(b *bus.Bus, t Transport, log *logrus.Entry) (*Integrator, error) {
	if log == nil {
		log = logging.ForComponent(logging.Discard(), "bridge")
	}
	i := &Integrator{
		id:        uuid.NewString(),
		bus:       b,
		transport: t,
		log:       log,
	}
	i.unsubscribe = b.Subscribe(i.onLocalEvent)
	if err := t.Start(i.onMessage); err != nil {
		i.unsubscribe()
		return nil, fmt.Errorf("start bridge transport: %w", err)
	}
	return i, nil
}

// ContextID returns this integrator's origin identifier.
func (i *Integrator) ContextID() string {
	return i.id
}

// Close detaches the integrator from the bus and closes the transport.
func (i *Integrator) Close() error {
	var err error
	i.closeOnce.Do(func() {
		i.unsubscribe()
		err = i.transport.Close()
	})
	return err
}

func (i *Integrator) onLocalEvent(ev playback.Event) {
	i.mu.Lock()
	skip := i.reinjecting > 0
	i.mu.Unlock()
	if skip {
		return
	}

	t, payload, err := playback.EncodeEvent(ev)
	if err != nil {
		i.log.Warn(errmsg.Format(errmsg.OpBridgeSend, err))
		return
	}
	msg := Message{Type: string(t), Payload: payload, ContextID: i.id}
	if err := i.transport.Send(msg); err != nil {
		i.log.WithField("event", t).Warn(errmsg.Format(errmsg.OpBridgeSend, err))
	}
}

func (i *Integrator) onMessage(msg Message) {
	if msg.ContextID == i.id {
		i.log.Debugf("dropped echo of %s", msg.Type)
		return
	}

	ev, err := playback.DecodeEvent(playback.EventType(msg.Type), msg.Payload)
	if err != nil {
		i.log.Warn(errmsg.Format(errmsg.OpBridgeReceive, err))
		return
	}

	i.mu.Lock()
	i.reinjecting++
	i.mu.Unlock()
	defer func() {
		i.mu.Lock()
		i.reinjecting--
		i.mu.Unlock()
	}()

	i.bus.Dispatch(ev)
}
