package realtime

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/krobus00/trading-dashboard/internal/constant"
	"github.com/krobus00/trading-dashboard/internal/util"
	"github.com/nats-io/nats.go"
	"github.com/sirupsen/logrus"
)

const eventStreamMaxAge = time.Hour

// JetStreamPublisher fans dashboard events out to every gateway instance.
type JetStreamPublisher struct {
	js nats.JetStreamContext
}

func NewJetStreamPublisher(js nats.JetStreamContext) *JetStreamPublisher {
	return &JetStreamPublisher{js: js}
}

func (p *JetStreamPublisher) Publish(ctx context.Context, eventType string, payload any) error {
	return util.PublishEvent(p.js, constant.GetDashboardEventSubject(eventType), payload)
}

func JetstreamEventInit(ctx context.Context, js nats.JetStreamContext) error {
	streamConfig := &nats.StreamConfig{
		Name:      constant.DashboardEventStreamName,
		Subjects:  []string{constant.DashboardEventStreamSubjectAll},
		Retention: nats.LimitsPolicy,
		Storage:   nats.MemoryStorage,
		MaxAge:    eventStreamMaxAge,
	}

	stream, err := js.StreamInfo(constant.DashboardEventStreamName, nats.Context(ctx))
	if err != nil && !errors.Is(err, nats.ErrStreamNotFound) {
		logrus.Error(err)
		return err
	}

	if stream == nil {
		logrus.Infof("creating stream: %s", constant.DashboardEventStreamName)
		_, err = js.AddStream(streamConfig, nats.Context(ctx))
		return err
	}

	_, err = js.UpdateStream(streamConfig, nats.Context(ctx))
	if err != nil {
		logrus.Error(err)
		return err
	}
	return nil
}

// EventTypeFromSubject extracts the event type from dashboard.events.<type>.
func EventTypeFromSubject(subject string) string {
	prefix := constant.GetDashboardEventSubject("")
	if !strings.HasPrefix(subject, prefix) {
		return ""
	}
	return strings.TrimPrefix(subject, prefix)
}

// Relay turns a stored event into a client frame and broadcasts it locally.
func Relay(hub *Hub, subject string, data []byte) error {
	eventType := EventTypeFromSubject(subject)
	if eventType == "" {
		return errors.New("unexpected subject: " + subject)
	}
	frame, err := EncodeEvent(eventType, data)
	if err != nil {
		return err
	}
	hub.Broadcast(frame)
	return nil
}

const defaultRelayTimeout = 5 * time.Second

// SubscribeEvents attaches an ephemeral consumer so each instance sees every event.
func SubscribeEvents(ctx context.Context, js nats.JetStreamContext, hub *Hub, timeout time.Duration) (*nats.Subscription, error) {
	if err := JetstreamEventInit(ctx, js); err != nil {
		return nil, err
	}
	if timeout <= 0 {
		timeout = defaultRelayTimeout
	}

	return js.Subscribe(
		constant.DashboardEventStreamSubjectAll,
		func(msg *nats.Msg) {
			err := util.ProcessWithTimeout(timeout, msg, func(_ context.Context, msg *nats.Msg) error {
				return Relay(hub, msg.Subject, msg.Data)
			})
			if err != nil {
				logrus.WithField("subject", msg.Subject).Warnf("relay event: %v", err)
			}
		},
		nats.DeliverNew(),
		nats.AckNone(),
	)
}
