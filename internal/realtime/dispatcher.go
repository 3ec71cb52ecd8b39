package realtime

import (
	"fmt"

	"go.uber.org/zap"
)

// Delivery summarises one EmitToUser call.
type Delivery struct {
	Room       string
	Recipients int
	Skipped    int
}

// EventDispatcher pushes notifications to user rooms. Delivery is best effort
// and at most once: offline users are skipped and nothing is queued.
type EventDispatcher struct {
	registry *ConnectionRegistry
	router   *RoomRouter
	logger   *zap.Logger
}

// NewEventDispatcher wires a dispatcher over a registry and its router.
func NewEventDispatcher(registry *ConnectionRegistry, router *RoomRouter, logger *zap.Logger) *EventDispatcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &EventDispatcher{
		registry: registry,
		router:   router,
		logger:   logger,
	}
}

// EmitToUser delivers the event to every live connection of userID. It never
// fails; problems are logged and the push is dropped.
func (d *EventDispatcher) EmitToUser(userID int64, kind EventKind, payload any) {
	d.Deliver(userID, kind, payload)
}

// Deliver behaves like EmitToUser and reports what happened.
func (d *EventDispatcher) Deliver(userID int64, kind EventKind, payload any) (delivery Delivery) {
	room := RoomName(userID)
	delivery.Room = room

	defer func() {
		if recovered := recover(); recovered != nil {
			d.logger.Error("notification push panicked",
				zap.Int64("user_id", userID),
				zap.String("event", kind.String()),
				zap.String("panic", fmt.Sprint(recovered)))
		}
	}()

	if err := validatePayload(kind, payload); err != nil {
		d.logger.Warn("notification rejected", zap.Int64("user_id", userID), zap.Error(err))
		return delivery
	}

	if !d.registry.IsOnline(userID) {
		d.logger.Debug("notification skipped, user offline",
			zap.Int64("user_id", userID),
			zap.String("event", kind.String()))
		return delivery
	}

	frame, err := EncodeFrame(kind.String(), payload)
	if err != nil {
		d.logger.Warn("notification encoding failed", zap.Int64("user_id", userID), zap.Error(err))
		return delivery
	}

	for _, conn := range d.router.Members(room) {
		if err := conn.enqueue(frame); err != nil {
			delivery.Skipped++
			d.logger.Warn("notification push failed",
				zap.Int64("user_id", userID),
				zap.String("connection_id", conn.ID()),
				zap.String("event", kind.String()),
				zap.Error(err))
			continue
		}
		delivery.Recipients++
	}

	d.logger.Debug("notification dispatched",
		zap.Int64("user_id", userID),
		zap.String("room", room),
		zap.String("event", kind.String()),
		zap.Int("recipients", delivery.Recipients),
		zap.Int("skipped", delivery.Skipped))
	return delivery
}
