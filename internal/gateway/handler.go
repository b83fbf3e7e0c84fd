package gateway

import (
	"context"
	"fmt"
	"log"
	"time"

	"devicehub-backend/internal/model"
	"devicehub-backend/internal/protocol"
)

// eventCommand is the inbound frame command carrying an application event
// rather than a pin value.
const eventCommand = "log-event"

// Outbound command operations. Each one looks up the device's live connection,
// encodes the frame, and writes it. Delivery is fire-and-forget: no operation
// waits for a device-side acknowledgment, and expected failures come back as
// ErrDeviceNotConnected or ErrTransportFailed, never as a panic.

// SendDigitalWrite writes a 0/1 level to a physical pin. Value range is
// validated by the ingest layer before it gets here.
func (g *Gateway) SendDigitalWrite(token string, pin, value int) error {
	return g.sendFrame(token, protocol.Encode(protocol.CmdDigitalWrite, pin, fmt.Sprintf("%d", value)))
}

// SendDigitalRead asks the device to report a physical pin level.
func (g *Gateway) SendDigitalRead(token string, pin int) error {
	return g.sendFrame(token, protocol.EncodeRead(protocol.CmdDigitalRead, pin))
}

// SendVirtualWrite writes a value to a virtual pin.
func (g *Gateway) SendVirtualWrite(token string, pin int, value string) error {
	return g.sendFrame(token, protocol.Encode(protocol.CmdVirtualWrite, pin, value))
}

// SendVirtualRead asks the device to report a virtual pin value.
func (g *Gateway) SendVirtualRead(token string, pin int) error {
	return g.sendFrame(token, protocol.EncodeRead(protocol.CmdVirtualRead, pin))
}

// SendHardwareCommand sends a generic passthrough command.
func (g *Gateway) SendHardwareCommand(token, command string, pin int, value string) error {
	if value == "" {
		return g.sendFrame(token, protocol.EncodeRead(command, pin))
	}
	return g.sendFrame(token, protocol.Encode(command, pin, value))
}

func (g *Gateway) sendFrame(token string, frame []byte) error {
	conn, ok := g.registry.Lookup(token)
	if !ok {
		return ErrDeviceNotConnected
	}
	return conn.writeFrame(frame, g.writeTimeout())
}

// handleDeviceFrame is the symmetric inbound path, invoked by the device read
// loop for every received frame. A malformed frame is dropped and counted;
// it never terminates the connection.
func (g *Gateway) handleDeviceFrame(conn *Conn, raw []byte) {
	frame, err := protocol.Decode(raw)
	if err != nil {
		n := conn.decodeErrors.Add(1)
		log.Printf("dropping malformed frame from device %d (token %s, %d dropped): %v",
			conn.deviceID, MaskToken(conn.token), n, err)
		return
	}

	ctx := context.Background()
	now := time.Now().UTC()

	switch frame.Command {
	case eventCommand:
		if err := g.PublishDeviceEvent(ctx, conn.deviceID, frame.Value, "", now); err != nil {
			log.Printf("failed to record event from device %d: %v", conn.deviceID, err)
		}

	case protocol.CmdVirtualRead:
		// The device asks for the pin's last known value; answer with an
		// ordinary vw frame. No value stored means no reply.
		pin, err := g.store.LatestPin(ctx, conn.deviceID, frame.Pin)
		if err != nil || pin == nil {
			return
		}
		conn.enqueue(protocol.Encode(protocol.CmdVirtualWrite, pin.PinNumber, pin.Value))

	case protocol.CmdDigitalRead:
		pin, err := g.store.LatestPin(ctx, conn.deviceID, frame.Pin)
		if err != nil || pin == nil {
			return
		}
		conn.enqueue(protocol.Encode(protocol.CmdDigitalWrite, pin.PinNumber, pin.Value))

	default:
		if !frame.HasValue {
			log.Printf("ignoring valueless %q frame from device %d", frame.Command, conn.deviceID)
			return
		}
		// vw, dw and generic passthrough frames are all pin updates.
		g.applyPinUpdate(ctx, conn.deviceID, frame.Pin, frame.Value, now)
	}
}

// applyPinUpdate routes an inbound socket frame through the shared pin-update
// path.
func (g *Gateway) applyPinUpdate(ctx context.Context, deviceID int64, pin int, value string, now time.Time) {
	if err := g.PublishPinUpdate(ctx, deviceID, pin, value, protocol.InferDataType(value), now); err != nil {
		log.Printf("failed to upsert pin %d for device %d: %v", pin, deviceID, err)
	}
}

// PublishPinUpdate is the single convergence point for pin state: socket
// frames and HTTP data reports both produce the same effects (upsert, history
// append, broadcast), so observers cannot tell the ingestion paths apart.
func (g *Gateway) PublishPinUpdate(ctx context.Context, deviceID int64, pin int, value string, dataType model.PinDataType, now time.Time) error {
	if err := g.store.UpsertPin(ctx, deviceID, pin, value, dataType, now); err != nil {
		return err
	}
	g.hub.Broadcast(Event{
		Type:     EventPinUpdate,
		DeviceID: deviceID,
		Pin:      &pin,
		Value:    value,
		DataType: dataType,
	}, deviceID)
	return nil
}

// PublishDeviceEvent records an application event and broadcasts it, used by
// both the socket path and the webhook endpoint.
func (g *Gateway) PublishDeviceEvent(ctx context.Context, deviceID int64, code, data string, now time.Time) error {
	if err := g.store.RecordEvent(ctx, deviceID, code, data, now); err != nil {
		return err
	}
	g.hub.Broadcast(Event{
		Type:      EventDeviceEvent,
		DeviceID:  deviceID,
		EventCode: code,
		Data:      data,
	}, deviceID)
	return nil
}
