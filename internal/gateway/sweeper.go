package gateway

import (
	"context"
	"log"
	"time"
)

// RunSweeper periodically marks devices OFFLINE when no frame or heartbeat
// arrived within the freshness window. This catches devices that vanish
// without a clean close; the read-deadline path only catches sockets the
// kernel still knows about.
func (g *Gateway) RunSweeper(ctx context.Context) {
	log.Printf("liveness sweeper starting (window %s, interval %s)",
		g.cfg.FreshnessWindow, g.cfg.SweepInterval)

	g.SweepOnce(ctx)

	timer := time.NewTimer(g.cfg.SweepInterval)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Println("liveness sweeper shutting down.")
			return
		case <-timer.C:
			g.SweepOnce(ctx)
			timer.Reset(g.cfg.SweepInterval)
		}
	}
}

// SweepOnce performs a single liveness sweep.
func (g *Gateway) SweepOnce(ctx context.Context) {
	cutoff := time.Now().UTC().Add(-g.cfg.FreshnessWindow)

	swept, err := g.store.MarkStaleOffline(ctx, cutoff)
	if err != nil {
		log.Printf("liveness sweep failed: %v", err)
		return
	}
	if len(swept) == 0 {
		return
	}

	log.Printf("liveness sweep marked %d device(s) offline", len(swept))
	for _, device := range swept {
		// Drop the dead registry entry too, so commands fail fast with
		// DeviceNotConnected instead of timing out on a dead socket.
		if conn, ok := g.registry.Lookup(device.AuthToken); ok {
			conn.Close()
			g.registry.Unregister(conn)
		}
		g.hub.Broadcast(Event{Type: EventDeviceDisconnected, DeviceID: device.ID}, 0)
		if g.notifier != nil {
			g.notifier.DeviceOffline(device.ID)
		}
	}
}
