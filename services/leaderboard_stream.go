package services

import (
	"bufio"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/gofiber/fiber/v2"
)

// StreamLeaderboardSSE pushes a snapshot event whenever the contest's
// leaderboard is recomputed, starting with the current one.
func (s *LeaderboardService) StreamLeaderboardSSE(c *fiber.Ctx, contestID string) error {
	initial, err := s.GetLeaderboard(c.UserContext(), contestID)
	if err != nil {
		return err
	}

	c.Set("Content-Type", "text/event-stream")
	c.Set("Cache-Control", "no-cache")
	c.Set("Connection", "keep-alive")
	c.Set("X-Accel-Buffering", "no") // nginx

	updates, cancel := s.Subscribe(contestID)
	done := c.Context().Done()

	c.Context().SetBodyStreamWriter(func(w *bufio.Writer) {
		defer cancel()

		keepalive := time.NewTicker(15 * time.Second)
		defer keepalive.Stop()

		send := func(snap *Snapshot) bool {
			payload, err := json.Marshal(snap)
			if err != nil {
				log.Printf("[Leaderboard] SSE encode error for %s: %v", contestID, err)
				return true
			}
			fmt.Fprintf(w, "id: %d\nevent: leaderboard\ndata: %s\n\n", snap.Seq, payload)
			return w.Flush() == nil
		}

		if !send(initial) {
			return
		}
		last := initial.Seq

		for {
			select {
			case snap := <-updates:
				if snap.Seq <= last {
					continue
				}
				last = snap.Seq
				if !send(snap) {
					return // client went away
				}
			case <-keepalive.C:
				w.WriteString(":\n\n")
				if err := w.Flush(); err != nil {
					return
				}
			case <-done:
				return
			}
		}
	})
	return nil
}
