package services

import (
	"context"
	"log"
	"sort"
	"sync"
	"time"

	"github.com/itbasis/go-clock"

	"contest-scoring-engine/models"
	"contest-scoring-engine/repository"
)

// Snapshot is one committed leaderboard of a contest.
type Snapshot struct {
	ContestID string                    `json:"contest_id"`
	Seq       uint64                    `json:"seq"`
	UpdatedAt time.Time                 `json:"updated_at"`
	Entries   []models.LeaderboardEntry `json:"entries"`
}

// LeaderboardService recomputes standings with one writer per contest and
// serves reads from the last committed snapshot.
type LeaderboardService struct {
	Store *repository.Store
	Clock clock.Clock

	writers keyedMutex

	mu    sync.RWMutex
	cache map[string]*Snapshot
	seq   uint64
	subs  map[string]map[chan *Snapshot]struct{}
}

func NewLeaderboardService(store *repository.Store, clk clock.Clock) *LeaderboardService {
	return &LeaderboardService{
		Store: store,
		Clock: clk,
		cache: make(map[string]*Snapshot),
		subs:  make(map[string]map[chan *Snapshot]struct{}),
	}
}

// standing is the sort key of one participant.
type standing struct {
	p         models.Participant
	avgSubmit float64 // unix millis, meaningful only when hasSubmit
	hasSubmit bool
}

// less orders by score desc, accuracy desc, oracle beats desc, earlier
// average submission, then user id for a stable display order.
func less(a, b standing) bool {
	if c := compareStanding(a, b); c != 0 {
		return c < 0
	}
	return a.p.UserID < b.p.UserID
}

// compareStanding returns <0 when a ranks ahead of b, 0 for an exact tie.
func compareStanding(a, b standing) int {
	if a.p.TotalScore != b.p.TotalScore {
		if a.p.TotalScore > b.p.TotalScore {
			return -1
		}
		return 1
	}
	// accuracy compared by cross multiplication to stay exact
	la := int64(a.p.CorrectCount) * int64(b.p.ResolvedCount)
	lb := int64(b.p.CorrectCount) * int64(a.p.ResolvedCount)
	if a.p.ResolvedCount == 0 || b.p.ResolvedCount == 0 {
		la, lb = 0, 0
		if a.p.ResolvedCount > 0 && a.p.CorrectCount > 0 {
			la = 1
		}
		if b.p.ResolvedCount > 0 && b.p.CorrectCount > 0 {
			lb = 1
		}
	}
	if la != lb {
		if la > lb {
			return -1
		}
		return 1
	}
	if a.p.OracleBeats != b.p.OracleBeats {
		if a.p.OracleBeats > b.p.OracleBeats {
			return -1
		}
		return 1
	}
	if a.hasSubmit != b.hasSubmit {
		if a.hasSubmit {
			return -1
		}
		return 1
	}
	if a.avgSubmit != b.avgSubmit {
		if a.avgSubmit < b.avgSubmit {
			return -1
		}
		return 1
	}
	return 0
}

// Rank builds the ordered leaderboard. previous maps user id to the rank in
// the last snapshot. Exact ties share a competition rank; Position is a
// strict 1..N order.
func Rank(contestID string, participants []models.Participant, submissions []models.PredictionSubmission, previous map[string]int, at time.Time) []models.LeaderboardEntry {
	sums := make(map[string]int64, len(participants))
	counts := make(map[string]int64, len(participants))
	for _, s := range submissions {
		sums[s.UserID] += s.SubmittedAt.UnixMilli()
		counts[s.UserID]++
	}

	rows := make([]standing, 0, len(participants))
	for _, p := range participants {
		st := standing{p: p}
		if n := counts[p.UserID]; n > 0 {
			st.hasSubmit = true
			st.avgSubmit = float64(sums[p.UserID]) / float64(n)
		}
		rows = append(rows, st)
	}
	sort.SliceStable(rows, func(i, j int) bool { return less(rows[i], rows[j]) })

	out := make([]models.LeaderboardEntry, len(rows))
	for i, st := range rows {
		rank := i + 1
		if i > 0 && compareStanding(rows[i-1], st) == 0 {
			rank = out[i-1].Rank
		}
		e := models.LeaderboardEntry{
			ContestID:     contestID,
			UserID:        st.p.UserID,
			Username:      st.p.Username,
			Rank:          rank,
			Position:      i + 1,
			PreviousRank:  previous[st.p.UserID],
			TotalScore:    st.p.TotalScore,
			Accuracy:      st.p.Accuracy(),
			ResolvedCount: st.p.ResolvedCount,
			CorrectCount:  st.p.CorrectCount,
			CurrentStreak: st.p.CurrentStreak,
			BestStreak:    st.p.BestStreak,
			OracleBeats:   st.p.OracleBeats,
			AvgSubmitUnix: st.avgSubmit / 1000,
			UpdatedAt:     at,
		}
		if e.PreviousRank > 0 {
			e.Change = e.PreviousRank - e.Rank
		}
		out[i] = e
	}
	return out
}

// Recompute rebuilds and persists the full order of a contest.
func (s *LeaderboardService) Recompute(ctx context.Context, contestID string) (*Snapshot, error) {
	unlock := s.writers.Lock(contestID)
	defer unlock()

	now := s.Clock.Now().UTC()
	var entries []models.LeaderboardEntry
	err := s.Store.Transaction(ctx, func(tx *repository.Store) error {
		if _, err := tx.Contests.ByID(ctx, contestID); err != nil {
			return err
		}
		prevRows, err := tx.Leaderboards.ByContest(ctx, contestID)
		if err != nil {
			return err
		}
		previous := make(map[string]int, len(prevRows))
		for _, r := range prevRows {
			previous[r.UserID] = r.Rank
		}
		participants, err := tx.Participants.ListByContest(ctx, contestID)
		if err != nil {
			return err
		}
		subs, err := tx.Predictions.SubmissionsByContest(ctx, contestID)
		if err != nil {
			return err
		}
		entries = Rank(contestID, participants, subs, previous, now)
		return tx.Leaderboards.Replace(ctx, contestID, entries)
	})
	if err != nil {
		return nil, err
	}

	snap := s.publish(contestID, entries, now)
	log.Printf("[Leaderboard] %s recomputed: %d entries (seq %d)", contestID, len(entries), snap.Seq)
	return snap, nil
}

func (s *LeaderboardService) publish(contestID string, entries []models.LeaderboardEntry, at time.Time) *Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.seq++
	snap := &Snapshot{ContestID: contestID, Seq: s.seq, UpdatedAt: at, Entries: entries}
	s.cache[contestID] = snap
	for ch := range s.subs[contestID] {
		// keep only the newest snapshot for slow readers
		select {
		case <-ch:
		default:
		}
		select {
		case ch <- snap:
		default:
		}
	}
	return snap
}

// GetLeaderboard serves the last committed snapshot, loading persisted rows
// after a restart.
func (s *LeaderboardService) GetLeaderboard(ctx context.Context, contestID string) (*Snapshot, error) {
	s.mu.RLock()
	snap, ok := s.cache[contestID]
	s.mu.RUnlock()
	if ok {
		return snap, nil
	}

	if _, err := s.Store.Contests.ByID(ctx, contestID); err != nil {
		return nil, err
	}
	rows, err := s.Store.Leaderboards.ByContest(ctx, contestID)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return s.Recompute(ctx, contestID)
	}
	var at time.Time
	for _, r := range rows {
		if r.UpdatedAt.After(at) {
			at = r.UpdatedAt
		}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if cached, ok := s.cache[contestID]; ok {
		return cached, nil
	}
	s.seq++
	snap = &Snapshot{ContestID: contestID, Seq: s.seq, UpdatedAt: at, Entries: rows}
	s.cache[contestID] = snap
	return snap, nil
}

// Subscribe streams snapshots of a contest. Call the returned func to stop.
func (s *LeaderboardService) Subscribe(contestID string) (<-chan *Snapshot, func()) {
	ch := make(chan *Snapshot, 1)
	s.mu.Lock()
	if s.subs[contestID] == nil {
		s.subs[contestID] = make(map[chan *Snapshot]struct{})
	}
	s.subs[contestID][ch] = struct{}{}
	s.mu.Unlock()

	return ch, func() {
		s.mu.Lock()
		delete(s.subs[contestID], ch)
		if len(s.subs[contestID]) == 0 {
			delete(s.subs, contestID)
		}
		s.mu.Unlock()
	}
}
