package scheduler

import (
	"context"
	"log"
	"sort"
	"sync"
	"time"

	"controlline/internal/chain"
	"controlline/internal/config"
	"controlline/internal/domain"
)

// Runner executes one chain; satisfied by chain.Executor.
type Runner interface {
	Execute(ctx context.Context, opts chain.ExecuteOptions) (domain.ChainRun, error)
}

// Scheduler fires every configured client's monthly chain for the
// current period, once on start and then on each tick. Successfully
// triggered triples are remembered in-process so a tick is cheap; the
// executor's run history still guards against re-execution across
// restarts.
type Scheduler struct {
	Runner   Runner
	Config   *config.Config
	Interval time.Duration
	Now      func() time.Time

	mu    sync.Mutex
	fired map[string]bool
	stop  chan struct{}
	wg    sync.WaitGroup
}

func New(runner Runner, cfg *config.Config) *Scheduler {
	interval := time.Duration(cfg.Scheduler.IntervalSeconds) * time.Second
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	return &Scheduler{
		Runner:   runner,
		Config:   cfg,
		Interval: interval,
		Now:      time.Now,
		fired:    map[string]bool{},
		stop:     make(chan struct{}),
	}
}

// Start launches the background loop. The first pass runs immediately.
func (s *Scheduler) Start() {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.RunDue(context.Background())
		ticker := time.NewTicker(s.Interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				s.RunDue(context.Background())
			case <-s.stop:
				return
			}
		}
	}()
}

// Stop halts the loop and waits for an in-flight pass to finish.
func (s *Scheduler) Stop() {
	close(s.stop)
	s.wg.Wait()
}

// RunDue triggers the current-period chain for every configured client.
// Failures are logged and retried on the next tick.
func (s *Scheduler) RunDue(ctx context.Context) {
	now := s.Now().UTC()
	period := now.Format("2006-01")

	clients := make([]string, 0, len(s.Config.Clients.Catalog))
	for id := range s.Config.Clients.Catalog {
		clients = append(clients, id)
	}
	sort.Strings(clients)

	for _, clientID := range clients {
		profile, _ := s.Config.Profile(clientID)
		chainID := "reglament." + profile + ".monthly"
		key := chainID + "::" + clientID + "::" + period
		if s.alreadyFired(key) {
			continue
		}
		run, err := s.Runner.Execute(ctx, chain.ExecuteOptions{
			ChainID:  chainID,
			ClientID: clientID,
			Period:   period,
			Trigger:  "scheduled",
			ActorID:  "scheduler",
		})
		if err != nil {
			log.Printf("scheduler: chain %s for %s/%s: %v", chainID, clientID, period, err)
			continue
		}
		log.Printf("scheduler: chain %s for %s/%s: %s", chainID, clientID, period, run.Status)
		s.markFired(key)
	}
}

func (s *Scheduler) alreadyFired(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.fired[key]
}

func (s *Scheduler) markFired(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fired[key] = true
}
