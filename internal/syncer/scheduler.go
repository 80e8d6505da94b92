// Copyright 2026 The CreditFlow Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package syncer

import (
	"context"
	"errors"
	"log/slog"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/creditflow/creditflow/internal/account"
	"github.com/creditflow/creditflow/internal/observability/logger"
)

// realtimeInterval is the effective cadence for plans sold as "real-time";
// the surface cannot be polled meaningfully faster.
const realtimeInterval = 5 * time.Minute

var (
	realtimeMarkers = []string{"real-time", "realtime", "real time", "thời gian thực"}
	leadingIntRe    = regexp.MustCompile(`^\d+`)
)

// ParseInterval reads a plan's free-text sync interval. A leading integer
// is minutes ("30 phút", "45 minutes"); real-time phrasings collapse to
// realtimeInterval; anything unparsable falls back to def.
func ParseInterval(text string, def time.Duration) time.Duration {
	clean := strings.ToLower(strings.TrimSpace(text))
	if clean == "" {
		return def
	}
	for _, m := range realtimeMarkers {
		if strings.Contains(clean, m) {
			return realtimeInterval
		}
	}
	if digits := leadingIntRe.FindString(clean); digits != "" {
		if n, err := strconv.Atoi(digits); err == nil && n > 0 {
			return time.Duration(n) * time.Minute
		}
	}
	return def
}

// Scheduler keeps one timer per syncable account, reconciled against the
// store on a fixed control cadence: accounts gaining a plan get a timer,
// interval changes restart the timer, accounts leaving the syncable set
// lose theirs. Triggers that collide with an in-flight run are dropped.
type Scheduler struct {
	engine          Engine
	accounts        *account.Service
	cadence         time.Duration
	defaultInterval time.Duration
	logger          *slog.Logger

	mu     sync.Mutex
	timers map[string]*accountTimer
}

type accountTimer struct {
	interval time.Duration
	cancel   context.CancelFunc
}

// NewScheduler builds a stopped scheduler; Run starts it.
func NewScheduler(engine Engine, accounts *account.Service, cadence, defaultInterval time.Duration, log *slog.Logger) *Scheduler {
	if log == nil {
		log = slog.Default()
	}
	if cadence <= 0 {
		cadence = time.Minute
	}
	if defaultInterval <= 0 {
		defaultInterval = 30 * time.Minute
	}
	return &Scheduler{
		engine:          engine,
		accounts:        accounts,
		cadence:         cadence,
		defaultInterval: defaultInterval,
		logger:          log,
		timers:          make(map[string]*accountTimer),
	}
}

// Run blocks reconciling timers until ctx is cancelled.
func (s *Scheduler) Run(ctx context.Context) {
	ticker := time.NewTicker(s.cadence)
	defer ticker.Stop()

	s.tick(ctx)
	for {
		select {
		case <-ctx.Done():
			s.stopAll()
			return
		case <-ticker.C:
			s.tick(ctx)
		}
	}
}

// tick computes the desired timer set from the store and applies it.
func (s *Scheduler) tick(ctx context.Context) {
	accts, err := s.accounts.ListSyncable(ctx)
	if err != nil {
		s.logger.Error("scheduler failed to list accounts", logger.Error(err))
		return
	}

	desired := make(map[string]time.Duration, len(accts))
	for _, a := range accts {
		intervalText, err := s.accounts.PlanInterval(ctx, a)
		if err != nil {
			s.logger.Warn("failed to read plan interval",
				logger.AccountID(a.ID), logger.Error(err))
			intervalText = ""
		}
		desired[a.ID] = ParseInterval(intervalText, s.defaultInterval)
	}

	s.apply(ctx, desired)
}

// apply reconciles running timers toward the desired set.
func (s *Scheduler) apply(ctx context.Context, desired map[string]time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for id, t := range s.timers {
		want, ok := desired[id]
		if ok && want == t.interval {
			continue
		}
		t.cancel()
		delete(s.timers, id)
		if ok {
			s.logger.Info("sync interval changed",
				logger.AccountID(id), logger.String("interval", want.String()))
		} else {
			s.logger.Info("account left the schedule", logger.AccountID(id))
		}
	}

	for id, interval := range desired {
		if _, running := s.timers[id]; running {
			continue
		}
		tctx, cancel := context.WithCancel(ctx)
		s.timers[id] = &accountTimer{interval: interval, cancel: cancel}
		go s.loop(tctx, id, interval)
	}
}

func (s *Scheduler) loop(ctx context.Context, accountID string, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			err := s.engine.TriggerSync(ctx, accountID)
			switch {
			case err == nil:
			case errors.Is(err, ErrSyncInFlight):
				s.logger.Debug("scheduled sync dropped, run in flight", logger.AccountID(accountID))
			default:
				s.logger.Error("scheduled sync failed to start",
					logger.AccountID(accountID), logger.Error(err))
			}
		}
	}
}

func (s *Scheduler) stopAll() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, t := range s.timers {
		t.cancel()
		delete(s.timers, id)
	}
}

// snapshot returns the current timer intervals, for tests.
func (s *Scheduler) snapshot() map[string]time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]time.Duration, len(s.timers))
	for id, t := range s.timers {
		out[id] = t.interval
	}
	return out
}
