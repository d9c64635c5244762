package schedule

import (
	"context"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"
)

const DefaultQueueSize = 16

type Job func(ctx context.Context)

type task struct {
	id  string
	seq uint64
	job Job
}

// Scheduler runs queued jobs one at a time on a single worker.
// A job id is queued at most once: triggers arriving while an instance
// of the same id is still pending are dropped.
type Scheduler struct {
	logger logrus.FieldLogger

	cron  *cron.Cron
	queue chan task

	mu      sync.Mutex
	seq     uint64
	pending map[string]uint64
	entries map[string]cron.EntryID

	quit chan struct{}
	done chan struct{}
}

func New(logger logrus.FieldLogger, queueSize int) *Scheduler {
	if queueSize <= 0 {
		queueSize = DefaultQueueSize
	}

	return &Scheduler{
		logger:  logger,
		cron:    cron.New(cron.WithLogger(cron.PrintfLogger(logger))),
		queue:   make(chan task, queueSize),
		pending: make(map[string]uint64),
		entries: make(map[string]cron.EntryID),
		quit:    make(chan struct{}),
		done:    make(chan struct{}),
	}
}

// ScheduleOnce queues the job to run as soon as the worker is free.
func (s *Scheduler) ScheduleOnce(id string, job Job) bool {
	return s.enqueue(id, job)
}

// ScheduleRecurring triggers the job every interval starting at start,
// replacing any recurring schedule registered under the same id.
func (s *Scheduler) ScheduleRecurring(id string, interval time.Duration, start time.Time, job Job) error {
	if interval <= 0 {
		return errors.Errorf("Invalid interval %s", interval)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if entry, ok := s.entries[id]; ok {
		s.cron.Remove(entry)
	}

	s.entries[id] = s.cron.Schedule(Every(start, interval), cron.FuncJob(func() {
		s.enqueue(id, job)
	}))

	s.logger.WithFields(logrus.Fields{"job": id, "interval": interval, "start": start}).Info("Recurring job scheduled")

	return nil
}

// Unschedule removes the recurring schedule and any pending instance of the job.
// An instance which is already running is not interrupted.
func (s *Scheduler) Unschedule(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if entry, ok := s.entries[id]; ok {
		s.cron.Remove(entry)
		delete(s.entries, id)
	}

	delete(s.pending, id)
}

func (s *Scheduler) Pending(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, ok := s.pending[id]
	return ok
}

func (s *Scheduler) enqueue(id string, job Job) bool {
	logger := s.logger.WithField("job", id)

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.pending[id]; ok {
		logger.Warn("Job is already pending, dropping trigger")
		return false
	}

	s.seq++
	t := task{id: id, seq: s.seq, job: job}

	select {
	case s.queue <- t:
		s.pending[id] = t.seq
		logger.Debug("Job queued")
		return true
	default:
		logger.Warn("Job queue is full, dropping trigger")
		return false
	}
}

func (s *Scheduler) Start() {
	s.cron.Start()
	go s.work()
}

// Stop prevents new triggers and waits for the running job, if any, until ctx is done.
func (s *Scheduler) Stop(ctx context.Context) error {
	<-s.cron.Stop().Done()

	close(s.quit)

	select {
	case <-s.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Scheduler) work() {
	defer close(s.done)

	for {
		select {
		case <-s.quit:
			return
		case t := <-s.queue:
			if !s.claim(t) {
				continue
			}
			s.run(t)
		}
	}
}

func (s *Scheduler) claim(t task) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	seq, ok := s.pending[t.id]
	if !ok || seq != t.seq {
		return false
	}

	delete(s.pending, t.id)
	return true
}

func (s *Scheduler) run(t task) {
	logger := s.logger.WithField("job", t.id)

	defer func() {
		if r := recover(); r != nil {
			logger.WithField("panic", r).Error("Job panicked")
		}
	}()

	startAt := time.Now()
	logger.Debug("Job started")

	t.job(context.Background())

	logger.WithField("duration", time.Since(startAt)).Debug("Job finished")
}

// Every fires at start and then every interval.
func Every(start time.Time, interval time.Duration) cron.Schedule {
	return everySchedule{start: start, interval: interval}
}

type everySchedule struct {
	start    time.Time
	interval time.Duration
}

func (e everySchedule) Next(t time.Time) time.Time {
	if t.Before(e.start) {
		return e.start
	}

	periods := t.Sub(e.start)/e.interval + 1

	return e.start.Add(periods * e.interval)
}

// FirstRun returns the next moment at the "HH:MM" wall clock time, today or tomorrow.
func FirstRun(now time.Time, clock string) (time.Time, error) {
	parts := strings.SplitN(clock, ":", 2)
	if len(parts) != 2 {
		return time.Time{}, errors.Errorf("Invalid start time %q", clock)
	}

	hour, err := strconv.Atoi(parts[0])
	if err != nil || hour < 0 || hour > 23 {
		return time.Time{}, errors.Errorf("Invalid start time %q", clock)
	}

	minute, err := strconv.Atoi(parts[1])
	if err != nil || minute < 0 || minute > 59 {
		return time.Time{}, errors.Errorf("Invalid start time %q", clock)
	}

	start := time.Date(now.Year(), now.Month(), now.Day(), hour, minute, 0, 0, now.Location())
	if !start.After(now) {
		start = start.AddDate(0, 0, 1)
	}

	return start, nil
}
