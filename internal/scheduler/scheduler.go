// Package scheduler runs cron-style jobs that inject messages into the
// inbound queue, so a reminder flows through orchestration exactly like a
// message typed by the user.
package scheduler

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"

	"github.com/room302studio/coachartie2-sub006/internal/channel"
)

// Publisher delivers a scheduled message into the inbound queue.
type Publisher func(ctx context.Context, msg channel.IncomingMessage) error

// Job is one scheduled message. Spec takes standard five-field cron
// expressions plus the @every and @daily style shorthands.
type Job struct {
	Name      string `yaml:"name" json:"name"`
	Spec      string `yaml:"spec" json:"spec"`
	Message   string `yaml:"message" json:"message"`
	RespondTo string `yaml:"respond_to,omitempty" json:"respond_to,omitempty"`
	Paused    bool   `yaml:"paused,omitempty" json:"paused,omitempty"`
	Source    string `yaml:"source,omitempty" json:"source,omitempty"` // "config" or "dynamic"
	CreatedBy string `yaml:"created_by,omitempty" json:"created_by,omitempty"`
}

var (
	ErrConfigProtected = fmt.Errorf("config-defined jobs cannot be modified or removed")
	ErrNotAuthorized   = fmt.Errorf("not authorized to manage scheduled jobs")
)

type runningJob struct {
	job   Job
	entry cron.EntryID // zero while paused
}

// Scheduler owns the cron runner and the job table. Dynamic jobs survive
// restarts via a YAML file in the data directory.
type Scheduler struct {
	mu      sync.Mutex
	cron    *cron.Cron
	jobs    map[string]*runningJob
	publish Publisher
	dataDir string
	log     zerolog.Logger

	approvers      map[string]bool
	maxJobsPerUser int
}

// New creates a scheduler. approvers, when non-empty, restricts who may
// create, modify, or remove dynamic jobs; maxPerUser, when positive, caps
// dynamic jobs per user.
func New(publish Publisher, dataDir string, approvers []string, maxPerUser int, log zerolog.Logger) *Scheduler {
	aMap := make(map[string]bool, len(approvers))
	for _, a := range approvers {
		aMap[a] = true
	}
	return &Scheduler{
		cron:           cron.New(),
		jobs:           make(map[string]*runningJob),
		publish:        publish,
		dataDir:        dataDir,
		log:            log.With().Str("component", "scheduler").Logger(),
		approvers:      aMap,
		maxJobsPerUser: maxPerUser,
	}
}

func (s *Scheduler) isApprover(userID string) bool {
	if len(s.approvers) == 0 {
		return true
	}
	return s.approvers[userID]
}

func (s *Scheduler) countUserJobs(userID string) int {
	count := 0
	for _, rj := range s.jobs {
		if rj.job.Source == "dynamic" && rj.job.CreatedBy == userID {
			count++
		}
	}
	return count
}

// Start registers config jobs and persisted dynamic jobs, then starts the
// cron runner. Jobs that fail to register are logged and skipped.
func (s *Scheduler) Start(staticJobs []Job) error {
	s.mu.Lock()
	for i := range staticJobs {
		staticJobs[i].Source = "config"
		if err := s.registerLocked(staticJobs[i]); err != nil {
			s.log.Warn().Err(err).Str("job", staticJobs[i].Name).Msg("skipping config job")
		}
	}
	dynamic, err := s.loadDynamic()
	if err != nil {
		s.log.Warn().Err(err).Msg("loading dynamic jobs")
	}
	for _, j := range dynamic {
		j.Source = "dynamic"
		if err := s.registerLocked(j); err != nil {
			s.log.Warn().Err(err).Str("job", j.Name).Msg("skipping dynamic job")
		}
	}
	s.mu.Unlock()

	s.cron.Start()
	return nil
}

// Stop halts the cron runner and waits for in-flight job functions.
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
}

func (s *Scheduler) registerLocked(job Job) error {
	if job.Name == "" || job.Spec == "" || job.Message == "" {
		return fmt.Errorf("job needs a name, a spec, and a message")
	}
	if _, exists := s.jobs[job.Name]; exists {
		return fmt.Errorf("job %q already exists", job.Name)
	}
	rj := &runningJob{job: job}
	if !job.Paused {
		id, err := s.cron.AddFunc(job.Spec, s.fire(job.Name))
		if err != nil {
			return fmt.Errorf("invalid spec %q: %w", job.Spec, err)
		}
		rj.entry = id
	}
	s.jobs[job.Name] = rj
	return nil
}

// fire builds the cron callback. It re-reads the job from the table so pause
// and update take effect between ticks.
func (s *Scheduler) fire(name string) func() {
	return func() {
		s.mu.Lock()
		rj, ok := s.jobs[name]
		var job Job
		if ok {
			job = rj.job
		}
		s.mu.Unlock()
		if !ok || job.Paused {
			return
		}

		msg := channel.IncomingMessage{
			ID:        channel.NewMessageID("scheduler"),
			UserID:    job.CreatedBy,
			Message:   job.Message,
			Source:    "scheduler",
			RespondTo: job.RespondTo,
		}
		if err := s.publish(context.Background(), msg); err != nil {
			s.log.Error().Err(err).Str("job", name).Msg("publishing scheduled message")
		}
	}
}

// AddJob creates a dynamic job at runtime and persists it.
func (s *Scheduler) AddJob(job Job, userID string) error {
	if !s.isApprover(userID) {
		return ErrNotAuthorized
	}
	job.Source = "dynamic"
	job.CreatedBy = userID

	s.mu.Lock()
	if s.maxJobsPerUser > 0 && s.countUserJobs(userID) >= s.maxJobsPerUser {
		s.mu.Unlock()
		return fmt.Errorf("user %q already has %d jobs (max %d)", userID, s.maxJobsPerUser, s.maxJobsPerUser)
	}
	if err := s.registerLocked(job); err != nil {
		s.mu.Unlock()
		return err
	}
	s.mu.Unlock()

	return s.persistDynamic()
}

// RemoveJob deletes a dynamic job. Config jobs are protected.
func (s *Scheduler) RemoveJob(name, userID string) error {
	if !s.isApprover(userID) {
		return ErrNotAuthorized
	}
	s.mu.Lock()
	rj, ok := s.jobs[name]
	if !ok {
		s.mu.Unlock()
		return fmt.Errorf("job %q not found", name)
	}
	if rj.job.Source == "config" {
		s.mu.Unlock()
		return ErrConfigProtected
	}
	if rj.entry != 0 {
		s.cron.Remove(rj.entry)
	}
	delete(s.jobs, name)
	s.mu.Unlock()

	return s.persistDynamic()
}

// PauseJob unschedules a job without forgetting it.
func (s *Scheduler) PauseJob(name, userID string) error {
	if !s.isApprover(userID) {
		return ErrNotAuthorized
	}
	s.mu.Lock()
	rj, ok := s.jobs[name]
	if !ok {
		s.mu.Unlock()
		return fmt.Errorf("job %q not found", name)
	}
	if rj.entry != 0 {
		s.cron.Remove(rj.entry)
		rj.entry = 0
	}
	rj.job.Paused = true
	s.mu.Unlock()

	return s.persistDynamic()
}

// ResumeJob reschedules a paused job.
func (s *Scheduler) ResumeJob(name, userID string) error {
	if !s.isApprover(userID) {
		return ErrNotAuthorized
	}
	s.mu.Lock()
	rj, ok := s.jobs[name]
	if !ok {
		s.mu.Unlock()
		return fmt.Errorf("job %q not found", name)
	}
	if !rj.job.Paused {
		s.mu.Unlock()
		return fmt.Errorf("job %q is not paused", name)
	}
	id, err := s.cron.AddFunc(rj.job.Spec, s.fire(name))
	if err != nil {
		s.mu.Unlock()
		return err
	}
	rj.entry = id
	rj.job.Paused = false
	s.mu.Unlock()

	return s.persistDynamic()
}

// ListJobs returns a snapshot of all jobs.
func (s *Scheduler) ListJobs() []Job {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Job, 0, len(s.jobs))
	for _, rj := range s.jobs {
		out = append(out, rj.job)
	}
	return out
}

func (s *Scheduler) dynamicPath() string {
	return filepath.Join(s.dataDir, "scheduler_jobs.yaml")
}

func (s *Scheduler) loadDynamic() ([]Job, error) {
	data, err := os.ReadFile(s.dynamicPath())
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var jobs []Job
	if err := yaml.Unmarshal(data, &jobs); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", s.dynamicPath(), err)
	}
	return jobs, nil
}

func (s *Scheduler) persistDynamic() error {
	s.mu.Lock()
	var dynamic []Job
	for _, rj := range s.jobs {
		if rj.job.Source == "dynamic" {
			dynamic = append(dynamic, rj.job)
		}
	}
	s.mu.Unlock()

	data, err := yaml.Marshal(dynamic)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(s.dataDir, 0o755); err != nil {
		return err
	}
	return os.WriteFile(s.dynamicPath(), data, 0o644)
}
