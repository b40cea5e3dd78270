// Package cron runs periodic maintenance jobs, such as the reconciliation sweep, on one instance of
// the deployment at a time.
package cron

import (
	"context"
	"errors"
	"fmt"
)

// Job is a periodic task. Name labels its logs and metrics and must be unique within a Registry.
type Job interface {
	Name() string
	Run(ctx context.Context) error
}

var errNilJob = errors.New("cron: nil job")

// Registry holds the jobs of one cycle in registration order.
type Registry struct {
	order  []string
	byName map[string]Job
}

// NewRegistry registers jobs in order and fails on a nil job or a repeated name.
func NewRegistry(jobs ...Job) (*Registry, error) {
	r := &Registry{byName: make(map[string]Job, len(jobs))}
	for _, job := range jobs {
		if err := r.Register(job); err != nil {
			return nil, err
		}
	}
	return r, nil
}

func (r *Registry) Register(job Job) error {
	if job == nil {
		return errNilJob
	}
	name := job.Name()
	if _, taken := r.byName[name]; taken {
		return fmt.Errorf("cron: job %q registered twice", name)
	}
	r.byName[name] = job
	r.order = append(r.order, name)
	return nil
}

// Jobs returns a fresh slice each call.
func (r *Registry) Jobs() []Job {
	jobs := make([]Job, 0, len(r.order))
	for _, name := range r.order {
		jobs = append(jobs, r.byName[name])
	}
	return jobs
}
