// Package jobmarket reconciles the simulated job inventory with an exogenous
// forecast of job counts per zone and job type.
package jobmarket

import (
	"context"
	"fmt"
	"runtime"
	"sort"

	"golang.org/x/sync/errgroup"

	"landsim/internal/core"
	"landsim/internal/diagnostics"
	"landsim/internal/guard"
	"landsim/pkg/domain"
)

const component = "jobmarket"

// Task is one unit of work for the worker pool. Exactly one of Add or
// Remove is positive. Vacant and Occupied partition the bucket's jobs as
// they were before the pass; vacant jobs are removed first.
type Task struct {
	Key      domain.JobKey
	Add      int
	Remove   int
	Vacant   []domain.JobID
	Occupied []domain.JobID
	// FirstID starts the identifier block reserved for added jobs.
	FirstID domain.JobID
}

// Delta is the outcome of one task.
type Delta struct {
	Key        domain.JobKey
	Added      []domain.JobID
	Removed    []domain.JobID
	Terminated []domain.PersonID
	// Shortfall is the number of requested removals that found no job.
	Shortfall int
}

// Report summarises one reconciliation pass.
type Report struct {
	Year       int
	Deltas     []Delta
	Added      int
	Removed    int
	Terminated int
	Shortfall  int
	Purged     int
}

// Reconciliator runs the pass over a simulation context.
type Reconciliator struct {
	sim     *core.SimulationContext
	guard   *guard.Guard
	workers int
}

// Option configures a Reconciliator.
type Option func(*Reconciliator)

// WithWorkers bounds the worker pool. Values below one select GOMAXPROCS.
func WithWorkers(n int) Option {
	return func(r *Reconciliator) {
		if n > 0 {
			r.workers = n
		}
	}
}

// New constructs a reconciliator.
func New(sim *core.SimulationContext, g *guard.Guard, opts ...Option) *Reconciliator {
	r := &Reconciliator{sim: sim, guard: g, workers: runtime.GOMAXPROCS(0)}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Plan compares current counts with targets and builds one task per
// (zone, type) that needs a change. Keys missing from targets, and negative
// targets, request no change. Tasks are ordered by key.
func (r *Reconciliator) Plan(targets map[domain.JobKey]int) []Task {
	vacant := make(map[domain.JobKey][]domain.JobID)
	occupied := make(map[domain.JobKey][]domain.JobID)
	for _, job := range r.sim.Jobs.Values() {
		key := domain.JobKey{Zone: job.Zone, Type: job.Type}
		if job.Vacant() {
			vacant[key] = append(vacant[key], job.ID)
		} else {
			occupied[key] = append(occupied[key], job.ID)
		}
	}

	keys := make([]domain.JobKey, 0, len(targets))
	for key := range targets {
		keys = append(keys, key)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].Zone != keys[j].Zone {
			return keys[i].Zone < keys[j].Zone
		}
		return keys[i].Type < keys[j].Type
	})

	var tasks []Task
	for _, key := range keys {
		target := targets[key]
		if target < 0 {
			continue
		}
		current := len(vacant[key]) + len(occupied[key])
		switch {
		case target > current:
			tasks = append(tasks, Task{Key: key, Add: target - current})
		case target < current:
			tasks = append(tasks, Task{
				Key:      key,
				Remove:   current - target,
				Vacant:   vacant[key],
				Occupied: occupied[key],
			})
		}
	}
	return tasks
}

// Reconcile plans the pass, runs every task on the bounded pool and waits
// for all of them. Afterwards dangling person/job references are purged and
// recorded as diagnostics. An error is returned only for unexpected
// failures; missing jobs are reported as shortfalls.
func (r *Reconciliator) Reconcile(ctx context.Context, targets map[domain.JobKey]int) (Report, error) {
	tasks := r.Plan(targets)
	deltas := make([]Delta, len(tasks))
	// Blocks are reserved in key order so new job ids do not depend on
	// worker scheduling.
	for i := range tasks {
		if tasks[i].Add > 0 {
			tasks[i].FirstID = r.sim.Jobs.AllocateBlock(tasks[i].Add)
		}
	}

	grp, gctx := errgroup.WithContext(ctx)
	grp.SetLimit(r.workers)
	for i, task := range tasks {
		grp.Go(func() error {
			d, err := r.run(gctx, task)
			deltas[i] = d
			if err != nil {
				return fmt.Errorf("jobmarket task %s: %w", task.Key, err)
			}
			return nil
		})
	}
	if err := grp.Wait(); err != nil {
		return Report{}, err
	}

	report := Report{Year: r.sim.Year(), Deltas: deltas}
	for _, d := range deltas {
		report.Added += len(d.Added)
		report.Removed += len(d.Removed)
		report.Terminated += len(d.Terminated)
		report.Shortfall += d.Shortfall
		if d.Shortfall > 0 {
			r.sim.Diagnostics.Record(component, diagnostics.IssueJobRemovalShortfall,
				fmt.Sprintf("%s: %d removals without a job to remove", d.Key, d.Shortfall))
		}
	}
	for _, dangling := range r.sim.PurgeDanglingEmployment() {
		report.Purged++
		msg := fmt.Sprintf("%s %d referenced missing or mismatched %d", dangling.Entity, dangling.ID, dangling.Ref)
		r.sim.Diagnostics.Record(component, diagnostics.IssueDanglingReference, msg)
		r.sim.Logger.Warn("purged dangling reference", "entity", dangling.Entity, "id", dangling.ID, "ref", dangling.Ref)
	}
	r.sim.Logger.Info("job market reconciled",
		"year", report.Year,
		"tasks", len(tasks),
		"added", report.Added,
		"removed", report.Removed,
		"terminated", report.Terminated,
		"shortfall", report.Shortfall,
		"purged", report.Purged,
	)
	return report, nil
}

func (r *Reconciliator) run(ctx context.Context, task Task) (Delta, error) {
	if err := ctx.Err(); err != nil {
		return Delta{Key: task.Key}, err
	}
	if task.Add > 0 {
		return r.add(task), nil
	}
	return r.remove(task)
}

func (r *Reconciliator) add(task Task) Delta {
	d := Delta{Key: task.Key, Added: make([]domain.JobID, 0, task.Add)}
	for i := 0; i < task.Add; i++ {
		id := task.FirstID + domain.JobID(i)
		job := domain.Job{ID: id, Zone: task.Key.Zone, Type: task.Key.Type, WorkerID: domain.VacantJob}
		if err := r.sim.Jobs.Insert(job); err != nil {
			d.Shortfall++
			continue
		}
		d.Added = append(d.Added, id)
	}
	return d
}

// remove takes vacant jobs first, then occupied ones, each list shuffled with
// the task's own generator. It stops when the occupied list runs out.
func (r *Reconciliator) remove(task Task) (Delta, error) {
	d := Delta{Key: task.Key}
	rng := r.sim.TaskRand(task.Key.String())
	vacant := append([]domain.JobID(nil), task.Vacant...)
	occupied := append([]domain.JobID(nil), task.Occupied...)
	rng.Shuffle(len(vacant), func(i, j int) { vacant[i], vacant[j] = vacant[j], vacant[i] })
	rng.Shuffle(len(occupied), func(i, j int) { occupied[i], occupied[j] = occupied[j], occupied[i] })

	need := task.Remove
	for _, id := range vacant {
		if need == 0 {
			break
		}
		if _, ok := r.sim.Jobs.Remove(id); ok {
			d.Removed = append(d.Removed, id)
			need--
		}
	}
	for _, id := range occupied {
		if need == 0 {
			break
		}
		job, ok := r.sim.Jobs.Remove(id)
		if !ok {
			continue
		}
		d.Removed = append(d.Removed, id)
		need--
		terminated, err := r.terminate(job)
		if err != nil {
			return d, err
		}
		if terminated {
			d.Terminated = append(d.Terminated, job.WorkerID)
		}
	}
	d.Shortfall = need
	return d, nil
}

// terminate ends the employment of a removed job's worker under the
// worker's household lock and the consistency guard.
func (r *Reconciliator) terminate(job domain.Job) (bool, error) {
	if job.Vacant() {
		return false, nil
	}
	p, ok := r.sim.Persons.Get(job.WorkerID)
	if !ok {
		return false, nil
	}
	unlock := r.sim.HouseholdLocks.Lock(p.HouseholdID)
	defer unlock()
	h, ok := r.sim.Households.Get(p.HouseholdID)
	if !ok {
		return false, nil
	}
	return r.guard.Run(component, h, func(s *guard.Scope) error {
		if p.JobID != job.ID {
			return guard.Infeasible("person %d no longer holds job %d", p.ID, job.ID)
		}
		r.sim.ReleaseJob(p)
		r.sim.RefreshHousehold(s.Household())
		return nil
	})
}
