package core

import (
	"fmt"
	"sort"
	"sync"

	"landsim/pkg/domain"
)

// Registry is an in-memory store of entities keyed by integer identifier.
// Entities are held by pointer so event handlers mutate them in place; the
// household consistency guard provides rollback where a mutation spans
// several steps.
//
// A Registry is not safe for concurrent mutation. During the concurrent job
// reconciliation pass the household and person registries are only read;
// field-level changes to a household and its members happen under that
// household's lock (see LockTable).
type Registry[ID ~int, T any] struct {
	entity domain.EntityType
	items  map[ID]*T
	next   ID
	key    func(*T) ID
}

func newRegistry[ID ~int, T any](entity domain.EntityType, key func(*T) ID) *Registry[ID, T] {
	return &Registry[ID, T]{
		entity: entity,
		items:  make(map[ID]*T),
		key:    key,
	}
}

// Get returns the entity with the given id.
func (r *Registry[ID, T]) Get(id ID) (*T, bool) {
	item, ok := r.items[id]
	return item, ok
}

// Lookup returns the entity or a domain.ErrNotFound.
func (r *Registry[ID, T]) Lookup(id ID) (*T, error) {
	item, ok := r.items[id]
	if !ok {
		return nil, domain.ErrNotFound{Entity: r.entity, ID: int(id)}
	}
	return item, nil
}

// Add stores an entity under its own identifier.
func (r *Registry[ID, T]) Add(item *T) error {
	id := r.key(item)
	if id < 0 {
		return fmt.Errorf("%s id %d must be non-negative", r.entity, id)
	}
	if _, exists := r.items[id]; exists {
		return fmt.Errorf("%s %d already exists", r.entity, id)
	}
	r.items[id] = item
	if id >= r.next {
		r.next = id + 1
	}
	return nil
}

// Remove deletes the entity and reports whether it existed.
func (r *Registry[ID, T]) Remove(id ID) bool {
	if _, ok := r.items[id]; !ok {
		return false
	}
	delete(r.items, id)
	return true
}

// NextID allocates an identifier one above the highest ever stored.
func (r *Registry[ID, T]) NextID() ID {
	id := r.next
	r.next++
	return id
}

// Next returns the identifier NextID would allocate, without allocating.
func (r *Registry[ID, T]) Next() ID { return r.next }

// Reserve raises the allocation counter to at least next.
func (r *Registry[ID, T]) Reserve(next ID) {
	if next > r.next {
		r.next = next
	}
}

// Len returns the number of stored entities.
func (r *Registry[ID, T]) Len() int { return len(r.items) }

// IDs returns all identifiers in ascending order. Iteration over a registry
// always goes through IDs so that random draws happen in a stable order.
func (r *Registry[ID, T]) IDs() []ID {
	ids := make([]ID, 0, len(r.items))
	for id := range r.items {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// Values returns copies of all entities in identifier order.
func (r *Registry[ID, T]) Values(clone func(T) T) []T {
	ids := r.IDs()
	out := make([]T, 0, len(ids))
	for _, id := range ids {
		v := *r.items[id]
		if clone != nil {
			v = clone(v)
		}
		out = append(out, v)
	}
	return out
}

// JobRegistry is the only registry mutated concurrently. Identifier
// allocation and map insertion/removal are guarded by separate mutexes so
// reconciliation tasks for unrelated (zone, type) buckets only contend for
// the brief critical sections.
type JobRegistry struct {
	idMu sync.Mutex
	next domain.JobID

	mu   sync.RWMutex
	jobs map[domain.JobID]*domain.Job
}

func newJobRegistry() *JobRegistry {
	return &JobRegistry{jobs: make(map[domain.JobID]*domain.Job)}
}

// AllocateID reserves a fresh job identifier.
func (r *JobRegistry) AllocateID() domain.JobID {
	r.idMu.Lock()
	defer r.idMu.Unlock()
	id := r.next
	r.next++
	return id
}

// AllocateBlock reserves n consecutive identifiers and returns the first.
func (r *JobRegistry) AllocateBlock(n int) domain.JobID {
	r.idMu.Lock()
	defer r.idMu.Unlock()
	first := r.next
	r.next += domain.JobID(n)
	return first
}

// Next returns the identifier AllocateID would return.
func (r *JobRegistry) Next() domain.JobID {
	r.idMu.Lock()
	defer r.idMu.Unlock()
	return r.next
}

func (r *JobRegistry) bumpNext(id domain.JobID) {
	r.idMu.Lock()
	if id >= r.next {
		r.next = id + 1
	}
	r.idMu.Unlock()
}

// Insert stores a job.
func (r *JobRegistry) Insert(job domain.Job) error {
	if job.ID < 0 {
		return fmt.Errorf("job id %d must be non-negative", job.ID)
	}
	r.mu.Lock()
	if _, exists := r.jobs[job.ID]; exists {
		r.mu.Unlock()
		return fmt.Errorf("job %d already exists", job.ID)
	}
	stored := job
	r.jobs[job.ID] = &stored
	r.mu.Unlock()
	r.bumpNext(job.ID)
	return nil
}

// Remove deletes a job and returns the removed record.
func (r *JobRegistry) Remove(id domain.JobID) (domain.Job, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	job, ok := r.jobs[id]
	if !ok {
		return domain.Job{}, false
	}
	delete(r.jobs, id)
	return *job, true
}

// Get returns a copy of the job.
func (r *JobRegistry) Get(id domain.JobID) (domain.Job, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	job, ok := r.jobs[id]
	if !ok {
		return domain.Job{}, false
	}
	return *job, true
}

// SetWorker records the worker of a job; domain.VacantJob vacates it.
func (r *JobRegistry) SetWorker(id domain.JobID, worker domain.PersonID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	job, ok := r.jobs[id]
	if !ok {
		return domain.ErrNotFound{Entity: domain.EntityJob, ID: int(id)}
	}
	job.WorkerID = worker
	return nil
}

// Claim assigns worker to the job only if it is currently vacant.
func (r *JobRegistry) Claim(id domain.JobID, worker domain.PersonID) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	job, ok := r.jobs[id]
	if !ok || !job.Vacant() {
		return false
	}
	job.WorkerID = worker
	return true
}

// Len returns the number of jobs.
func (r *JobRegistry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.jobs)
}

// Values returns copies of all jobs in identifier order.
func (r *JobRegistry) Values() []domain.Job {
	r.mu.RLock()
	out := make([]domain.Job, 0, len(r.jobs))
	for _, job := range r.jobs {
		out = append(out, *job)
	}
	r.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// CountByKey returns the number of jobs per (zone, type).
func (r *JobRegistry) CountByKey() map[domain.JobKey]int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	counts := make(map[domain.JobKey]int)
	for _, job := range r.jobs {
		counts[domain.JobKey{Zone: job.Zone, Type: job.Type}]++
	}
	return counts
}

// LockTable hands out one mutex per identifier.
type LockTable[ID comparable] struct {
	mu    sync.Mutex
	locks map[ID]*sync.Mutex
}

// NewLockTable constructs an empty lock table.
func NewLockTable[ID comparable]() *LockTable[ID] {
	return &LockTable[ID]{locks: make(map[ID]*sync.Mutex)}
}

// Lock acquires the mutex for id and returns its release function.
func (t *LockTable[ID]) Lock(id ID) func() {
	t.mu.Lock()
	m, ok := t.locks[id]
	if !ok {
		m = &sync.Mutex{}
		t.locks[id] = m
	}
	t.mu.Unlock()
	m.Lock()
	return m.Unlock
}

// Forget drops the mutex for id. Callers must not hold it.
func (t *LockTable[ID]) Forget(id ID) {
	t.mu.Lock()
	delete(t.locks, id)
	t.mu.Unlock()
}
