package core

import (
	"context"
	"fmt"

	"landsim/pkg/domain"
)

// NewEmploymentLinkRule checks the person/job back-references.
func NewEmploymentLinkRule() domain.Rule {
	return employmentLinkRule{}
}

type employmentLinkRule struct{}

func (employmentLinkRule) Name() string { return "employment_link" }

func (r employmentLinkRule) Evaluate(_ context.Context, view domain.RuleView) (domain.Result, error) {
	res := domain.Result{}
	for _, p := range view.ListPersons() {
		if !p.Employed() {
			continue
		}
		job, ok := view.FindJob(p.JobID)
		if !ok || job.WorkerID != p.ID {
			res.Violations = append(res.Violations, domain.Violation{
				Rule:     r.Name(),
				Severity: domain.SeverityWarn,
				Message:  fmt.Sprintf("person %d references job %d which does not employ them", p.ID, p.JobID),
				Entity:   domain.EntityPerson,
				EntityID: int(p.ID),
			})
		}
	}
	for _, job := range view.ListJobs() {
		if job.Vacant() {
			continue
		}
		p, ok := view.FindPerson(job.WorkerID)
		if !ok || p.JobID != job.ID {
			res.Violations = append(res.Violations, domain.Violation{
				Rule:     r.Name(),
				Severity: domain.SeverityWarn,
				Message:  fmt.Sprintf("job %d references worker %d who does not hold it", job.ID, job.WorkerID),
				Entity:   domain.EntityJob,
				EntityID: int(job.ID),
			})
		}
	}
	return res, nil
}
