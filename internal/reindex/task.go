package reindex

import (
	"context"
	"fmt"

	"github.com/Aman-CERP/wikisearch/internal/async"
	"github.com/Aman-CERP/wikisearch/internal/bulk"
)

// Task adapts a rebuild to the job queue. Chunk progress is reported on the
// job and the note names the target generation once the run ends.
func (j *Job) Task(opts Options) async.RunFunc {
	return func(ctx context.Context, p *async.JobProgress) error {
		res, err := j.Run(ctx, opts, func(pr bulk.Progress) { p.Report(pr) })
		if res != nil && res.Generation != nil {
			p.SetNote(fmt.Sprintf("generation %s, %d indexed", res.Generation.Name, res.Load.Indexed))
		}
		return err
	}
}

// Submit queues a rebuild. It fails with ErrCodeJobRunning while another
// rebuild is queued or running.
func Submit(q *async.Queue, j *Job, opts Options) (string, error) {
	if err := validatePercent(opts.Percent); err != nil {
		return "", err
	}
	return q.Submit(async.JobReindex, j.Task(opts))
}
