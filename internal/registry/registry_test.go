package registry

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/joseph-ayodele/invoice-pipeline/constants"
	"github.com/joseph-ayodele/invoice-pipeline/internal/common"
	"github.com/joseph-ayodele/invoice-pipeline/internal/pipeline"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// fakeProcessor completes every document unless its name is "bad.pdf". When gate
// is set, each call blocks until the gate closes or the job context ends.
type fakeProcessor struct {
	mu     sync.Mutex
	calls  map[string]int
	jobIDs []string
	gate   chan struct{}
}

func (p *fakeProcessor) Process(ctx context.Context, path, filename string) pipeline.Result {
	p.mu.Lock()
	if p.calls == nil {
		p.calls = map[string]int{}
	}
	p.calls[path]++
	p.jobIDs = append(p.jobIDs, common.JobIDFromContext(ctx))
	p.mu.Unlock()

	if p.gate != nil {
		select {
		case <-p.gate:
		case <-ctx.Done():
			return pipeline.Result{
				Filename: filename,
				Stage:    constants.StageIngestion,
				Status:   constants.PipelineFailed,
				Failure:  &pipeline.Failure{Kind: common.KindInternal, Message: "processing cancelled"},
			}
		}
	}
	if filename == "bad.pdf" {
		return pipeline.Result{
			Filename: filename,
			Stage:    constants.StageIngestion,
			Status:   constants.PipelineFailed,
			Failure:  &pipeline.Failure{Kind: common.KindValidation, Stage: constants.StageIngestion, Message: "corrupt PDF"},
		}
	}
	return pipeline.Result{
		Filename: filename,
		Stage:    constants.StageStructuring,
		Status:   constants.PipelineCompleted,
		Fields:   map[string]any{"total": 10.0},
	}
}

func (p *fakeProcessor) count(path string) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.calls[path]
}

func waitFor(t *testing.T, r *Registry, id string) Job {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	job, err := r.Wait(ctx, id)
	if err != nil {
		t.Fatalf("Wait(%s): %v", id, err)
	}
	return job
}

func TestSubmitRunsJobToCompletion(t *testing.T) {
	proc := &fakeProcessor{}
	r := New(proc, quietLogger(), WithWorkers(2))
	defer r.Shutdown(context.Background())

	job, err := r.Submit(context.Background(), "/in/a.pdf", "a.pdf", false)
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if job.Status != constants.JobStatusPending || job.ID == "" {
		t.Fatalf("submitted job = %+v", job)
	}

	done := waitFor(t, r, job.ID)
	if done.Status != constants.JobStatusCompleted || done.Stage != constants.StageStructuring {
		t.Errorf("job = %+v", done)
	}
	if done.Result == nil || done.Result.Fields["total"] != 10.0 {
		t.Errorf("result = %+v", done.Result)
	}
	if proc.count("/in/a.pdf") != 1 {
		t.Errorf("Process called %d times, want exactly once", proc.count("/in/a.pdf"))
	}
	if proc.jobIDs[0] != job.ID {
		t.Errorf("job id in context = %q, want %q", proc.jobIDs[0], job.ID)
	}

	got, ok := r.Get(job.ID)
	if !ok || got.Status != constants.JobStatusCompleted {
		t.Errorf("Get = %+v, %v", got, ok)
	}
}

func TestFailedResultMarksJobFailed(t *testing.T) {
	r := New(&fakeProcessor{}, quietLogger())
	defer r.Shutdown(context.Background())

	job, _ := r.Submit(context.Background(), "/in/bad.pdf", "bad.pdf", false)
	done := waitFor(t, r, job.ID)
	if done.Status != constants.JobStatusFailed || done.Error != "corrupt PDF" {
		t.Errorf("job = %+v", done)
	}
	if done.Stage != constants.StageIngestion {
		t.Errorf("stage = %s", done.Stage)
	}
}

func TestOwnedFilesAreRemoved(t *testing.T) {
	dir := t.TempDir()
	owned := filepath.Join(dir, "upload.pdf")
	kept := filepath.Join(dir, "inbox.pdf")
	for _, p := range []string{owned, kept} {
		if err := os.WriteFile(p, []byte("%PDF-1.4"), 0o644); err != nil {
			t.Fatal(err)
		}
	}

	r := New(&fakeProcessor{}, quietLogger())
	defer r.Shutdown(context.Background())

	j1, _ := r.Submit(context.Background(), owned, "upload.pdf", true)
	j2, _ := r.Submit(context.Background(), kept, "inbox.pdf", false)
	waitFor(t, r, j1.ID)
	waitFor(t, r, j2.ID)

	if _, err := os.Stat(owned); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("owned file still present: %v", err)
	}
	if _, err := os.Stat(kept); err != nil {
		t.Errorf("caller's file was removed: %v", err)
	}
}

func TestDeleteCancelsRunningJob(t *testing.T) {
	proc := &fakeProcessor{gate: make(chan struct{})}
	r := New(proc, quietLogger(), WithWorkers(1))
	defer r.Shutdown(context.Background())

	job, _ := r.Submit(context.Background(), "/in/slow.pdf", "slow.pdf", false)

	deadline := time.Now().Add(5 * time.Second)
	for {
		j, _ := r.Get(job.ID)
		if j.Status == constants.JobStatusProcessing {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("job never started")
		}
		time.Sleep(5 * time.Millisecond)
	}

	// grab the entry before it disappears from the map
	r.mu.RLock()
	e := r.jobs[job.ID]
	r.mu.RUnlock()

	if err := r.Delete(job.ID); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	select {
	case <-e.done:
	case <-time.After(5 * time.Second):
		t.Fatal("running job was not cancelled")
	}
	if _, ok := r.Get(job.ID); ok {
		t.Error("deleted job still visible")
	}
	if err := r.Delete(job.ID); !errors.Is(err, common.ErrNotFound) {
		t.Errorf("second Delete = %v, want ErrNotFound", err)
	}
}

func TestDeletePendingJobNeverRuns(t *testing.T) {
	proc := &fakeProcessor{gate: make(chan struct{})}
	r := New(proc, quietLogger(), WithWorkers(1))

	first, _ := r.Submit(context.Background(), "/in/first.pdf", "first.pdf", false)
	second, _ := r.Submit(context.Background(), "/in/second.pdf", "second.pdf", false)
	if err := r.Delete(second.ID); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	close(proc.gate)
	waitFor(t, r, first.ID)

	if err := r.Shutdown(context.Background()); err != nil {
		t.Fatalf("Shutdown: %v", err)
	}
	if proc.count("/in/second.pdf") != 0 {
		t.Error("deleted pending job was processed")
	}
}

func TestListNewestFirst(t *testing.T) {
	base := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	var mu sync.Mutex
	tick := 0
	clock := func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		tick++
		return base.Add(time.Duration(tick) * time.Minute)
	}
	proc := &fakeProcessor{gate: make(chan struct{})}
	r := New(proc, quietLogger(), WithWorkers(1), withClock(clock))
	defer func() {
		close(proc.gate)
		r.Shutdown(context.Background())
	}()

	var ids []string
	for _, name := range []string{"a.pdf", "b.pdf", "c.pdf"} {
		j, err := r.Submit(context.Background(), "/in/"+name, name, false)
		if err != nil {
			t.Fatal(err)
		}
		ids = append(ids, j.ID)
	}

	list := r.List()
	if len(list) != 3 {
		t.Fatalf("List len = %d", len(list))
	}
	for i, want := range []string{ids[2], ids[1], ids[0]} {
		if list[i].ID != want {
			t.Errorf("List[%d] = %s, want %s", i, list[i].ID, want)
		}
	}
	if c := r.Counts(); c[constants.JobStatusPending]+c[constants.JobStatusProcessing] != 3 {
		t.Errorf("counts = %v", c)
	}
}

func TestSubmitAfterShutdown(t *testing.T) {
	r := New(&fakeProcessor{}, quietLogger())
	if err := r.Shutdown(context.Background()); err != nil {
		t.Fatal(err)
	}
	if _, err := r.Submit(context.Background(), "/in/x.pdf", "x.pdf", false); !errors.Is(err, ErrClosed) {
		t.Errorf("Submit after shutdown = %v, want ErrClosed", err)
	}
	if err := r.Shutdown(context.Background()); err != nil {
		t.Errorf("second Shutdown = %v", err)
	}
}

func TestShutdownTimeoutCancelsRunningJobs(t *testing.T) {
	proc := &fakeProcessor{gate: make(chan struct{})}
	r := New(proc, quietLogger(), WithWorkers(1))
	job, _ := r.Submit(context.Background(), "/in/slow.pdf", "slow.pdf", false)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if err := r.Shutdown(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("Shutdown = %v, want deadline exceeded", err)
	}

	done := waitFor(t, r, job.ID)
	if done.Status != constants.JobStatusFailed {
		t.Errorf("job = %+v", done)
	}
}

func TestConcurrentSubmissions(t *testing.T) {
	proc := &fakeProcessor{}
	r := New(proc, quietLogger(), WithWorkers(4), WithQueueSize(2))
	defer r.Shutdown(context.Background())

	var wg sync.WaitGroup
	ids := make(chan string, 20)
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			j, err := r.Submit(context.Background(), filepath.Join("/in", string(rune('a'+i))+".pdf"), "x.pdf", false)
			if err != nil {
				t.Errorf("Submit: %v", err)
				return
			}
			ids <- j.ID
		}(i)
	}
	wg.Wait()
	close(ids)
	for id := range ids {
		if j := waitFor(t, r, id); j.Status != constants.JobStatusCompleted {
			t.Errorf("job %s = %s", id, j.Status)
		}
	}
}
