package worker

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/golang/glog"

	"github.com/actris-cloudnet/cloudnet-processing/internal/alert"
	"github.com/actris-cloudnet/cloudnet-processing/internal/cerr"
	"github.com/actris-cloudnet/cloudnet-processing/internal/logbuf"
	"github.com/actris-cloudnet/cloudnet-processing/internal/metadata"
	"github.com/actris-cloudnet/cloudnet-processing/internal/metrics"
	"github.com/actris-cloudnet/cloudnet-processing/internal/model"
	"github.com/actris-cloudnet/cloudnet-processing/internal/scratch"
	"github.com/actris-cloudnet/cloudnet-processing/internal/tasks"
)

// maxTasks bounds a worker process's lifetime: after this many
// receive/dispatch/report cycles it exits cleanly so an orchestrator
// (k8s Job, systemd) can recycle it, bounding slow memory growth.
const maxTasks = 100

// emptyQueueSleep is how long the loop waits before polling again
// after queue.receive returns nothing or errors transiently.
const emptyQueueSleep = 10 * time.Second

// Worker owns the clients and handlers for one worker process's
// lifetime and runs the receive/dispatch/report loop, strictly one
// task in flight at a time.
type Worker struct {
	MD       *metadata.Client
	Handlers *tasks.Handlers
	Alert    *alert.Notifier
	Log      *logbuf.Sink
}

func New(md *metadata.Client, h *tasks.Handlers, notifier *alert.Notifier) *Worker {
	return &Worker{MD: md, Handlers: h, Alert: notifier, Log: logbuf.New()}
}

// Run executes the loop until ctx is cancelled, SIGINT/SIGTERM arrives,
// or maxTasks tasks have been processed. A signal only sets a
// cooperative stop flag: the in-flight task (if any) always finishes
// first, so a task is never abandoned mid-upload.
func (w *Worker) Run(ctx context.Context) {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	var stopping atomic.Bool
	go func() {
		<-sigCh
		glog.Infof("worker: received stop signal, finishing current task then exiting")
		stopping.Store(true)
	}()

	processed := 0
	for processed < maxTasks {
		if stopping.Load() {
			glog.Infof("worker: stopping cooperatively after %d tasks", processed)
			return
		}
		if ctx.Err() != nil {
			return
		}
		if !w.runOnce(ctx) {
			// Idle polls don't count toward maxTasks: only handled
			// tasks grow the process, so only they advance the
			// recycle counter.
			time.Sleep(emptyQueueSleep)
			continue
		}
		processed++
	}
	glog.Infof("worker: reached max task count %d, exiting for recycle", maxTasks)
}

// runOnce receives and fully processes at most one task, reporting
// its outcome to both the queue and the metrics package. Returns
// false when there was nothing to do (empty queue or a failed
// receive).
func (w *Worker) runOnce(ctx context.Context) bool {
	t, err := w.MD.ReceiveTask(ctx)
	if err != nil {
		glog.Errorf("worker: queue.receive failed: %v", err)
		return false
	}
	if t == nil {
		metrics.QueueEmptyTotal.Inc()
		return false
	}

	w.Log.Clear()
	start := time.Now()
	outcome := w.runTask(ctx, t)
	metrics.TaskDuration.WithLabelValues(string(t.Type)).Observe(time.Since(start).Seconds())
	metrics.TasksTotal.WithLabelValues(string(t.Type), t.ProductID, outcome).Inc()
	return true
}

// runTask classifies and dispatches t, acquiring and guaranteeing
// cleanup of its scratch directory, and reports the complete/skip/fail
// outcome to the queue.
func (w *Worker) runTask(ctx context.Context, t *model.Task) string {
	dir, err := scratch.New("cloudnet-" + t.ID)
	if err != nil {
		glog.Errorf("worker: failed to create scratch dir for %s: %v", t.ID, err)
		w.fail(ctx, t, err)
		return "fail"
	}
	defer dir.Close()

	params, err := classify(ctx, w.Handlers, t)
	if err == nil {
		err = dispatch(ctx, w.Handlers, t, params, dir.Path)
	}
	// Missing upstream input is always skippable (see package cerr), so
	// the task is completed rather than failed.
	var rd *cerr.RawDataMissingError
	if errors.As(err, &rd) && !cerr.IsSkip(err) {
		err = cerr.AsSkip(err)
	}

	switch {
	case err == nil:
		if compErr := w.MD.CompleteTask(t.ID); compErr != nil {
			glog.Errorf("worker: queue.complete failed for %s: %v", t.ID, compErr)
		}
		return "complete"
	case cerr.IsSkip(err):
		w.Log.Warningf("task %s skipped: %v", t.ID, err)
		if compErr := w.MD.CompleteTask(t.ID); compErr != nil {
			glog.Errorf("worker: queue.complete failed for %s: %v", t.ID, compErr)
		}
		return "skip"
	default:
		w.fail(ctx, t, err)
		return "fail"
	}
}

// fail reports t to queue.fail and, if Slack alerting is configured,
// uploads the task's buffered log as an alert.
func (w *Worker) fail(ctx context.Context, t *model.Task, err error) {
	w.Log.Errorf("task %s failed: %v", t.ID, err)
	if failErr := w.MD.FailTask(t.ID); failErr != nil {
		glog.Errorf("worker: queue.fail failed for %s: %v", t.ID, failErr)
	}
	if w.Alert == nil {
		return
	}
	alertCtx := alert.Context{
		Site: t.SiteID, Date: t.MeasurementDate.Format("2006-01-02"),
		Product: t.ProductID, Model: t.ModelID,
	}
	if t.InstrumentInfoUUID != nil {
		alertCtx.InstrumentUUID = t.InstrumentInfoUUID.String()
	}
	if sendErr := w.Alert.Send(ctx, alert.SourceWorker, err, alertCtx, w.Log.Content()); sendErr != nil {
		glog.Errorf("worker: failed to send slack alert for %s: %v", t.ID, sendErr)
	}
}
