// Package manager drives training runs through their lifecycle. Submit
// records a queued run and returns at once; a worker pool picks runs up,
// waits for admission slots, executes training, streams per-epoch metrics
// and stores the final artifact. Every state transition is persisted so a
// restart can rebuild the registry from the run store.
package manager

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"train-orchestrator/core/admission"
	"train-orchestrator/core/models"
	"train-orchestrator/core/repository"
	"train-orchestrator/core/trainer"
	"train-orchestrator/core/trainerrors"
	"train-orchestrator/storage"
)

// Defaults applied when Options fields are left zero.
const (
	DefaultGlobalLimit = 1
	DefaultTenantLimit = 1
	DefaultDevice      = "cpu"
)

// ProgressCallback receives one metric record per finished epoch of the
// run it was registered for.
type ProgressCallback func(record models.MetricRecord)

// SubmitRequest describes a training run to start. Device and OnEpochEnd
// are optional.
type SubmitRequest struct {
	TenantID     string
	RunName      string
	BaseModelRef string
	DatasetRef   string
	EpochCount   int
	Device       string
	OnEpochEnd   ProgressCallback
}

// Options tune the manager's concurrency and defaults. Zero values fall
// back to a global limit of 1, a per-tenant limit of 1, twice the global
// limit in workers (at least 2) and the "cpu" device.
type Options struct {
	GlobalLimit int64
	TenantLimit int64
	Workers     int
	Device      string
}

func (o Options) withDefaults() Options {
	if o.GlobalLimit < 1 {
		o.GlobalLimit = DefaultGlobalLimit
	}
	if o.TenantLimit < 1 {
		o.TenantLimit = DefaultTenantLimit
	}
	if o.Workers < 1 {
		o.Workers = defaultWorkers(o.GlobalLimit)
	}
	if o.Device == "" {
		o.Device = DefaultDevice
	}
	return o
}

func defaultWorkers(globalLimit int64) int {
	workers := int(2 * globalLimit)
	if workers < 2 {
		workers = 2
	}
	return workers
}

// Snapshot is a point-in-time view of the manager for the metrics
// exporter.
type Snapshot struct {
	RunStates             map[models.RunState]int
	QueueDepth            int
	Admission             admission.Stats
	MetricRecordsAppended uint64
	ArtifactsSaved        uint64
}

// runtimeState holds per-run data that is not part of the durable record:
// the requested device and the caller's progress callback. It is dropped
// when the run finishes and is not recovered after a restart.
type runtimeState struct {
	device     string
	onEpochEnd ProgressCallback
}

// Manager owns the full lifecycle of training runs.
type Manager struct {
	trainer   trainer.Trainer
	predictor trainer.Predictor
	runStore  repository.RunStateStore
	metrics   repository.MetricsSink
	artifacts storage.ArtifactStore

	admission *admission.Controller
	runs      *runRegistry
	queue     *pendingQueue
	device    string

	rtMu          sync.Mutex
	runtimeStates map[string]*runtimeState

	metricsAppended atomic.Uint64
	artifactsSaved  atomic.Uint64

	cancel context.CancelFunc
	group  *errgroup.Group
}

// NewManager reloads previously persisted runs into the registry and
// starts the worker pool. Reloaded queued or running records stay visible
// in their last persisted state and are not resumed.
func NewManager(
	ctx context.Context,
	opts Options,
	tr trainer.Trainer,
	predictor trainer.Predictor,
	runStore repository.RunStateStore,
	metricsSink repository.MetricsSink,
	artifacts storage.ArtifactStore,
) (*Manager, error) {
	opts = opts.withDefaults()
	ctl, err := admission.NewController(opts.GlobalLimit, opts.TenantLimit)
	if err != nil {
		return nil, err
	}

	m := &Manager{
		trainer:       tr,
		predictor:     predictor,
		runStore:      runStore,
		metrics:       metricsSink,
		artifacts:     artifacts,
		admission:     ctl,
		runs:          newRunRegistry(),
		queue:         newPendingQueue(),
		device:        opts.Device,
		runtimeStates: make(map[string]*runtimeState),
	}

	records, err := runStore.LoadAll(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "recovering run records")
	}
	for _, record := range records {
		m.runs.Put(record)
	}
	if len(records) > 0 {
		log.Infof("Recovered %d run records", len(records))
	}

	workerCtx, cancel := context.WithCancel(context.Background())
	m.cancel = cancel
	group, workerCtx := errgroup.WithContext(workerCtx)
	m.group = group
	for i := 0; i < opts.Workers; i++ {
		group.Go(func() error {
			m.worker(workerCtx)
			return nil
		})
	}

	log.Infof("Manager started: %d workers, global limit %d, tenant limit %d",
		opts.Workers, opts.GlobalLimit, opts.TenantLimit)
	return m, nil
}

// Submit validates the request, persists the queued record and hands the
// run to the worker pool. It returns the new run ID without waiting for
// admission or training.
func (m *Manager) Submit(ctx context.Context, req SubmitRequest) (string, error) {
	if err := validateSubmit(req); err != nil {
		return "", err
	}

	record := models.RunRecord{
		RunID:        uuid.New().String(),
		TenantID:     req.TenantID,
		RunName:      req.RunName,
		BaseModelRef: req.BaseModelRef,
		DatasetRef:   req.DatasetRef,
		EpochCount:   req.EpochCount,
		State:        models.StateQueued,
		CreatedAt:    time.Now().UTC(),
	}
	if err := m.runStore.Upsert(ctx, record); err != nil {
		return "", errors.Wrap(err, "recording submitted run")
	}
	m.runs.Put(record)

	m.rtMu.Lock()
	m.runtimeStates[record.RunID] = &runtimeState{
		device:     req.Device,
		onEpochEnd: req.OnEpochEnd,
	}
	m.rtMu.Unlock()

	m.queue.Enqueue(record.RunID)
	log.Infof("Run %s queued for tenant %s (%d epochs)", record.RunID, req.TenantID, req.EpochCount)
	return record.RunID, nil
}

// QueryRun returns the current record for runID.
func (m *Manager) QueryRun(runID string) (models.RunRecord, error) {
	record, ok := m.runs.Get(runID)
	if !ok {
		return models.RunRecord{}, &trainerrors.ErrNotFound{Type: "run", Value: runID}
	}
	return record, nil
}

// ListRuns returns runs newest first. An empty tenantID lists every
// tenant's runs.
func (m *Manager) ListRuns(tenantID string) []models.RunRecord {
	return m.runs.List(tenantID)
}

// ListModels returns the tenant's stored models.
func (m *Manager) ListModels(ctx context.Context, tenantID string) ([]models.ModelMeta, error) {
	return m.artifacts.List(ctx, tenantID)
}

// DeleteModel removes every stored version of the named model and reports
// whether anything was removed.
func (m *Manager) DeleteModel(ctx context.Context, tenantID, modelName string) (bool, error) {
	return m.artifacts.Delete(ctx, tenantID, modelName)
}

// Infer resolves the newest stored version of modelName and runs detection
// over the given images. Zero thresholds fall back to the defaults.
func (m *Manager) Infer(ctx context.Context, tenantID, modelName string, images []string, opts trainer.PredictOptions) ([]models.ImageResult, error) {
	if m.predictor == nil {
		return nil, &trainerrors.ErrCapability{Op: "infer", Err: errors.New("no inference backend configured")}
	}
	path, err := m.artifacts.GetPath(ctx, tenantID, modelName)
	if err != nil {
		return nil, err
	}
	if opts.ConfThreshold <= 0 {
		opts.ConfThreshold = trainer.DefaultConfThreshold
	}
	if opts.IOUThreshold <= 0 {
		opts.IOUThreshold = trainer.DefaultIOUThreshold
	}
	return m.predictor.Predict(ctx, path, images, opts)
}

// Snapshot reports run, queue and admission occupancy.
func (m *Manager) Snapshot() Snapshot {
	return Snapshot{
		RunStates:             m.runs.CountByState(),
		QueueDepth:            m.queue.Len(),
		Admission:             m.admission.Stats(),
		MetricRecordsAppended: m.metricsAppended.Load(),
		ArtifactsSaved:        m.artifactsSaved.Load(),
	}
}

// Close stops the worker pool. Runs still queued stay persisted as queued;
// in-flight training is cancelled and recorded as failed.
func (m *Manager) Close() error {
	m.cancel()
	return m.group.Wait()
}

func (m *Manager) worker(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		id, ok := m.queue.Pop()
		if !ok {
			select {
			case <-ctx.Done():
				return
			case <-m.queue.Wait():
			}
			continue
		}
		m.runJob(ctx, id)
	}
}

func (m *Manager) runJob(ctx context.Context, runID string) {
	record, ok := m.runs.Get(runID)
	if !ok {
		log.Errorf("Queued run %s has no registry entry", runID)
		return
	}

	if err := m.admission.Acquire(ctx, record.TenantID); err != nil {
		// Shutdown while waiting for slots; the run stays queued.
		log.WithError(err).Debugf("Run %s left queued", runID)
		return
	}
	defer m.admission.Release(record.TenantID)

	started := time.Now().UTC()
	record, ok = m.runs.Update(runID, func(r *models.RunRecord) {
		r.State = models.StateRunning
		r.StartedAt = &started
	})
	if !ok {
		return
	}
	m.persist(ctx, record)
	log.Infof("Run %s started for tenant %s", runID, record.TenantID)

	result, err := m.train(ctx, record)
	if err != nil {
		log.WithError(err).Warnf("Run %s failed", runID)
		m.finish(runID, func(r *models.RunRecord) {
			r.State = models.StateFailed
			r.Error = err.Error()
		})
		return
	}

	m.streamMetrics(ctx, record, result)

	meta, err := m.artifacts.Save(ctx, record.TenantID, record.RunName, result.BestWeightsPath(), result.Labels)
	if err != nil {
		log.WithError(err).Warnf("Run %s failed storing its artifact", runID)
		m.finish(runID, func(r *models.RunRecord) {
			r.State = models.StateFailed
			r.Error = err.Error()
		})
		return
	}
	m.artifactsSaved.Add(1)

	m.finish(runID, func(r *models.RunRecord) {
		r.State = models.StateCompleted
		r.FinalArtifactPath = meta.Path
	})
	log.Infof("Run %s completed, artifact %s", runID, meta.Path)
}

func (m *Manager) train(ctx context.Context, record models.RunRecord) (*trainer.TrainResult, error) {
	device := m.device
	m.rtMu.Lock()
	if rt, ok := m.runtimeStates[record.RunID]; ok && rt.device != "" {
		device = rt.device
	}
	m.rtMu.Unlock()

	return m.trainer.Train(ctx, trainer.TrainRequest{
		BaseModelRef: record.BaseModelRef,
		DatasetRef:   record.DatasetRef,
		EpochCount:   record.EpochCount,
		Device:       device,
	})
}

// streamMetrics records exactly one metric record per requested epoch,
// zero-filling epochs the backend did not report. Sink failures are logged
// and skipped; they never fail the run.
func (m *Manager) streamMetrics(ctx context.Context, record models.RunRecord, result *trainer.TrainResult) {
	for epoch := 1; epoch <= record.EpochCount; epoch++ {
		metric := models.MetricRecord{
			RunID:      record.RunID,
			Epoch:      epoch,
			Metrics:    result.MetricsForEpoch(epoch).Values(),
			RecordedAt: time.Now().UTC(),
		}
		if err := m.metrics.Append(ctx, metric); err != nil {
			log.WithError(err).Warnf("Failed to append metrics for run %s epoch %d", record.RunID, epoch)
		} else {
			m.metricsAppended.Add(1)
		}
		m.notifyProgress(record.RunID, metric)
	}
}

// notifyProgress invokes the caller's callback, if any. A panicking
// callback is contained here and cannot take the run down.
func (m *Manager) notifyProgress(runID string, record models.MetricRecord) {
	m.rtMu.Lock()
	rt := m.runtimeStates[runID]
	m.rtMu.Unlock()
	if rt == nil || rt.onEpochEnd == nil {
		return
	}

	defer func() {
		if r := recover(); r != nil {
			log.Errorf("Progress callback for run %s panicked: %v", runID, r)
		}
	}()
	rt.onEpochEnd(record)
}

func (m *Manager) finish(runID string, apply func(*models.RunRecord)) {
	finished := time.Now().UTC()
	record, ok := m.runs.Update(runID, func(r *models.RunRecord) {
		apply(r)
		r.FinishedAt = &finished
	})
	if !ok {
		return
	}
	// Terminal states are persisted on a fresh context: the worker context
	// may already be cancelled when a shutdown fails the run.
	m.persist(context.Background(), record)

	m.rtMu.Lock()
	delete(m.runtimeStates, runID)
	m.rtMu.Unlock()
}

// persist writes the record, logging instead of failing: a run in flight
// must survive a flaky store.
func (m *Manager) persist(ctx context.Context, record models.RunRecord) {
	if err := m.runStore.Upsert(ctx, record); err != nil {
		log.WithError(err).Warnf("Failed to persist run %s", record.RunID)
	}
}

func validateSubmit(req SubmitRequest) error {
	if req.TenantID == "" {
		return &trainerrors.ErrInvalidArgument{Name: "tenantID", Value: req.TenantID, Message: "must not be empty"}
	}
	if req.RunName == "" {
		return &trainerrors.ErrInvalidArgument{Name: "runName", Value: req.RunName, Message: "must not be empty"}
	}
	if req.BaseModelRef == "" {
		return &trainerrors.ErrInvalidArgument{Name: "baseModelRef", Value: req.BaseModelRef, Message: "must not be empty"}
	}
	if req.DatasetRef == "" {
		return &trainerrors.ErrInvalidArgument{Name: "datasetRef", Value: req.DatasetRef, Message: "must not be empty"}
	}
	if req.EpochCount < 0 {
		return &trainerrors.ErrInvalidArgument{Name: "epochCount", Value: req.EpochCount, Message: "must not be negative"}
	}
	return nil
}
