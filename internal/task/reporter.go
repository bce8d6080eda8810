package task

// Reporter derives the externally visible task and queue views from the
// store and the admission queue. It never mutates either; GPU figures are
// relayed by the API layer from the model collaborator, not computed here.
type Reporter struct {
	store *Store
	queue *AdmissionQueue
}

func NewReporter(store *Store, queue *AdmissionQueue) *Reporter {
	return &Reporter{store: store, queue: queue}
}

// GetTask returns a snapshot view of the task, with queue_position filled
// in while the task is still pending. ErrNotFound for unknown IDs.
func (r *Reporter) GetTask(id string) (View, error) {
	t, err := r.store.Get(id)
	if err != nil {
		return View{}, err
	}

	v := View{
		TaskID:            t.ID,
		Status:            t.Status,
		Prompt:            t.Request.Prompt,
		Width:             t.Request.Width,
		Height:            t.Request.Height,
		NumInferenceSteps: t.Request.NumInferenceSteps,
		Seed:              t.Request.Seed,
		CreatedAt:         t.CreatedAt,
		StartedAt:         t.StartedAt,
		CompletedAt:       t.CompletedAt,
		ResultRef:         t.ResultRef,
		ErrorMessage:      t.ErrorMessage,
	}
	if t.Status == StatusPending {
		// A pending task sits between store insert and queue admission for
		// an instant during submission; position 0 is reported for that
		// window as the task is about to be head-of-line or dispatched.
		if pos, ok := r.queue.PositionOf(id); ok {
			v.QueuePosition = pos
		}
	}
	return v, nil
}

// SystemStatus tallies the store by status and reads the queue length
// under the queue's own lock.
func (r *Reporter) SystemStatus() SystemStatus {
	pending, processing, completed, failed, total := r.store.Counts()
	return SystemStatus{
		QueueSize:       r.queue.Len(),
		MaxQueueSize:    r.queue.MaxSize(),
		PendingCount:    pending,
		ProcessingCount: processing,
		CompletedCount:  completed,
		FailedCount:     failed,
		TotalCount:      total,
	}
}
