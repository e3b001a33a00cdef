package history

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"path/filepath"
	"sort"
	"time"

	"github.com/google/uuid"
	bolt "go.etcd.io/bbolt"
)

var (
	// Bucket names
	bucketInstances = []byte("instances")
	bucketHistory   = []byte("history")
	bucketOrchQueue = []byte("orchestrator_queue")
	bucketActQueue  = []byte("activity_queue")
	bucketLeases    = []byte("leases")
)

// lease is the persisted exclusive claim of a decider on an instance.
type lease struct {
	Token   string `json:"token"`
	UntilMS int64  `json:"until_ms"`
}

// BoltStore implements Store using BoltDB
type BoltStore struct {
	db  *bolt.DB
	now func() time.Time
}

// Option configures a BoltStore
type Option func(*BoltStore)

// WithClock overrides the wall clock used for visibility, leases and
// event timestamps. Tests use it to compress durable timers.
func WithClock(now func() time.Time) Option {
	return func(s *BoltStore) { s.now = now }
}

// NewBoltStore creates a new BoltDB-backed store
func NewBoltStore(dataDir string, opts ...Option) (*BoltStore, error) {
	dbPath := filepath.Join(dataDir, "paddock.db")

	db, err := bolt.Open(dbPath, 0600, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Create buckets
	err = db.Update(func(tx *bolt.Tx) error {
		buckets := [][]byte{
			bucketInstances,
			bucketHistory,
			bucketOrchQueue,
			bucketActQueue,
			bucketLeases,
		}

		for _, bucket := range buckets {
			if _, err := tx.CreateBucketIfNotExists(bucket); err != nil {
				return fmt.Errorf("failed to create bucket %s: %w", bucket, err)
			}
		}
		return nil
	})

	if err != nil {
		db.Close()
		return nil, err
	}

	s := &BoltStore{db: db, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Close closes the database
func (s *BoltStore) Close() error {
	return s.db.Close()
}

func (s *BoltStore) nowMS() int64 {
	return s.now().UnixMilli()
}

func u64be(n uint64) []byte {
	b := make([]byte, 8)
	binary.BigEndian.PutUint64(b, n)
	return b
}

// Client surface

func (s *BoltStore) StartOrchestration(req *StartRequest) error {
	if req.InstanceID == "" || req.Name == "" {
		return fmt.Errorf("instance id and workflow name are required")
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		return s.startInstanceTx(tx, req, false)
	})
}

func (s *BoltStore) RaiseEvent(instanceID, name string, payload json.RawMessage) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		info, err := s.getInstanceTx(tx, instanceID)
		if err != nil {
			return err
		}
		if info.Status == StatusCompleted || info.Status == StatusFailed {
			return fmt.Errorf("%w: %s", ErrInstanceTerminal, instanceID)
		}
		return s.enqueueMessageTx(tx, &Message{
			ID:         uuid.NewString(),
			Type:       MessageExternalEvent,
			InstanceID: instanceID,
			Name:       name,
			Payload:    payload,
		})
	})
}

func (s *BoltStore) GetInstanceInfo(instanceID string) (*InstanceInfo, error) {
	var info *InstanceInfo
	err := s.db.View(func(tx *bolt.Tx) error {
		var err error
		info, err = s.getInstanceTx(tx, instanceID)
		return err
	})
	return info, err
}

func (s *BoltStore) ListInstances() ([]string, error) {
	var ids []string
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketInstances)
		return b.ForEach(func(k, v []byte) error {
			ids = append(ids, string(k))
			return nil
		})
	})
	return ids, err
}

func (s *BoltStore) ListExecutions(instanceID string) ([]uint64, error) {
	var execs []uint64
	err := s.db.View(func(tx *bolt.Tx) error {
		if _, err := s.getInstanceTx(tx, instanceID); err != nil {
			return err
		}
		ib := tx.Bucket(bucketHistory).Bucket([]byte(instanceID))
		if ib == nil {
			return nil
		}
		return ib.ForEachBucket(func(k []byte) error {
			execs = append(execs, binary.BigEndian.Uint64(k))
			return nil
		})
	})
	return execs, err
}

func (s *BoltStore) ReadHistory(instanceID string, executionID uint64) ([]*Event, error) {
	var events []*Event
	err := s.db.View(func(tx *bolt.Tx) error {
		eb := s.executionBucket(tx, instanceID, executionID)
		if eb == nil {
			return fmt.Errorf("execution not found: %s/%d", instanceID, executionID)
		}
		return eb.ForEach(func(k, v []byte) error {
			var ev Event
			if err := json.Unmarshal(v, &ev); err != nil {
				return fmt.Errorf("corrupt event %s/%d/%x: %w", instanceID, executionID, k, err)
			}
			events = append(events, &ev)
			return nil
		})
	})
	return events, err
}

// Orchestration plane

func (s *BoltStore) ClaimOrchestrationItem(leaseTimeout time.Duration) (*OrchestrationItem, error) {
	var item *OrchestrationItem
	err := s.db.Update(func(tx *bolt.Tx) error {
		nowMS := s.nowMS()
		qb := tx.Bucket(bucketOrchQueue)
		lb := tx.Bucket(bucketLeases)

		// Deliverable messages grouped by instance.
		due := make(map[string][]*Message)
		err := qb.ForEach(func(k, v []byte) error {
			var m Message
			if err := json.Unmarshal(v, &m); err != nil {
				return fmt.Errorf("corrupt queue message %s: %w", k, err)
			}
			if m.VisibleAtMS <= nowMS {
				due[m.InstanceID] = append(due[m.InstanceID], &m)
			}
			return nil
		})
		if err != nil {
			return err
		}
		if len(due) == 0 {
			return nil
		}

		// Oldest-first across instances, skipping held leases.
		instances := make([]string, 0, len(due))
		for id, msgs := range due {
			sortMessages(msgs)
			instances = append(instances, id)
		}
		sort.Slice(instances, func(i, j int) bool {
			return messageLess(due[instances[i]][0], due[instances[j]][0])
		})

		for _, instanceID := range instances {
			if leaseActive(lb, instanceID, nowMS) {
				continue
			}
			l := lease{Token: uuid.NewString(), UntilMS: nowMS + leaseTimeout.Milliseconds()}
			raw, err := json.Marshal(&l)
			if err != nil {
				return err
			}
			if err := lb.Put([]byte(instanceID), raw); err != nil {
				return err
			}
			item = &OrchestrationItem{
				InstanceID: instanceID,
				LockToken:  l.Token,
				Messages:   due[instanceID],
			}
			return nil
		}
		return nil
	})
	return item, err
}

func (s *BoltStore) CommitDecisions(c *DecisionCommit) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		lb := tx.Bucket(bucketLeases)
		if err := verifyLease(lb, c.InstanceID, c.LockToken); err != nil {
			return err
		}

		qb := tx.Bucket(bucketOrchQueue)
		for _, id := range c.ConsumedMessageIDs {
			if err := qb.Delete([]byte(id)); err != nil {
				return err
			}
		}

		if len(c.Events) > 0 {
			if err := s.appendEventsTx(tx, c.InstanceID, c.ExecutionID, c.Events); err != nil {
				return err
			}
		}

		for _, task := range c.ActivityTasks {
			if err := s.enqueueActivityTx(tx, task); err != nil {
				return err
			}
		}
		for _, m := range c.Messages {
			if err := s.enqueueMessageTx(tx, m); err != nil {
				return err
			}
		}
		for _, child := range c.StartChildren {
			if err := s.startInstanceTx(tx, child, true); err != nil {
				return err
			}
		}

		info, err := s.getInstanceTx(tx, c.InstanceID)
		if err != nil {
			return err
		}
		switch {
		case c.ContinueAsNew != nil:
			info.CurrentExecution++
			info.Status = StatusRunning
			if err := s.appendEventsTx(tx, c.InstanceID, info.CurrentExecution, []*Event{c.ContinueAsNew}); err != nil {
				return err
			}
			err = s.enqueueMessageTx(tx, &Message{
				ID:          uuid.NewString(),
				Type:        MessageStart,
				InstanceID:  c.InstanceID,
				ExecutionID: info.CurrentExecution,
			})
			if err != nil {
				return err
			}
		case c.Status == StatusCompleted:
			info.Status = StatusCompleted
			info.Output = c.Output
		case c.Status == StatusFailed:
			info.Status = StatusFailed
			info.Error = c.Error
		}
		info.UpdatedAt = s.now()
		if err := s.putInstanceTx(tx, info); err != nil {
			return err
		}

		return lb.Delete([]byte(c.InstanceID))
	})
}

func (s *BoltStore) AbandonOrchestrationItem(instanceID, lockToken string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		lb := tx.Bucket(bucketLeases)
		if err := verifyLease(lb, instanceID, lockToken); err != nil {
			return err
		}
		return lb.Delete([]byte(instanceID))
	})
}

// Activity plane

func (s *BoltStore) ClaimActivityTask(leaseTimeout time.Duration) (*ActivityTask, error) {
	var claimed *ActivityTask
	err := s.db.Update(func(tx *bolt.Tx) error {
		nowMS := s.nowMS()
		ab := tx.Bucket(bucketActQueue)

		var candidates []*ActivityTask
		err := ab.ForEach(func(k, v []byte) error {
			var t ActivityTask
			if err := json.Unmarshal(v, &t); err != nil {
				return fmt.Errorf("corrupt activity task %s: %w", k, err)
			}
			if t.VisibleAtMS <= nowMS && t.LockedUntilMS <= nowMS {
				candidates = append(candidates, &t)
			}
			return nil
		})
		if err != nil {
			return err
		}
		if len(candidates) == 0 {
			return nil
		}
		sort.Slice(candidates, func(i, j int) bool {
			return taskLess(candidates[i], candidates[j])
		})

		t := candidates[0]
		t.LockToken = uuid.NewString()
		t.LockedUntilMS = nowMS + leaseTimeout.Milliseconds()
		raw, err := json.Marshal(t)
		if err != nil {
			return err
		}
		if err := ab.Put([]byte(t.ID), raw); err != nil {
			return err
		}
		claimed = t
		return nil
	})
	return claimed, err
}

func (s *BoltStore) CompleteActivityTask(task *ActivityTask, output json.RawMessage, taskErr string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		ab := tx.Bucket(bucketActQueue)
		if ab.Get([]byte(task.ID)) == nil {
			// Another worker already committed this task.
			return nil
		}
		if err := ab.Delete([]byte(task.ID)); err != nil {
			return err
		}
		mtype := MessageActivityCompleted
		if taskErr != "" {
			mtype = MessageActivityFailed
		}
		return s.enqueueMessageTx(tx, &Message{
			ID:          uuid.NewString(),
			Type:        mtype,
			InstanceID:  task.InstanceID,
			ExecutionID: task.ExecutionID,
			Seq:         task.Seq,
			Name:        task.Name,
			Output:      output,
			Error:       taskErr,
		})
	})
}

// Maintenance

func (s *BoltStore) ReclaimExpiredLeases() (int, error) {
	reclaimed := 0
	err := s.db.Update(func(tx *bolt.Tx) error {
		nowMS := s.nowMS()

		lb := tx.Bucket(bucketLeases)
		var expired [][]byte
		err := lb.ForEach(func(k, v []byte) error {
			var l lease
			if err := json.Unmarshal(v, &l); err != nil || l.UntilMS <= nowMS {
				expired = append(expired, append([]byte(nil), k...))
			}
			return nil
		})
		if err != nil {
			return err
		}
		for _, k := range expired {
			if err := lb.Delete(k); err != nil {
				return err
			}
			reclaimed++
		}

		ab := tx.Bucket(bucketActQueue)
		var stale []*ActivityTask
		err = ab.ForEach(func(k, v []byte) error {
			var t ActivityTask
			if err := json.Unmarshal(v, &t); err != nil {
				return fmt.Errorf("corrupt activity task %s: %w", k, err)
			}
			if t.LockedUntilMS > 0 && t.LockedUntilMS <= nowMS {
				stale = append(stale, &t)
			}
			return nil
		})
		if err != nil {
			return err
		}
		for _, t := range stale {
			t.LockToken = ""
			t.LockedUntilMS = 0
			raw, err := json.Marshal(t)
			if err != nil {
				return err
			}
			if err := ab.Put([]byte(t.ID), raw); err != nil {
				return err
			}
			reclaimed++
		}
		return nil
	})
	return reclaimed, err
}

func (s *BoltStore) QueueDepths() (int, int, error) {
	var orch, act int
	err := s.db.View(func(tx *bolt.Tx) error {
		orch = tx.Bucket(bucketOrchQueue).Stats().KeyN
		act = tx.Bucket(bucketActQueue).Stats().KeyN
		return nil
	})
	return orch, act, err
}

// Transaction helpers

func (s *BoltStore) getInstanceTx(tx *bolt.Tx, instanceID string) (*InstanceInfo, error) {
	raw := tx.Bucket(bucketInstances).Get([]byte(instanceID))
	if raw == nil {
		return nil, fmt.Errorf("%w: %s", ErrInstanceNotFound, instanceID)
	}
	var info InstanceInfo
	if err := json.Unmarshal(raw, &info); err != nil {
		return nil, fmt.Errorf("corrupt instance record %s: %w", instanceID, err)
	}
	return &info, nil
}

func (s *BoltStore) putInstanceTx(tx *bolt.Tx, info *InstanceInfo) error {
	raw, err := json.Marshal(info)
	if err != nil {
		return err
	}
	return tx.Bucket(bucketInstances).Put([]byte(info.InstanceID), raw)
}

func (s *BoltStore) startInstanceTx(tx *bolt.Tx, req *StartRequest, ignoreExisting bool) error {
	ib := tx.Bucket(bucketInstances)
	if ib.Get([]byte(req.InstanceID)) != nil {
		if ignoreExisting {
			return nil
		}
		return fmt.Errorf("%w: %s", ErrInstanceExists, req.InstanceID)
	}

	nowT := s.now()
	info := &InstanceInfo{
		InstanceID:        req.InstanceID,
		Name:              req.Name,
		Version:           req.Version,
		Status:            StatusRunning,
		CurrentExecution:  1,
		ParentInstanceID:  req.ParentInstanceID,
		ParentExecutionID: req.ParentExecutionID,
		ParentSeq:         req.ParentSeq,
		CreatedAt:         nowT,
		UpdatedAt:         nowT,
	}
	if err := s.putInstanceTx(tx, info); err != nil {
		return err
	}

	started := &Event{
		Kind:        KindOrchestrationStarted,
		TimestampMS: nowT.UnixMilli(),
		Name:        req.Name,
		Version:     req.Version,
		Input:       req.Input,
	}
	if err := s.appendEventsTx(tx, req.InstanceID, 1, []*Event{started}); err != nil {
		return err
	}

	return s.enqueueMessageTx(tx, &Message{
		ID:          uuid.NewString(),
		Type:        MessageStart,
		InstanceID:  req.InstanceID,
		ExecutionID: 1,
	})
}

func (s *BoltStore) executionBucket(tx *bolt.Tx, instanceID string, executionID uint64) *bolt.Bucket {
	ib := tx.Bucket(bucketHistory).Bucket([]byte(instanceID))
	if ib == nil {
		return nil
	}
	return ib.Bucket(u64be(executionID))
}

func (s *BoltStore) appendEventsTx(tx *bolt.Tx, instanceID string, executionID uint64, events []*Event) error {
	ib, err := tx.Bucket(bucketHistory).CreateBucketIfNotExists([]byte(instanceID))
	if err != nil {
		return err
	}
	eb, err := ib.CreateBucketIfNotExists(u64be(executionID))
	if err != nil {
		return err
	}
	for _, ev := range events {
		idx, err := eb.NextSequence()
		if err != nil {
			return err
		}
		raw, err := json.Marshal(ev)
		if err != nil {
			return err
		}
		if err := eb.Put(u64be(idx), raw); err != nil {
			return err
		}
	}
	return nil
}

func (s *BoltStore) enqueueMessageTx(tx *bolt.Tx, m *Message) error {
	qb := tx.Bucket(bucketOrchQueue)
	if m.ID == "" {
		m.ID = uuid.NewString()
	}
	nowMS := s.nowMS()
	m.EnqueuedAtMS = nowMS
	if m.VisibleAtMS == 0 {
		m.VisibleAtMS = nowMS
	}
	pos, err := qb.NextSequence()
	if err != nil {
		return err
	}
	m.Pos = pos
	raw, err := json.Marshal(m)
	if err != nil {
		return err
	}
	return qb.Put([]byte(m.ID), raw)
}

func (s *BoltStore) enqueueActivityTx(tx *bolt.Tx, t *ActivityTask) error {
	ab := tx.Bucket(bucketActQueue)
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	nowMS := s.nowMS()
	t.EnqueuedAtMS = nowMS
	if t.VisibleAtMS == 0 {
		t.VisibleAtMS = nowMS
	}
	pos, err := ab.NextSequence()
	if err != nil {
		return err
	}
	t.Pos = pos
	raw, err := json.Marshal(t)
	if err != nil {
		return err
	}
	return ab.Put([]byte(t.ID), raw)
}

func verifyLease(lb *bolt.Bucket, instanceID, token string) error {
	raw := lb.Get([]byte(instanceID))
	if raw == nil {
		return fmt.Errorf("%w: %s", ErrLeaseLost, instanceID)
	}
	var l lease
	if err := json.Unmarshal(raw, &l); err != nil {
		return fmt.Errorf("corrupt lease for %s: %w", instanceID, err)
	}
	if l.Token != token {
		return fmt.Errorf("%w: %s", ErrLeaseLost, instanceID)
	}
	return nil
}

func leaseActive(lb *bolt.Bucket, instanceID string, nowMS int64) bool {
	raw := lb.Get([]byte(instanceID))
	if raw == nil {
		return false
	}
	var l lease
	if err := json.Unmarshal(raw, &l); err != nil {
		return false
	}
	return l.UntilMS > nowMS
}

func sortMessages(msgs []*Message) {
	sort.Slice(msgs, func(i, j int) bool {
		return messageLess(msgs[i], msgs[j])
	})
}

func messageLess(a, b *Message) bool {
	if a.VisibleAtMS != b.VisibleAtMS {
		return a.VisibleAtMS < b.VisibleAtMS
	}
	return a.Pos < b.Pos
}

func taskLess(a, b *ActivityTask) bool {
	if a.VisibleAtMS != b.VisibleAtMS {
		return a.VisibleAtMS < b.VisibleAtMS
	}
	return a.Pos < b.Pos
}
