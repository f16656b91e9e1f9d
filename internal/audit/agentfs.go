package audit

/*
AgentFS - асинхронный сборщик аудита шлюза.

- Log не блокирует hot path: событие кладется в буферизованный канал,
  при переполнении сбрасывается (load shedding) с записью в лог.
- Воркер копит пачку и пишет ее в StorageInterface по таймеру или по размеру.
- Stop закрывает вход, воркер вычитывает остаток канала и делает финальный flush.
*/

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// StorageInterface определяет, куда физически будут сохраняться логи
type StorageInterface interface {
	// WriteBatch сохраняет пачку событий за один раз
	WriteBatch(ctx context.Context, events []AuditEvent) error
}

type Auditor interface {
	Log(event AuditEvent)
}

type Config struct {
	BufferSize    int
	BatchSize     int
	FlushInterval time.Duration
}

func (c Config) withDefaults() Config {
	if c.BufferSize <= 0 {
		c.BufferSize = 10000
	}
	if c.BatchSize <= 0 {
		c.BatchSize = 100
	}
	if c.FlushInterval <= 0 {
		c.FlushInterval = 500 * time.Millisecond
	}
	return c
}

// OverflowHook вызывается при сбросе события (метрики).
type OverflowHook func()

type AgentFS struct {
	cfg    Config
	ch     chan AuditEvent
	repo   StorageInterface
	logger *zap.Logger
	wg     sync.WaitGroup

	// mu защищает закрытие канала от параллельных Log
	mu         sync.RWMutex
	closed     bool
	started    bool
	onOverflow OverflowHook
}

func NewAgentFS(repo StorageInterface, cfg Config, logger *zap.Logger) *AgentFS {
	if logger == nil {
		logger = zap.NewNop()
	}
	cfg = cfg.withDefaults()
	return &AgentFS{
		cfg:    cfg,
		ch:     make(chan AuditEvent, cfg.BufferSize),
		repo:   repo,
		logger: logger.With(zap.String("mod", "agentfs")),
	}
}

func (fs *AgentFS) OnOverflow(h OverflowHook) { fs.onOverflow = h }

func (fs *AgentFS) Start() {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	if fs.started || fs.closed {
		return
	}
	fs.started = true
	fs.wg.Add(1)
	go fs.worker()
}

// Stop «запирает» вход в канал и ждет, пока воркер всё допишет. Повторный вызов безопасен.
func (fs *AgentFS) Stop() {
	fs.mu.Lock()
	if fs.closed {
		fs.mu.Unlock()
		return
	}
	fs.closed = true
	close(fs.ch)
	started := fs.started
	fs.mu.Unlock()

	fs.logger.Info("stopping auditor: closing channel and flushing buffer...")
	if !started {
		// воркер не запускался: дописываем остаток синхронно
		fs.drain()
	}
	fs.wg.Wait()
	fs.logger.Info("auditor stopped gracefully")
}

// Pending - сколько событий ждет в канале.
func (fs *AgentFS) Pending() int { return len(fs.ch) }

func (fs *AgentFS) Log(event AuditEvent) {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	fs.mu.RLock()
	defer fs.mu.RUnlock()
	if fs.closed {
		fs.logger.Warn("audit event dropped: auditor is stopping", zap.String("id", event.ID))
		return
	}

	select {
	case fs.ch <- event:
	default:
		fs.logger.Error("audit_buffer_overflow",
			zap.String("agent_id", event.AgentID),
			zap.String("trace_id", event.TraceID),
		)
		if fs.onOverflow != nil {
			fs.onOverflow()
		}
	}
}

func (fs *AgentFS) write(batch []AuditEvent) {
	if len(batch) == 0 {
		return
	}
	// Background: основной контекст может быть уже закрыт
	if err := fs.repo.WriteBatch(context.Background(), batch); err != nil {
		fs.logger.Error("audit flush failed", zap.Int("events", len(batch)), zap.Error(err))
	}
}

func (fs *AgentFS) drain() {
	batch := make([]AuditEvent, 0, fs.cfg.BatchSize)
	for event := range fs.ch {
		batch = append(batch, event)
		if len(batch) >= fs.cfg.BatchSize {
			fs.write(batch)
			batch = batch[:0]
		}
	}
	fs.write(batch)
}

func (fs *AgentFS) worker() {
	defer fs.wg.Done()

	batch := make([]AuditEvent, 0, fs.cfg.BatchSize)
	ticker := time.NewTicker(fs.cfg.FlushInterval)
	defer ticker.Stop()

	flush := func() {
		fs.write(batch)
		batch = make([]AuditEvent, 0, fs.cfg.BatchSize)
	}

	for {
		select {
		case event, ok := <-fs.ch:
			if !ok {
				// канал закрыт в Stop: остаток уже вычитан
				flush()
				fs.logger.Info("audit worker finished")
				return
			}
			batch = append(batch, event)
			if len(batch) >= fs.cfg.BatchSize {
				flush()
			}
		case <-ticker.C:
			if len(batch) > 0 {
				flush()
			}
		}
	}
}
