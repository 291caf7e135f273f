package service

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/d60-Lab/tailor-checkout/internal/model"
	"github.com/d60-Lab/tailor-checkout/pkg/logger"
)

type webhookJob struct {
	txn   *model.Transaction
	enqAt time.Time
}

// WebhookReconciler 由 Reconciler 实现
type WebhookReconciler interface {
	ReconcileWebhook(ctx context.Context, txn *model.Transaction) (*Outcome, error)
}

// Dispatcher webhook 快速应答后的本地异步执行器
type Dispatcher struct {
	reconciler WebhookReconciler
	ch         chan webhookJob
	metricsCh  chan time.Duration
	jobTimeout time.Duration
	wg         sync.WaitGroup
}

func NewDispatcher(reconciler WebhookReconciler, queueSize int) *Dispatcher {
	if queueSize <= 0 {
		queueSize = 1000
	}
	return &Dispatcher{
		reconciler: reconciler,
		ch:         make(chan webhookJob, queueSize),
		metricsCh:  make(chan time.Duration, 4096),
		jobTimeout: 2 * time.Minute,
	}
}

// Start 启动 worker，返回的 stop 函数会先排空队列再退出
func (d *Dispatcher) Start(workers int) func(context.Context) error {
	if workers <= 0 {
		workers = 4
	}
	stopCh := make(chan struct{})
	for i := 0; i < workers; i++ {
		d.wg.Add(1)
		go func() {
			defer d.wg.Done()
			for {
				select {
				case job := <-d.ch:
					d.run(job)
				case <-stopCh:
					for {
						select {
						case job := <-d.ch:
							d.run(job)
						default:
							return
						}
					}
				}
			}
		}()
	}
	return func(ctx context.Context) error {
		close(stopCh)
		done := make(chan struct{})
		go func() {
			d.wg.Wait()
			close(done)
		}()
		select {
		case <-done:
			return nil
		case <-ctx.Done():
			logger.Warn("dispatcher stopped with pending jobs", zap.Int("queue_len", len(d.ch)))
			return ctx.Err()
		}
	}
}

func (d *Dispatcher) run(job webhookJob) {
	ctx, cancel := context.WithTimeout(context.Background(), d.jobTimeout)
	defer cancel()

	out, err := d.reconciler.ReconcileWebhook(ctx, job.txn)
	if err != nil {
		logger.Error("webhook reconcile failed", zap.String("reference", job.txn.Reference), zap.Error(err))
	} else if out.FollowUpRequired() {
		logger.Warn("webhook order needs follow-up",
			zap.String("reference", out.Reference),
			zap.Bool("notified", out.Notified),
			zap.Bool("exported", out.Exported),
		)
	}

	select {
	case d.metricsCh <- time.Since(job.enqAt):
	default:
	}
}

// Enqueue 队列满时返回 false，由调用方同步处理
func (d *Dispatcher) Enqueue(txn *model.Transaction) bool {
	select {
	case d.ch <- webhookJob{txn: txn, enqAt: time.Now()}:
		return true
	default:
		logger.Warn("dispatcher queue full", zap.String("reference", txn.Reference))
		return false
	}
}

// Metrics 返回入队到处理完成耗时的只读通道
func (d *Dispatcher) Metrics() <-chan time.Duration { return d.metricsCh }

// QueueLen 返回当前队列长度（采样值）。
func (d *Dispatcher) QueueLen() int { return len(d.ch) }
