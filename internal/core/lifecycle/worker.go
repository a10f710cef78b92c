package lifecycle

import (
	"sync"
)

// Worker 串行执行通道打开/连接与关闭任务的 goroutine
type Worker struct {
	tasks chan func()
	quit  chan struct{}
	done  chan struct{}

	mu     sync.RWMutex
	closed bool
}

// NewWorker 创建并启动 Worker
func NewWorker(queue int) *Worker {
	if queue < 1 {
		queue = 1
	}
	w := &Worker{
		tasks: make(chan func(), queue),
		quit:  make(chan struct{}),
		done:  make(chan struct{}),
	}
	go w.loop()
	return w
}

func (w *Worker) loop() {
	defer close(w.done)
	for {
		select {
		case task := <-w.tasks:
			w.run(task)
		case <-w.quit:
			// 关闭前执行已排队的任务，保证已提交的关闭操作完成
			for {
				select {
				case task := <-w.tasks:
					w.run(task)
				default:
					return
				}
			}
		}
	}
}

func (w *Worker) run(task func()) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error("生命周期任务 panic", "panic", r)
		}
	}()
	task()
}

// Submit 提交任务，队列满时阻塞
func (w *Worker) Submit(task func()) error {
	w.mu.RLock()
	defer w.mu.RUnlock()
	if w.closed {
		return ErrWorkerClosed
	}
	select {
	case w.tasks <- task:
		return nil
	case <-w.quit:
		return ErrWorkerClosed
	}
}

// Close 停止接收任务，执行完已排队的任务后返回
func (w *Worker) Close() {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		<-w.done
		return
	}
	w.closed = true
	close(w.quit)
	w.mu.Unlock()
	<-w.done
}
