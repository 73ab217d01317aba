// Пакет sequence — последовательности задач: каждая задача выполняется
// в единственной горутине в порядке постановки.
//
// Runner заменяет "sequenced task runner": состояние, принадлежащее
// последовательности, трогается только из её задач, поэтому мьютексы
// вокруг него не нужны.
package sequence

import (
	"log/slog"
	"sync"
)

// Runner — очередь задач с одной горутиной-исполнителем.
// Очередь не ограничена: Post никогда не блокируется.
type Runner struct {
	name   string
	logger *slog.Logger

	mu      sync.Mutex
	cond    *sync.Cond
	queue   []func()
	stopped bool

	done chan struct{}
}

// New создаёт и запускает последовательность с именем name.
func New(name string, logger *slog.Logger) *Runner {
	r := &Runner{
		name:   name,
		logger: logger.With(slog.String("component", "sequence"), slog.String("sequence", name)),
		done:   make(chan struct{}),
	}
	r.cond = sync.NewCond(&r.mu)
	go r.loop()
	return r
}

// Name возвращает имя последовательности.
func (r *Runner) Name() string {
	return r.name
}

// Post ставит задачу в очередь. Возвращает false, если последовательность
// уже остановлена, задача в этом случае отбрасывается.
func (r *Runner) Post(task func()) bool {
	if task == nil {
		return false
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.stopped {
		return false
	}
	r.queue = append(r.queue, task)
	r.cond.Signal()
	return true
}

// PostTaskAndReply выполняет task на этой последовательности, затем
// ставит reply в очередь replyTo.
func (r *Runner) PostTaskAndReply(task, reply func(), replyTo *Runner) bool {
	return r.Post(func() {
		task()
		if reply != nil && replyTo != nil {
			replyTo.Post(reply)
		}
	})
}

// Stop перестаёт принимать задачи, дожидается выполнения уже поставленных
// и завершения горутины. Повторный вызов безопасен.
func (r *Runner) Stop() {
	r.mu.Lock()
	if !r.stopped {
		r.stopped = true
		r.cond.Signal()
	}
	r.mu.Unlock()
	<-r.done
}

// Flush блокирует вызывающего до выполнения всех задач, поставленных
// до вызова. Нельзя вызывать из задачи этой же последовательности.
func (r *Runner) Flush() {
	ch := make(chan struct{})
	if !r.Post(func() { close(ch) }) {
		return
	}
	<-ch
}

func (r *Runner) loop() {
	defer close(r.done)
	for {
		r.mu.Lock()
		for len(r.queue) == 0 && !r.stopped {
			r.cond.Wait()
		}
		if len(r.queue) == 0 && r.stopped {
			r.mu.Unlock()
			return
		}
		task := r.queue[0]
		r.queue[0] = nil
		r.queue = r.queue[1:]
		r.mu.Unlock()

		r.run(task)
	}
}

// run выполняет задачу, паника внутри задачи не останавливает
// последовательность.
func (r *Runner) run(task func()) {
	defer func() {
		if rec := recover(); rec != nil {
			r.logger.Error("Паника в задаче последовательности",
				slog.Any("panic", rec),
			)
		}
	}()
	task()
}
