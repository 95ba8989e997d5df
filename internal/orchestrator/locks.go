package orchestrator

import (
	"sync"

	"github.com/google/uuid"
)

// runLocks — именованные мьютексы run-ов. Захват мьютекса run сериализует
// все его переходы; мьютекс живёт, пока хотя бы одна горутина его ждёт,
// и удаляется с последним освобождением.
type runLocks struct {
	mu    sync.Mutex
	locks map[uuid.UUID]*runLock
}

type runLock struct {
	mu   sync.Mutex
	refs int
}

// newRunLocks создаёт пустой набор мьютексов.
func newRunLocks() *runLocks {
	return &runLocks{locks: make(map[uuid.UUID]*runLock)}
}

// lock захватывает мьютекс run и возвращает функцию освобождения.
func (l *runLocks) lock(runID uuid.UUID) func() {
	l.mu.Lock()
	entry, ok := l.locks[runID]
	if !ok {
		entry = &runLock{}
		l.locks[runID] = entry
	}
	entry.refs++
	l.mu.Unlock()

	entry.mu.Lock()

	return func() {
		entry.mu.Unlock()

		l.mu.Lock()
		entry.refs--
		if entry.refs == 0 {
			delete(l.locks, runID)
		}
		l.mu.Unlock()
	}
}

// size возвращает количество живых мьютексов.
func (l *runLocks) size() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.locks)
}
