package executor

import (
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestExecutor_RunsAllTasks(t *testing.T) {
	ex := New(4)

	var count atomic.Int64
	for range 100 {
		ex.Execute(func() {
			count.Add(1)
		})
	}

	assert.NoError(t, ex.Close())
	assert.EqualValues(t, 100, count.Load())
}

func TestExecutor_CallerRunsWhenSaturated(t *testing.T) {
	ex := New(1)

	// park the lone worker plus its queue slot so the third task must run on the caller.
	var release sync.WaitGroup
	release.Add(1)
	started := make(chan struct{})
	ex.Execute(func() {
		close(started)
		release.Wait()
	})
	<-started
	ex.Execute(release.Wait)

	ran := false
	ex.Execute(func() { ran = true })
	assert.True(t, ran, "expected task to run on the calling goroutine")

	release.Done()
	assert.NoError(t, ex.Close())
}

func TestExecutor_ZeroConcurrency(t *testing.T) {
	ex := New(0)

	ran := false
	ex.Execute(func() { ran = true })
	assert.True(t, ran)
	assert.NoError(t, ex.Close())
}
