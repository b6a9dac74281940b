package propagation

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestQueue_EnqueueAndDrain(t *testing.T) {
	q := NewQueue(2)

	q.Enqueue("sku-1", 10)
	q.Enqueue("sku-2", 20)

	job1 := <-q.Jobs()
	job2 := <-q.Jobs()

	assert.Equal(t, "sku-1", job1.SKU)
	assert.Equal(t, 10, job1.StockQuantity)
	assert.Equal(t, "sku-2", job2.SKU)
	assert.Equal(t, 20, job2.StockQuantity)
}

func TestQueue_DropsWhenFull(t *testing.T) {
	q := NewQueue(1)

	q.Enqueue("sku-1", 1)
	// Queue capacity 1 is already occupied; this one must be dropped, not block.
	q.Enqueue("sku-2", 2)

	job := <-q.Jobs()
	assert.Equal(t, "sku-1", job.SKU)

	select {
	case j := <-q.Jobs():
		t.Fatalf("expected sku-2 to be dropped, got job %+v", j)
	default:
		// No second job buffered, as expected: sku-2 was dropped.
	}
}

func TestQueue_CloseEndsReceiveOnEmptyQueue(t *testing.T) {
	q := NewQueue(4)
	q.Close()

	_, ok := <-q.Jobs()
	assert.False(t, ok, "ranging over a closed empty queue should terminate immediately")
}
