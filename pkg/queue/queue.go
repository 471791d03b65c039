package queue

import "context"

// Queue is a bounded FIFO handing items between goroutines.
type Queue interface {
	Enqueue(item interface{}) error
	Dequeue(ctx context.Context) (interface{}, error)
	Size() int
	ReadAllMessages() []interface{}
}
