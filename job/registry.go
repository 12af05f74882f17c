package job

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"github.com/xraph/jobq"
)

// HandlerFunc is a type-erased handler that accepts the stored payload.
// Typed handlers are converted to a HandlerFunc by Bind, which closes over
// the payload decode and the typed call.
type HandlerFunc func(ctx context.Context, payload []byte) error

// Binding pairs a queue name with its handler. Create one with Bind.
type Binding struct {
	queue   QueueName
	handler HandlerFunc
}

// Queue returns the queue name the binding handles.
func (b Binding) Queue() QueueName { return b.queue }

// Bind converts a typed handler into a Binding for T's queue. A payload
// that does not decode into T is reported as a permanent failure, since
// retrying cannot fix it.
func Bind[T Variant](fn func(ctx context.Context, payload T) error) Binding {
	var zero T
	q := zero.QueueName()
	return Binding{
		queue: q,
		handler: func(ctx context.Context, payload []byte) error {
			v, err := DecodeAs[T](payload)
			if err != nil {
				return jobq.Permanent(err)
			}
			return fn(ctx, v)
		},
	}
}

// Registry maps queue names to handlers. It is built once at startup and
// is read-only afterwards, so it is safe for concurrent use without
// locking.
type Registry struct {
	handlers map[QueueName]HandlerFunc
}

// NewRegistry builds a registry from bindings. Binding the same queue
// twice is an error.
func NewRegistry(bindings ...Binding) (*Registry, error) {
	r := &Registry{handlers: make(map[QueueName]HandlerFunc, len(bindings))}
	for _, b := range bindings {
		if b.handler == nil {
			return nil, fmt.Errorf("job: nil handler for queue %q", b.queue)
		}
		if _, dup := r.handlers[b.queue]; dup {
			return nil, fmt.Errorf("%w: %q", jobq.ErrDuplicateHandler, b.queue)
		}
		r.handlers[b.queue] = b.handler
	}
	return r, nil
}

// MustRegistry is like NewRegistry but panics on error.
func MustRegistry(bindings ...Binding) *Registry {
	r, err := NewRegistry(bindings...)
	if err != nil {
		panic(err)
	}
	return r
}

// Validate checks that every queue in queues has a handler. With no
// arguments it checks every recognized queue name. The error names all
// missing queues at once.
func (r *Registry) Validate(queues ...QueueName) error {
	if len(queues) == 0 {
		queues = KnownQueues()
	}
	var missing []string
	for _, q := range queues {
		if _, ok := r.handlers[q]; !ok {
			missing = append(missing, string(q))
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: %s", jobq.ErrMissingHandlers, strings.Join(missing, ", "))
	}
	return nil
}

// Get returns the handler for q.
func (r *Registry) Get(q QueueName) (HandlerFunc, bool) {
	h, ok := r.handlers[q]
	return h, ok
}

// Queues returns the bound queue names in sorted order.
func (r *Registry) Queues() []QueueName {
	out := make([]QueueName, 0, len(r.handlers))
	for q := range r.handlers {
		out = append(out, q)
	}
	slices.Sort(out)
	return out
}
