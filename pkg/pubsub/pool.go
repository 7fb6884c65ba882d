package pubsub

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

var (
	errPoolClosed = errors.New("channel pool closed")
	errConnClosed = errors.New("amqp connection closed")
)

// channelPool keeps a bounded number of publish channels alive.
// Invariant: len(permits) == total channels (idle + borrowed) <= capacity.
type channelPool struct {
	conn     *amqp.Connection
	idle     chan *amqp.Channel
	capacity int

	closed  atomic.Bool
	newChMu sync.Mutex
	permits chan struct{}
}

func newChannelPool(conn *amqp.Connection, capacity int) *channelPool {
	if capacity <= 0 {
		capacity = 16
	}
	return &channelPool{
		conn:     conn,
		idle:     make(chan *amqp.Channel, capacity),
		capacity: capacity,
		permits:  make(chan struct{}, capacity),
	}
}

// borrow hands out an idle channel, growing the pool up to capacity when
// none is free. Dead channels found in the pool are replaced in place.
func (cp *channelPool) borrow(ctx context.Context, retryDelay time.Duration) (*amqp.Channel, error) {
	if cp.closed.Load() {
		return nil, errPoolClosed
	}
	if retryDelay <= 0 {
		retryDelay = 50 * time.Millisecond
	}

	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()

		case ch, ok := <-cp.idle:
			if !ok {
				return nil, errPoolClosed
			}
			if cp.conn.IsClosed() || ch.IsClosed() {
				_ = safeClose(ch)
				nch, err := cp.newChannel()
				if err != nil {
					time.Sleep(retryDelay)
					continue
				}
				return nch, nil
			}
			return ch, nil

		default:
			if cp.conn.IsClosed() {
				return nil, errConnClosed
			}
			select {
			case cp.permits <- struct{}{}:
				nch, err := cp.newChannel()
				if err != nil {
					<-cp.permits
					time.Sleep(retryDelay)
					continue
				}
				return nch, nil

			case <-ctx.Done():
				return nil, ctx.Err()

			case <-time.After(retryDelay):
				// a channel may have been returned meanwhile
			}
		}
	}
}

func (cp *channelPool) put(ch *amqp.Channel) {
	if ch == nil {
		return
	}
	if cp.closed.Load() || cp.conn.IsClosed() || ch.IsClosed() {
		_ = safeClose(ch)
		cp.releasePermit()
		return
	}
	select {
	case cp.idle <- ch:
	default:
		_ = safeClose(ch)
		cp.releasePermit()
	}
}

func (cp *channelPool) close() {
	if cp.closed.Swap(true) {
		return
	}
	close(cp.idle)
	for ch := range cp.idle {
		_ = safeClose(ch)
		cp.releasePermit()
	}
}

func (cp *channelPool) releasePermit() {
	select {
	case <-cp.permits:
	default:
	}
}

func (cp *channelPool) newChannel() (*amqp.Channel, error) {
	cp.newChMu.Lock()
	defer cp.newChMu.Unlock()
	if cp.conn.IsClosed() {
		return nil, errConnClosed
	}
	return cp.conn.Channel()
}
