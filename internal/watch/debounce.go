package watch

import (
	"time"

	"github.com/fsnotify/fsnotify"
)

// Debouncer batches bursts of file events. The callback receives one event
// per path with the ops of the burst merged, in first-seen order. Callbacks
// run one at a time on the debouncer's own goroutine.
type Debouncer struct {
	delay time.Duration
	fn    func([]fsnotify.Event)
	in    chan fsnotify.Event
	quit  chan struct{}
	done  chan struct{}
}

func NewDebouncer(delay time.Duration, fn func([]fsnotify.Event)) *Debouncer {
	d := &Debouncer{
		delay: delay,
		fn:    fn,
		in:    make(chan fsnotify.Event, 64),
		quit:  make(chan struct{}),
		done:  make(chan struct{}),
	}
	go d.loop()
	return d
}

// Add queues evt. It blocks while the queue is full and a callback is running.
func (d *Debouncer) Add(evt fsnotify.Event) {
	select {
	case d.in <- evt:
	case <-d.done:
	}
}

// Stop drops pending events and waits for a running callback to return.
// It is safe to call more than once.
func (d *Debouncer) Stop() {
	select {
	case <-d.quit:
	default:
		close(d.quit)
	}
	<-d.done
}

func (d *Debouncer) loop() {
	defer close(d.done)

	var (
		timer   *time.Timer
		timerC  <-chan time.Time
		batch   []fsnotify.Event
		indexOf = map[string]int{}
	)
	for {
		select {
		case <-d.quit:
			if timer != nil {
				timer.Stop()
			}
			return
		case evt := <-d.in:
			if i, ok := indexOf[evt.Name]; ok {
				batch[i].Op |= evt.Op
			} else {
				indexOf[evt.Name] = len(batch)
				batch = append(batch, evt)
			}
			if timer == nil {
				timer = time.NewTimer(d.delay)
			} else {
				if !timer.Stop() {
					select {
					case <-timer.C:
					default:
					}
				}
				timer.Reset(d.delay)
			}
			timerC = timer.C
		case <-timerC:
			events := batch
			batch = nil
			indexOf = map[string]int{}
			timerC = nil
			d.fn(events)
		}
	}
}
