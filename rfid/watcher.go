package rfid

import (
	"log"
	"sync"
	"time"
)

// DefaultPollInterval is the fixed pause between presence polls.
const DefaultPollInterval = 2 * time.Second

// EventKind discriminates watcher events.
type EventKind int

const (
	// TagPresent signals a newly appeared tag with a decoded request.
	TagPresent EventKind = iota
	// TagAbsent signals that the previously present tag left the field.
	TagAbsent
)

func (k EventKind) String() string {
	switch k {
	case TagPresent:
		return "present"
	case TagAbsent:
		return "absent"
	default:
		return "unknown"
	}
}

// Event is one discrete presence transition. For TagPresent, UID identifies
// the tag and Request carries the decoded string stored on it; the concrete
// request type is the consumer's concern. For TagAbsent both extra fields
// are empty.
type Event struct {
	Kind    EventKind
	UID     string
	Request string
}

// Watcher is the background polling loop translating tag presence and
// content into application-level events. It is edge-triggered: a tag's
// content is decoded once per distinct appearance, not on every poll.
//
// Events are delivered on a single ordered unbuffered channel with exactly
// one producer; a slow consumer backpressures the poll loop rather than
// losing events.
type Watcher struct {
	ctrl     *Controller
	interval time.Duration
	clock    Clock

	events chan Event
	stop   chan struct{}
	wg     sync.WaitGroup

	// currentUID is the identifier of the adopted tag, or "" in the no-tag
	// state. Owned by the worker goroutine.
	currentUID string
}

// NewWatcher creates a watcher polling the given controller at the default
// interval. Call Start to begin polling.
func NewWatcher(ctrl *Controller) *Watcher {
	return &Watcher{
		ctrl:     ctrl,
		interval: DefaultPollInterval,
		clock:    NewRealClock(),
		events:   make(chan Event),
		stop:     make(chan struct{}),
	}
}

// Events returns the channel on which presence and absence events are
// delivered, strictly ordered as observed.
func (w *Watcher) Events() <-chan Event {
	return w.events
}

// Start launches the polling worker.
func (w *Watcher) Start() {
	w.wg.Add(1)
	go w.worker()
}

// Stop terminates the polling loop and waits for the worker to finish. The
// inter-poll pause is the only interruption point; an in-flight hardware
// transaction is never cancelled.
func (w *Watcher) Stop() {
	select {
	case <-w.stop:
		return // already stopping
	default:
		close(w.stop)
	}
	w.wg.Wait()
}

func (w *Watcher) worker() {
	defer w.wg.Done()
	log.Println("Tag watcher started.")
	defer log.Println("Tag watcher stopped.")

	ticker := w.clock.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		if !w.poll() {
			return
		}
		select {
		case <-w.stop:
			return
		case <-ticker.C():
		}
	}
}

// poll runs one detect/decode iteration. Errors are reported and swallowed
// here: a transient fault or bad tag must never terminate the loop. It
// returns false only when a stop is requested during an event send.
func (w *Watcher) poll() bool {
	tag, present, err := w.ctrl.DetectTag()
	if err != nil {
		log.Printf("Tag detection failed: %v", err)
		return true
	}

	if !present {
		if w.currentUID != "" {
			log.Printf("Tag %s gone", w.currentUID)
			w.currentUID = ""
			return w.emit(Event{Kind: TagAbsent})
		}
		return true
	}

	uid := tag.UID()
	if uid == w.currentUID {
		// Same physical tag as last poll; content was already delivered.
		return true
	}
	if w.currentUID != "" {
		// The adopted tag was swapped for a new one between polls.
		log.Printf("Tag %s replaced by %s", w.currentUID, uid)
		w.currentUID = ""
		if !w.emit(Event{Kind: TagAbsent}) {
			return false
		}
	}

	request, err := readRequest(tag)
	if err != nil {
		// Stay in the no-tag state so the next poll retries while the tag
		// is still on the reader.
		log.Printf("Failed to read request from tag %s: %v", uid, err)
		return true
	}

	w.currentUID = uid
	log.Printf("Tag %s carries request %q", uid, request)
	return w.emit(Event{Kind: TagPresent, UID: uid, Request: request})
}

// emit blocks until the consumer accepts the event or a stop is requested.
func (w *Watcher) emit(ev Event) bool {
	select {
	case w.events <- ev:
		return true
	case <-w.stop:
		return false
	}
}

// readRequest decodes the stored string, guaranteeing session release on
// every exit path.
func readRequest(tag *Tag) (string, error) {
	r := tag.NewReader()
	s, err := ReadString(r)
	if cerr := r.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return "", err
	}
	return s, nil
}
