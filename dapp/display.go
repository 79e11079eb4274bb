package dapp

import (
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/GPTx-global/flightsurety/oracle/log"
)

// Result is one label/value row of a section. Error wins over Value when set.
type Result struct {
	Label string `json:"label"`
	Error string `json:"error,omitempty"`
	Value string `json:"value,omitempty"`
}

// NewResult renders err if non-nil, else value.
func NewResult(label string, err error, value interface{}) Result {
	if err != nil {
		return Result{Label: label, Error: err.Error()}
	}
	if value == nil {
		return Result{Label: label}
	}

	return Result{Label: label, Value: fmt.Sprint(value)}
}

// Text is what the row shows.
func (r Result) Text() string {
	if r.Error != "" {
		return r.Error
	}

	return r.Value
}

type Section struct {
	Seq         int       `json:"seq"`
	Title       string    `json:"title"`
	Description string    `json:"description"`
	Results     []Result  `json:"results"`
	Time        time.Time `json:"time"`
}

const (
	EventSection    = "section"
	EventVisibility = "visibility"
	EventSnapshot   = "snapshot"
)

// Event is what websocket subscribers receive.
type Event struct {
	Type       string          `json:"type"`
	Target     string          `json:"target"`
	Section    *Section        `json:"section,omitempty"`
	Visibility map[string]bool `json:"visibility,omitempty"`
	Sections   []Section       `json:"sections,omitempty"`
}

// Broadcaster fans encoded events out to subscribers.
type Broadcaster interface {
	Broadcast(msg []byte)
}

// Display is the append-only output log rendered into display-wrapper,
// together with the visibility of the pay and refund sections.
type Display struct {
	mu         sync.RWMutex
	sections   []Section
	visibility map[string]bool
	out        Broadcaster
	now        func() time.Time
}

// NewDisplay starts with the pay section shown and the refund section hidden.
func NewDisplay(out Broadcaster) *Display {
	return &Display{
		visibility: map[string]bool{
			IDPaySection:    true,
			IDRefundSection: false,
		},
		out: out,
		now: time.Now,
	}
}

// Append adds a section to the end of the log. Earlier sections are never changed.
func (d *Display) Append(title, description string, results ...Result) Section {
	d.mu.Lock()
	defer d.mu.Unlock()

	s := Section{
		Seq:         len(d.sections) + 1,
		Title:       title,
		Description: description,
		Results:     append([]Result(nil), results...),
		Time:        d.now(),
	}
	d.sections = append(d.sections, s)

	log.Debugf("display: %s %v", title, results)
	d.publishLocked(Event{Type: EventSection, Target: IDDisplayWrapper, Section: &s})

	return s
}

// SetVisible shows or hides the section with the given id.
func (d *Display) SetVisible(id string, visible bool) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if cur, ok := d.visibility[id]; ok && cur == visible {
		return
	}
	d.visibility[id] = visible
	d.publishLocked(Event{Type: EventVisibility, Target: id, Visibility: d.visibilityLocked()})
}

func (d *Display) Visible(id string) bool {
	d.mu.RLock()
	defer d.mu.RUnlock()

	return d.visibility[id]
}

func (d *Display) Visibility() map[string]bool {
	d.mu.RLock()
	defer d.mu.RUnlock()

	return d.visibilityLocked()
}

func (d *Display) visibilityLocked() map[string]bool {
	out := make(map[string]bool, len(d.visibility))
	for k, v := range d.visibility {
		out[k] = v
	}
	return out
}

func (d *Display) Sections() []Section {
	d.mu.RLock()
	defer d.mu.RUnlock()

	out := make([]Section, len(d.sections))
	copy(out, d.sections)
	return out
}

// Snapshot encodes the whole display for a newly connected subscriber.
func (d *Display) Snapshot() ([]byte, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	return d.snapshotLocked()
}

// Attach hands add the current snapshot while no event can be published, so
// a subscriber registered by add sees each section exactly once.
func (d *Display) Attach(add func(snapshot []byte)) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	msg, err := d.snapshotLocked()
	if err != nil {
		return err
	}
	add(msg)

	return nil
}

func (d *Display) snapshotLocked() ([]byte, error) {
	sections := make([]Section, len(d.sections))
	copy(sections, d.sections)

	return json.Marshal(Event{
		Type:       EventSnapshot,
		Target:     IDDisplayWrapper,
		Sections:   sections,
		Visibility: d.visibilityLocked(),
	})
}

// publishLocked must be called with d.mu held; out must not call back into d.
func (d *Display) publishLocked(ev Event) {
	if d.out == nil {
		return
	}

	msg, err := json.Marshal(ev)
	if err != nil {
		log.Errorf("failed to encode display event: %v", err)
		return
	}
	d.out.Broadcast(msg)
}
