package dapp

import (
	"encoding/json"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/suite"
	"github.com/tidwall/gjson"
)

type recorder struct {
	mu   sync.Mutex
	msgs [][]byte
}

func (r *recorder) Broadcast(msg []byte) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.msgs = append(r.msgs, msg)
}

func (r *recorder) events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]Event, 0, len(r.msgs))
	for _, m := range r.msgs {
		var ev Event
		if err := json.Unmarshal(m, &ev); err == nil {
			out = append(out, ev)
		}
	}
	return out
}

// lateSubscriber collects the section seqs one subscriber would render once attached.
type lateSubscriber struct {
	mu       sync.Mutex
	attached bool
	seqs     []int64
}

func (l *lateSubscriber) Broadcast(msg []byte) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.attached && gjson.GetBytes(msg, "type").String() == EventSection {
		l.seqs = append(l.seqs, gjson.GetBytes(msg, "section.seq").Int())
	}
}

func (l *lateSubscriber) add(snapshot []byte) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.attached = true
	for _, seq := range gjson.GetBytes(snapshot, "sections.#.seq").Array() {
		l.seqs = append(l.seqs, seq.Int())
	}
}

type DisplayTestSuite struct {
	suite.Suite
	out     *recorder
	display *Display
}

func TestDisplayTestSuite(t *testing.T) {
	suite.Run(t, new(DisplayTestSuite))
}

func (suite *DisplayTestSuite) SetupTest() {
	suite.out = &recorder{}
	suite.display = NewDisplay(suite.out)
}

func (suite *DisplayTestSuite) TestInitialVisibility() {
	suite.True(suite.display.Visible(IDPaySection))
	suite.False(suite.display.Visible(IDRefundSection))
	suite.Empty(suite.out.events())
}

func (suite *DisplayTestSuite) TestNewResult() {
	suite.Equal(Result{Label: "a", Value: "true"}, NewResult("a", nil, true))
	suite.Equal(Result{Label: "a", Error: "boom"}, NewResult("a", errors.New("boom"), "ignored"))
	suite.Equal(Result{Label: "a"}, NewResult("a", nil, nil))

	suite.Equal("boom", Result{Error: "boom", Value: "x"}.Text())
	suite.Equal("x", Result{Value: "x"}.Text())
}

func (suite *DisplayTestSuite) TestAppendIsOrdered() {
	suite.display.Append("Operational Status", "Check if contract is operational", NewResult("Operational Status", nil, true))
	suite.display.Append("Flight Status", "ND1309", NewResult("Status", nil, "On Time"))

	sections := suite.display.Sections()
	suite.Require().Len(sections, 2)
	suite.Equal(1, sections[0].Seq)
	suite.Equal("Operational Status", sections[0].Title)
	suite.Equal(2, sections[1].Seq)
	suite.Equal("On Time", sections[1].Results[0].Value)

	events := suite.out.events()
	suite.Require().Len(events, 2)
	suite.Equal(EventSection, events[0].Type)
	suite.Equal(IDDisplayWrapper, events[0].Target)
	suite.Equal("Flight Status", events[1].Section.Title)
}

func (suite *DisplayTestSuite) TestSectionsReturnsCopy() {
	suite.display.Append("A", "")
	sections := suite.display.Sections()
	sections[0].Title = "changed"

	suite.Equal("A", suite.display.Sections()[0].Title)
}

func (suite *DisplayTestSuite) TestSetVisibleBroadcastsOnChangeOnly() {
	suite.display.SetVisible(IDPaySection, true)
	suite.Empty(suite.out.events())

	suite.display.SetVisible(IDRefundSection, true)
	events := suite.out.events()
	suite.Require().Len(events, 1)
	suite.Equal(EventVisibility, events[0].Type)
	suite.Equal(IDRefundSection, events[0].Target)
	suite.True(events[0].Visibility[IDRefundSection])
	suite.True(events[0].Visibility[IDPaySection])
}

func (suite *DisplayTestSuite) TestSnapshot() {
	suite.display.Append("Oracles", "Trigger oracles", NewResult("Fetch Flight Status", nil, "ND1309 1700000000"))
	suite.display.SetVisible(IDPaySection, false)

	msg, err := suite.display.Snapshot()
	suite.Require().NoError(err)

	suite.Equal(EventSnapshot, gjson.GetBytes(msg, "type").String())
	suite.Equal(int64(1), gjson.GetBytes(msg, "sections.#").Int())
	suite.Equal("Oracles", gjson.GetBytes(msg, "sections.0.title").String())
	suite.False(gjson.GetBytes(msg, "visibility.pay-section").Bool())
}

func (suite *DisplayTestSuite) TestAttachDuringAppends() {
	const total = 200

	sub := &lateSubscriber{}
	d := NewDisplay(sub)

	started := make(chan struct{})
	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < total; i++ {
			if i == total/4 {
				close(started)
			}
			d.Append("Flight Status", "", NewResult("Status", nil, i))
		}
	}()

	<-started
	suite.Require().NoError(d.Attach(sub.add))
	<-done

	sub.mu.Lock()
	defer sub.mu.Unlock()
	suite.Require().Len(sub.seqs, total)
	for i, seq := range sub.seqs {
		suite.Equal(int64(i+1), seq)
	}
}

func (suite *DisplayTestSuite) TestNilBroadcaster() {
	d := NewDisplay(nil)
	suite.NotPanics(func() {
		d.Append("A", "")
		d.SetVisible(IDRefundSection, true)
	})
}
