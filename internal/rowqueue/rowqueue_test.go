package rowqueue

import (
	"testing"
	"time"

	"github.com/m-lab/pdmlsql/internal/pdml"
)

func TestPushPopFIFO(t *testing.T) {
	q := New(4, 50*time.Millisecond)
	rows := []*pdml.DataRow{
		{TableName: "a"},
		{TableName: "b"},
		{TableName: "c"},
	}
	for _, r := range rows {
		q.Push(r)
	}
	for _, want := range rows {
		got, ok := q.Pop()
		if !ok || got.TableName != want.TableName {
			t.Fatalf("Pop() = %v, %v; want %v, true", got, ok, want)
		}
	}
}

func TestFlushSentinelStopsConsumer(t *testing.T) {
	q := New(4, 20*time.Millisecond)
	q.Push(&pdml.DataRow{TableName: "only"})
	q.Flush()

	row, ok := q.Pop()
	if !ok || row.TableName != "only" {
		t.Fatalf("first Pop() = %v, %v; want the pushed row", row, ok)
	}
	_, ok = q.Pop()
	if ok {
		t.Fatalf("Pop() after sentinel: ok = true, want false")
	}
	_, ok = q.Pop()
	if ok {
		t.Fatalf("Pop() after shutdown should keep returning ok=false")
	}
}

func TestPushAfterFlushPanics(t *testing.T) {
	q := New(4, 20*time.Millisecond)
	q.Flush()
	defer func() {
		if r := recover(); r == nil {
			t.Errorf("expected Push after Flush to panic")
		}
	}()
	q.Push(&pdml.DataRow{TableName: "too-late"})
}

func TestProducerBlocksAtCapacity(t *testing.T) {
	q := New(2, 20*time.Millisecond)
	q.Push(&pdml.DataRow{TableName: "1"})
	q.Push(&pdml.DataRow{TableName: "2"})

	pushed := make(chan struct{})
	go func() {
		q.Push(&pdml.DataRow{TableName: "3"})
		close(pushed)
	}()

	select {
	case <-pushed:
		t.Fatalf("Push should have blocked at capacity")
	case <-time.After(50 * time.Millisecond):
	}

	q.Pop()
	q.Pop()

	select {
	case <-pushed:
	case <-time.After(time.Second):
		t.Fatalf("Push did not unblock after draining below half capacity")
	}
}

func TestConsumerWaitsWhenEmptyThenReceivesPush(t *testing.T) {
	q := New(4, 10*time.Millisecond)
	done := make(chan *pdml.DataRow)
	go func() {
		row, _ := q.Pop()
		done <- row
	}()

	time.Sleep(30 * time.Millisecond)
	q.Push(&pdml.DataRow{TableName: "late"})

	select {
	case row := <-done:
		if row.TableName != "late" {
			t.Errorf("got %v, want late", row)
		}
	case <-time.After(time.Second):
		t.Fatalf("consumer never woke up for the pushed row")
	}
}
