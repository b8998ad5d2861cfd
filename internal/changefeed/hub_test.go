package changefeed

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"medops-bknd/internal/livecache"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func rowEvent(t *testing.T, table string, op livecache.Op, row any) Event {
	t.Helper()
	raw, err := json.Marshal(row)
	require.NoError(t, err)
	return Event{Table: table, Op: op, Row: raw}
}

func drain(sub *Subscription, n int) []Event {
	out := make([]Event, 0, n)
	for i := 0; i < n; i++ {
		select {
		case ev := <-sub.Events():
			out = append(out, ev)
		case <-time.After(time.Second):
			return out
		}
	}
	return out
}

func TestParse(t *testing.T) {
	ev, err := Parse([]byte(`{"table":"hospitals","op":"UPDATE","row":{"id":"a","available_beds":3}}`))
	require.NoError(t, err)
	assert.Equal(t, "hospitals", ev.Table)
	assert.Equal(t, livecache.OpUpdate, ev.Op)
	assert.JSONEq(t, `{"id":"a","available_beds":3}`, string(ev.Row))

	_, err = Parse([]byte(`{"op":"INSERT","row":{}}`))
	assert.Error(t, err)

	_, err = Parse([]byte(`{"table":"hospitals","op":"TRUNCATE","row":{}}`))
	assert.Error(t, err)

	_, err = Parse([]byte(`not json`))
	assert.Error(t, err)
}

func TestDecode(t *testing.T) {
	type bed struct {
		ID    string `json:"id"`
		Count int    `json:"available_beds"`
	}
	ev := rowEvent(t, "hospitals", livecache.OpInsert, map[string]any{"id": "h1", "available_beds": 7})

	got, err := Decode[bed](ev)
	require.NoError(t, err)
	assert.Equal(t, bed{ID: "h1", Count: 7}, got)

	_, err = Decode[bed](Event{Table: "hospitals", Row: json.RawMessage(`[1,2]`)})
	assert.Error(t, err)
}

func TestHubDeliversInPublishOrderPerTable(t *testing.T) {
	hub := NewHub(16, nil)
	hospitals := hub.Subscribe("hospitals", nil)
	all := hub.Subscribe("", nil)
	defer hospitals.Close()
	defer all.Close()

	for i := 0; i < 3; i++ {
		hub.Publish(rowEvent(t, "hospitals", livecache.OpUpdate, map[string]any{"n": i}))
	}
	hub.Publish(rowEvent(t, "alerts", livecache.OpInsert, map[string]any{"n": 99}))

	got := drain(hospitals, 3)
	require.Len(t, got, 3)
	for i, ev := range got {
		assert.JSONEq(t, fmt.Sprintf(`{"n":%d}`, i), string(ev.Row))
	}
	assert.Len(t, drain(all, 4), 4)

	select {
	case ev := <-hospitals.Events():
		t.Fatalf("unexpected event %+v", ev)
	default:
	}
}

func TestFieldEqualsFilter(t *testing.T) {
	hub := NewHub(8, nil)
	mine := hub.Subscribe("notifications", FieldEquals("user_id", "u-1"))
	defer mine.Close()

	hub.Publish(rowEvent(t, "notifications", livecache.OpInsert, map[string]any{"id": 1, "user_id": "u-2"}))
	hub.Publish(rowEvent(t, "notifications", livecache.OpInsert, map[string]any{"id": 2, "user_id": "u-1"}))
	hub.Publish(rowEvent(t, "notifications", livecache.OpInsert, map[string]any{"id": 3}))

	got := drain(mine, 1)
	require.Len(t, got, 1)
	assert.JSONEq(t, `{"id":2,"user_id":"u-1"}`, string(got[0].Row))
	assert.Empty(t, drain(mine, 1))
}

func TestHubClosesOverflowedSubscriber(t *testing.T) {
	hub := NewHub(2, nil)
	slow := hub.Subscribe("hospitals", nil)

	for i := 0; i < 3; i++ {
		hub.Publish(rowEvent(t, "hospitals", livecache.OpUpdate, map[string]any{"n": i}))
	}

	assert.Equal(t, 0, hub.Subscribers())
	n := 0
	for range slow.Events() {
		n++
	}
	assert.Equal(t, 2, n, "buffered events are still readable before close")
	assert.NoError(t, slow.Close())
}

func TestHubResetClosesEverySubscription(t *testing.T) {
	hub := NewHub(4, nil)
	a := hub.Subscribe("hospitals", nil)
	b := hub.Subscribe("", nil)
	require.Equal(t, 2, hub.Subscribers())

	hub.Reset()

	_, okA := <-a.Events()
	_, okB := <-b.Events()
	assert.False(t, okA)
	assert.False(t, okB)
	assert.Equal(t, 0, hub.Subscribers())

	assert.NoError(t, a.Close())
	assert.NoError(t, b.Close())
}

func TestTableSourceDecodesAndEndsOnBadRow(t *testing.T) {
	type row struct {
		ID string `json:"id"`
	}
	hub := NewHub(8, nil)
	src := TableSource[row]{
		Hub:   hub,
		Table: "staff",
		Load: func(context.Context) ([]row, error) {
			return []row{{ID: "s1"}}, nil
		},
	}

	items, err := src.Fetch(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []row{{ID: "s1"}}, items)

	st, err := src.Subscribe(context.Background())
	require.NoError(t, err)
	defer st.Close()

	hub.Publish(rowEvent(t, "staff", livecache.OpInsert, map[string]any{"id": "s2"}))
	select {
	case ev := <-st.Events():
		assert.Equal(t, livecache.OpInsert, ev.Op)
		assert.Equal(t, "s2", ev.Row.ID)
	case <-time.After(time.Second):
		t.Fatal("no event")
	}

	hub.Publish(Event{Table: "staff", Op: livecache.OpInsert, Row: json.RawMessage(`"oops"`)})
	select {
	case _, ok := <-st.Events():
		assert.False(t, ok)
	case <-time.After(time.Second):
		t.Fatal("stream not closed")
	}
	assert.Equal(t, 0, hub.Subscribers())
}
