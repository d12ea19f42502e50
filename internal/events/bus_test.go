package events

import "testing"

func TestBus_PublishReachesAllSubscribers(t *testing.T) {
	bus := NewBus()

	var first, second []Event
	bus.Subscribe(func(ev Event) { first = append(first, ev) })
	bus.Subscribe(func(ev Event) { second = append(second, ev) })

	bus.Publish("backup.isCreating", true)
	bus.Publish("sync.queueLength", 3)

	for name, got := range map[string][]Event{"first": first, "second": second} {
		if len(got) != 2 {
			t.Fatalf("%s subscriber: expected 2 events, got %d", name, len(got))
		}
		if got[0].Path != "backup.isCreating" || got[0].Value != true {
			t.Errorf("%s subscriber: unexpected first event %+v", name, got[0])
		}
		if got[1].Path != "sync.queueLength" || got[1].Value != 3 {
			t.Errorf("%s subscriber: unexpected second event %+v", name, got[1])
		}
	}
}

func TestBus_NoSubscribers(t *testing.T) {
	bus := NewBus()
	// Publishing without subscribers must not panic.
	bus.Publish("backup.isCreating", false)
}
