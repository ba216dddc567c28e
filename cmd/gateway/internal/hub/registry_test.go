package hub_test

import (
	"reflect"
	"testing"

	"github.com/shubham-shewale/basis-hub/cmd/gateway/internal/hub"
)

func TestRegistry_Normalizes(t *testing.T) {
	r := hub.NewRegistry(3)

	changed := r.Subscribe("c1", []string{" btcusdt", "bt", "BTCUSDT;DROP", "BTCUSDT", "ethusdt", "solusdt", "xrpusdt"})

	if !changed {
		t.Error("First subscription should change the union")
	}
	want := []string{"BTCUSDT", "ETHUSDT", "SOLUSDT"}
	if got := r.Symbols("c1"); !reflect.DeepEqual(got, want) {
		t.Errorf("Expected %v, got %v", want, got)
	}
}

func TestRegistry_ChangeDetection(t *testing.T) {
	r := hub.NewRegistry(3)

	r.Subscribe("a", []string{"BTCUSDT"})
	if r.Subscribe("b", []string{"BTCUSDT"}) {
		t.Error("Adding an already-covered symbol must not change the union")
	}
	if r.Unsubscribe("a") {
		t.Error("Removing a subscriber whose symbols are still covered must not change the union")
	}
	if !r.Subscribe("b", []string{"ETHUSDT"}) {
		t.Error("Swapping a symbol of the same union size must count as a change")
	}
	if r.Unsubscribe("nobody") {
		t.Error("Unsubscribing an unknown id is a no-op")
	}
	if !r.Unsubscribe("b") {
		t.Error("Emptying the union is a change")
	}
	if len(r.Union()) != 0 || r.Len() != 0 {
		t.Errorf("Registry should be empty, union %v", r.Union())
	}
}

func TestRegistry_EmptyEffectiveSubscription(t *testing.T) {
	r := hub.NewRegistry(3)

	if r.Subscribe("a", []string{"!!", "x"}) {
		t.Error("A subscription with no valid symbols leaves the empty union unchanged")
	}
	if r.Len() != 1 {
		t.Error("The subscriber is still registered with an empty set")
	}
}
