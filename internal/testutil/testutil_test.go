package testutil

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/HerbHall/netwatch/pkg/models"
	"github.com/HerbHall/netwatch/pkg/plugin"
)

func TestNewMigratedStore(t *testing.T) {
	db := NewMigratedStore(t, "fixture", []plugin.Migration{{
		Version:     1,
		Description: "scratch table",
		Up: func(tx *sql.Tx) error {
			_, err := tx.Exec(`CREATE TABLE scratch (id TEXT PRIMARY KEY)`)
			return err
		},
	}})
	if _, err := db.DB().ExecContext(context.Background(), `INSERT INTO scratch (id) VALUES ('x')`); err != nil {
		t.Fatalf("insert into migrated table: %v", err)
	}
}

func TestMockBus(t *testing.T) {
	bus := NewMockBus()
	ctx := context.Background()

	var topicCalls, allCalls int
	bus.Subscribe("pulse.alert", func(context.Context, plugin.Event) { topicCalls++ })
	bus.SubscribeAll(func(context.Context, plugin.Event) { allCalls++ })

	_ = bus.Publish(ctx, plugin.Event{Topic: "pulse.result"})
	bus.PublishAsync(ctx, plugin.Event{Topic: "pulse.alert"})
	_ = bus.Publish(ctx, plugin.Event{Topic: "pulse.result"})

	if topicCalls != 1 || allCalls != 3 {
		t.Errorf("calls = topic %d, all %d; want 1 and 3", topicCalls, allCalls)
	}
	if n := len(bus.Events()); n != 3 {
		t.Errorf("len(Events) = %d, want 3", n)
	}
	if n := len(bus.EventsOn("pulse.result")); n != 2 {
		t.Errorf("len(EventsOn(result)) = %d, want 2", n)
	}

	bus.Reset()
	if n := len(bus.Events()); n != 0 {
		t.Errorf("len(Events) after Reset = %d, want 0", n)
	}
	_ = bus.Publish(ctx, plugin.Event{Topic: "pulse.alert"})
	if topicCalls != 2 {
		t.Error("Reset dropped subscriptions")
	}
}

func TestClock(t *testing.T) {
	c := NewClock()
	if !c.Now().Equal(Epoch) {
		t.Fatalf("Now() = %v, want %v", c.Now(), Epoch)
	}
	got := c.Advance(90 * time.Second)
	if want := Epoch.Add(90 * time.Second); !got.Equal(want) || !c.Now().Equal(want) {
		t.Errorf("Advance() = %v, Now() = %v, want %v", got, c.Now(), want)
	}
}

func TestFixtures(t *testing.T) {
	d := NewDevice(WithName("core-sw"), WithAddress("10.0.0.2"), WithCategory(models.DeviceCategorySwitch))
	if d.ID == "" || d.Name != "core-sw" || d.Address != "10.0.0.2" || d.Category != models.DeviceCategorySwitch {
		t.Errorf("NewDevice() = %+v", d)
	}

	m := NewMonitor(d.ID)
	if err := m.Validate(0, 0); err != nil {
		t.Fatalf("default monitor invalid: %v", err)
	}

	m = NewMonitor(d.ID, WithConfig(models.HTTPConfig{URL: "http://10.0.0.2/"}), WithInterval(30), Disabled())
	if m.Kind != models.KindHTTP || m.IntervalSeconds != 30 || m.Enabled {
		t.Errorf("NewMonitor(options) = %+v", m)
	}
	if err := m.Validate(0, 0); err != nil {
		t.Errorf("http monitor invalid: %v", err)
	}
}

func TestLogger(t *testing.T) {
	Logger(t).Warn("visible only on failure")
}
