package http

import (
	"context"
	"net/http/httptest"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/kjstillabower/meteo-lookup-service/internal/models"
)

// gatedLooker signals entry, then holds the lookup until release is closed.
type gatedLooker struct {
	entered chan struct{}
	release chan struct{}
}

func (g *gatedLooker) Lookup(ctx context.Context, text string) (models.WeatherResult, bool) {
	close(g.entered)
	<-g.release
	return romeWeather(), true
}

func TestInFlightTracker_Count(t *testing.T) {
	tracker := &InFlightTracker{}
	steps := []struct {
		op   func()
		want int64
	}{
		{func() {}, 0},
		{tracker.Increment, 1},
		{tracker.Increment, 2},
		{tracker.Decrement, 1},
		{tracker.Decrement, 0},
	}
	for i, s := range steps {
		s.op()
		if got := tracker.Count(); got != s.want {
			t.Errorf("step %d: Count() = %d, want %d", i, got, s.want)
		}
	}
}

func TestInFlightTracker_WaitForZero_ContextCanceled(t *testing.T) {
	tracker := &InFlightTracker{}
	tracker.Increment()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := tracker.WaitForZero(ctx, 5*time.Millisecond); err == nil {
		t.Error("WaitForZero expected context error, got nil")
	}
}

// TestWaitForInFlight_DrainsLookup verifies that a lookup still being served
// holds shutdown until it completes.
func TestWaitForInFlight_DrainsLookup(t *testing.T) {
	looker := &gatedLooker{entered: make(chan struct{}), release: make(chan struct{})}
	router := NewRouter(NewHandler(looker, nil, zap.NewNop(), 1, 100), nil, time.Second)

	served := make(chan struct{})
	go func() {
		router.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest("GET", "/meteo/lookup.json?location=Rome", nil))
		close(served)
	}()
	<-looker.entered

	if got := InFlightCount(); got != 1 {
		t.Errorf("InFlightCount() during lookup = %d, want 1", got)
	}
	short, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if err := WaitForInFlight(short, 5*time.Millisecond); err == nil {
		t.Error("WaitForInFlight returned before the lookup finished")
	}

	close(looker.release)
	<-served
	ctx, cancel2 := context.WithTimeout(context.Background(), time.Second)
	defer cancel2()
	if err := WaitForInFlight(ctx, 5*time.Millisecond); err != nil {
		t.Errorf("WaitForInFlight after lookup = %v, want nil", err)
	}
}
