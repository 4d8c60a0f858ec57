package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestRegistryIsDefaultRegisterer(t *testing.T) {
	if Registry == nil {
		t.Fatal("Registry should not be nil")
	}
	if Registry != prometheus.DefaultRegisterer {
		t.Error("Registry should be the default Prometheus registerer so promauto metrics land in it")
	}
}

func TestRegistryAcceptsAqCollectors(t *testing.T) {
	counter := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "aq_registry_check_total",
		Help: "Scratch counter verifying aq_ collectors register cleanly",
	}, []string{"endpoint"})

	if err := Registry.Register(counter); err != nil {
		t.Fatalf("Register() error: %v", err)
	}
	defer Registry.Unregister(counter)

	counter.WithLabelValues("/data/api/dailyData/bySite").Inc()
	if got := testutil.ToFloat64(counter.WithLabelValues("/data/api/dailyData/bySite")); got != 1 {
		t.Errorf("counter = %v, want 1", got)
	}

	// Double registration of the same name must be rejected, which is what
	// keeps each aq_ metric defined in exactly one package.
	duplicate := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "aq_registry_check_total",
		Help: "Scratch counter verifying aq_ collectors register cleanly",
	}, []string{"endpoint"})
	if err := Registry.Register(duplicate); err == nil {
		Registry.Unregister(duplicate)
		t.Error("Register() of a duplicate collector should fail")
	}
}
