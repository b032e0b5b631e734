// Package prometheus exports a respool.Pool's Stats snapshot as
// Prometheus collectors: gauges for the live registry sizes and counters
// for the monotonic totals.
package prometheus

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/tsurugi-dev/respool"
)

var wg sync.WaitGroup

const (
	createdTotal      = "resources_created_total"
	destroyedTotal    = "resources_destroyed_total"
	acquisitionsTotal = "acquisitions_total"
	returnsTotal      = "returns_total"
	timeoutsTotal     = "timeouts_total"
	healthFailTotal   = "health_fail_total"
	killedTotal       = "killed_total"
	badReturnsTotal   = "bad_returns_total"
)

var collectors = []prometheus.Collector{
	poolAvail,
	poolBusy,
	poolTotal,
	created,
	destroyed,
	acquisitions,
	returns,
	timeouts,
	healthFail,
	killed,
	badReturns,
}

var (
	poolAvail = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "pool_avail",
		Help: "Number of resources currently idle and available.",
	})
	poolBusy = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "pool_busy",
		Help: "Number of resources currently checked out.",
	})
	poolTotal = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "pool_total",
		Help: "Number of live resources, available plus busy.",
	})

	created = prometheus.NewCounter(prometheus.CounterOpts{
		Name: createdTotal,
		Help: "Resources constructed by the factory.",
	})
	destroyed = prometheus.NewCounter(prometheus.CounterOpts{
		Name: destroyedTotal,
		Help: "Resources destroyed, for any reason.",
	})
	acquisitions = prometheus.NewCounter(prometheus.CounterOpts{
		Name: acquisitionsTotal,
		Help: "Successful Acquire calls.",
	})
	returns = prometheus.NewCounter(prometheus.CounterOpts{
		Name: returnsTotal,
		Help: "Release calls for a recognized resource.",
	})
	timeouts = prometheus.NewCounter(prometheus.CounterOpts{
		Name: timeoutsTotal,
		Help: "Acquire calls that gave up waiting for capacity.",
	})
	healthFail = prometheus.NewCounter(prometheus.CounterOpts{
		Name: healthFailTotal,
		Help: "Health hook failures.",
	})
	killed = prometheus.NewCounter(prometheus.CounterOpts{
		Name: killedTotal,
		Help: "Resources forcibly retired while checked out: held past MaxUsingDelayKill, or still held at Close's deadline.",
	})
	badReturns = prometheus.NewCounter(prometheus.CounterOpts{
		Name: badReturnsTotal,
		Help: "Release calls for an object the pool did not recognize.",
	})
)

// Options configures Serve.
type Options struct {
	Bind            string
	Port            int
	UpdateFrequency time.Duration
}

// DefaultOptions returns sane defaults: port 8080, polled every 2s.
func DefaultOptions() Options {
	return Options{
		Port:            8080,
		UpdateFrequency: 2 * time.Second,
	}
}

func (o Options) SetBind(bind string) Options {
	o.Bind = bind
	return o
}

func (o Options) SetPort(port int) Options {
	o.Port = port
	return o
}

func (o Options) SetUpdateFrequency(d time.Duration) Options {
	o.UpdateFrequency = d
	return o
}

func (o Options) ListeningString() string {
	return fmt.Sprintf("%s:%d", o.Bind, o.Port)
}

func init() {
	for _, c := range collectors {
		prometheus.MustRegister(c)
	}
}

func watch(ctx context.Context, pool *respool.Pool, opts Options) {
	defer wg.Done()
	ticker := time.NewTicker(opts.UpdateFrequency)
	defer ticker.Stop()

	lastCounter := map[string]uint64{}

	for {
		s := pool.Stats()

		poolAvail.Set(float64(s.NAvail))
		poolBusy.Set(float64(s.NBusy))
		poolTotal.Set(float64(s.NTotal))

		bump(created, createdTotal, s.NCreated, lastCounter)
		bump(destroyed, destroyedTotal, s.NDestroyed, lastCounter)
		bump(acquisitions, acquisitionsTotal, s.NAcquisitions, lastCounter)
		bump(returns, returnsTotal, s.NReturns, lastCounter)
		bump(timeouts, timeoutsTotal, s.NTimeouts, lastCounter)
		bump(healthFail, healthFailTotal, s.NHealthFail, lastCounter)
		bump(killed, killedTotal, s.NKilled, lastCounter)
		bump(badReturns, badReturnsTotal, s.NBadReturns, lastCounter)

		select {
		case <-ticker.C:
		case <-ctx.Done():
			return
		}
	}
}

func bump(c prometheus.Counter, key string, current uint64, last map[string]uint64) {
	c.Add(float64(current - last[key]))
	last[key] = current
}

// Serve begins polling pool's Stats at the interval specified by
// UpdateFrequency and blocks serving /metrics. This is meant to be
// imported by a standalone program:
//
//	package main
//
//	import (
//		"github.com/tsurugi-dev/respool"
//		"github.com/tsurugi-dev/respool/metrics/prometheus"
//	)
//
//	func main() {
//		pool, err := respool.New(respool.Config{Fun: myFactory, MaxSize: 10})
//		if err != nil {
//			panic(err)
//		}
//
//		prometheus.Serve(pool, prometheus.DefaultOptions())
//	}
func Serve(pool *respool.Pool, opts Options) {
	wg.Add(1)
	ctx, cancel := context.WithCancel(context.Background())
	go watch(ctx, pool, opts)
	defer wg.Wait()
	defer cancel()

	http.Handle("/metrics", promhttp.Handler())

	respool.Log.Fatal().Err(http.ListenAndServe(opts.ListeningString(), nil))
}
