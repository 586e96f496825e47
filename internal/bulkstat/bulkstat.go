// Package bulkstat implements the query benchmark suite described in
// spec.md §6: it builds an index over a sweep of (partitions, elements
// per partition) shapes, fires a batch of queries against it, and reports
// throughput and latency statistics as a CSV row. Latency sampling is
// grounded on github.com/armon/go-metrics, an indirect dependency the
// teacher already carries (pulled in for serf's internal telemetry); this
// package is the first place in the module that imports it directly.
package bulkstat

import (
	"fmt"
	"math"
	"math/rand"
	"sort"
	"time"

	metrics "github.com/armon/go-metrics"

	"partitionindex/internal/generation"
)

// Shape describes one point in the benchmark sweep.
type Shape struct {
	Queries              int
	Partitions           int
	ElementsPerPartition int
	Buckets              uint64
	BucketSize           int // not read by Run; Result.BucketSize reports the widest partition's width
	Parallelism          int
}

// Result is one completed measurement, shaped to match the CSV row of
// spec.md §6 exactly.
type Result struct {
	Queries              int
	Partitions           int
	ElementsPerPartition int
	Buckets              uint64
	BucketSize           int
	Parallelism          int
	QPS                  float64
	MeanLatencyUS        float64
	StddevLatencyUS      float64
	MedianLatencyUS      float64
	MADLatencyUS         float64
	ReadThroughputMBps   float64
	FPRate               float64
	ExpectedFPRate       float64
	Occupancy            float64
}

// CSVHeader is the fixed column order for Run's output.
var CSVHeader = []string{
	"queries", "partitions", "elements_per_partition", "buckets", "bucket_size",
	"parallelism", "qps", "mean_latency_us", "stddev", "median", "mad",
	"read_throughput_MBps", "fp_rate", "expected_fp_rate", "occupancy",
}

// Row renders a Result as a CSV record matching CSVHeader's column order.
func (r Result) Row() []string {
	return []string{
		fmt.Sprintf("%d", r.Queries),
		fmt.Sprintf("%d", r.Partitions),
		fmt.Sprintf("%d", r.ElementsPerPartition),
		fmt.Sprintf("%d", r.Buckets),
		fmt.Sprintf("%d", r.BucketSize),
		fmt.Sprintf("%d", r.Parallelism),
		fmt.Sprintf("%.2f", r.QPS),
		fmt.Sprintf("%.3f", r.MeanLatencyUS),
		fmt.Sprintf("%.3f", r.StddevLatencyUS),
		fmt.Sprintf("%.3f", r.MedianLatencyUS),
		fmt.Sprintf("%.3f", r.MADLatencyUS),
		fmt.Sprintf("%.3f", r.ReadThroughputMBps),
		fmt.Sprintf("%.6f", r.FPRate),
		fmt.Sprintf("%.6f", r.ExpectedFPRate),
		fmt.Sprintf("%.4f", r.Occupancy),
	}
}

// Run builds a single in-memory generation matching shape, fires
// shape.Queries lookups against it (half hits, half misses, seeded for
// reproducibility), and returns the measured Result.
func Run(shape Shape, seed int64) Result {
	sink := metrics.NewInmemSink(time.Hour, time.Hour)
	cfg := metrics.DefaultConfig("bulkstat")
	cfg.EnableHostname = false
	cfg.EnableRuntimeMetrics = false
	sampler, _ := metrics.NewGlobal(cfg, sink)
	_ = sampler

	r := rand.New(rand.NewSource(seed))
	gen := generation.New(shape.Buckets)

	var batches []generation.Batch
	var allKnown []uint64
	for p := 0; p < shape.Partitions; p++ {
		keys := make([]uint64, shape.ElementsPerPartition)
		for i := range keys {
			keys[i] = r.Uint64()
		}
		allKnown = append(allKnown, keys...)
		batches = append(batches, generation.Batch{
			Partition: fmt.Sprintf("p%d", p),
			Keys:      keys,
		})
	}
	gen.AddMany(batches)

	maxWidth := uint16(0)
	for _, info := range gen.Manifest() {
		if info.Width > maxWidth {
			maxWidth = info.Width
		}
	}

	falsePositives := 0
	negativeProbes := 0
	latencies := make([]float64, 0, shape.Queries)
	start := time.Now()
	for q := 0; q < shape.Queries; q++ {
		var key uint64
		wantHit := q%2 == 0
		if wantHit && len(allKnown) > 0 {
			key = allKnown[r.Intn(len(allKnown))]
		} else {
			key = r.Uint64()
			negativeProbes++
		}

		qStart := time.Now()
		hits := gen.Query(key)
		elapsedUS := float32(time.Since(qStart).Microseconds())
		metrics.AddSample([]string{"bulkstat", "query_latency_us"}, elapsedUS)
		latencies = append(latencies, float64(elapsedUS))

		if !wantHit && len(hits) > 0 {
			falsePositives++
		}
	}
	totalElapsed := time.Since(start)

	var meanLatency, stddevLatency float64
	data := sink.Data()
	if len(data) > 0 {
		if s, ok := data[len(data)-1].Samples["bulkstat.query_latency_us"]; ok && s.AggregateSample != nil {
			meanLatency = s.AggregateSample.Mean()
			stddevLatency = s.AggregateSample.Stddev()
		}
	}

	median, mad := medianAndMAD(latencies)

	elementsTotal := uint64(shape.Partitions) * uint64(shape.ElementsPerPartition)
	bytesRead := uint64(shape.Queries) * 2 * gen.Stride() * 2 // per query: two candidate buckets of stride fingerprints, 2 bytes each
	readThroughputMBps := 0.0
	if totalElapsed.Seconds() > 0 {
		readThroughputMBps = float64(bytesRead) / totalElapsed.Seconds() / (1024 * 1024)
	}

	expectedFP := expectedFalsePositiveRate(int(maxWidth))
	fpRate := 0.0
	if negativeProbes > 0 {
		fpRate = float64(falsePositives) / float64(negativeProbes)
	}

	occupancy := 0.0
	if gen.Stride() > 0 && shape.Buckets > 0 {
		occupancy = float64(elementsTotal) / float64(gen.Stride()*shape.Buckets)
	}

	return Result{
		Queries:              shape.Queries,
		Partitions:           shape.Partitions,
		ElementsPerPartition: shape.ElementsPerPartition,
		Buckets:              shape.Buckets,
		BucketSize:           int(maxWidth),
		Parallelism:          shape.Parallelism,
		QPS:                  float64(shape.Queries) / totalElapsed.Seconds(),
		MeanLatencyUS:        meanLatency,
		StddevLatencyUS:      stddevLatency,
		MedianLatencyUS:      median,
		MADLatencyUS:         mad,
		ReadThroughputMBps:   readThroughputMBps,
		FPRate:               fpRate,
		ExpectedFPRate:       expectedFP,
		Occupancy:            occupancy,
	}
}

// medianAndMAD computes the median and median-absolute-deviation of
// samples directly, since go-metrics' InmemSink only exposes summary
// statistics (mean, stddev, min, max), not the raw sample set.
func medianAndMAD(samples []float64) (median, mad float64) {
	if len(samples) == 0 {
		return 0, 0
	}
	sorted := append([]float64(nil), samples...)
	sort.Float64s(sorted)
	median = percentile(sorted, 0.5)

	deviations := make([]float64, len(sorted))
	for i, v := range sorted {
		deviations[i] = math.Abs(v - median)
	}
	sort.Float64s(deviations)
	mad = percentile(deviations, 0.5)
	return median, mad
}

func percentile(sorted []float64, p float64) float64 {
	if len(sorted) == 1 {
		return sorted[0]
	}
	idx := p * float64(len(sorted)-1)
	lo := int(math.Floor(idx))
	hi := int(math.Ceil(idx))
	if lo == hi {
		return sorted[lo]
	}
	frac := idx - float64(lo)
	return sorted[lo]*(1-frac) + sorted[hi]*frac
}

// expectedFalsePositiveRate approximates the textbook cuckoo filter bound
// 2·bucketSize/2^f for a 16-bit fingerprint, with bucketSize the widest
// partition's width (spec.md §9 notes fp collisions are accepted, not
// engineered against).
func expectedFalsePositiveRate(bucketSize int) float64 {
	if bucketSize == 0 {
		return 0
	}
	return 2 * float64(bucketSize) / 65536.0
}
