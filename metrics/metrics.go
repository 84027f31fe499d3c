// Copyright 2024 The Tektite Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package metrics

import (
	"context"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spirit-labs/streamflow/region"
)

const namespace = "streamflow"

// FlowView is the part of a running flow read by the collectors.
type FlowView interface {
	Version() int
	Regions() []*region.Region
}

// Metrics holds the collectors of an engine in their own registry.
type Metrics struct {
	registry        *prometheus.Registry
	drainLatency    *prometheus.HistogramVec
	drainedTuples   *prometheus.CounterVec
	transformations *prometheus.CounterVec
	samples         *prometheus.CounterVec
}

func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		drainLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "drainer",
			Name:      "latency_seconds",
			Help:      "Time between a drainer being acquired and the drained tuples reaching the operator",
			Buckets:   prometheus.ExponentialBuckets(0.00001, 4, 10),
		}, []string{"operator"}),
		drainedTuples: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "drainer",
			Name:      "drained_tuples_total",
			Help:      "Tuples drained for pipeline head operators",
		}, []string{"operator"}),
		transformations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "engine",
			Name:      "transformations_total",
			Help:      "Region transformations applied to the running flow",
		}, []string{"kind"}),
		samples: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "pipeline",
			Name:      "invocation_samples_total",
			Help:      "Times an operator was seen being invoked when sampling pipeline replica meters",
		}, []string{"pipeline", "operator"}),
	}
	m.registry.MustRegister(m.drainLatency, m.drainedTuples, m.transformations, m.samples)
	return m
}

func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

func (m *Metrics) RecordDrainLatency(operatorID string, tupleCount int, latency time.Duration) {
	m.drainLatency.WithLabelValues(operatorID).Observe(latency.Seconds())
	m.drainedTuples.WithLabelValues(operatorID).Add(float64(tupleCount))
}

func (m *Metrics) RecordTransformation(kind string) {
	m.transformations.WithLabelValues(kind).Inc()
}

// RegisterFlow registers a collector reading the flow returned by view on every scrape. view may return nil
// while no flow runs.
func (m *Metrics) RegisterFlow(view func() FlowView) error {
	return m.registry.Register(newFlowCollector(view))
}

// Sample records the operator currently invoked by each pipeline replica of the flow.
func (m *Metrics) Sample(view FlowView) {
	for _, r := range view.Regions() {
		for _, p := range r.AllPipelineReplicas() {
			if current := p.Meter().CurrentlyInvoked(); current != "" && current != p.ID().String() {
				m.samples.WithLabelValues(p.ID().String(), current).Inc()
			}
		}
	}
}

// RunSampler samples the flow every interval until ctx is cancelled.
func (m *Metrics) RunSampler(ctx context.Context, interval time.Duration, view func() FlowView) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if v := view(); v != nil {
				m.Sample(v)
			}
		}
	}
}

var (
	flowVersionDesc = prometheus.NewDesc(prometheus.BuildFQName(namespace, "flow", "version"),
		"Version of the running flow, incremented by every transformation", nil, nil)
	replicasDesc = prometheus.NewDesc(prometheus.BuildFQName(namespace, "region", "replicas"),
		"Replica count of a region", []string{"region", "type"}, nil)
	pipelinesDesc = prometheus.NewDesc(prometheus.BuildFQName(namespace, "region", "pipelines"),
		"Pipeline count of a region", []string{"region"}, nil)
	inboundDesc = prometheus.NewDesc(prometheus.BuildFQName(namespace, "pipeline", "inbound_tuples_total"),
		"Tuples received by the head operator of a pipeline replica", []string{"pipeline", "operator", "port"}, nil)
	overloadedDesc = prometheus.NewDesc(prometheus.BuildFQName(namespace, "pipeline", "overloaded"),
		"1 if the entry queue of a pipeline replica is above its capacity", []string{"pipeline"}, nil)
)

// flowCollector reads the meters and queues of the current flow at scrape time. Meters are replaced together
// with the pipelines of a transformed region, so inbound counts restart from zero after a transformation.
type flowCollector struct {
	view func() FlowView
}

func newFlowCollector(view func() FlowView) *flowCollector {
	return &flowCollector{view: view}
}

func (c *flowCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- flowVersionDesc
	ch <- replicasDesc
	ch <- pipelinesDesc
	ch <- inboundDesc
	ch <- overloadedDesc
}

func (c *flowCollector) Collect(ch chan<- prometheus.Metric) {
	v := c.view()
	if v == nil {
		return
	}
	ch <- prometheus.MustNewConstMetric(flowVersionDesc, prometheus.GaugeValue, float64(v.Version()))
	for _, r := range v.Regions() {
		regionID := strconv.Itoa(r.ID())
		ch <- prometheus.MustNewConstMetric(replicasDesc, prometheus.GaugeValue, float64(r.ReplicaCount()), regionID,
			r.Def().Type().String())
		ch <- prometheus.MustNewConstMetric(pipelinesDesc, prometheus.GaugeValue, float64(r.PipelineCount()), regionID)
		for _, p := range r.AllPipelineReplicas() {
			id := p.ID().String()
			for port, count := range p.Meter().InboundThroughput() {
				ch <- prometheus.MustNewConstMetric(inboundDesc, prometheus.CounterValue, float64(count), id,
					p.Meter().HeadOperatorID(), strconv.Itoa(port))
			}
			overloaded := 0.0
			if p.EntryQueue().IsOverloaded() {
				overloaded = 1
			}
			ch <- prometheus.MustNewConstMetric(overloadedDesc, prometheus.GaugeValue, overloaded, id)
		}
	}
}
