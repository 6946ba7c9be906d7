package server

import (
	"blair"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "blair"

var (
	portInPackets = prometheus.NewDesc(
		prometheus.BuildFQName(namespace, "port", "in_packets_total"),
		"Frames received on the port.", []string{"port"}, nil)
	portInBytes = prometheus.NewDesc(
		prometheus.BuildFQName(namespace, "port", "in_bytes_total"),
		"Bytes received on the port.", []string{"port"}, nil)
	portOutPackets = prometheus.NewDesc(
		prometheus.BuildFQName(namespace, "port", "out_packets_total"),
		"Frames sent out of the port, mirrored copies included.", []string{"port"}, nil)
	portOutBytes = prometheus.NewDesc(
		prometheus.BuildFQName(namespace, "port", "out_bytes_total"),
		"Bytes sent out of the port, mirrored copies included.", []string{"port"}, nil)
	portUp = prometheus.NewDesc(
		prometheus.BuildFQName(namespace, "port", "up"),
		"Whether the port is up.", []string{"port", "mode"}, nil)
	fibEntries = prometheus.NewDesc(
		prometheus.BuildFQName(namespace, "fib", "entries"),
		"Learned (vlan, mac) bindings.", nil, nil)
	framesReceived = prometheus.NewDesc(
		prometheus.BuildFQName(namespace, "frames", "received_total"),
		"Frames received by all ports.", nil, nil)
	framesDropped = prometheus.NewDesc(
		prometheus.BuildFQName(namespace, "frames", "dropped_total"),
		"Frames dropped as malformed, by ingress policy or as local traffic.", nil, nil)
	framesFlooded = prometheus.NewDesc(
		prometheus.BuildFQName(namespace, "frames", "flooded_total"),
		"Frames flooded to every eligible port.", nil, nil)
	framesUnicast = prometheus.NewDesc(
		prometheus.BuildFQName(namespace, "frames", "unicast_total"),
		"Frames forwarded to the single port their destination was learned on.", nil, nil)
)

// Collector reads the switch's counters at scrape time.
type Collector struct {
	sw *blair.Switch
}

func NewCollector(sw *blair.Switch) *Collector {
	return &Collector{sw: sw}
}

func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	for _, d := range []*prometheus.Desc{
		portInPackets, portInBytes, portOutPackets, portOutBytes, portUp,
		fibEntries, framesReceived, framesDropped, framesFlooded, framesUnicast,
	} {
		ch <- d
	}
}

func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	for _, p := range c.sw.Ports() {
		counters := p.Counters()
		state := p.State()

		up := 0.0
		if state.Up {
			up = 1
		}

		ch <- prometheus.MustNewConstMetric(portInPackets, prometheus.CounterValue, float64(counters.InPackets), p.Name())
		ch <- prometheus.MustNewConstMetric(portInBytes, prometheus.CounterValue, float64(counters.InBytes), p.Name())
		ch <- prometheus.MustNewConstMetric(portOutPackets, prometheus.CounterValue, float64(counters.OutPackets), p.Name())
		ch <- prometheus.MustNewConstMetric(portOutBytes, prometheus.CounterValue, float64(counters.OutBytes), p.Name())
		ch <- prometheus.MustNewConstMetric(portUp, prometheus.GaugeValue, up, p.Name(), modeLabel(state.Mode))
	}

	stats := c.sw.Stats()

	ch <- prometheus.MustNewConstMetric(fibEntries, prometheus.GaugeValue, float64(c.sw.FIB().Len()))
	ch <- prometheus.MustNewConstMetric(framesReceived, prometheus.CounterValue, float64(stats.Received))
	ch <- prometheus.MustNewConstMetric(framesDropped, prometheus.CounterValue, float64(stats.Dropped))
	ch <- prometheus.MustNewConstMetric(framesFlooded, prometheus.CounterValue, float64(stats.Flooded))
	ch <- prometheus.MustNewConstMetric(framesUnicast, prometheus.CounterValue, float64(stats.Unicast))
}

func modeLabel(mode blair.PortMode) string {
	switch mode.(type) {
	case blair.AccessMode:
		return "access"
	case blair.TrunkMode:
		return "trunk"
	case blair.MonitorMode:
		return "monitor"
	default:
		return "unknown"
	}
}
