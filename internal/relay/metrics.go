package relay

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/zhouzirui/z-lingo/backend/internal/service/links"
)

var (
	streamsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "chat_relay_streams_total",
		Help: "Relayed chat streams by terminal outcome.",
	}, []string{"outcome"})

	recoveryTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "chat_relay_recovery_total",
		Help: "Structured response recovery attempts by path.",
	}, []string{"path"})

	linksTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "chat_relay_links_total",
		Help: "Candidate navigation links by validation outcome.",
	}, []string{"outcome"})

	fragmentsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "chat_relay_fragments_total",
		Help: "Content fragments forwarded as delta events.",
	})
)

func observeLinks(stats links.Stats) {
	linksTotal.WithLabelValues(string(links.Accepted)).Add(float64(stats.Accepted))
	linksTotal.WithLabelValues(string(links.Rewritten)).Add(float64(stats.Rewritten))
	linksTotal.WithLabelValues(string(links.Dropped)).Add(float64(stats.Dropped))
}
