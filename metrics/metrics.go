// Package metrics exports process and domain metrics in the Prometheus text
// exposition format.
package metrics

import (
	"github.com/lefinal/rally-server/errors"
	"github.com/lefinal/rally-server/games"
	"github.com/lefinal/rally-server/matchmaking"
	"github.com/lefinal/rally-server/registry"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"net/http"
	"time"
)

const namespace = "rally"

// RegistryStats provides registry.Stats. It is implemented by
// registry.Registry.
type RegistryStats interface {
	Stats() registry.Stats
}

// OrchestratorStats provides matchmaking.Stats. It is implemented by
// matchmaking.Orchestrator.
type OrchestratorStats interface {
	Stats() matchmaking.Stats
}

// ConnectionCounter provides the amount of open websocket connections. It is
// implemented by ws.Hub.
type ConnectionCounter interface {
	ClientCount() int
}

// AdmissionStats provides admission guard numbers. It is implemented by
// gatekeeping.Guard.
type AdmissionStats interface {
	Total() int
	Rejected() uint64
}

// Sources are the components to collect metrics from. All fields are optional.
type Sources struct {
	Registry     RegistryStats
	Orchestrator OrchestratorStats
	// Connections holds the connection counters by endpoint name.
	Connections map[string]ConnectionCounter
	Admission   AdmissionStats
}

var phases = []games.MatchPhase{
	games.MatchPhaseWaitingForPlayers,
	games.MatchPhaseActive,
	games.MatchPhaseEnded,
	games.MatchPhaseDestroyed,
}

func desc(name string, help string, labels ...string) *prometheus.Desc {
	return prometheus.NewDesc(prometheus.BuildFQName(namespace, "", name), help, labels, nil)
}

var (
	descUptime             = desc("uptime_seconds", "Seconds since start.")
	descConnections        = desc("ws_connections", "Open websocket connections.", "endpoint")
	descAdmissionOpen      = desc("admission_open_connections", "Connections registered at the admission guard.")
	descAdmissionRejected  = desc("admission_rejections_total", "Connections rejected by the admission guard.")
	descMatches            = desc("matches", "Registered matches by phase.", "phase")
	descPlayersConnected   = desc("match_players_connected", "Players with a bound connection.")
	descControlConnected   = desc("control_connected", "Whether the control channel is authenticated.")
	descControlQueued      = desc("control_queued_messages", "Control messages waiting for the control channel.")
	descMatchesCreated     = desc("matches_created_total", "Created matches.")
	descMatchesEnded       = desc("matches_ended_total", "Matches that ended with stats.")
	descMatchesTimedOut    = desc("matches_timed_out_total", "Matches removed because of inactivity.")
	descMatchmakingQueued  = desc("matchmaking_queued_clients", "Clients in lobbies that are not full.")
	descMatchmakingPlaying = desc("matchmaking_playing_clients", "Clients in started lobbies.")
	descMatchmakingLobbies = desc("matchmaking_active_lobbies", "Started lobbies.")
	descMatchmakingEnded   = desc("matchmaking_lobbies_ended_total", "Ended lobbies.")
	descMatchmakingGames   = desc("matchmaking_games_total", "Finished or aborted matchmaking games.")
)

// domainCollector collects from Sources on each scrape.
type domainCollector struct {
	sources   Sources
	startedAt time.Time
	now       func() time.Time
}

func (c *domainCollector) Describe(ch chan<- *prometheus.Desc) {
	for _, d := range []*prometheus.Desc{
		descUptime, descConnections, descAdmissionOpen, descAdmissionRejected, descMatches,
		descPlayersConnected, descControlConnected, descControlQueued, descMatchesCreated,
		descMatchesEnded, descMatchesTimedOut, descMatchmakingQueued, descMatchmakingPlaying,
		descMatchmakingLobbies, descMatchmakingEnded, descMatchmakingGames,
	} {
		ch <- d
	}
}

func gauge(d *prometheus.Desc, v float64, labels ...string) prometheus.Metric {
	return prometheus.MustNewConstMetric(d, prometheus.GaugeValue, v, labels...)
}

func counter(d *prometheus.Desc, v uint64) prometheus.Metric {
	return prometheus.MustNewConstMetric(d, prometheus.CounterValue, float64(v))
}

func (c *domainCollector) Collect(ch chan<- prometheus.Metric) {
	ch <- gauge(descUptime, c.now().Sub(c.startedAt).Seconds())
	for endpoint, cc := range c.sources.Connections {
		ch <- gauge(descConnections, float64(cc.ClientCount()), endpoint)
	}
	if a := c.sources.Admission; a != nil {
		ch <- gauge(descAdmissionOpen, float64(a.Total()))
		ch <- counter(descAdmissionRejected, a.Rejected())
	}
	if r := c.sources.Registry; r != nil {
		s := r.Stats()
		for _, phase := range phases {
			ch <- gauge(descMatches, float64(s.MatchesByPhase[phase]), string(phase))
		}
		ch <- gauge(descPlayersConnected, float64(s.PlayersConnected))
		controlConnected := 0.0
		if s.ControlConnected {
			controlConnected = 1
		}
		ch <- gauge(descControlConnected, controlConnected)
		ch <- gauge(descControlQueued, float64(s.QueuedMessages))
		ch <- counter(descMatchesCreated, s.MatchesCreated)
		ch <- counter(descMatchesEnded, s.MatchesEnded)
		ch <- counter(descMatchesTimedOut, s.MatchesTimedOut)
	}
	if o := c.sources.Orchestrator; o != nil {
		s := o.Stats()
		ch <- gauge(descMatchmakingQueued, float64(s.Queued))
		ch <- gauge(descMatchmakingPlaying, float64(s.Playing))
		ch <- gauge(descMatchmakingLobbies, float64(s.ActiveLobbies))
		ch <- counter(descMatchmakingEnded, s.LobbiesEnded)
		ch <- counter(descMatchmakingGames, s.GamesPlayed)
	}
}

// Exporter holds the metrics registry.
type Exporter struct {
	registry *prometheus.Registry
}

// NewExporter creates an Exporter with Go runtime, process and domain metrics.
func NewExporter(sources Sources) (*Exporter, error) {
	reg := prometheus.NewRegistry()
	for _, c := range []prometheus.Collector{
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		&domainCollector{sources: sources, startedAt: time.Now(), now: time.Now},
	} {
		err := reg.Register(c)
		if err != nil {
			return nil, errors.NewInternalErrorFromErr(err, "register collector", nil)
		}
	}
	return &Exporter{registry: reg}, nil
}

// Handler serves the metrics.
func (e *Exporter) Handler() http.Handler {
	return promhttp.HandlerFor(e.registry, promhttp.HandlerOpts{})
}
