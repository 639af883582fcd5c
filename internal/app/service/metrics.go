package service

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	sourceSingle = "single"
	sourceBatch  = "batch"

	outcomeRedirected = "redirected"
	outcomeNotFound   = "not_found"
	outcomeExpired    = "expired"
	outcomeError      = "error"
)

var (
	linksCreatedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "minilink_links_created_total",
			Help: "Links created, by request source",
		},
		[]string{"source"},
	)

	linkCreateFailuresTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "minilink_link_create_failures_total",
			Help: "Rejected link creations, by request source",
		},
		[]string{"source"},
	)

	redirectsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "minilink_redirects_total",
			Help: "Redirect resolutions, by outcome",
		},
		[]string{"outcome"},
	)

	linksDeletedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "minilink_links_deleted_total",
			Help: "Links removed through the API",
		},
	)

	eventPublishFailuresTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "minilink_event_publish_failures_total",
			Help: "Link events that could not be handed to NATS",
		},
		[]string{"type"},
	)
)
