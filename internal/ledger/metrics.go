package ledger

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	postsPublished = promauto.NewCounter(prometheus.CounterOpts{
		Name: "banger_posts_published_total",
		Help: "Number of posts successfully published to the platform.",
	})

	publishRejections = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "banger_publish_rejections_total",
		Help: "Publish attempts rejected by an admission gate, labeled by reason.",
	}, []string{"reason"})
)
