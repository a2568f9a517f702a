package monitoring

import (
	"github.com/ceramicnetwork/anchor-syncer/src/utils/monitoring/report"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
)

// Counters updated by the running components, exposed through the REST server
type Monitor interface {
	GetReport() *report.Report
	GetPrometheusCollector() prometheus.Collector
	IsOK() bool
	OnGetState(c *gin.Context)
	OnGetHealth(c *gin.Context)
}
