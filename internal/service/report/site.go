package report

import (
	"strings"

	"go.uber.org/zap"
)

// UnknownSite labels a report whose site could not be derived.
const UnknownSite = "UNKNOWN"

// knownSites are matched, in order, against the downstream workflow file name.
var knownSites = []string{"ECMWF", "EUMETSAT"}

// DetectSite returns the label of the site the jobs were deployed to. The
// configured label wins; otherwise the downstream workflow file name carries
// it by convention, e.g. test-ecmwf.yml.
func DetectSite(configured, workflow string) string {
	if configured != "" {
		return configured
	}

	name := strings.ToUpper(workflow)
	for _, site := range knownSites {
		if strings.Contains(name, site) {
			return site
		}
	}

	zap.S().Named("report").Warnw("cannot derive the site from the workflow file name, it should contain one of "+
		strings.ToLower(strings.Join(knownSites, ", ")), "workflow", workflow)
	return UnknownSite
}
