// Package httpclient issues the probe requests of a canaryload scenario.
//
// [NewClient] builds an http.Client whose connection pool is sized for the
// number of VUs hitting a single canary host. [Prober] wraps it with what the
// scenario deliberately leaves out: static headers, the run id header,
// W3C trace propagation, metrics recording and failure logging.
//
//	prober := httpclient.NewProber(httpclient.NewClient(60*time.Second, vus), httpclient.ProberOptions{
//		Collector: collector,
//		RunID:     runID,
//		Logger:    logger,
//	})
//	err := prober.Get(ctx, "/status", "https://canary.example.com/status")
//
// Responses with status >= 400 are returned as [*HTTPError]. Transport
// failures are returned unchanged and bucketed by [StatusCode].
package httpclient
