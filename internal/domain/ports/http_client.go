package ports

import "net/http"

// HTTPClient is the slice of *http.Client outbound fetchers depend on
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}
