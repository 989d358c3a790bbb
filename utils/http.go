package utils

import (
	"net/http"
	"time"
)

// HTTPClient is shared by the outbound service clients.
var HTTPClient = &http.Client{
	Timeout: 15 * time.Second,
}
