package config

import (
	"fmt"
	"io"
	"strings"
)

// RenderEffective writes the resolved configuration as TOML-like text to w.
// This powers "config show".
func RenderEffective(r *Resolved, w io.Writer) error {
	ew := &errWriter{w: w}

	ew.printf("# Effective configuration (file: %s)\n\n", r.Path)

	ew.printf("[ion]\n")
	ew.printf("api_url       = %q\n", r.Ion.APIURL)
	ew.printf("authorize_url = %q\n", r.Ion.AuthorizeURL)
	ew.printf("token_url     = %q\n", r.Ion.TokenURL)
	ew.printf("client_id     = %q\n", r.Ion.ClientID)
	ew.printf("redirect_path = %q\n", r.Ion.RedirectPath)
	ew.printf("project_name  = %q\n", r.Ion.ProjectName)
	ew.printf("token_suffix  = %q\n", r.Ion.TokenSuffix)
	ew.printf("scopes        = [%s]\n\n", joinQuoted(r.Ion.Scopes))

	ew.printf("[session]\n")
	ew.printf("pump_interval           = %q\n", r.Session.PumpInterval)
	ew.printf("max_concurrent_requests = %d\n", r.Session.MaxConcurrentRequests)
	ew.printf("credential_store        = %q\n\n", r.Session.CredentialStore)

	ew.printf("[network]\n")
	ew.printf("connect_timeout     = %q\n", r.Network.ConnectTimeout)
	ew.printf("data_timeout        = %q\n", r.Network.DataTimeout)
	ew.printf("user_agent          = %q\n", r.Network.UserAgent)
	ew.printf("requests_per_second = %g\n\n", r.Network.RequestsPerSecond)

	ew.printf("[logging]\n")
	ew.printf("log_level  = %q\n", r.Logging.LogLevel)
	ew.printf("log_format = %q\n\n", r.Logging.LogFormat)

	ew.printf("[serve]\n")
	ew.printf("listen_addr = %q\n", r.Serve.ListenAddr)

	return ew.err
}

// errWriter wraps an io.Writer and captures the first write error.
// Subsequent writes after an error are no-ops.
type errWriter struct {
	w   io.Writer
	err error
}

func (ew *errWriter) printf(format string, args ...any) {
	if ew.err != nil {
		return
	}

	_, ew.err = fmt.Fprintf(ew.w, format, args...)
}

func joinQuoted(ss []string) string {
	quoted := make([]string, len(ss))
	for i, s := range ss {
		quoted[i] = fmt.Sprintf("%q", s)
	}

	return strings.Join(quoted, ", ")
}
