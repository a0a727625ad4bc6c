package llm

import "crypto/tls"

// insecureTLSConfig disables certificate verification, gated behind an
// explicit development-only config flag; production deployments must leave
// InsecureSkipVerify unset.
func insecureTLSConfig() *tls.Config {
	return &tls.Config{InsecureSkipVerify: true}
}
