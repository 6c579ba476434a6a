// Package core contains the canonical outbound-call domain: call descriptors,
// credentials, the typed error envelope, and the failure classifier. Transport
// and provider adapters must depend on this package; core must not depend on
// transport-specific or provider-specific code.
package core
