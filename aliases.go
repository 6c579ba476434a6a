package outbound

import "github.com/goliatone/go-outbound/core"

type Config = core.Config
type APIConfig = core.APIConfig
type RetryConfig = core.RetryConfig
type GatewayConfig = core.GatewayConfig

type Credential = core.Credential
type CallRequest = core.CallRequest
type CallResponse = core.CallResponse
type RetryPolicy = core.RetryPolicy
type ResponseMeta = core.ResponseMeta

type Classification = core.Classification
type CallActivityEntry = core.CallActivityEntry
type CallActivityFilter = core.CallActivityFilter
type ActivityRetentionPolicy = core.ActivityRetentionPolicy

type Logger = core.Logger
type LoggerProvider = core.LoggerProvider
type TokenSource = core.TokenSource
type CredentialProvider = core.CredentialProvider
type ActivitySink = core.ActivitySink
type MetricsRecorder = core.MetricsRecorder
type RateLimitPolicy = core.RateLimitPolicy
type HTTPDoer = core.HTTPDoer

func DefaultConfig() Config {
	return core.DefaultConfig()
}

// Classify reports retryability and the user-facing message for any error
// produced by the call layer.
func Classify(err error) Classification {
	return core.Classify(err)
}
