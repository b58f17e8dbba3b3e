package cmd

import (
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/khanhnv2901/secora/internal/ai"
	"github.com/khanhnv2901/secora/internal/browser"
	"github.com/khanhnv2901/secora/internal/checker"
	"github.com/khanhnv2901/secora/internal/engine"
	"github.com/khanhnv2901/secora/internal/fetch"
	"github.com/khanhnv2901/secora/internal/shared/constants"
	"github.com/khanhnv2901/secora/internal/telemetry"
)

const (
	defaultScanTimeout     = 3 * time.Minute
	defaultShutdownTimeout = 30 * time.Second
)

// CLIConfig captures runtime configuration shared across commands.
type CLIConfig struct {
	Scan    ScanRuntimeConfig
	AI      AIRuntimeConfig
	Serve   ServeRuntimeConfig
	Tracing TracingConfig
}

// ScanRuntimeConfig holds the scan engine settings (config keys scan.*).
type ScanRuntimeConfig struct {
	TLSTimeout     time.Duration
	TLSFingerprint string
	DirectTimeout  time.Duration
	RenderTimeout  time.Duration
	Retries        int
	BackoffBase    time.Duration
	SQLProbe       bool
	BlindSQL       bool
	PayloadsFile   string
	ChromePath     string
	Headful        bool
	Timeout        time.Duration
	Concurrency    int
	RateLimit      int
}

// AIRuntimeConfig selects the recommendation provider (config keys ai.*).
type AIRuntimeConfig struct {
	Provider string
	Endpoint string
	Model    string
	APIKey   string
	Timeout  time.Duration
}

// ServeRuntimeConfig configures the API server (config keys serve.*).
type ServeRuntimeConfig struct {
	Addr            string
	AuthToken       string
	Workers         int
	QueueSize       int
	RateLimit       int
	RateBurst       int
	CORSOrigins     []string
	ShutdownTimeout time.Duration
}

// TracingConfig configures OTLP export (config keys tracing.*).
type TracingConfig struct {
	Endpoint string
	Insecure bool
}

var cliConfig = newCLIConfig()

func newCLIConfig() *CLIConfig {
	return &CLIConfig{
		Scan: ScanRuntimeConfig{
			TLSTimeout:     constants.TLSTimeout,
			TLSFingerprint: string(checker.FingerprintStandard),
			DirectTimeout:  constants.DirectTimeout,
			RenderTimeout:  constants.RenderTimeout,
			Retries:        constants.FetchRetries,
			BackoffBase:    constants.BackoffBase,
			SQLProbe:       true,
			Timeout:        defaultScanTimeout,
			Concurrency:    2,
			RateLimit:      1,
		},
		AI: AIRuntimeConfig{
			Provider: string(ai.ProviderOffline),
			Timeout:  constants.AITimeout,
		},
		Serve: ServeRuntimeConfig{
			Addr:            "127.0.0.1:8080",
			Workers:         2,
			QueueSize:       32,
			RateLimit:       10,
			RateBurst:       20,
			ShutdownTimeout: defaultShutdownTimeout,
		},
		Tracing: TracingConfig{Insecure: true},
	}
}

// addScanFlags registers the engine flags shared by scan and serve.
func addScanFlags(fs *pflag.FlagSet) {
	c := &cliConfig.Scan
	fs.DurationVar(&c.TLSTimeout, "tls-timeout", c.TLSTimeout, "TLS handshake timeout")
	fs.StringVar(&c.TLSFingerprint, "tls-fingerprint", c.TLSFingerprint, "TLS client hello: standard or chrome")
	fs.DurationVar(&c.DirectTimeout, "direct-timeout", c.DirectTimeout, "timeout of the plain HTTP fetch")
	fs.DurationVar(&c.RenderTimeout, "render-timeout", c.RenderTimeout, "navigation timeout of the browser fetch")
	fs.IntVar(&c.Retries, "retries", c.Retries, "extra fetch attempts after the first")
	fs.DurationVar(&c.BackoffBase, "backoff-base", c.BackoffBase, "delay before the first retry, doubled each retry")
	fs.BoolVar(&c.SQLProbe, "sql-probe", c.SQLProbe, "probe login forms for SQL injection")
	fs.BoolVar(&c.BlindSQL, "blind-sqli", c.BlindSQL, "run time-based SQL injection checks against the target")
	fs.StringVar(&c.PayloadsFile, "payloads", c.PayloadsFile, "YAML payload library overriding the built-in one")
	fs.StringVar(&c.ChromePath, "chrome-path", c.ChromePath, "Chrome/Chromium executable (default: auto-detect)")
	fs.BoolVar(&c.Headful, "headful", c.Headful, "show the browser window")
	fs.DurationVar(&c.Timeout, "scan-timeout", c.Timeout, "overall timeout per scan")

	a := &cliConfig.AI
	fs.StringVar(&a.Provider, "ai-provider", a.Provider, "recommendation provider: none, offline or openai")
	fs.StringVar(&a.Model, "ai-model", a.Model, "model for the openai provider")
	fs.StringVar(&a.Endpoint, "ai-endpoint", a.Endpoint, "chat completions endpoint for the openai provider")

	fs.StringVar(&cliConfig.Tracing.Endpoint, "otlp-endpoint", cliConfig.Tracing.Endpoint, "OTLP gRPC collector for traces (empty disables tracing)")
}

// applyConfigDefaults merges config file and environment values into the
// runtime config when the user did not explicitly set the corresponding flag.
func applyConfigDefaults(cmd *cobra.Command) {
	flags := cmd.Flags()
	c := cliConfig

	if viper.IsSet("scan.tls_timeout") {
		applyDurationDefault(flags, "tls-timeout", viper.GetDuration("scan.tls_timeout"), func(v time.Duration) { c.Scan.TLSTimeout = v })
	}
	if viper.IsSet("scan.tls_fingerprint") {
		applyStringDefault(flags, "tls-fingerprint", viper.GetString("scan.tls_fingerprint"), func(v string) { c.Scan.TLSFingerprint = v })
	}
	if viper.IsSet("scan.direct_timeout") {
		applyDurationDefault(flags, "direct-timeout", viper.GetDuration("scan.direct_timeout"), func(v time.Duration) { c.Scan.DirectTimeout = v })
	}
	if viper.IsSet("scan.render_timeout") {
		applyDurationDefault(flags, "render-timeout", viper.GetDuration("scan.render_timeout"), func(v time.Duration) { c.Scan.RenderTimeout = v })
	}
	if viper.IsSet("scan.retries") {
		applyIntDefault(flags, "retries", viper.GetInt("scan.retries"), func(v int) { c.Scan.Retries = v })
	}
	if viper.IsSet("scan.backoff_base") {
		applyDurationDefault(flags, "backoff-base", viper.GetDuration("scan.backoff_base"), func(v time.Duration) { c.Scan.BackoffBase = v })
	}
	if viper.IsSet("scan.sql_probe") {
		applyBoolDefault(flags, "sql-probe", viper.GetBool("scan.sql_probe"), func(v bool) { c.Scan.SQLProbe = v })
	}
	if viper.IsSet("scan.blind_sqli") {
		applyBoolDefault(flags, "blind-sqli", viper.GetBool("scan.blind_sqli"), func(v bool) { c.Scan.BlindSQL = v })
	}
	if viper.IsSet("scan.payloads_file") {
		applyStringDefault(flags, "payloads", viper.GetString("scan.payloads_file"), func(v string) { c.Scan.PayloadsFile = v })
	}
	if viper.IsSet("scan.chrome_path") {
		applyStringDefault(flags, "chrome-path", viper.GetString("scan.chrome_path"), func(v string) { c.Scan.ChromePath = v })
	}
	if viper.IsSet("scan.timeout") {
		applyDurationDefault(flags, "scan-timeout", viper.GetDuration("scan.timeout"), func(v time.Duration) { c.Scan.Timeout = v })
	}
	if viper.IsSet("scan.concurrency") {
		applyIntDefault(flags, "concurrency", viper.GetInt("scan.concurrency"), func(v int) { c.Scan.Concurrency = v })
	}
	if viper.IsSet("scan.rate_limit") {
		applyIntDefault(flags, "rate-limit", viper.GetInt("scan.rate_limit"), func(v int) { c.Scan.RateLimit = v })
	}

	if viper.IsSet("ai.provider") {
		applyStringDefault(flags, "ai-provider", viper.GetString("ai.provider"), func(v string) { c.AI.Provider = v })
	}
	if viper.IsSet("ai.endpoint") {
		applyStringDefault(flags, "ai-endpoint", viper.GetString("ai.endpoint"), func(v string) { c.AI.Endpoint = v })
	}
	if viper.IsSet("ai.model") {
		applyStringDefault(flags, "ai-model", viper.GetString("ai.model"), func(v string) { c.AI.Model = v })
	}
	// The API key never comes from a flag.
	if viper.IsSet("ai.api_key") {
		c.AI.APIKey = viper.GetString("ai.api_key")
	}
	if viper.IsSet("ai.timeout") {
		c.AI.Timeout = viper.GetDuration("ai.timeout")
	}

	if viper.IsSet("serve.addr") {
		applyStringDefault(flags, "addr", viper.GetString("serve.addr"), func(v string) { c.Serve.Addr = v })
	}
	if viper.IsSet("serve.auth_token") {
		applyStringDefault(flags, "auth-token", viper.GetString("serve.auth_token"), func(v string) { c.Serve.AuthToken = v })
	}
	if viper.IsSet("serve.workers") {
		applyIntDefault(flags, "workers", viper.GetInt("serve.workers"), func(v int) { c.Serve.Workers = v })
	}
	if viper.IsSet("serve.queue_size") {
		applyIntDefault(flags, "queue-size", viper.GetInt("serve.queue_size"), func(v int) { c.Serve.QueueSize = v })
	}
	if viper.IsSet("serve.rate_limit") {
		applyIntDefault(flags, "api-rate-limit", viper.GetInt("serve.rate_limit"), func(v int) { c.Serve.RateLimit = v })
	}
	if viper.IsSet("serve.rate_burst") {
		applyIntDefault(flags, "api-rate-burst", viper.GetInt("serve.rate_burst"), func(v int) { c.Serve.RateBurst = v })
	}
	if viper.IsSet("serve.cors_origins") {
		c.Serve.CORSOrigins = viper.GetStringSlice("serve.cors_origins")
	}

	if viper.IsSet("tracing.endpoint") {
		applyStringDefault(flags, "otlp-endpoint", viper.GetString("tracing.endpoint"), func(v string) { c.Tracing.Endpoint = v })
	}
	if viper.IsSet("tracing.insecure") {
		c.Tracing.Insecure = viper.GetBool("tracing.insecure")
	}
}

// engineConfig translates the runtime config into a scanner configuration.
func (c *CLIConfig) engineConfig(logger *zap.Logger, metrics *telemetry.Metrics) (engine.Config, error) {
	fp, err := checker.ParseFingerprint(c.Scan.TLSFingerprint)
	if err != nil {
		return engine.Config{}, err
	}

	fcfg := fetch.DefaultConfig()
	fcfg.DirectTimeout = c.Scan.DirectTimeout
	fcfg.RenderTimeout = c.Scan.RenderTimeout
	fcfg.Retries = c.Scan.Retries
	if fcfg.Retries <= 0 {
		fcfg.Retries = fetch.Disabled
	}
	fcfg.BackoffBase = c.Scan.BackoffBase

	return engine.Config{
		TLSTimeout:     c.Scan.TLSTimeout,
		TLSFingerprint: fp,
		Fetch:          fcfg,
		Browser: browser.Options{
			ExecPath: c.Scan.ChromePath,
			Headful:  c.Scan.Headful,
		},
		SQLProbe:     c.Scan.SQLProbe,
		BlindSQL:     c.Scan.BlindSQL,
		PayloadsFile: c.Scan.PayloadsFile,
		AI: ai.Config{
			Provider: ai.Provider(c.AI.Provider),
			Endpoint: c.AI.Endpoint,
			Model:    c.AI.Model,
			APIKey:   c.AI.APIKey,
			Timeout:  c.AI.Timeout,
		},
		Metrics: metrics,
		Logger:  logger,
	}, nil
}

func (c *CLIConfig) tracingOptions() telemetry.TracingOptions {
	return telemetry.TracingOptions{
		Endpoint:    c.Tracing.Endpoint,
		Insecure:    c.Tracing.Insecure,
		ServiceName: "secora",
		Version:     Version,
	}
}

func applyIntDefault(flags *pflag.FlagSet, name string, value int, setter func(int)) {
	if flags == nil || setter == nil {
		return
	}
	flag := flags.Lookup(name)
	if flag != nil && flag.Changed {
		return
	}
	setter(value)
}

func applyBoolDefault(flags *pflag.FlagSet, name string, value bool, setter func(bool)) {
	if flags == nil || setter == nil {
		return
	}
	flag := flags.Lookup(name)
	if flag != nil && flag.Changed {
		return
	}
	setter(value)
}

func applyStringDefault(flags *pflag.FlagSet, name, value string, setter func(string)) {
	if flags == nil || setter == nil {
		return
	}
	flag := flags.Lookup(name)
	if flag != nil && flag.Changed {
		return
	}
	setter(value)
}

func applyDurationDefault(flags *pflag.FlagSet, name string, value time.Duration, setter func(time.Duration)) {
	if flags == nil || setter == nil {
		return
	}
	flag := flags.Lookup(name)
	if flag != nil && flag.Changed {
		return
	}
	setter(value)
}
