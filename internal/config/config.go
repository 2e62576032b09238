package config

// Config is the root configuration for the tgmirror relay.
type Config struct {
	Telegram  TelegramConfig  `json:"telegram"`
	Relay     RelayConfig     `json:"relay"`
	Rewrite   RewriteConfig   `json:"rewrite,omitempty"`
	Webhook   WebhookConfig   `json:"webhook,omitempty"`
	Watermark WatermarkConfig `json:"watermark,omitempty"`
	Telemetry TelemetryConfig `json:"telemetry,omitempty"`
}

// TelegramConfig configures the Bot API client.
// Token is NEVER read from config.json (secret) — only from env TGMIRROR_TELEGRAM_TOKEN.
type TelegramConfig struct {
	Token string `json:"-"`               // from env TGMIRROR_TELEGRAM_TOKEN only
	Proxy string `json:"proxy,omitempty"` // optional HTTP proxy URL
}

// RelayConfig configures routing and delivery behaviour.
type RelayConfig struct {
	// Routes holds comma-separated route entries in the form
	// "sourceId[:sourceTopicId]:targetId[:targetTopicId]" (topic id 0 = unset).
	Routes string `json:"routes,omitempty"`
	// SearchRoutes holds comma-separated keyword entries in the form
	// "s-<keyword>:sourceId:sourceTopicId:targetId".
	SearchRoutes string `json:"search_routes,omitempty"`
	// SourceChannel/TargetChannel are the legacy single-pair fallback,
	// used only when Routes and SearchRoutes are both empty.
	SourceChannel string `json:"source_channel,omitempty"`
	TargetChannel string `json:"target_channel,omitempty"`

	MessageDelayMs  int `json:"message_delay_ms,omitempty"`  // pause between outbound sends (default 2000)
	MaxRetries      int `json:"max_retries,omitempty"`       // rate-limit retries per unit (default 3)
	AlbumDebounceMs int `json:"album_debounce_ms,omitempty"` // album quiescence window (default 1000)
	ReadyTimeoutSec int `json:"ready_timeout_sec,omitempty"` // client readiness handshake timeout (default 30)

	// FooterOverrides maps a target chat id (decimal string) to fixed footer
	// lines appended instead of converted button links for that target.
	FooterOverrides map[string][]string `json:"footer_overrides,omitempty"`

	// DisableButtons suppresses the button-to-link-line conversion entirely.
	// Footer overrides still apply.
	DisableButtons bool `json:"disable_buttons,omitempty"`
}

// RewriteRule is one literal, case-insensitive substitution applied to
// outbound text, in order.
type RewriteRule struct {
	From string `json:"from"`
	To   string `json:"to"`
}

// RewriteConfig configures outbound text substitutions.
type RewriteConfig struct {
	Rules []RewriteRule `json:"rules,omitempty"`
}

// WebhookConfig configures the fire-and-forget delivery notifier.
type WebhookConfig struct {
	URL string `json:"url,omitempty"`
	// Targets is the allow-set of "chatId" or "chatId:topicId" keys that
	// trigger a notification when a message lands there.
	Targets    []string `json:"targets,omitempty"`
	TimeoutSec int      `json:"timeout_sec,omitempty"` // per-request timeout (default 5)
}

// WatermarkConfig configures photo watermark stripping.
type WatermarkConfig struct {
	Enabled      bool `json:"enabled,omitempty"`
	CropBottomPx int  `json:"crop_bottom_px,omitempty"` // pixels cut off the bottom (default 48)
}

// TelemetryConfig configures OTLP trace export.
type TelemetryConfig struct {
	Enabled     bool   `json:"enabled,omitempty"`
	Endpoint    string `json:"endpoint,omitempty"`     // OTLP endpoint host:port
	Protocol    string `json:"protocol,omitempty"`     // "grpc" (default) or "http"
	ServiceName string `json:"service_name,omitempty"` // default "tgmirror"
	Insecure    bool   `json:"insecure,omitempty"`
}
