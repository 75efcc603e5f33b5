package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

const (
	// EnvPrefix namespaces every environment variable read by Load.
	EnvPrefix = "VINICOLA"

	AppEnvDev  = "dev"
	AppEnvProd = "prod"
)

type Config struct {
	App         AppConfig
	Redis       RedisConfig
	Nuvemshop   NuvemshopConfig
	MercadoPago MercadoPagoConfig
	MelhorEnvio MelhorEnvioConfig
	Shipping    ShippingConfig
	Webhook     WebhookConfig
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.Shipping.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

type AppConfig struct {
	Env          string `envconfig:"VINICOLA_APP_ENV" required:"true"`
	Port         string `envconfig:"VINICOLA_APP_PORT" required:"true"`
	LogLevel     string `envconfig:"VINICOLA_LOG_LEVEL" default:"info"`
	LogWarnStack bool   `envconfig:"VINICOLA_LOG_WARN_STACK" default:"false"`

	// FrontURL hosts the buyer-facing pages the payment flow redirects to.
	FrontURL string `envconfig:"VINICOLA_FRONT_URL" required:"true"`
	// BackURL is this service's public base URL, used for webhook callbacks.
	BackURL string `envconfig:"VINICOLA_BACK_URL" required:"true"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

type RedisConfig struct {
	URL          string        `envconfig:"VINICOLA_REDIS_URL" required:"true"`
	Address      string        `envconfig:"VINICOLA_REDIS_ADDR"`
	Password     string        `envconfig:"VINICOLA_REDIS_PASSWORD"`
	DB           int           `envconfig:"VINICOLA_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"VINICOLA_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"VINICOLA_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"VINICOLA_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"VINICOLA_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"VINICOLA_REDIS_WRITE_TIMEOUT" default:"5s"`
}

type NuvemshopConfig struct {
	StoreID      string        `envconfig:"VINICOLA_NUVEMSHOP_STORE_ID" required:"true"`
	ClientID     string        `envconfig:"VINICOLA_NUVEMSHOP_CLIENT_ID"`
	ClientSecret string        `envconfig:"VINICOLA_NUVEMSHOP_CLIENT_SECRET"`
	UserAgent    string        `envconfig:"VINICOLA_NUVEMSHOP_USER_AGENT" default:"Vinicola API Client"`
	BaseURL      string        `envconfig:"VINICOLA_NUVEMSHOP_BASE_URL" default:"https://api.tiendanube.com/v1"`
	TokenURL     string        `envconfig:"VINICOLA_NUVEMSHOP_TOKEN_URL" default:"https://www.tiendanube.com/apps/authorize/token"`
	Timeout      time.Duration `envconfig:"VINICOLA_NUVEMSHOP_TIMEOUT" default:"10s"`
}

type MercadoPagoConfig struct {
	AccessToken string        `envconfig:"VINICOLA_MP_ACCESS_TOKEN" required:"true"`
	Mode        string        `envconfig:"VINICOLA_MP_MODE" default:"test"`
	BaseURL     string        `envconfig:"VINICOLA_MP_BASE_URL" default:"https://api.mercadopago.com"`
	Timeout     time.Duration `envconfig:"VINICOLA_MP_TIMEOUT" default:"10s"`
}

// IsProd reports whether live checkout redirects and payer identification apply.
func (m MercadoPagoConfig) IsProd() bool {
	return strings.EqualFold(strings.TrimSpace(m.Mode), AppEnvProd)
}

type MelhorEnvioConfig struct {
	Token          string        `envconfig:"VINICOLA_MELHOR_ENVIO_TOKEN"`
	FromPostalCode string        `envconfig:"VINICOLA_MELHOR_ENVIO_FROM_POSTAL_CODE" default:"01310100"`
	UserAgent      string        `envconfig:"VINICOLA_MELHOR_ENVIO_USER_AGENT" default:"Vinicola (contato@adegadigital.com.br)"`
	BaseURL        string        `envconfig:"VINICOLA_MELHOR_ENVIO_BASE_URL" default:"https://melhorenvio.com.br/api/v2/me"`
	Timeout        time.Duration `envconfig:"VINICOLA_MELHOR_ENVIO_TIMEOUT" default:"10s"`
}

const (
	ShippingStrategyCheapest             = "cheapest"
	ShippingStrategyCarrierCheapest      = "carrier-cheapest"
	ShippingStrategyCarrierMostExpensive = "carrier-most-expensive"
)

type ShippingConfig struct {
	// Strategy picks the quote used at checkout. The business owners have
	// flip-flopped between cheapest-overall and carrier-pinned selection, so
	// it stays configurable instead of hardcoded.
	Strategy  string `envconfig:"VINICOLA_SHIPPING_STRATEGY" default:"cheapest"`
	CarrierID int64  `envconfig:"VINICOLA_SHIPPING_CARRIER_ID" default:"2"`
	// Required aborts checkout when no shipping quote can be obtained.
	Required bool `envconfig:"VINICOLA_SHIPPING_REQUIRED" default:"false"`
}

func (s ShippingConfig) validate() error {
	switch s.Strategy {
	case ShippingStrategyCheapest, ShippingStrategyCarrierCheapest, ShippingStrategyCarrierMostExpensive:
		return nil
	}
	return fmt.Errorf("unknown shipping strategy %q", s.Strategy)
}

type WebhookConfig struct {
	// DedupTTL bounds how long a processed payment id suppresses redeliveries.
	DedupTTL time.Duration `envconfig:"VINICOLA_WEBHOOK_DEDUP_TTL" default:"1h"`
}
