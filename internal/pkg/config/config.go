package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const (
	StoreDriverPostgres = "postgres"
	StoreDriverSupabase = "supabase"
	StoreDriverMemory   = "memory"

	AuthProviderPrivy    = "privy"
	AuthProviderFirebase = "firebase"
)

type Config struct {
	Port           string
	LogLevel       string
	AllowedOrigins []string
	ChainId        int64
	ChainRpcUrl    string
	ChainTimeout   time.Duration
	PubSubProject  string
	Store          StoreConfig
	Custody        CustodyConfig
	Auth           AuthConfig
}

type StoreConfig struct {
	Driver      string
	DbUrl       string
	SupabaseUrl string
	SupabaseKey string
	Timeout     time.Duration
	AutoMigrate bool
}

type CustodyConfig struct {
	BaseUrl                 string
	AppId                   string
	AppSecret               string
	AuthorizationKey        string
	AuthorizationKmsKey     string
	AuthorizationKmsKeyRing string
	Timeout                 time.Duration
}

type AuthConfig struct {
	Provider             string
	PrivyVerificationKey string
	GoogleProjectApiKey  string
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("PORT", ":8080")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("STORE_DRIVER", StoreDriverPostgres)
	v.SetDefault("CHAIN_TIMEOUT", "10s")
	v.SetDefault("STORE_TIMEOUT", "10s")
	v.SetDefault("DB_AUTO_MIGRATE", true)
	v.SetDefault("CUSTODY_TIMEOUT", "30s")
	v.SetDefault("AUTH_PROVIDER", AuthProviderPrivy)
}

// Load reads configuration from v and reports every missing or invalid key at
// once.
func Load(v *viper.Viper) (*Config, error) {
	setDefaults(v)

	cfg := &Config{
		Port:           v.GetString("PORT"),
		LogLevel:       v.GetString("LOG_LEVEL"),
		AllowedOrigins: splitList(v.GetString("CORS_ALLOWED_ORIGINS")),
		ChainId:        v.GetInt64("CHAIN_ID"),
		ChainRpcUrl:    v.GetString("CHAIN_RPC_URL"),
		ChainTimeout:   v.GetDuration("CHAIN_TIMEOUT"),
		PubSubProject:  v.GetString("PUBSUB_PROJECT_ID"),
		Store: StoreConfig{
			Driver:      strings.ToLower(v.GetString("STORE_DRIVER")),
			DbUrl:       v.GetString("DB_URL"),
			SupabaseUrl: v.GetString("SUPABASE_URL"),
			SupabaseKey: v.GetString("SUPABASE_SERVICE_ROLE_KEY"),
			Timeout:     v.GetDuration("STORE_TIMEOUT"),
			AutoMigrate: v.GetBool("DB_AUTO_MIGRATE"),
		},
		Custody: CustodyConfig{
			BaseUrl:                 v.GetString("PRIVY_API_URL"),
			AppId:                   v.GetString("PRIVY_APP_ID"),
			AppSecret:               v.GetString("PRIVY_APP_SECRET"),
			AuthorizationKey:        v.GetString("PRIVY_AUTHORIZATION_KEY"),
			AuthorizationKmsKey:     v.GetString("PRIVY_AUTHORIZATION_KMS_KEY"),
			AuthorizationKmsKeyRing: v.GetString("PRIVY_AUTHORIZATION_KMS_KEY_RING"),
			Timeout:                 v.GetDuration("CUSTODY_TIMEOUT"),
		},
		Auth: AuthConfig{
			Provider:             strings.ToLower(v.GetString("AUTH_PROVIDER")),
			PrivyVerificationKey: v.GetString("PRIVY_VERIFICATION_KEY"),
			GoogleProjectApiKey:  v.GetString("GOOGLE_PROJECT_API_KEY"),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	var errs []error
	required := func(key string, value string) {
		if strings.TrimSpace(value) == "" {
			errs = append(errs, fmt.Errorf("%s is required", key))
		}
	}

	required("PRIVY_APP_ID", c.Custody.AppId)
	required("PRIVY_APP_SECRET", c.Custody.AppSecret)
	if c.Custody.AuthorizationKey == "" && c.Custody.AuthorizationKmsKey == "" && c.Custody.AuthorizationKmsKeyRing == "" {
		errs = append(errs, errors.New("one of PRIVY_AUTHORIZATION_KEY, PRIVY_AUTHORIZATION_KMS_KEY or PRIVY_AUTHORIZATION_KMS_KEY_RING is required"))
	}
	if c.ChainId <= 0 {
		errs = append(errs, errors.New("CHAIN_ID must be a positive integer"))
	}
	required("CHAIN_RPC_URL", c.ChainRpcUrl)
	if c.ChainTimeout <= 0 {
		errs = append(errs, errors.New("CHAIN_TIMEOUT must be a positive duration"))
	}

	switch c.Store.Driver {
	case StoreDriverPostgres:
		required("DB_URL", c.Store.DbUrl)
	case StoreDriverSupabase:
		required("SUPABASE_URL", c.Store.SupabaseUrl)
		required("SUPABASE_SERVICE_ROLE_KEY", c.Store.SupabaseKey)
	case StoreDriverMemory:
	default:
		errs = append(errs, fmt.Errorf("STORE_DRIVER %q is not one of postgres, supabase, memory", c.Store.Driver))
	}

	switch c.Auth.Provider {
	case AuthProviderPrivy:
		required("PRIVY_VERIFICATION_KEY", c.Auth.PrivyVerificationKey)
	case AuthProviderFirebase:
	default:
		errs = append(errs, fmt.Errorf("AUTH_PROVIDER %q is not one of privy, firebase", c.Auth.Provider))
	}

	return errors.Join(errs...)
}

func splitList(value string) []string {
	var items []string
	for _, item := range strings.Split(value, ",") {
		if item = strings.TrimSpace(item); item != "" {
			items = append(items, item)
		}
	}
	return items
}
