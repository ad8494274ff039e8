// internal/infra/config/config.go
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	mintdom "blockto/internal/domain/mint"
)

// Storage backends for metadata upload.
const (
	StorageLighthouse = "lighthouse"
	StorageIrys       = "irys"
	StorageGCS        = "gcs"
)

// Incident stores.
const (
	IncidentStoreNone      = "none"
	IncidentStoreFirestore = "firestore"
	IncidentStorePostgres  = "postgres"
)

var ErrInvalidConfig = errors.New("config: invalid")

// Config はアプリケーション全体の環境変数設定を保持します。
type Config struct {
	Port     string
	GCPCreds string

	// GCP
	FirestoreProjectID string
	FirebaseProjectID  string

	// ★ メタデータ保存先 (lighthouse | irys | gcs)
	StorageBackend     string
	StorageGatewayBase string
	StorageAPIKey      string
	LighthouseAPIURL   string
	ArweaveBaseURL     string
	ArweaveAPIKey      string
	MetadataGCSBucket  string

	// ★ カストディアル鍵: env か Secret Manager のどちらか
	CustodialMnemonic   string
	CustodialSecretName string

	// Solana
	SolanaNetwork string
	SolanaRPCURL  string

	// Collection
	CollectionName       string
	TokenSymbol          string
	SellerFeeBasisPoints uint16

	// Polling
	FinalityTimeout      time.Duration
	FinalityPollInterval time.Duration
	FinalityMaxInterval  time.Duration
	ResolveMaxAttempts   int
	ResolveInterval      time.Duration
	MintTimeout          time.Duration

	// Incidents / alerts
	IncidentStore  string
	DatabaseURL    string
	SendGridAPIKey string
	SendGridFrom   string
	AlertEmailTo   string

	// HTTP
	MintRateLimitRPS   float64
	MintRateLimitBurst int
	AllowedOrigin      string
	DevWalletHeader    bool
}

// Load は環境変数を読み込み Config を返します。
func Load() *Config {
	defaultProject := getenvDefault("GCP_PROJECT_ID", "")

	return &Config{
		Port:     getenvDefault("PORT", "8080"),
		GCPCreds: os.Getenv("GOOGLE_APPLICATION_CREDENTIALS"),

		FirestoreProjectID: getenvDefault("FIRESTORE_PROJECT_ID", defaultProject),
		FirebaseProjectID:  getenvDefault("FIREBASE_PROJECT_ID", defaultProject),

		StorageBackend: strings.ToLower(getenvDefault("STORAGE_BACKEND", StorageLighthouse)),
		// 旧名 LIGHTHOUSE_GATEWAY / LIGHTHOUSE_API_KEY も受け付ける
		StorageGatewayBase: firstEnv("STORAGE_GATEWAY_BASE_URL", "LIGHTHOUSE_GATEWAY"),
		StorageAPIKey:      firstEnv("STORAGE_API_KEY", "LIGHTHOUSE_API_KEY"),
		LighthouseAPIURL:   getenvDefault("LIGHTHOUSE_API_URL", "https://node.lighthouse.storage"),
		ArweaveBaseURL:     os.Getenv("ARWEAVE_BASE_URL"),
		ArweaveAPIKey:      os.Getenv("ARWEAVE_API_KEY"),
		MetadataGCSBucket:  os.Getenv("METADATA_GCS_BUCKET"),

		CustodialMnemonic:   firstEnv("CUSTODIAL_MNEMONIC", "BLOCKTO_MNEMONIC"),
		CustodialSecretName: os.Getenv("CUSTODIAL_SECRET_NAME"),

		SolanaNetwork: strings.ToLower(getenvDefault("SOLANA_NETWORK", "devnet")),
		SolanaRPCURL:  os.Getenv("SOLANA_RPC_URL"),

		CollectionName:       getenvDefault("COLLECTION_NAME", "Blockto"),
		TokenSymbol:          getenvDefault("TOKEN_SYMBOL", "BLKTO"),
		SellerFeeBasisPoints: uint16(getenvInt("SELLER_FEE_BPS", 0)),

		FinalityTimeout:      getenvDuration("FINALITY_TIMEOUT", 90*time.Second),
		FinalityPollInterval: getenvDuration("FINALITY_POLL_INTERVAL", 500*time.Millisecond),
		FinalityMaxInterval:  getenvDuration("FINALITY_MAX_INTERVAL", 5*time.Second),
		ResolveMaxAttempts:   getenvInt("RESOLVE_MAX_ATTEMPTS", 10),
		ResolveInterval:      getenvDuration("RESOLVE_INTERVAL", time.Second),
		MintTimeout:          getenvDuration("MINT_TIMEOUT", 5*time.Minute),

		IncidentStore:  strings.ToLower(getenvDefault("INCIDENT_STORE", IncidentStoreNone)),
		DatabaseURL:    os.Getenv("DATABASE_URL"),
		SendGridAPIKey: os.Getenv("SENDGRID_API_KEY"),
		SendGridFrom:   getenvDefault("SENDGRID_FROM", "no-reply@blockto.example"),
		AlertEmailTo:   os.Getenv("ALERT_EMAIL_TO"),

		MintRateLimitRPS:   getenvFloat("MINT_RATE_LIMIT_RPS", 0.2),
		MintRateLimitBurst: getenvInt("MINT_RATE_LIMIT_BURST", 2),
		AllowedOrigin:      getenvDefault("CORS_ALLOWED_ORIGIN", "*"),
		DevWalletHeader:    getenvBool("DEV_WALLET_HEADER", false),
	}
}

// Validate checks the settings the service cannot start without.
func (c *Config) Validate() error {
	if c == nil {
		return fmt.Errorf("%w: nil config", ErrInvalidConfig)
	}
	var problems []string

	switch c.StorageBackend {
	case StorageLighthouse:
		if c.StorageAPIKey == "" {
			problems = append(problems, "STORAGE_API_KEY (LIGHTHOUSE_API_KEY) is required for lighthouse")
		}
	case StorageIrys:
		if c.ArweaveBaseURL == "" {
			problems = append(problems, "ARWEAVE_BASE_URL is required for irys")
		}
	case StorageGCS:
		if c.MetadataGCSBucket == "" {
			problems = append(problems, "METADATA_GCS_BUCKET is required for gcs")
		}
	default:
		problems = append(problems, "unknown STORAGE_BACKEND "+c.StorageBackend)
	}
	if c.StorageBackend != StorageGCS && c.StorageGatewayBase == "" {
		problems = append(problems, "STORAGE_GATEWAY_BASE_URL (LIGHTHOUSE_GATEWAY) is required")
	}
	if err := mintdom.ValidateGatewayBase(c.metadataGatewayBase()); err != nil {
		problems = append(problems, "metadata gateway base is too long for a 200 byte uri")
	}

	if c.CustodialMnemonic == "" && c.CustodialSecretName == "" {
		problems = append(problems, "CUSTODIAL_MNEMONIC (BLOCKTO_MNEMONIC) or CUSTODIAL_SECRET_NAME is required")
	}

	switch c.SolanaNetwork {
	case "devnet", "testnet", "mainnet", "mainnet-beta", "localnet":
	default:
		problems = append(problems, "unknown SOLANA_NETWORK "+c.SolanaNetwork)
	}

	switch c.IncidentStore {
	case IncidentStoreNone, IncidentStoreFirestore:
	case IncidentStorePostgres:
		if c.DatabaseURL == "" {
			problems = append(problems, "DATABASE_URL is required for INCIDENT_STORE=postgres")
		}
	default:
		problems = append(problems, "unknown INCIDENT_STORE "+c.IncidentStore)
	}

	if c.FinalityTimeout <= 0 || c.FinalityPollInterval <= 0 {
		problems = append(problems, "finality timeout/poll interval must be positive")
	}
	if c.FinalityMaxInterval < c.FinalityPollInterval {
		problems = append(problems, "FINALITY_MAX_INTERVAL must be at least FINALITY_POLL_INTERVAL")
	}
	if c.ResolveMaxAttempts <= 0 {
		problems = append(problems, "RESOLVE_MAX_ATTEMPTS must be positive")
	}
	if c.ResolveInterval <= 0 {
		problems = append(problems, "RESOLVE_INTERVAL must be positive")
	}
	if err := mintdom.ValidateSymbol(c.TokenSymbol); err != nil {
		problems = append(problems, "TOKEN_SYMBOL must be at most 10 bytes")
	}

	if len(problems) > 0 {
		return fmt.Errorf("%w: %s", ErrInvalidConfig, strings.Join(problems, "; "))
	}
	return nil
}

// metadataGatewayBase is the URL prefix metadata URIs are built on.
// gcs は bucket の公開 URL 配下 (metadata/<sha256>) になる
func (c *Config) metadataGatewayBase() string {
	if c.StorageBackend == StorageGCS {
		bucket := strings.TrimSpace(c.MetadataGCSBucket)
		if bucket == "" {
			return ""
		}
		return "https://storage.googleapis.com/" + bucket + "/metadata"
	}
	return c.StorageGatewayBase
}

func getenvDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func firstEnv(keys ...string) string {
	for _, k := range keys {
		if v := strings.TrimSpace(os.Getenv(k)); v != "" {
			return v
		}
	}
	return ""
}

func getenvInt(key string, def int) int {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

func getenvFloat(key string, def float64) float64 {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return def
	}
	return f
}

func getenvBool(key string, def bool) bool {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}

func getenvDuration(key string, def time.Duration) time.Duration {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return def
	}
	return d
}
