// internal/platform/di/container.go
package di

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"

	secretmanager "cloud.google.com/go/secretmanager/apiv1"
	"cloud.google.com/go/storage"
	firebase "firebase.google.com/go/v4"
	"google.golang.org/api/option"

	httpin "blockto/internal/adapters/in/http"
	"blockto/internal/adapters/in/http/middleware"
	dbout "blockto/internal/adapters/out/db"
	fsout "blockto/internal/adapters/out/firestore"
	gcsout "blockto/internal/adapters/out/gcs"
	mailout "blockto/internal/adapters/out/mail"
	usecase "blockto/internal/application/usecase"
	ledgerdom "blockto/internal/domain/ledger"
	mintdom "blockto/internal/domain/mint"
	transferdom "blockto/internal/domain/transfer"
	arweaveinfra "blockto/internal/infra/arweave"
	appcfg "blockto/internal/infra/config"
	"blockto/internal/infra/database"
	firestoreinfra "blockto/internal/infra/firestore"
	lighthouseinfra "blockto/internal/infra/lighthouse"
	"blockto/internal/infra/metadata"
	solanainfra "blockto/internal/infra/solana"
	"blockto/internal/platform/observability"
	"blockto/internal/platform/ratelimiter"
)

// 開発時に Firebase を通さず wallet を指定するヘッダ（DEV_WALLET_HEADER=true の時のみ有効）
const devWalletHeader = "X-Wallet-Address"

// Container
// 責任と機能:
// - Config を読み、外部クライアント（Secret Manager / GCS / Firestore / Firebase / PostgreSQL）を初期化する
// - port 実装（publisher / signer / submitter / resolver / incident store / alerter）を組み立てて usecase に注入する
// - 任意機能（incident store, alert mail, firebase auth）は失敗しても WARN ログで続行する
// - Close() で取得したリソースを逆順に解放する
type Container struct {
	Config *appcfg.Config

	Metrics   *observability.Metrics
	Signer    *solanainfra.CustodialSigner
	Submitter *solanainfra.Submitter
	Resolver  *solanainfra.AssetResolver
	Publisher *metadata.Publisher
	MintUC    *usecase.MintTransferUsecase

	auth    *middleware.WalletAuthMiddleware
	limiter *ratelimiter.KeyedLimiter

	closers []func() error
}

// NewContainer builds everything from the environment.
func NewContainer(ctx context.Context) (*Container, error) {
	cfg := appcfg.Load()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return NewContainerWithConfig(ctx, cfg)
}

func NewContainerWithConfig(ctx context.Context, cfg *appcfg.Config) (*Container, error) {
	if cfg == nil {
		return nil, fmt.Errorf("%w: nil config", appcfg.ErrInvalidConfig)
	}
	c := &Container{Config: cfg, Metrics: observability.NewMetrics("blockto")}

	// 1. Metadata publisher
	publisher, err := c.buildPublisher(ctx)
	if err != nil {
		c.Close()
		return nil, err
	}
	c.Publisher = publisher

	// 2. Custodial signer（失敗してもサービスは起動し、各リクエストが KeyDerivationError になる）
	var signer usecase.CustodialSigner
	if s, err := c.buildSigner(ctx); err != nil {
		log.Printf("[container] WARN: custodial signer unavailable: %v", err)
		signer = unavailableSigner{err: err}
	} else {
		c.Signer = s
		c.closers = append(c.closers, func() error { s.Close(); return nil })
		signer = s
	}

	// 3. Solana submitter / resolver
	endpoint := solanainfra.EndpointForNetwork(cfg.SolanaNetwork, cfg.SolanaRPCURL)
	reader := solanainfra.NewJSONRPCClient(endpoint)
	c.Submitter = solanainfra.NewSubmitter(
		solanainfra.NewSDKLedgerWriter(endpoint),
		reader,
		solanainfra.PollConfig{
			Timeout:         cfg.FinalityTimeout,
			InitialInterval: cfg.FinalityPollInterval,
			MaxInterval:     cfg.FinalityMaxInterval,
		},
		cfg.SellerFeeBasisPoints,
	)
	c.Submitter.Observer = c.Metrics
	c.Resolver = solanainfra.NewAssetResolver(reader, cfg.ResolveMaxAttempts, cfg.ResolveInterval)
	log.Printf("[container] solana network=%s endpoint=%s", cfg.SolanaNetwork, endpoint)

	// 4. Usecase
	c.MintUC = usecase.NewMintTransferUsecase(publisher, signer, c.Submitter, c.Resolver, cfg.TokenSymbol).
		WithObserver(c.Metrics)

	// 5. Incident store + alert mail (optional)
	incidents := c.buildIncidentStore(ctx)
	alerter := c.buildAlerter()
	if incidents != nil || alerter != nil {
		c.MintUC.WithIncidents(incidents, alerter)
	}

	// 6. HTTP: auth / rate limit
	c.auth = &middleware.WalletAuthMiddleware{}
	if fbAuth := c.buildFirebaseAuth(ctx); fbAuth != nil {
		c.auth.Verifier = fbAuth
	}
	if cfg.DevWalletHeader {
		c.auth.DevHeader = devWalletHeader
		log.Printf("[container] WARN: dev wallet header %s enabled", devWalletHeader)
	}
	c.limiter = ratelimiter.New(cfg.MintRateLimitRPS, cfg.MintRateLimitBurst, 0)

	return c, nil
}

func (c *Container) clientOptions() []option.ClientOption {
	if c.Config.GCPCreds == "" {
		return nil
	}
	return []option.ClientOption{option.WithCredentialsFile(c.Config.GCPCreds)}
}

func (c *Container) buildPublisher(ctx context.Context) (*metadata.Publisher, error) {
	cfg := c.Config
	switch cfg.StorageBackend {
	case appcfg.StorageLighthouse:
		up := lighthouseinfra.NewHTTPUploader(cfg.LighthouseAPIURL, cfg.StorageAPIKey)
		log.Printf("[container] metadata storage=lighthouse api=%s", cfg.LighthouseAPIURL)
		return metadata.NewPublisher(up, cfg.StorageGatewayBase, cfg.StorageGatewayBase, cfg.CollectionName, cfg.TokenSymbol), nil

	case appcfg.StorageIrys:
		up := arweaveinfra.NewHTTPUploader(cfg.ArweaveBaseURL, cfg.ArweaveAPIKey)
		log.Printf("[container] metadata storage=irys baseURL=%s", cfg.ArweaveBaseURL)
		return metadata.NewPublisher(up, cfg.StorageGatewayBase, cfg.StorageGatewayBase, cfg.CollectionName, cfg.TokenSymbol), nil

	case appcfg.StorageGCS:
		gcsClient, err := storage.NewClient(ctx, c.clientOptions()...)
		if err != nil {
			return nil, fmt.Errorf("gcs client: %w", err)
		}
		c.closers = append(c.closers, gcsClient.Close)
		repo := gcsout.NewMetadataRepositoryGCS(gcsClient, cfg.MetadataGCSBucket)
		imageGateway := cfg.StorageGatewayBase
		if imageGateway == "" {
			imageGateway = repo.GatewayBase()
		}
		log.Printf("[container] metadata storage=gcs bucket=%s", cfg.MetadataGCSBucket)
		return metadata.NewPublisher(repo, imageGateway, repo.GatewayBase(), cfg.CollectionName, cfg.TokenSymbol), nil
	}
	return nil, fmt.Errorf("%w: unknown storage backend %q", appcfg.ErrInvalidConfig, cfg.StorageBackend)
}

func (c *Container) buildSigner(ctx context.Context) (*solanainfra.CustodialSigner, error) {
	cfg := c.Config
	if cfg.CustodialMnemonic != "" {
		return solanainfra.NewCustodialSigner(ctx, solanainfra.EnvSeedSource{Mnemonic: cfg.CustodialMnemonic})
	}

	smClient, err := secretmanager.NewClient(ctx, c.clientOptions()...)
	if err != nil {
		return nil, fmt.Errorf("%w: secretmanager client: %v", mintdom.ErrKeyDerivation, err)
	}
	defer smClient.Close()

	name := cfg.CustodialSecretName
	if !strings.HasPrefix(name, "projects/") && cfg.FirestoreProjectID != "" {
		name = fmt.Sprintf("projects/%s/secrets/%s", cfg.FirestoreProjectID, name)
	}
	return solanainfra.NewCustodialSigner(ctx, solanainfra.NewSecretManagerSeedSource(smClient, name))
}

func (c *Container) buildIncidentStore(ctx context.Context) transferdom.IncidentRepository {
	cfg := c.Config
	switch cfg.IncidentStore {
	case appcfg.IncidentStoreFirestore:
		cw, err := firestoreinfra.NewClient(ctx, cfg.FirestoreProjectID, cfg.GCPCreds)
		if err != nil {
			log.Printf("[container] WARN: firestore incident store disabled: %v", err)
			return nil
		}
		c.closers = append(c.closers, cw.Close)
		return fsout.NewIncidentRepositoryFS(cw.Client)

	case appcfg.IncidentStorePostgres:
		db, err := database.NewConnection(ctx, cfg.DatabaseURL)
		if err != nil {
			log.Printf("[container] WARN: postgres incident store disabled: %v", err)
			return nil
		}
		c.closers = append(c.closers, db.Close)
		repo := dbout.NewIncidentRepositoryPG(db.Client)
		if err := repo.EnsureSchema(ctx); err != nil {
			log.Printf("[container] WARN: %v", err)
		}
		return repo
	}
	log.Printf("[container] incident store disabled (INCIDENT_STORE=%s)", cfg.IncidentStore)
	return nil
}

func (c *Container) buildAlerter() usecase.IncidentAlerter {
	cfg := c.Config
	if cfg.SendGridAPIKey == "" || cfg.AlertEmailTo == "" {
		log.Printf("[container] alert mail disabled (SENDGRID_API_KEY or ALERT_EMAIL_TO empty)")
		return nil
	}
	return mailout.NewStrandedAlertMailer(
		mailout.NewSendGridClient(cfg.SendGridAPIKey),
		cfg.SendGridFrom,
		cfg.AlertEmailTo,
		cfg.SolanaNetwork,
	)
}

func (c *Container) buildFirebaseAuth(ctx context.Context) *middleware.FirebaseAuthClient {
	projectID := c.Config.FirebaseProjectID
	if projectID == "" {
		log.Printf("[container] WARN: FIREBASE_PROJECT_ID empty; bearer tokens will be refused")
		return nil
	}
	app, err := firebase.NewApp(ctx, &firebase.Config{ProjectID: projectID}, c.clientOptions()...)
	if err != nil {
		log.Printf("[container] WARN: firebase app init failed: %v", err)
		return nil
	}
	authClient, err := app.Auth(ctx)
	if err != nil {
		log.Printf("[container] WARN: firebase auth init failed: %v", err)
		return nil
	}
	log.Printf("[container] Firebase Auth initialized")
	return authClient
}

// RouterDeps wires the HTTP layer.
func (c *Container) RouterDeps() httpin.RouterDeps {
	deps := httpin.RouterDeps{
		MintTimeout:   c.Config.MintTimeout,
		Auth:          c.auth,
		OnRateLimited: c.Metrics.ObserveRateLimited,
		Metrics:       c.Metrics.Handler(),
		AllowedOrigin: c.Config.AllowedOrigin,
	}
	// typed nil を interface に入れない
	if c.MintUC != nil {
		deps.MintUC = c.MintUC
	}
	if c.limiter != nil {
		deps.MintLimiter = c.limiter
	}
	return deps
}

// Close releases clients in reverse order and wipes the seed.
func (c *Container) Close() {
	if c == nil {
		return
	}
	for i := len(c.closers) - 1; i >= 0; i-- {
		if err := c.closers[i](); err != nil {
			log.Printf("[container] close error: %v", err)
		}
	}
	c.closers = nil
}

// unavailableSigner reports the boot-time derivation failure on every call.
type unavailableSigner struct{ err error }

func (s unavailableSigner) DeriveAccount(context.Context) (ledgerdom.SigningAccount, error) {
	if errors.Is(s.err, mintdom.ErrKeyDerivation) {
		return nil, s.err
	}
	return nil, fmt.Errorf("%w: %v", mintdom.ErrKeyDerivation, s.err)
}
