package initializer

import (
	"context"
	"time"

	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/filswan/go-swan-lib/logs"
	"github.com/gin-gonic/gin"
	"github.com/gomodule/redigo/redis"
	"golang.org/x/xerrors"

	"github.com/lagrangedao/go-computing-market/conf"
	"github.com/lagrangedao/go-computing-market/constants"
	"github.com/lagrangedao/go-computing-market/internal/computing"
	"github.com/lagrangedao/go-computing-market/internal/store"
	"github.com/lagrangedao/go-computing-market/wallet"
	"github.com/lagrangedao/go-computing-market/wallet/contract/core"
)

// Market is the wired market node.
type Market struct {
	Config    *conf.MarketNode
	Store     store.Store
	Lifecycle *computing.LifecycleService
	Engine    *computing.ReconcileEngine
	Sync      *computing.SyncDriver
	Nodes     *computing.NodeService
	Stats     *computing.StatsService
	Celery    *computing.CeleryService

	chain         *ethclient.Client
	pool          *redis.Pool
	celeryStarted bool
}

func OpenStore(cfg *conf.MarketNode) (store.Store, error) {
	switch cfg.DB.Backend {
	case conf.BackendPostgres:
		return store.OpenPostgres(cfg.DB.PostgresUrl, cfg.DB.MaxConnections)
	case conf.BackendLevelDB:
		return store.OpenLevelDB(cfg.DB.Path)
	}
	return nil, xerrors.Errorf("unsupported db backend: %s", cfg.DB.Backend)
}

// ProjectInit loads the repo config and wires the market node.
func ProjectInit(repoPath string) (*Market, error) {
	if err := conf.InitConfig(repoPath); err != nil {
		return nil, err
	}
	return NewMarket(context.Background(), conf.GetConfig())
}

func NewMarket(ctx context.Context, cfg *conf.MarketNode) (*Market, error) {
	s, err := OpenStore(cfg)
	if err != nil {
		return nil, err
	}
	m := &Market{Config: cfg, Store: s}

	policy := computing.PolicyFromConfig(cfg.Policy)
	m.Lifecycle = computing.NewLifecycleService(s, policy)
	m.Engine = computing.NewReconcileEngine(s, policy)
	m.Nodes = computing.NewNodeService(s)
	m.Stats = computing.NewStatsService(s)

	var source computing.EventSource
	if cfg.ChainEnabled() {
		m.chain, err = ethclient.DialContext(ctx, cfg.Chain.RpcUrl)
		if err != nil {
			m.Close()
			return nil, xerrors.Errorf("dial chain rpc %s: %w", cfg.Chain.RpcUrl, err)
		}
		stub, err := core.NewCoreStub(m.chain, cfg.Chain.CoreContract)
		if err != nil {
			m.Close()
			return nil, err
		}
		source = computing.NewChainEventSource(stub, cfg.Chain.RewardDecimals)
		logs.GetLogger().Infof("syncing JobCreated events from contract %s", cfg.Chain.CoreContract)
	} else {
		logs.GetLogger().Warn("no chain configured, sync passes will report zeros")
	}

	var lease computing.Lease
	if cfg.Redis.Url != "" {
		m.pool = computing.NewRedisPool(cfg.Redis.Url, cfg.Redis.Password)
		lease = computing.NewRedisLease(m.pool, constants.REDIS_SYNC_LEASE_KEY)
	} else {
		lease = computing.NewLocalLease()
	}
	m.Sync = computing.NewSyncDriver(source, m.Engine, s, lease, computing.SyncConfigFromConfig(cfg))

	if m.pool != nil {
		m.Celery, err = computing.NewCeleryService(m.pool)
		if err != nil {
			m.Close()
			return nil, err
		}
		m.Celery.RegisterTask(constants.TASK_SYNC_JOB_CREATED, computing.SyncJobCreatedTask(m.Sync))
	}
	return m, nil
}

func (m *Market) Handler() *computing.Handler {
	return computing.NewHandler(m.Lifecycle, m.Engine, m.Sync, m.Nodes, m.Stats)
}

func (m *Market) RegisterRoutes(router *gin.RouterGroup) {
	m.Handler().RegisterRoutes(router)
}

// Publisher signs createJob transactions with signer.
func (m *Market) Publisher(signer *wallet.KeySigner) (*computing.PublishService, error) {
	if m.chain == nil {
		return nil, xerrors.New("no chain configured, set Chain.RpcUrl and Chain.CoreContract")
	}
	stub, err := core.NewCoreStub(m.chain, m.Config.Chain.CoreContract, core.WithPrivateKey(signer.PrivateKey()))
	if err != nil {
		return nil, err
	}
	return computing.NewPublishService(stub, m.Lifecycle, m.Store, m.Config.Chain.RewardDecimals), nil
}

// Start runs the celery worker and the sync poller until ctx is done.
func (m *Market) Start(ctx context.Context) {
	if m.Celery != nil {
		m.Celery.Start()
		m.celeryStarted = true
		logs.GetLogger().Infof("celery worker started, task: %s", constants.TASK_SYNC_JOB_CREATED)
	}
	if interval := time.Duration(m.Config.Chain.PollIntervalSeconds) * time.Second; interval > 0 && m.Sync.Enabled() {
		go m.Sync.Poll(ctx, interval)
		logs.GetLogger().Infof("polling JobCreated events every %s", interval)
	}
}

func (m *Market) Close() error {
	if m.celeryStarted {
		m.Celery.Stop()
	}
	if m.chain != nil {
		m.chain.Close()
	}
	if m.pool != nil {
		m.pool.Close()
	}
	if m.Store != nil {
		return m.Store.Close()
	}
	return nil
}
