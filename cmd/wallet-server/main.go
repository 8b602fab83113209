package main

import (
	"context"
	"fmt"
	"time"

	"passkey-core/internal/client"
	"passkey-core/internal/handler"
	"passkey-core/internal/model"
	"passkey-core/internal/server"
	"passkey-core/internal/service/authz"
	"passkey-core/internal/service/deploy"
	"passkey-core/internal/service/gas"
	"passkey-core/internal/service/mq"
	"passkey-core/internal/service/records"
	"passkey-core/internal/service/safety"
	"passkey-core/internal/service/session"

	"passkey-core/pkg/cache"
	"passkey-core/pkg/config"
	"passkey-core/pkg/database"
	"passkey-core/pkg/logger"
	"passkey-core/pkg/utils/lock"
	"passkey-core/pkg/validator"

	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/gorm"

	_ "passkey-core/docs/swagger"
)

// @title Passkey Core API
// @version 1.0
// @description Passkey Smart Account Transaction Pipeline API
// @termsOfService http://swagger.io/terms/

// @host localhost:8080
// @BasePath /
func main() {
	// 0. 初始化 Config
	config.Init()

	// 1. 初始化 Logger
	logger.Init(config.Global.App.Env)
	defer logger.Sync()

	// 2. 注册自定义校验规则
	validator.Init()

	// 3. 连接数据库 (可选，关闭时审计走直发 MQ)
	var db *gorm.DB
	if config.Global.DB.Enabled {
		dsn := fmt.Sprintf("host=%s user=%s password=%s dbname=%s port=%s sslmode=disable TimeZone=Asia/Shanghai",
			config.Global.DB.Host,
			config.Global.DB.User,
			config.Global.DB.Password,
			config.Global.DB.Name,
			config.Global.DB.Port,
		)
		var err error
		db, err = database.ConnectPostgres(dsn)
		if err != nil {
			logger.Fatal("数据库连接失败", zap.Error(err))
		}

		if config.Global.App.Env == "development" {
			logger.Info("开发环境: 尝试自动迁移 Schema (GORM AutoMigrate)...")
			if err := db.AutoMigrate(model.AllModels()...); err != nil {
				logger.Fatal("数据库自动迁移失败", zap.Error(err))
			}
		} else {
			logger.Info("生产环境: 跳过 AutoMigrate，请使用 migrate 工具管理 Schema")
		}
	}

	// 4. 连接 Redis (可选，失败时退化为单实例模式)
	var rdb *redis.Client
	rdb, err := database.ConnectRedis(config.Global.Redis.Addr, config.Global.Redis.Password, config.Global.Redis.DB)
	if err != nil {
		logger.Warn("Redis 连接失败，退化为单实例模式", zap.Error(err))
		rdb = nil
	}

	// 5. 初始化消息队列生产者
	var producer mq.Producer
	if config.Global.Redis.MQType == "kafka" {
		logger.Info("使用 Kafka 作为消息队列...")
		producer = mq.NewKafkaProducer(config.Global.Kafka.Brokers, records.TopicOperationFinished)
	} else if rdb != nil {
		logger.Info("使用 Redis Streams 作为消息队列...")
		producer = mq.NewRedisProducer(rdb)
	} else {
		logger.Warn("无可用消息队列，终态事件将不发布")
	}

	// 6. 连接链 RPC (失败时进入模拟模式，部署检查直接视为已部署)
	var chain deploy.ChainReader
	ethCli, err := ethclient.Dial(config.Global.Chain.RpcUrl)
	if err != nil {
		logger.Warn("链 RPC 连接失败，进入模拟模式", zap.Error(err))
	} else {
		chain = ethCli
	}

	// 7. 外部服务客户端
	svcCfg := config.Global.Services
	challengeCli := client.NewChallengeClient(svcCfg.ChallengeURL)
	safetyCli := client.NewSafetyClient(svcCfg.SafetyURL, svcCfg.AccountAddress, config.Global.Chain.Network)
	gasCli := client.NewGasClient(svcCfg.GasURL, svcCfg.AccountAddress)
	bundlerCli := client.NewBundlerClient(svcCfg.SubmissionURL)
	authnCli := client.NewAuthenticatorClient(svcCfg.AuthenticatorURL)

	// 8. 核心服务
	pipeCfg := config.Global.Pipeline
	analyzer := safety.NewAnalyzer(safetyCli, pipeCfg.SafetyThreshold)

	resolver := gas.NewResolver(
		gasCli,
		decimal.RequireFromString(pipeCfg.FeeEpsilon),
		decimal.RequireFromString(pipeCfg.HighCostUSD),
		pipeCfg.HighGasLimit,
	)

	var distLock lock.DistributedLock
	if rdb != nil {
		distLock = lock.NewRedisLock(rdb)
	}
	deployCache := cache.NewMemoryCache(5*time.Minute, 10*time.Minute)
	guard := deploy.NewGuard(chain, deployCache, distLock,
		bundlerCli, decimal.RequireFromString(pipeCfg.DeployMinReserve))

	broker := authz.NewBroker(challengeCli, authnCli, bundlerCli,
		authz.NewCeremonyLock(), pipeCfg.CeremonyTimeout)

	recorder := records.NewService(db, producer)

	ctl := session.NewController(
		analyzer, resolver, guard, broker, recorder,
		"user-main", svcCfg.AccountAddress,
		decimal.RequireFromString(pipeCfg.MaxAmount),
	)

	// 9. 后台任务
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ctl.StartJanitor(ctx)
	if db != nil && producer != nil {
		relay := records.NewRelay(db, producer)
		go relay.Start(ctx)
	}

	// 10. HTTP Router + 启动
	r := server.NewHTTPRouter(handler.NewSessionHandler(ctl))
	app := server.New(server.Config{HttpPort: config.Global.App.HttpPort}, r)
	app.Run()

	// 11. 退出后资源清理
	cancel()
	if producer != nil {
		producer.Close()
	}
	if db != nil {
		if sqlDB, err := db.DB(); err == nil {
			sqlDB.Close()
		}
	}
	if rdb != nil {
		rdb.Close()
	}
	logger.Info("系统已退出")
}
