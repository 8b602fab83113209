package config

import (
	"log"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	App      AppConfig      `mapstructure:"app"`
	DB       DBConfig       `mapstructure:"db"`
	Redis    RedisConfig    `mapstructure:"redis"`
	Kafka    KafkaConfig    `mapstructure:"kafka"`
	Chain    ChainConfig    `mapstructure:"chain"`
	Services ServicesConfig `mapstructure:"services"`
	Pipeline PipelineConfig `mapstructure:"pipeline"`
}

type AppConfig struct {
	Env      string `mapstructure:"env"`
	HttpPort string `mapstructure:"http_port"`
}

type DBConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Host     string `mapstructure:"host"`
	Port     string `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	Name     string `mapstructure:"name"`
}

type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
	MQType   string `mapstructure:"mq_type"` // "redis" or "kafka"
}

type KafkaConfig struct {
	Brokers []string `mapstructure:"brokers"`
}

// ChainConfig 链访问配置 (部署检查使用只读 RPC)
type ChainConfig struct {
	RpcUrl  string `mapstructure:"rpc_url"`
	Network string `mapstructure:"network"`
}

// ServicesConfig 外部服务端点 (实现对我们不透明，只约定请求/响应)
type ServicesConfig struct {
	ChallengeURL     string `mapstructure:"challenge_url"`
	SafetyURL        string `mapstructure:"safety_url"`
	GasURL           string `mapstructure:"gas_url"`
	SubmissionURL    string `mapstructure:"submission_url"`
	AuthenticatorURL string `mapstructure:"authenticator_url"`
	AccountAddress   string `mapstructure:"account_address"` // 智能账户地址 (from)
}

// PipelineConfig 管线业务参数
type PipelineConfig struct {
	MaxAmount        string        `mapstructure:"max_amount"`         // 单笔上限 (decimal string)
	SafetyThreshold  int           `mapstructure:"safety_threshold"`   // isSafe 分数线
	DeployMinReserve string        `mapstructure:"deploy_min_reserve"` // 部署所需最小余额 (原生币)
	FeeEpsilon       string        `mapstructure:"fee_epsilon"`        // 低于该值显示 "< ε"
	HighCostUSD      string        `mapstructure:"high_cost_usd"`      // 高费用预警线 (USD)
	HighGasLimit     uint64        `mapstructure:"high_gas_limit"`     // 高 GasLimit 预警线
	CeremonyTimeout  time.Duration `mapstructure:"ceremony_timeout"`   // 认证器仪式超时
}

var Global Config

func Init() {
	viper.SetConfigName("config") // name of config file (without extension)
	viper.SetConfigType("yaml")   // REQUIRED if the config file does not have the extension in the name
	viper.AddConfigPath(".")      // optionally look for config in the working directory
	viper.AddConfigPath("./config")

	// 环境变量设置
	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	// 设置默认值
	setDefaults()

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			// Config file not found; ignore error if desired
			log.Printf("Warning: Config file not found, using defaults and environment variables")
		} else {
			// Config file was found but another error was produced
			log.Fatalf("Fatal error config file: %s \n", err)
		}
	}

	if err := viper.Unmarshal(&Global); err != nil {
		log.Fatalf("Unable to decode into struct, %v", err)
	}

	log.Printf("Configuration loaded successfully. Env: %s", Global.App.Env)
}

func setDefaults() {
	viper.SetDefault("app.env", "development")
	viper.SetDefault("app.http_port", "8080")

	viper.SetDefault("db.enabled", false)
	viper.SetDefault("db.host", "localhost")
	viper.SetDefault("db.port", "5432")
	viper.SetDefault("db.user", "pipeline_user")
	viper.SetDefault("db.password", "pipeline_password")
	viper.SetDefault("db.name", "pipeline_db")

	viper.SetDefault("redis.addr", "localhost:6379")
	viper.SetDefault("redis.db", 0)
	viper.SetDefault("redis.mq_type", "redis")

	viper.SetDefault("kafka.brokers", []string{"localhost:9092"})

	viper.SetDefault("chain.rpc_url", "http://localhost:8545")
	viper.SetDefault("chain.network", "sepolia")

	viper.SetDefault("services.challenge_url", "http://localhost:9001/challenge")
	viper.SetDefault("services.safety_url", "http://localhost:9002/analyze")
	viper.SetDefault("services.gas_url", "http://localhost:9003/gas")
	viper.SetDefault("services.submission_url", "http://localhost:9004/submit")
	viper.SetDefault("services.authenticator_url", "http://localhost:9005/ceremony")
	viper.SetDefault("services.account_address", "")

	viper.SetDefault("pipeline.max_amount", "100")
	viper.SetDefault("pipeline.safety_threshold", 60)
	viper.SetDefault("pipeline.deploy_min_reserve", "0.005")
	viper.SetDefault("pipeline.fee_epsilon", "0.0001")
	viper.SetDefault("pipeline.high_cost_usd", "1000")
	viper.SetDefault("pipeline.high_gas_limit", 10_000_000)
	viper.SetDefault("pipeline.ceremony_timeout", 60*time.Second)
}
