// =============================================================================
// 📦 ReasonMem 配置加载器
// =============================================================================
// 统一配置加载，支持 YAML 文件 + 环境变量覆盖
//
// 配置优先级: 默认值 → YAML 文件 → 环境变量
// =============================================================================
package config

import (
	"fmt"
	"os"
	"reflect"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config 是 reasonmem 的完整配置结构
type Config struct {
	// Fusion 排名融合配置
	Fusion FusionConfig `yaml:"fusion" env:"FUSION"`

	// Raptor 层级摘要树配置
	Raptor RaptorConfig `yaml:"raptor" env:"RAPTOR"`

	// Rerank 重排配置
	Rerank RerankConfig `yaml:"rerank" env:"RERANK"`

	// Pipeline 查询管线配置
	Pipeline PipelineConfig `yaml:"pipeline" env:"PIPELINE"`

	// Embedding 嵌入服务配置
	Embedding EmbeddingConfig `yaml:"embedding" env:"EMBEDDING"`

	// Summarize 摘要服务配置
	Summarize SummarizeConfig `yaml:"summarize" env:"SUMMARIZE"`

	// Qdrant 向量存储配置
	Qdrant QdrantConfig `yaml:"qdrant" env:"QDRANT"`

	// Redis 嵌入缓存配置
	Redis RedisConfig `yaml:"redis" env:"REDIS"`

	// Log 日志配置
	Log LogConfig `yaml:"log" env:"LOG"`
}

// FusionConfig 排名融合配置
type FusionConfig struct {
	// RRF 常数 K，分数贡献为 1/(K+rank)
	K int `yaml:"k" env:"K"`
	// 融合输出最大条数
	MaxResults int `yaml:"max_results" env:"MAX_RESULTS"`
}

// RaptorConfig 层级摘要树配置
type RaptorConfig struct {
	// 最大树深度（超过则合成单一聚合根）
	MaxDepth int `yaml:"max_depth" env:"MAX_DEPTH"`
	// 软聚类相似度阈值，超过该值的节点可同时归属多个簇
	ClusterSimilarityThreshold float64 `yaml:"cluster_similarity_threshold" env:"CLUSTER_SIMILARITY_THRESHOLD"`
	// 每簇摘要失败重试上限
	SummarizationRetryLimit int `yaml:"summarization_retry_limit" env:"SUMMARIZATION_RETRY_LIMIT"`
	// 失败簇比例超过该阈值时整体中止构建
	BuildFailureAbortThreshold float64 `yaml:"build_failure_abort_threshold" env:"BUILD_FAILURE_ABORT_THRESHOLD"`
	// 摘要并发 worker 数
	BuildWorkers int `yaml:"build_workers" env:"BUILD_WORKERS"`
	// 树遍历检索时每层保留的子节点数
	TraversalTopK int `yaml:"traversal_top_k" env:"TRAVERSAL_TOP_K"`
}

// RerankConfig 重排配置
type RerankConfig struct {
	// 参与重排的融合结果数
	TopN int `yaml:"top_n" env:"TOP_N"`
	// 交叉编码器打分并发上限（独立于构建池）
	Concurrency int `yaml:"concurrency" env:"CONCURRENCY"`
	// 提供者端点
	Provider string `yaml:"provider" env:"PROVIDER"`
	BaseURL  string `yaml:"base_url" env:"BASE_URL"`
	APIKey   string `yaml:"api_key" env:"API_KEY"`
	Model    string `yaml:"model" env:"MODEL"`
}

// PipelineConfig 查询管线配置
type PipelineConfig struct {
	// 单通道超时
	PerChannelTimeout time.Duration `yaml:"per_channel_timeout" env:"PER_CHANNEL_TIMEOUT"`
	// 整体截止时间
	OverallDeadline time.Duration `yaml:"overall_deadline" env:"OVERALL_DEADLINE"`
	// 查询扩展变体数（0 禁用扩展）
	ExpansionVariantCount int `yaml:"expansion_variant_count" env:"EXPANSION_VARIANT_COUNT"`
	// 上下文组装 token 预算
	ContextTokenBudget int `yaml:"context_token_budget" env:"CONTEXT_TOKEN_BUDGET"`
	// 每通道检索条数
	ChannelTopK int `yaml:"channel_top_k" env:"CHANNEL_TOP_K"`
	// 是否启用重排阶段
	EnableRerank bool `yaml:"enable_rerank" env:"ENABLE_RERANK"`
	// token 计数模型（tiktoken）
	TokenizerModel string `yaml:"tokenizer_model" env:"TOKENIZER_MODEL"`
}

// EmbeddingConfig 嵌入服务配置
type EmbeddingConfig struct {
	Provider   string        `yaml:"provider" env:"PROVIDER"`
	BaseURL    string        `yaml:"base_url" env:"BASE_URL"`
	APIKey     string        `yaml:"api_key" env:"API_KEY"`
	Model      string        `yaml:"model" env:"MODEL"`
	Dimensions int           `yaml:"dimensions" env:"DIMENSIONS"`
	Timeout    time.Duration `yaml:"timeout" env:"TIMEOUT"`
	// CacheTTL 嵌入缓存有效期（0 禁用缓存）
	CacheTTL time.Duration `yaml:"cache_ttl" env:"CACHE_TTL"`
}

// SummarizeConfig 摘要服务配置
type SummarizeConfig struct {
	BaseURL   string        `yaml:"base_url" env:"BASE_URL"`
	APIKey    string        `yaml:"api_key" env:"API_KEY"`
	Model     string        `yaml:"model" env:"MODEL"`
	MaxTokens int           `yaml:"max_tokens" env:"MAX_TOKENS"`
	Timeout   time.Duration `yaml:"timeout" env:"TIMEOUT"`
}

// QdrantConfig Qdrant 连接配置
type QdrantConfig struct {
	Host       string        `yaml:"host" env:"HOST"`
	Port       int           `yaml:"port" env:"PORT"`
	APIKey     string        `yaml:"api_key" env:"API_KEY"`
	Collection string        `yaml:"collection" env:"COLLECTION"`
	Timeout    time.Duration `yaml:"timeout" env:"TIMEOUT"`
	UseTLS     bool          `yaml:"use_tls" env:"USE_TLS"`
}

// RedisConfig Redis 连接配置
type RedisConfig struct {
	Addr     string `yaml:"addr" env:"ADDR"`
	Password string `yaml:"password" env:"PASSWORD"`
	DB       int    `yaml:"db" env:"DB"`
}

// LogConfig 日志配置
type LogConfig struct {
	Level  string `yaml:"level" env:"LEVEL"`
	Format string `yaml:"format" env:"FORMAT"` // json 或 console
}

// =============================================================================
// 🔧 配置加载器
// =============================================================================

// Loader 配置加载器（Builder 模式）
type Loader struct {
	configPath string
	envPrefix  string
	validators []func(*Config) error
}

// NewLoader 创建新的配置加载器
func NewLoader() *Loader {
	return &Loader{
		envPrefix:  "REASONMEM",
		validators: make([]func(*Config) error, 0),
	}
}

// WithConfigPath 设置配置文件路径
func (l *Loader) WithConfigPath(path string) *Loader {
	l.configPath = path
	return l
}

// WithEnvPrefix 设置环境变量前缀
func (l *Loader) WithEnvPrefix(prefix string) *Loader {
	l.envPrefix = prefix
	return l
}

// WithValidator 添加配置验证器
func (l *Loader) WithValidator(v func(*Config) error) *Loader {
	l.validators = append(l.validators, v)
	return l
}

// Load 加载配置
// 优先级: 默认值 → YAML 文件 → 环境变量
func (l *Loader) Load() (*Config, error) {
	cfg := DefaultConfig()

	if l.configPath != "" {
		if err := l.loadFromFile(cfg); err != nil {
			return nil, fmt.Errorf("failed to load config from file: %w", err)
		}
	}

	if err := l.loadFromEnv(cfg); err != nil {
		return nil, fmt.Errorf("failed to load config from env: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	for _, v := range l.validators {
		if err := v(cfg); err != nil {
			return nil, fmt.Errorf("config validation failed: %w", err)
		}
	}

	return cfg, nil
}

// loadFromFile 从 YAML 文件加载配置
func (l *Loader) loadFromFile(cfg *Config) error {
	data, err := os.ReadFile(l.configPath)
	if err != nil {
		if os.IsNotExist(err) {
			// 文件不存在，使用默认值
			return nil
		}
		return fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("failed to parse config file: %w", err)
	}

	return nil
}

// loadFromEnv 从环境变量加载配置
func (l *Loader) loadFromEnv(cfg *Config) error {
	return l.setFieldsFromEnv(reflect.ValueOf(cfg).Elem(), l.envPrefix)
}

// setFieldsFromEnv 递归设置结构体字段
func (l *Loader) setFieldsFromEnv(v reflect.Value, prefix string) error {
	t := v.Type()

	for i := 0; i < v.NumField(); i++ {
		field := v.Field(i)
		fieldType := t.Field(i)

		envTag := fieldType.Tag.Get("env")
		if envTag == "" || envTag == "-" {
			continue
		}

		envKey := prefix + "_" + envTag

		if field.Kind() == reflect.Struct {
			if err := l.setFieldsFromEnv(field, envKey); err != nil {
				return err
			}
			continue
		}

		envValue := os.Getenv(envKey)
		if envValue == "" {
			continue
		}

		if err := setFieldValue(field, envValue); err != nil {
			return fmt.Errorf("failed to set %s: %w", envKey, err)
		}
	}

	return nil
}

// setFieldValue 设置字段值
func setFieldValue(field reflect.Value, value string) error {
	if !field.CanSet() {
		return nil
	}

	switch field.Kind() {
	case reflect.String:
		field.SetString(value)

	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		// 特殊处理 time.Duration
		if field.Type() == reflect.TypeOf(time.Duration(0)) {
			d, err := time.ParseDuration(value)
			if err != nil {
				return err
			}
			field.SetInt(int64(d))
		} else {
			i, err := strconv.ParseInt(value, 10, 64)
			if err != nil {
				return err
			}
			field.SetInt(i)
		}

	case reflect.Float32, reflect.Float64:
		f, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return err
		}
		field.SetFloat(f)

	case reflect.Bool:
		b, err := strconv.ParseBool(value)
		if err != nil {
			return err
		}
		field.SetBool(b)
	}

	return nil
}

// MustLoad 加载配置，失败时 panic
func MustLoad(path string) *Config {
	cfg, err := NewLoader().WithConfigPath(path).Load()
	if err != nil {
		panic(fmt.Sprintf("failed to load config: %v", err))
	}
	return cfg
}

// Validate 验证配置
func (c *Config) Validate() error {
	var errs []string

	if c.Fusion.K <= 0 {
		errs = append(errs, "fusion.k must be positive")
	}
	if c.Fusion.MaxResults <= 0 {
		errs = append(errs, "fusion.max_results must be positive")
	}
	if c.Raptor.MaxDepth <= 0 {
		errs = append(errs, "raptor.max_depth must be positive")
	}
	if c.Raptor.ClusterSimilarityThreshold < 0 || c.Raptor.ClusterSimilarityThreshold > 1 {
		errs = append(errs, "raptor.cluster_similarity_threshold must be in [0,1]")
	}
	if c.Raptor.BuildFailureAbortThreshold < 0 || c.Raptor.BuildFailureAbortThreshold > 1 {
		errs = append(errs, "raptor.build_failure_abort_threshold must be in [0,1]")
	}
	if c.Rerank.TopN <= 0 {
		errs = append(errs, "rerank.top_n must be positive")
	}
	if c.Pipeline.PerChannelTimeout <= 0 {
		errs = append(errs, "pipeline.per_channel_timeout must be positive")
	}
	if c.Pipeline.ContextTokenBudget <= 0 {
		errs = append(errs, "pipeline.context_token_budget must be positive")
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation errors: %s", strings.Join(errs, "; "))
	}

	return nil
}
