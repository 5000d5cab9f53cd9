package config

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/cloudwego/eino-ext/components/model/ark"
	"github.com/cloudwego/eino/components/model"
	"github.com/spf13/viper"
)

// Config 聚合整个服务的配置项。
type Config struct {
	Server  ServerConfig
	Log     LogConfig
	AI      AIConfig
	Chat    ChatConfig
	Catalog CatalogConfig
	Auth    AuthConfig
}

// Load 从环境变量加载配置。
func Load() (*Config, error) {
	return LoadFrom(newEnvViper())
}

// LoadFrom 从给定的 viper 实例读取配置，便于测试注入。
func LoadFrom(v *viper.Viper) (*Config, error) {
	setDefaults(v)

	server, err := loadServerConfig(v)
	if err != nil {
		return nil, err
	}

	logCfg, err := loadLogConfig(v)
	if err != nil {
		return nil, err
	}

	ai, err := loadAIConfig(v)
	if err != nil {
		return nil, err
	}

	chat, err := loadChatConfig(v)
	if err != nil {
		return nil, err
	}

	catalog, err := loadCatalogConfig(v)
	if err != nil {
		return nil, err
	}

	auth, err := loadAuthConfig(v)
	if err != nil {
		return nil, err
	}

	return &Config{Server: server, Log: logCfg, AI: ai, Chat: chat, Catalog: catalog, Auth: auth}, nil
}

func newEnvViper() *viper.Viper {
	v := viper.New()
	v.AutomaticEnv()
	// 模型名沿用大小写敏感的 "Model" 环境变量。
	_ = v.BindEnv("Model", "Model")
	return v
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("PORT", "8080")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "console")
	v.SetDefault("ARK_BASE_URL", "https://ark.cn-beijing.volces.com/api/v3")
	v.SetDefault("ARK_REGION", "cn-beijing")
	v.SetDefault("ARK_STREAM", true)
	v.SetDefault("AI_CHAT_ENABLED", true)
	v.SetDefault("CATALOG_BACKEND", "memory")
	v.SetDefault("CATALOG_CACHE_TTL", "5m")
	v.SetDefault("CHAT_STORE", "memory")
	v.SetDefault("DB_PATH", "z-lingo.db")
}

// ServerConfig 描述 HTTP 服务配置。
type ServerConfig struct {
	Addr string
}

// loadServerConfig 解析服务器监听地址。
func loadServerConfig(v *viper.Viper) (ServerConfig, error) {
	port := strings.TrimSpace(v.GetString("PORT"))
	if port == "" {
		port = "8080"
	}

	if strings.Contains(port, ":") {
		// 允许用户直接传入 ":8080" 或 "127.0.0.1:8080"。
		return ServerConfig{Addr: port}, nil
	}

	if strings.Contains(port, " ") {
		return ServerConfig{}, fmt.Errorf("invalid PORT value: %q", port)
	}

	return ServerConfig{Addr: ":" + port}, nil
}

// LogConfig 描述日志输出。
type LogConfig struct {
	Level  string
	Format string
}

func loadLogConfig(v *viper.Viper) (LogConfig, error) {
	format := strings.ToLower(strings.TrimSpace(v.GetString("LOG_FORMAT")))
	switch format {
	case "console", "json":
	default:
		return LogConfig{}, fmt.Errorf("invalid LOG_FORMAT value: %q", format)
	}
	return LogConfig{
		Level:  strings.ToLower(strings.TrimSpace(v.GetString("LOG_LEVEL"))),
		Format: format,
	}, nil
}

// AIConfig 描述大模型相关配置。
type AIConfig struct {
	APIKey         string
	AccessKey      string
	SecretKey      string
	Model          string
	BaseURL        string
	Region         string
	Temperature    *float64
	TopP           *float64
	MaxTokens      *int
	StreamResponse bool
}

// Enabled 表示是否提供了必需的密钥。
func (c AIConfig) Enabled() bool {
	return c.Model != "" && (c.APIKey != "" || (c.AccessKey != "" && c.SecretKey != ""))
}

// CanStream 表示是否可以直连 chat/completions 流式接口（需要 API Key）。
func (c AIConfig) CanStream() bool {
	return c.StreamResponse && c.Model != "" && c.APIKey != ""
}

// NewChatModel 使用配置创建一个模型实例。
func (c AIConfig) NewChatModel(ctx context.Context) (model.ChatModel, error) {
	if !c.Enabled() {
		return nil, fmt.Errorf("Ark 凭证或模型配置缺失，至少提供 ARK_API_KEY + Model 或 AK/SK 组合")
	}

	var temperature *float32
	if c.Temperature != nil {
		val := float32(*c.Temperature)
		temperature = &val
	}

	var topP *float32
	if c.TopP != nil {
		val := float32(*c.TopP)
		topP = &val
	}

	cfg := &ark.ChatModelConfig{
		BaseURL:     c.BaseURL,
		Region:      c.Region,
		APIKey:      c.APIKey,
		AccessKey:   c.AccessKey,
		SecretKey:   c.SecretKey,
		Model:       c.Model,
		MaxTokens:   c.MaxTokens,
		Temperature: temperature,
		TopP:        topP,
	}

	return ark.NewChatModel(ctx, cfg)
}

func loadAIConfig(v *viper.Viper) (AIConfig, error) {
	temperature, err := parseOptionalFloat(v, "ARK_TEMPERATURE")
	if err != nil {
		return AIConfig{}, err
	}

	topP, err := parseOptionalFloat(v, "ARK_TOP_P")
	if err != nil {
		return AIConfig{}, err
	}

	maxTokens, err := parseOptionalInt(v, "ARK_MAX_TOKENS")
	if err != nil {
		return AIConfig{}, err
	}

	stream, err := parseBool(v, "ARK_STREAM")
	if err != nil {
		return AIConfig{}, err
	}

	return AIConfig{
		APIKey:         strings.TrimSpace(v.GetString("ARK_API_KEY")),
		AccessKey:      strings.TrimSpace(v.GetString("ARK_ACCESS_KEY")),
		SecretKey:      strings.TrimSpace(v.GetString("ARK_SECRET_KEY")),
		Model:          strings.TrimSpace(v.GetString("Model")),
		BaseURL:        strings.TrimRight(strings.TrimSpace(v.GetString("ARK_BASE_URL")), "/"),
		Region:         strings.TrimSpace(v.GetString("ARK_REGION")),
		Temperature:    temperature,
		TopP:           topP,
		MaxTokens:      maxTokens,
		StreamResponse: stream,
	}, nil
}

// ChatConfig 控制 AI 对话功能开关与会话存储。
type ChatConfig struct {
	Enabled       bool
	AllowedRoles  []string
	AllowedModels []string
	Store         string
	DBPath        string
}

// RoleAllowed 判断角色是否可使用 AI 对话；未配置时放行所有角色。
func (c ChatConfig) RoleAllowed(role string) bool {
	if len(c.AllowedRoles) == 0 {
		return true
	}
	for _, allowed := range c.AllowedRoles {
		if strings.EqualFold(allowed, role) {
			return true
		}
	}
	return false
}

// ModelAllowed 判断客户端请求的模型是否在白名单内；未配置时只接受默认模型。
func (c ChatConfig) ModelAllowed(requested, defaultModel string) bool {
	if requested == "" || requested == defaultModel {
		return true
	}
	for _, allowed := range c.AllowedModels {
		if allowed == requested {
			return true
		}
	}
	return false
}

func loadChatConfig(v *viper.Viper) (ChatConfig, error) {
	enabled, err := parseBool(v, "AI_CHAT_ENABLED")
	if err != nil {
		return ChatConfig{}, err
	}

	store := strings.ToLower(strings.TrimSpace(v.GetString("CHAT_STORE")))
	switch store {
	case "memory", "sqlite":
	default:
		return ChatConfig{}, fmt.Errorf("invalid CHAT_STORE value: %q", store)
	}

	return ChatConfig{
		Enabled:       enabled,
		AllowedRoles:  splitList(v.GetString("AI_CHAT_ROLES")),
		AllowedModels: splitList(v.GetString("AI_ALLOWED_MODELS")),
		Store:         store,
		DBPath:        strings.TrimSpace(v.GetString("DB_PATH")),
	}, nil
}

// CatalogConfig 描述课程目录的数据来源与缓存。
type CatalogConfig struct {
	Backend        string
	SupabaseURL    string
	SupabaseAPIKey string
	RedisURL       string
	CacheTTL       time.Duration
}

func loadCatalogConfig(v *viper.Viper) (CatalogConfig, error) {
	backend := strings.ToLower(strings.TrimSpace(v.GetString("CATALOG_BACKEND")))
	cfg := CatalogConfig{
		Backend:        backend,
		SupabaseURL:    strings.TrimSpace(v.GetString("SUPABASE_URL")),
		SupabaseAPIKey: strings.TrimSpace(v.GetString("SUPABASE_API_KEY")),
		RedisURL:       strings.TrimSpace(v.GetString("REDIS_URL")),
	}

	switch backend {
	case "memory", "sqlite":
	case "supabase":
		if cfg.SupabaseURL == "" || cfg.SupabaseAPIKey == "" {
			return CatalogConfig{}, fmt.Errorf("CATALOG_BACKEND=supabase requires SUPABASE_URL and SUPABASE_API_KEY")
		}
	default:
		return CatalogConfig{}, fmt.Errorf("invalid CATALOG_BACKEND value: %q", backend)
	}

	raw := strings.TrimSpace(v.GetString("CATALOG_CACHE_TTL"))
	ttl, err := time.ParseDuration(raw)
	if err != nil {
		return CatalogConfig{}, fmt.Errorf("invalid CATALOG_CACHE_TTL value %q: %w", raw, err)
	}
	if ttl <= 0 {
		return CatalogConfig{}, fmt.Errorf("invalid CATALOG_CACHE_TTL value %q: must be positive", raw)
	}
	cfg.CacheTTL = ttl
	return cfg, nil
}

// AuthConfig 保存静态 Bearer Token 到用户身份的映射。
type AuthConfig struct {
	Tokens map[string]Identity
}

// Identity 是 token 对应的用户与角色。
type Identity struct {
	UserID string
	Role   string
}

// loadAuthConfig 解析 AUTH_TOKENS，格式为 token=userID:role,token2=userID2:role2。
func loadAuthConfig(v *viper.Viper) (AuthConfig, error) {
	tokens := make(map[string]Identity)
	for _, entry := range splitList(v.GetString("AUTH_TOKENS")) {
		token, identity, ok := strings.Cut(entry, "=")
		token = strings.TrimSpace(token)
		if !ok || token == "" {
			return AuthConfig{}, fmt.Errorf("invalid AUTH_TOKENS entry: %q", entry)
		}
		userID, role, _ := strings.Cut(identity, ":")
		userID = strings.TrimSpace(userID)
		if userID == "" {
			return AuthConfig{}, fmt.Errorf("invalid AUTH_TOKENS entry: %q", entry)
		}
		role = strings.TrimSpace(role)
		if role == "" {
			role = "student"
		}
		tokens[token] = Identity{UserID: userID, Role: role}
	}
	return AuthConfig{Tokens: tokens}, nil
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func parseBool(v *viper.Viper, key string) (bool, error) {
	raw := strings.TrimSpace(v.GetString(key))
	if raw == "" {
		return false, nil
	}
	val, err := strconv.ParseBool(raw)
	if err != nil {
		return false, fmt.Errorf("invalid %s value %q: %w", key, raw, err)
	}
	return val, nil
}

func parseOptionalFloat(v *viper.Viper, key string) (*float64, error) {
	raw := strings.TrimSpace(v.GetString(key))
	if raw == "" {
		return nil, nil
	}

	val, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid %s value %q: %w", key, raw, err)
	}
	return &val, nil
}

func parseOptionalInt(v *viper.Viper, key string) (*int, error) {
	raw := strings.TrimSpace(v.GetString(key))
	if raw == "" {
		return nil, nil
	}

	val, err := strconv.Atoi(raw)
	if err != nil {
		return nil, fmt.Errorf("invalid %s value %q: %w", key, raw, err)
	}
	return &val, nil
}
