package config

import (
	"fmt"
	"os"
	"strconv"
	"sync"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

var (
	once sync.Once
	cfg  *Config
)

// Config holds every setting the server and worker binaries need. Values are
// read from an optional YAML file, then overridden by environment variables
// (loaded from .env when present).
type Config struct {
	Server ServerConfig `yaml:"server"`
	Redis  RedisConfig  `yaml:"redis"`
	Minio  MinioConfig  `yaml:"minio"`
	Qdrant QdrantConfig `yaml:"qdrant"`
	Model  ModelConfig  `yaml:"model"`
	Ingest IngestConfig `yaml:"ingest"`
	Chat   ChatConfig   `yaml:"chat"`
}

type ServerConfig struct {
	Addr       string `yaml:"addr"`
	SQLitePath string `yaml:"sqlitePath"`
}

type RedisConfig struct {
	Addr string `yaml:"addr"`
	DB   int    `yaml:"db"`
}

type MinioConfig struct {
	Endpoint  string `yaml:"endpoint"`
	AccessKey string `yaml:"accessKey"`
	SecretKey string `yaml:"secretKey"`
	Bucket    string `yaml:"bucket"`
	UseSSL    bool   `yaml:"useSSL"`
}

type QdrantConfig struct {
	URL        string        `yaml:"url"`
	APIKey     string        `yaml:"apiKey"`
	Collection string        `yaml:"collection"`
	Timeout    time.Duration `yaml:"timeout"`
}

type ModelConfig struct {
	BaseURL        string        `yaml:"baseURL"`
	APIKey         string        `yaml:"apiKey"`
	ChatModel      string        `yaml:"chatModel"`
	EmbeddingModel string        `yaml:"embeddingModel"`
	Timeout        time.Duration `yaml:"timeout"`
}

type IngestConfig struct {
	MaxFileSize    int64         `yaml:"maxFileSize"`
	ChunkSize      int           `yaml:"chunkSize"`
	ChunkOverlap   int           `yaml:"chunkOverlap"`
	EmbedWorkers   int           `yaml:"embedWorkers"`
	StageTimeout   time.Duration `yaml:"stageTimeout"`
	QueueName      string        `yaml:"queueName"`
	Concurrency    int           `yaml:"concurrency"`
	ProcessTimeout time.Duration `yaml:"processTimeout"`
}

type ChatConfig struct {
	HistoryMessages int           `yaml:"historyMessages"`
	ContextBudget   int           `yaml:"contextBudget"`
	TopK            int           `yaml:"topK"`
	MinScore        float64       `yaml:"minScore"`
	GenTimeout      time.Duration `yaml:"genTimeout"`
}

// Get returns the process-wide configuration, loading it on first use from
// the file named by DOCUCHAT_CONFIG (if set) and the environment.
func Get() *Config {
	once.Do(func() {
		c, err := Load(os.Getenv("DOCUCHAT_CONFIG"))
		if err != nil {
			panic(fmt.Sprintf("load config: %v", err))
		}
		cfg = c
	})
	return cfg
}

// Load reads configuration from path (may be empty) and the environment.
func Load(path string) (*Config, error) {
	// .env is optional; real environment still wins inside godotenv semantics.
	_ = godotenv.Load()

	c := defaults()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, c); err != nil {
			return nil, fmt.Errorf("parse config file: %w", err)
		}
	}

	applyEnv(c)
	return c, nil
}

func defaults() *Config {
	return &Config{
		Server: ServerConfig{
			Addr:       ":8080",
			SQLitePath: "data/docuchat.db",
		},
		Redis: RedisConfig{
			Addr: "localhost:6379",
			DB:   0,
		},
		Minio: MinioConfig{
			Endpoint: "localhost:9000",
			Bucket:   "docuchat-uploads",
		},
		Qdrant: QdrantConfig{
			URL:        "http://localhost:6333",
			Collection: "document_chunks",
			Timeout:    15 * time.Second,
		},
		Model: ModelConfig{
			BaseURL:        "https://api.openai.com/v1",
			ChatModel:      "gpt-4o-mini",
			EmbeddingModel: "text-embedding-3-small",
			Timeout:        60 * time.Second,
		},
		Ingest: IngestConfig{
			MaxFileSize:    10 * 1024 * 1024, // 10MB
			ChunkSize:      1000,
			ChunkOverlap:   200,
			EmbedWorkers:   4,
			StageTimeout:   2 * time.Minute,
			QueueName:      "default",
			Concurrency:    5,
			ProcessTimeout: 10 * time.Minute,
		},
		Chat: ChatConfig{
			HistoryMessages: 5,
			ContextBudget:   6000,
			TopK:            5,
			MinScore:        0.1,
			GenTimeout:      90 * time.Second,
		},
	}
}

func applyEnv(c *Config) {
	setString(&c.Server.Addr, "SERVER_ADDR")
	setString(&c.Server.SQLitePath, "SQLITE_PATH")
	setString(&c.Redis.Addr, "REDIS_ADDR")
	setInt(&c.Redis.DB, "REDIS_DB")
	setString(&c.Minio.Endpoint, "MINIO_ENDPOINT")
	setString(&c.Minio.AccessKey, "MINIO_ACCESS_KEY")
	setString(&c.Minio.SecretKey, "MINIO_SECRET_KEY")
	setString(&c.Minio.Bucket, "MINIO_BUCKET")
	setBool(&c.Minio.UseSSL, "MINIO_USE_SSL")
	setString(&c.Qdrant.URL, "QDRANT_URL")
	setString(&c.Qdrant.APIKey, "QDRANT_API_KEY")
	setString(&c.Qdrant.Collection, "QDRANT_COLLECTION")
	setString(&c.Model.BaseURL, "MODEL_BASE_URL")
	setString(&c.Model.APIKey, "OPENAI_API_KEY")
	setString(&c.Model.ChatModel, "CHAT_MODEL")
	setString(&c.Model.EmbeddingModel, "EMBEDDING_MODEL")
	setInt64(&c.Ingest.MaxFileSize, "MAX_FILE_SIZE")
	setInt(&c.Ingest.ChunkSize, "CHUNK_SIZE")
	setInt(&c.Ingest.ChunkOverlap, "CHUNK_OVERLAP")
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setInt64(dst *int64, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			*dst = n
		}
	}
}

func setBool(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}
